package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/f1v3nt5/poketroid/internal/models"
)

const nonceSize = 24

// ErrSealedSession indicates the session file could not be opened with the configured key.
var ErrSealedSession = errors.New("session file could not be decrypted")

// FileStore persists the session as JSON on disk. When a key is configured
// the payload is sealed with NaCl secretbox.
type FileStore struct {
	path string
	key  *[32]byte
}

// NewFileStore constructs a FileStore at path. key may be nil.
func NewFileStore(path string, key *[32]byte) *FileStore {
	return &FileStore{path: path, key: key}
}

// Load reads the session file.
func (s *FileStore) Load(_ context.Context) (models.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Session{}, ErrNoSession
		}
		return models.Session{}, fmt.Errorf("read session file: %w", err)
	}

	if s.key != nil {
		data, err = s.open(data)
		if err != nil {
			return models.Session{}, err
		}
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return models.Session{}, fmt.Errorf("parse session file: %w", err)
	}
	return sess, nil
}

// Save writes the session file atomically with owner-only permissions.
func (s *FileStore) Save(_ context.Context, session models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if s.key != nil {
		data, err = s.seal(data)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear deletes the session file. A missing file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, s.key)
	return []byte(base64.StdEncoding.EncodeToString(box)), nil
}

func (s *FileStore) open(sealed []byte) ([]byte, error) {
	box, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(sealed)))
	if err != nil || len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedSession
	}

	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, s.key)
	if !ok {
		return nil, ErrSealedSession
	}
	return plain, nil
}
