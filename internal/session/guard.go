package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// ErrNoSession indicates the store holds no credential.
var ErrNoSession = errors.New("no stored session")

// Store persists the session credential and the cached identity of its owner.
type Store interface {
	Load(ctx context.Context) (models.Session, error)
	Save(ctx context.Context, session models.Session) error
	Clear(ctx context.Context) error
}

// Guard owns the process-wide session. Every authenticated action must call
// Current immediately before building its request; the validity result must
// not be carried across a network call because expiry can pass mid-operation.
// Only the guard writes to the store.
type Guard struct {
	store   Store
	NowFunc func() time.Time

	mu sync.Mutex
}

// NewGuard constructs a Guard backed by the provided store.
func NewGuard(store Store) *Guard {
	if store == nil {
		panic("session: store must not be nil")
	}
	return &Guard{store: store}
}

// Current returns the active session. An expired or undecodable credential is
// cleared and reported as outcome.ErrSessionExpired; a missing one as
// outcome.ErrAuthRequired.
func (g *Guard) Current(ctx context.Context) (models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, err := g.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return models.Session{}, outcome.ErrAuthRequired
		}
		return models.Session{}, fmt.Errorf("%w: load session: %w", outcome.ErrAuthRequired, err)
	}
	if strings.TrimSpace(sess.Token) == "" {
		return models.Session{}, outcome.ErrAuthRequired
	}

	expiresAt, err := ExpiryOf(sess.Token)
	if err != nil {
		g.clearLocked(ctx, "undecodable credential", err)
		return models.Session{}, outcome.ErrSessionExpired
	}
	if !expiresAt.IsZero() && !g.now().Before(expiresAt) {
		g.clearLocked(ctx, "credential expired", nil)
		return models.Session{}, outcome.ErrSessionExpired
	}

	sess.ExpiresAt = expiresAt
	return sess, nil
}

// Begin stores a new session after a successful login.
func (g *Guard) Begin(ctx context.Context, token string, user models.SessionUser) (models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Session{}, errors.New("session token must be provided")
	}

	expiresAt, err := ExpiryOf(token)
	if err != nil {
		return models.Session{}, fmt.Errorf("decode session token: %w", err)
	}
	if !expiresAt.IsZero() && !g.now().Before(expiresAt) {
		return models.Session{}, outcome.ErrSessionExpired
	}

	sess := models.Session{Token: token, User: user, ExpiresAt: expiresAt}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Save(ctx, sess); err != nil {
		return models.Session{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// End destroys the session on explicit logout.
func (g *Guard) End(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (g *Guard) clearLocked(ctx context.Context, reason string, cause error) {
	logger := logging.FromContext(ctx)
	if err := g.store.Clear(ctx); err != nil {
		logger.Error("clear session", slog.String("reason", reason), slog.Any("error", err))
		return
	}
	if cause != nil {
		logger.Warn("session cleared", slog.String("reason", reason), slog.Any("error", cause))
		return
	}
	logger.Info("session cleared", slog.String("reason", reason))
}

func (g *Guard) now() time.Time {
	if g.NowFunc != nil {
		return g.NowFunc()
	}
	return time.Now()
}

// ExpiryOf decodes the exp claim of a JWT without verifying its signature;
// the client never holds the signing key. A token without exp yields the zero time.
func ExpiryOf(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
