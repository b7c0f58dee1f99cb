// Package apitest provides an in-memory stand-in for the media-tracking
// service so client components can be exercised over real HTTP.
package apitest

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 8 * time.Hour

const (
	friendshipPending  = "pending"
	friendshipAccepted = "accepted"
)

type account struct {
	user         models.User
	passwordHash []byte
	createdAt    time.Time
}

type mediaRecord struct {
	item     models.MediaItem
	duration int
}

type listEntry struct {
	membership models.Membership
	addedAt    time.Time
}

type friendship struct {
	from      int64
	to        int64
	status    string
	createdAt time.Time
}

type failure struct {
	status  int
	message string
}

// Backend holds the service state. All methods are safe for concurrent use.
type Backend struct {
	NowFunc func() time.Time

	mu          sync.Mutex
	echo        bool
	secret      []byte
	nextUserID  int64
	nextMediaID int64
	accounts    map[int64]*account
	byUsername  map[string]int64
	media       map[int64]*mediaRecord
	lists       map[int64]map[int64]*listEntry
	friendships []*friendship
	faker       *gofakeit.Faker

	failures map[string]failure
	hooks    map[string]func(*http.Request)
	calls    map[string]int
	headers  map[string]http.Header
}

// NewBackend returns an empty backend.
func NewBackend() *Backend {
	return &Backend{
		echo:       true,
		secret:     []byte("apitest-secret"),
		accounts:   make(map[int64]*account),
		byUsername: make(map[string]int64),
		media:      make(map[int64]*mediaRecord),
		lists:      make(map[int64]map[int64]*listEntry),
		faker:      gofakeit.New(42),
		failures:   make(map[string]failure),
		hooks:      make(map[string]func(*http.Request)),
		calls:      make(map[string]int),
		headers:    make(map[string]http.Header),
	}
}

func (b *Backend) now() time.Time {
	if b.NowFunc != nil {
		return b.NowFunc()
	}
	return time.Now().UTC()
}

// EchoSnapshot controls whether list mutations return the resulting
// membership. When disabled only a message is returned, as older deployments do.
func (b *Backend) EchoSnapshot(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.echo = enabled
}

// AddUser registers an account with the given password.
func (b *Backend) AddUser(username, password string) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hash password: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(models.User{Username: username}, hash)
}

// AddFakeUsers registers n accounts with generated profiles. Their password
// is "password123".
func (b *Backend) AddFakeUsers(n int) []models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		panic(fmt.Sprintf("apitest: hash password: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	users := make([]models.User, 0, n)
	for len(users) < n {
		username := strings.ToLower(b.faker.Username())
		username = strings.Map(func(r rune) rune {
			if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, username)
		if username == "" {
			continue
		}
		if _, taken := b.byUsername[username]; taken {
			continue
		}
		age := b.faker.Number(16, 70)
		users = append(users, b.addUserLocked(models.User{
			Username:    username,
			DisplayName: b.faker.Name(),
			About:       b.faker.Sentence(8),
			Age:         &age,
			Gender:      b.faker.RandomString([]string{"male", "female"}),
		}, hash))
	}
	return users
}

func (b *Backend) addUserLocked(user models.User, hash []byte) models.User {
	b.nextUserID++
	user.ID = b.nextUserID
	b.accounts[user.ID] = &account{user: user, passwordHash: hash, createdAt: b.now()}
	b.byUsername[user.Username] = user.ID
	return user
}

// User returns the stored account.
func (b *Backend) User(id int64) (models.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[id]
	if !ok {
		return models.User{}, false
	}
	return acc.user, true
}

// AddMedia stores a catalog item. A zero ID is assigned automatically.
// duration counts towards profile statistics when the item is completed.
func (b *Backend) AddMedia(item models.MediaItem, duration int) models.MediaItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	if item.ID == 0 {
		b.nextMediaID++
		item.ID = b.nextMediaID
	} else if item.ID > b.nextMediaID {
		b.nextMediaID = item.ID
	}
	b.media[item.ID] = &mediaRecord{item: item, duration: duration}
	return item
}

// AddFakeMedia stores n generated items of the given type.
func (b *Backend) AddFakeMedia(n int, mediaType models.MediaType) []models.MediaItem {
	items := make([]models.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		b.mu.Lock()
		item := models.MediaItem{
			Title:       b.faker.Sentence(3),
			Type:        mediaType,
			Rating:      b.faker.Float64Range(1, 10),
			ReleaseYear: b.faker.Number(1950, 2025),
			CoverURL:    b.faker.URL(),
			Description: b.faker.Paragraph(1, 3, 12, " "),
			Genres:      []string{b.faker.RandomString([]string{"drama", "comedy", "action", "fantasy"})},
			RatingCount: b.faker.Number(0, 100000),
		}
		if mediaType == models.MediaBook {
			item.Author = b.faker.Name()
		}
		duration := b.faker.Number(20, 200)
		b.mu.Unlock()
		items = append(items, b.AddMedia(item, duration))
	}
	return items
}

// SetMembership overwrites the user's lists for one media item.
func (b *Backend) SetMembership(userID, mediaID int64, m models.Membership) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setMembershipLocked(userID, mediaID, m.Normalize())
}

// Membership returns the user's lists for one media item.
func (b *Backend) Membership(userID, mediaID int64) models.Membership {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.membershipLocked(userID, mediaID)
}

func (b *Backend) membershipLocked(userID, mediaID int64) models.Membership {
	if entry, ok := b.lists[userID][mediaID]; ok {
		return entry.membership
	}
	return models.Membership{}
}

func (b *Backend) setMembershipLocked(userID, mediaID int64, m models.Membership) {
	lists, ok := b.lists[userID]
	if !ok {
		lists = make(map[int64]*listEntry)
		b.lists[userID] = lists
	}
	if m == (models.Membership{}) {
		delete(lists, mediaID)
		return
	}
	if entry, ok := lists[mediaID]; ok {
		entry.membership = m
		return
	}
	lists[mediaID] = &listEntry{membership: m, addedAt: b.now()}
}

// SendRequest records a pending invitation from one user to another.
func (b *Backend) SendRequest(from, to int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.friendships = append(b.friendships, &friendship{from: from, to: to, status: friendshipPending, createdAt: b.now()})
}

// Befriend records an accepted friendship.
func (b *Backend) Befriend(a, c int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.friendships = append(b.friendships, &friendship{from: a, to: c, status: friendshipAccepted, createdAt: b.now()})
}

// Relationship reports the stored relationship between two users as seen by
// viewer: "none", "pending_outgoing", "pending_incoming" or "accepted".
func (b *Backend) Relationship(viewer, other int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := b.friendshipLocked(viewer, other)
	switch {
	case f == nil:
		return "none"
	case f.status == friendshipAccepted:
		return "accepted"
	case f.from == viewer:
		return "pending_outgoing"
	default:
		return "pending_incoming"
	}
}

func (b *Backend) friendshipLocked(a, c int64) *friendship {
	for _, f := range b.friendships {
		if (f.from == a && f.to == c) || (f.from == c && f.to == a) {
			return f
		}
	}
	return nil
}

func (b *Backend) deleteFriendshipsLocked(match func(*friendship) bool) {
	kept := b.friendships[:0]
	for _, f := range b.friendships {
		if !match(f) {
			kept = append(kept, f)
		}
	}
	b.friendships = kept
}

func (b *Backend) friendIDsLocked(userID int64) []int64 {
	var ids []int64
	for _, f := range b.friendships {
		if f.status != friendshipAccepted {
			continue
		}
		switch userID {
		case f.from:
			ids = append(ids, f.to)
		case f.to:
			ids = append(ids, f.from)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Token issues a signed credential for the user that expires after ttl.
// A negative ttl yields an already expired token.
func (b *Backend) Token(userID int64, ttl time.Duration) string {
	now := b.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	return token
}

func (b *Backend) authenticate(r *http.Request) (int64, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return 0, false
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil {
		return 0, false
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, false
	}

	b.mu.Lock()
	_, ok := b.accounts[id]
	b.mu.Unlock()
	return id, ok
}

// Fail makes every request to route answer with status and message until
// Recover is called. Routes are written as registered, for example
// "POST /api/media/list".
func (b *Backend) Fail(route string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = failure{status: status, message: message}
}

// Recover removes an injected failure.
func (b *Backend) Recover(route string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, route)
}

// Hook runs fn before every request to route is handled. Tests use it to
// observe or delay requests.
func (b *Backend) Hook(route string, fn func(*http.Request)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.hooks, route)
		return
	}
	b.hooks[route] = fn
}

// Calls reports how many requests reached route.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// LastHeader returns the headers of the latest request to route.
func (b *Backend) LastHeader(route string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[route].Clone()
}
