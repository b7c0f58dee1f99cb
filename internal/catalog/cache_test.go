package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/f1v3nt5/poketroid/internal/models"
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	item  models.MediaItem
	err   error
}

func (s *stubSource) Media(_ context.Context, mediaID int64) (models.MediaItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return models.MediaItem{}, s.err
	}
	item := s.item
	item.ID = mediaID
	return item, nil
}

func (s *stubSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestCachingSourceUsesMemoryCache(t *testing.T) {
	base := &stubSource{item: models.MediaItem{Title: "Mewtwo Strikes Back", Type: models.MediaMovie}}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.NowFunc = func() time.Time { return now }
	source := NewCachingSource(base, cache, time.Minute, nil)

	for i := 0; i < 3; i++ {
		item, err := source.Media(context.Background(), 151)
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if item.ID != 151 || item.Title != "Mewtwo Strikes Back" {
			t.Fatalf("unexpected item %+v", item)
		}
	}
	if calls := base.count(); calls != 1 {
		t.Fatalf("expected one source call, got %d", calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := source.Media(context.Background(), 151); err != nil {
		t.Fatalf("lookup after expiry: %v", err)
	}
	if calls := base.count(); calls != 2 {
		t.Fatalf("expected expired entry to be refetched, got %d calls", calls)
	}
}

func TestCachingSourceDoesNotCacheErrors(t *testing.T) {
	base := &stubSource{err: errors.New("boom")}
	source := NewCachingSource(base, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := source.Media(context.Background(), 1); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls := base.count(); calls != 2 {
		t.Fatalf("expected every failed lookup to reach the source, got %d", calls)
	}

	var nilSource *CachingSource
	if _, err := nilSource.Media(context.Background(), 1); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected unavailable source, got %v", err)
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cache := NewRedisCache(client, "")
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, 25); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	item := models.MediaItem{ID: 25, Title: "Pikachu Adventures", Type: models.MediaAnime, Genres: []string{"comedy"}, Rating: 8.5}
	if err := cache.Set(ctx, item, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("poketroid:media:25") {
		t.Fatal("expected key to be stored with prefix")
	}

	got, ok, err := cache.Get(ctx, 25)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Title != item.Title || got.Type != item.Type || got.Rating != item.Rating || len(got.Genres) != 1 {
		t.Fatalf("unexpected cached item %+v", got)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, 25); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCachingSourceFallsThroughOnRedisFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	base := &stubSource{item: models.MediaItem{Title: "Charizard"}}
	source := NewCachingSource(base, NewRedisCache(client, "test:"), time.Minute, nil)

	item, err := source.Media(context.Background(), 6)
	if err != nil {
		t.Fatalf("expected source result despite cache failure, got %v", err)
	}
	if item.Title != "Charizard" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestDialRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = client.Close()

	if _, err := DialRedis(context.Background(), "not a url"); err == nil {
		t.Fatal("expected invalid url to fail")
	}
}
