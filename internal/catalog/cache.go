package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// ErrSourceUnavailable is returned when a CachingSource has nothing to read from.
var ErrSourceUnavailable = errors.New("media source unavailable")

// MediaSource loads media details.
type MediaSource interface {
	Media(ctx context.Context, mediaID int64) (models.MediaItem, error)
}

// Cache stores media details for a limited time.
type Cache interface {
	Get(ctx context.Context, mediaID int64) (models.MediaItem, bool, error)
	Set(ctx context.Context, item models.MediaItem, ttl time.Duration) error
}

type cacheEntry struct {
	item    models.MediaItem
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	NowFunc func() time.Time

	mu    sync.RWMutex
	items map[int64]cacheEntry
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[int64]cacheEntry)}
}

func (c *MemoryCache) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

// Get returns the cached item while it has not expired.
func (c *MemoryCache) Get(_ context.Context, mediaID int64) (models.MediaItem, bool, error) {
	c.mu.RLock()
	entry, ok := c.items[mediaID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expires) {
		return models.MediaItem{}, false, nil
	}
	return entry.item, true, nil
}

// Set stores item for ttl.
func (c *MemoryCache) Set(_ context.Context, item models.MediaItem, ttl time.Duration) error {
	c.mu.Lock()
	c.items[item.ID] = cacheEntry{item: item, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// RedisCache shares media details between client processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client. Keys are "<prefix>media:<id>".
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "poketroid:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL and checks the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(mediaID int64) string {
	return c.prefix + "media:" + strconv.FormatInt(mediaID, 10)
}

// Get reads and decodes a cached item.
func (c *RedisCache) Get(ctx context.Context, mediaID int64) (models.MediaItem, bool, error) {
	raw, err := c.client.Get(ctx, c.key(mediaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.MediaItem{}, false, nil
	}
	if err != nil {
		return models.MediaItem{}, false, fmt.Errorf("redis get: %w", err)
	}

	var item models.MediaItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.MediaItem{}, false, fmt.Errorf("decode cached media: %w", err)
	}
	return item, true, nil
}

// Set encodes item and stores it with ttl.
func (c *RedisCache) Set(ctx context.Context, item models.MediaItem, ttl time.Duration) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	if err := c.client.Set(ctx, c.key(item.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CachingSource wraps a MediaSource with a Cache. Cache failures are logged
// and fall through to the source.
type CachingSource struct {
	base   MediaSource
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachingSource returns a MediaSource that caches lookups for ttl.
func NewCachingSource(base MediaSource, cache Cache, ttl time.Duration, logger *slog.Logger) *CachingSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingSource{base: base, cache: cache, ttl: ttl, logger: logger}
}

// Media returns cached details when available, otherwise it delegates to the
// underlying source and stores the result.
func (c *CachingSource) Media(ctx context.Context, mediaID int64) (models.MediaItem, error) {
	if c == nil || c.base == nil {
		return models.MediaItem{}, ErrSourceUnavailable
	}

	item, ok, err := c.cache.Get(ctx, mediaID)
	if err != nil {
		c.logger.Warn("media cache read failed", slog.Int64("media_id", mediaID), slog.Any("error", err))
	}
	if ok {
		return item, nil
	}

	item, err = c.base.Media(ctx, mediaID)
	if err != nil {
		return models.MediaItem{}, err
	}

	if err := c.cache.Set(ctx, item, c.ttl); err != nil {
		c.logger.Warn("media cache write failed", slog.Int64("media_id", mediaID), slog.Any("error", err))
	}
	return item, nil
}
