package app

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/f1v3nt5/poketroid/internal/catalog"
	"github.com/f1v3nt5/poketroid/internal/config"
	"github.com/f1v3nt5/poketroid/internal/relationship"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		APIURL:             "http://127.0.0.1:1",
		LogLevel:           "debug",
		SessionFile:        filepath.Join(t.TempDir(), "session.json"),
		RequestTimeout:     time.Second,
		DebounceWindow:     20 * time.Millisecond,
		RelationshipPolicy: config.PolicyStrict,
		DispatchWorkers:    2,
		DispatchQueueSize:  4,
		MediaCacheTTL:      time.Minute,
	}
}

func TestBuildDependencies(t *testing.T) {
	var logs bytes.Buffer
	deps, cleanup, err := buildDependencies(context.Background(), testConfig(t), &logs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cleanup == nil {
		t.Fatal("expected cleanup function")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := cleanup(ctx); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	}()

	if deps.guard == nil {
		t.Fatal("expected session guard to be configured")
	}
	if deps.client == nil {
		t.Fatal("expected api client to be configured")
	}
	if deps.coord == nil {
		t.Fatal("expected request coordinator to be configured")
	}
	if deps.lists == nil {
		t.Fatal("expected membership engine to be configured")
	}
	if deps.dispatcher == nil {
		t.Fatal("expected relationship dispatcher to be configured")
	}
	if _, ok := deps.media.(*catalog.CachingSource); !ok {
		t.Fatalf("expected caching media source, got %T", deps.media)
	}
	if deps.policy != relationship.PolicyStrict {
		t.Fatalf("expected strict policy, got %q", deps.policy)
	}
	if deps.redis != nil {
		t.Fatal("expected no redis client without a url")
	}
	if deps.coord.Window() != 20*time.Millisecond {
		t.Fatalf("expected debounce window from config, got %s", deps.coord.Window())
	}

	a := deps.surface("profile", nil)
	b := deps.surface("search", nil)
	if a == b {
		t.Fatal("expected independent surfaces")
	}
}

func TestBuildDependenciesWithRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr()

	deps, cleanup, err := buildDependencies(context.Background(), cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deps.redis == nil {
		t.Fatal("expected redis client")
	}
	if err := cleanup(context.Background()); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestBuildDependenciesFallsBackWithoutRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + addr

	var logs bytes.Buffer
	deps, cleanup, err := buildDependencies(context.Background(), cfg, &logs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup(context.Background())

	if deps.redis != nil {
		t.Fatal("expected memory cache fallback")
	}
	if !strings.Contains(logs.String(), "redis unavailable") {
		t.Fatalf("expected fallback to be logged, got %q", logs.String())
	}
}

func TestBuildDependenciesRejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.RelationshipPolicy = "optimistic"
	if _, _, err := buildDependencies(context.Background(), cfg, &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown policy to fail")
	}
}
