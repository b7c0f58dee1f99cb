package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/f1v3nt5/poketroid/internal/api"
	"github.com/f1v3nt5/poketroid/internal/catalog"
	"github.com/f1v3nt5/poketroid/internal/config"
	"github.com/f1v3nt5/poketroid/internal/coordinator"
	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/membership"
	"github.com/f1v3nt5/poketroid/internal/relationship"
	"github.com/f1v3nt5/poketroid/internal/session"
)

// dependencies holds the engines shared by every command of one process.
type dependencies struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	guard      *session.Guard
	client     *api.Client
	coord      *coordinator.Coordinator
	lists      *membership.Engine
	dispatcher *relationship.Dispatcher
	media      catalog.MediaSource
	policy     relationship.Policy
	redis      *redis.Client
}

// buildDependencies wires together the concrete implementations used by the commands.
func buildDependencies(ctx context.Context, cfg config.Config, logOut io.Writer) (*dependencies, func(context.Context) error, error) {
	logger := logging.New(logOut, cfg.LogLevel)
	registry := prometheus.NewRegistry()

	policy, err := relationship.ParsePolicy(cfg.RelationshipPolicy)
	if err != nil {
		return nil, nil, err
	}

	key, err := cfg.SessionKeyBytes()
	if err != nil {
		return nil, nil, err
	}
	guard := session.NewGuard(session.NewFileStore(cfg.SessionFile, key))

	client, err := api.New(cfg.APIURL, guard, api.Options{Timeout: cfg.RequestTimeout})
	if err != nil {
		return nil, nil, err
	}

	coord := coordinator.New(coordinator.Options{
		DebounceWindow: cfg.DebounceWindow,
		Timeout:        cfg.RequestTimeout,
		RateLimit: coordinator.RateLimit{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
			Burst:    cfg.RateLimitBurst,
		},
		Registerer: registry,
		Logger:     logger,
	})

	dispatcher := relationship.NewDispatcher(client, relationship.DispatcherConfig{
		QueueSize: cfg.DispatchQueueSize,
		Workers:   cfg.DispatchWorkers,
		Timeout:   cfg.RequestTimeout,
	}, logger)

	deps := &dependencies{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		guard:      guard,
		client:     client,
		coord:      coord,
		lists:      membership.New(client, guard, membership.Options{Registerer: registry, Logger: logger}),
		dispatcher: dispatcher,
		policy:     policy,
	}

	var cache catalog.Cache = catalog.NewMemoryCache()
	if cfg.RedisURL != "" {
		rdb, err := catalog.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory media cache", slog.Any("error", err))
		} else {
			deps.redis = rdb
			cache = catalog.NewRedisCache(rdb, "")
		}
	}
	deps.media = catalog.NewCachingSource(client, cache, cfg.MediaCacheTTL, logger)

	cleanup := func(ctx context.Context) error {
		coord.Close()
		var errs []error
		if err := dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown relationship dispatcher: %w", err))
		}
		if deps.redis != nil {
			if err := deps.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	return deps, cleanup, nil
}

// surface returns the relationship state of one view. Each call yields an
// independent copy.
func (d *dependencies) surface(name string, onError func(relationship.Failure)) *relationship.Machine {
	return relationship.NewMachine(name, d.dispatcher, d.client, d.guard, relationship.Options{
		Policy:     d.policy,
		Logger:     d.logger,
		Registerer: d.registry,
		OnError:    onError,
	})
}

// browser returns a catalog surface seeded into the shared membership engine.
func (d *dependencies) browser(opts catalog.Options) *catalog.Browser {
	if opts.Logger == nil {
		opts.Logger = d.logger
	}
	return catalog.NewBrowser(d.coord, d.client, d.lists, opts)
}

// shutdownTimeout bounds how long pending relationship calls may take after a command returns.
const shutdownTimeout = 10 * time.Second
