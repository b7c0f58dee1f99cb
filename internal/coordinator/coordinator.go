// Package coordinator serializes requests that share a key. Issuing a request
// for a key supersedes whatever is outstanding for it, and debounced
// issuances are coalesced into the last one of a quiet window.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

const (
	// DefaultDebounceWindow is the quiet period used by Debounce.
	DefaultDebounceWindow = 500 * time.Millisecond
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second
)

// ErrClosed is returned once the coordinator has been shut down. It matches
// outcome.ErrCancelled.
var ErrClosed = fmt.Errorf("%w: coordinator closed", outcome.ErrCancelled)

// Token identifies one issuance.
type Token string

// Options configure a Coordinator.
type Options struct {
	DebounceWindow time.Duration
	Timeout        time.Duration
	RateLimit      RateLimit
	Registerer     prometheus.Registerer
	Logger         *slog.Logger
}

// Coordinator owns one lane per key. A lane records the generation of the
// latest issuance; only that generation may apply its result.
type Coordinator struct {
	window  time.Duration
	timeout time.Duration
	limiter *keyLimiter
	metrics *metrics
	logger  *slog.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
}

type lane struct {
	mu     sync.Mutex
	gen    uint64
	token  Token
	cancel context.CancelFunc
	timer  *time.Timer
}

// New constructs a Coordinator.
func New(opts Options) *Coordinator {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultDebounceWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Coordinator{
		window:  opts.DebounceWindow,
		timeout: opts.Timeout,
		metrics: newMetrics(opts.Registerer),
		logger:  opts.Logger,
		lanes:   make(map[string]*lane),
	}
	if opts.RateLimit.enabled() {
		c.limiter = newKeyLimiter(opts.RateLimit, 0)
	}
	return c
}

// Window reports the debounce quiet period.
func (c *Coordinator) Window() time.Duration {
	return c.window
}

// Issue runs do immediately as the current request for key, cancelling any
// request or pending debounce for the same key. apply, when non-nil, runs only
// if this request is still current when do returns; applies for one key never
// overlap. A superseded request returns outcome.ErrCancelled even if do
// succeeded. apply must not issue on the same key.
func Issue[T any](ctx context.Context, c *Coordinator, key string, do func(context.Context) (T, error), apply func(T)) (T, error) {
	var zero T

	reqCtx, l, gen, token, err := c.begin(ctx, key)
	if err != nil {
		return zero, err
	}
	defer c.release(key, l, gen)

	return execute(reqCtx, c, key, l, gen, token, do, apply)
}

// Debounce schedules do to run as the current request for key once no other
// call for key has been made for the debounce window. Every call restarts the
// window and cancels whatever is in flight for the key, so only the last call's
// operation is sent. onErr receives failures that were not caused by
// supersession or cancellation. ctx scopes the eventual request.
func Debounce[T any](ctx context.Context, c *Coordinator, key string, do func(context.Context) (T, error), apply func(T), onErr func(error)) Token {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ""
	}
	l := c.laneLocked(key)
	l.mu.Lock()
	c.mu.Unlock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		c.metrics.coalesced.WithLabelValues(scopeOf(key)).Inc()
	}
	c.supersedeLocked(key, l)

	l.gen++
	gen := l.gen
	token := Token(uuid.NewString())
	l.token = token

	l.timer = time.AfterFunc(c.window, func() {
		reqCtx, ok := c.fire(ctx, l, gen)
		if !ok {
			return
		}
		defer c.release(key, l, gen)

		_, err := execute(reqCtx, c, key, l, gen, token, do, apply)
		if err == nil || outcome.Silent(err) {
			return
		}
		if onErr != nil {
			onErr(err)
			return
		}
		c.logger.Warn("debounced request failed", slog.String("key", key), slog.Any("error", err))
	})

	return token
}

// Cancel supersedes anything outstanding for key.
func (c *Coordinator) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lanes[key]
	if !ok {
		return
	}
	l.mu.Lock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	c.supersedeLocked(key, l)
	l.gen++
	l.mu.Unlock()

	delete(c.lanes, key)
}

// Current returns the token of the latest issuance for key.
func (c *Coordinator) Current(key string) (Token, bool) {
	c.mu.Lock()
	l, ok := c.lanes[key]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	l.mu.Lock()
	c.mu.Unlock()
	defer l.mu.Unlock()

	if l.cancel == nil && l.timer == nil {
		return "", false
	}
	return l.token, true
}

// Close cancels every outstanding request. Later issuances fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for key, l := range c.lanes {
		l.mu.Lock()
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
		c.supersedeLocked(key, l)
		l.gen++
		l.mu.Unlock()
	}
}

func (c *Coordinator) begin(ctx context.Context, key string) (context.Context, *lane, uint64, Token, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, 0, "", ErrClosed
	}
	l := c.laneLocked(key)
	l.mu.Lock()
	c.mu.Unlock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	c.supersedeLocked(key, l)

	l.gen++
	l.token = Token(uuid.NewString())

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	l.cancel = cancel

	return reqCtx, l, l.gen, l.token, nil
}

// fire turns a debounced issuance into a running request if it is still current.
func (c *Coordinator) fire(ctx context.Context, l *lane, gen uint64) (context.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gen != gen {
		return nil, false
	}
	l.timer = nil

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	l.cancel = cancel
	return reqCtx, true
}

func (c *Coordinator) supersedeLocked(key string, l *lane) {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
		c.metrics.superseded.WithLabelValues(scopeOf(key)).Inc()
	}
}

// release drops the lane once its last request has finished.
func (c *Coordinator) release(key string, l *lane, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.gen != gen {
		return
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.timer == nil && c.lanes[key] == l {
		delete(c.lanes, key)
	}
}

func (c *Coordinator) laneLocked(key string) *lane {
	l, ok := c.lanes[key]
	if !ok {
		l = &lane{}
		c.lanes[key] = l
	}
	return l
}

func (c *Coordinator) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lanes)
}

func execute[T any](ctx context.Context, c *Coordinator, key string, l *lane, gen uint64, token Token, do func(context.Context) (T, error), apply func(T)) (T, error) {
	var zero T
	scope := scopeOf(key)

	ctx = logging.WithRequestID(ctx, string(token))
	ctx, span := logging.StartSpan(ctx, "coordinator.request",
		attribute.String("coordinator.key", key),
		attribute.String("coordinator.token", string(token)),
	)
	c.metrics.issued.WithLabelValues(scope).Inc()

	var (
		value T
		err   error
	)
	if err = c.limiter.Wait(ctx, key); err != nil {
		err = fmt.Errorf("%w: rate limit: %w", outcome.ErrNetwork, err)
	} else {
		start := time.Now()
		value, err = do(ctx)
		c.metrics.latency.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, outcome.ErrCancelled) {
			err = fmt.Errorf("%w: %w", outcome.FromContext(ctxErr), err)
		}
	}

	l.mu.Lock()
	if l.gen != gen {
		err = fmt.Errorf("%w: superseded by a newer request for %s", outcome.ErrCancelled, key)
	} else if err == nil && apply != nil {
		apply(value)
	}
	l.mu.Unlock()

	kind := outcome.Classify(err)
	c.metrics.outcomes.WithLabelValues(scope, kind.String()).Inc()
	span.End(err)

	if err != nil {
		if kind == outcome.Cancelled {
			span.Logger().Debug("request discarded", slog.String("key", key))
		}
		return zero, err
	}
	return value, nil
}
