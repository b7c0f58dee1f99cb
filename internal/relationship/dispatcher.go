package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// Remote performs relationship mutations against the service.
type Remote interface {
	SendFriendRequest(ctx context.Context, userID int64) error
	AcceptFriendRequest(ctx context.Context, userID int64) error
	RejectFriendRequest(ctx context.Context, userID int64) error
	CancelFriendRequest(ctx context.Context, userID int64) error
	RemoveFriend(ctx context.Context, userID int64) error
	FriendStatus(ctx context.Context, userID int64) (string, error)
}

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// Dispatcher sends relationship mutations in the background. Jobs for the
// same target always land on the same worker so they reach the service in
// the order they were applied locally.
type Dispatcher struct {
	remote  Remote
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	queues []chan dispatchJob
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

type dispatchJob struct {
	ctx    context.Context
	target int64
	action Action
	done   func(error)
}

// ErrDispatcherClosed is returned by Enqueue after Shutdown.
var ErrDispatcherClosed = fmt.Errorf("%w: relationship dispatcher closed", outcome.ErrCancelled)

// NewDispatcher starts the worker pool.
func NewDispatcher(remote Remote, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		remote:  remote,
		timeout: cfg.Timeout,
		logger:  logger,
		queues:  make([]chan dispatchJob, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := range d.queues {
		d.queues[i] = make(chan dispatchJob, cfg.QueueSize)
		go d.worker(d.queues[i])
	}

	return d
}

// Enqueue schedules action against target. done is called exactly once with
// the result, unless Enqueue itself returns an error.
func (d *Dispatcher) Enqueue(ctx context.Context, target int64, action Action, done func(error)) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return outcome.FromContext(ctx.Err())
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	default:
	}

	job := dispatchJob{
		ctx:    context.WithoutCancel(ctx),
		target: target,
		action: action,
		done:   done,
	}
	queue := d.queues[int(uint64(target)%uint64(len(d.queues)))]

	select {
	case <-ctx.Done():
		return outcome.FromContext(ctx.Err())
	case <-d.ctx.Done():
		return ErrDispatcherClosed
	case queue <- job:
		return nil
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.cancel()
		d.mu.Lock()
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker(jobs <-chan dispatchJob) {
	defer d.wg.Done()

	for job := range jobs {
		d.handleJob(job)
	}
}

func (d *Dispatcher) handleJob(job dispatchJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
	defer cancel()

	err := d.call(ctx, job.target, job.action)
	if outcome.Classify(err) == outcome.Unknown {
		err = outcome.FromContext(err)
	}
	if job.done != nil {
		job.done(err)
	}
}

func (d *Dispatcher) call(ctx context.Context, target int64, action Action) error {
	if d.remote == nil {
		d.logger.Error("relationship dispatcher missing remote", "target", target, "action", action)
		return fmt.Errorf("%w: no remote configured", outcome.ErrNetwork)
	}

	switch action {
	case ActionSend:
		return d.remote.SendFriendRequest(ctx, target)
	case ActionCancel:
		return d.remote.CancelFriendRequest(ctx, target)
	case ActionAccept:
		return d.remote.AcceptFriendRequest(ctx, target)
	case ActionReject:
		return d.remote.RejectFriendRequest(ctx, target)
	case ActionRemove:
		return d.remote.RemoveFriend(ctx, target)
	}
	return fmt.Errorf("%w: unknown relationship action %q", outcome.ErrValidation, action)
}
