package relationship

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// Policy decides what happens to the optimistic state when the service
// rejects a relationship action.
type Policy string

const (
	// PolicyRelaxed keeps the optimistic state and reports the failure.
	PolicyRelaxed Policy = "relaxed"
	// PolicyStrict restores the previous state unless a newer action has
	// already moved the relationship on.
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a policy name. An empty name selects PolicyRelaxed.
func ParsePolicy(value string) (Policy, error) {
	switch Policy(value) {
	case "", PolicyRelaxed:
		return PolicyRelaxed, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown relationship policy %q", value)
}

// SessionSource reports whether an authenticated session is available.
type SessionSource interface {
	Current(ctx context.Context) (models.Session, error)
}

// Failure describes a relationship action the service did not accept.
type Failure struct {
	Surface string
	Target  int64
	Action  Action
	From    State
	To      State
	Err     error
}

// Options configures a Machine.
type Options struct {
	Policy     Policy
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// OnError is called from a dispatcher goroutine for every failed action.
	OnError func(Failure)
}

// Machine holds one surface's view of the viewer's relationships. Surfaces
// never observe each other's optimistic changes; Refresh is how a surface
// catches up with the service.
type Machine struct {
	surface    string
	dispatcher *Dispatcher
	remote     Remote
	sessions   SessionSource
	policy     Policy
	logger     *slog.Logger
	metrics    *metrics
	onError    func(Failure)

	mu       sync.Mutex
	states   map[int64]State
	version  map[int64]uint64
	inflight int
	idle     chan struct{}
}

// NewMachine constructs the relationship state of one surface. remote is
// used by Refresh; mutations go through dispatcher.
func NewMachine(surface string, dispatcher *Dispatcher, remote Remote, sessions SessionSource, opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyRelaxed
	}
	return &Machine{
		surface:    surface,
		dispatcher: dispatcher,
		remote:     remote,
		sessions:   sessions,
		policy:     policy,
		logger:     logger.With(slog.String("surface", surface)),
		metrics:    sharedMetrics(opts.Registerer),
		onError:    opts.OnError,
		states:     make(map[int64]State),
		version:    make(map[int64]uint64),
	}
}

// Surface returns the name the machine was created with.
func (m *Machine) Surface() string {
	return m.surface
}

// Apply performs action against target. The new state is visible as soon as
// Apply returns; the service call runs in the background and its failure is
// logged and passed to OnError.
func (m *Machine) Apply(ctx context.Context, target int64, action Action) (State, error) {
	if m.sessions != nil {
		if _, err := m.sessions.Current(ctx); err != nil {
			m.metrics.actions.WithLabelValues(m.surface, string(action), "rejected").Inc()
			return m.State(target), err
		}
	}

	m.mu.Lock()
	from := m.stateLocked(target)
	to, ok := Next(from, action)
	if !ok {
		m.mu.Unlock()
		m.metrics.actions.WithLabelValues(m.surface, string(action), "invalid").Inc()
		logging.FromContext(ctx).Debug("relationship action ignored",
			slog.String("surface", m.surface),
			slog.Int64("target", target),
			slog.String("action", string(action)),
			slog.String("state", string(from)),
		)
		return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	m.states[target] = to
	m.version[target]++
	version := m.version[target]
	m.beginLocked()
	m.mu.Unlock()

	ctx = logging.WithSurface(ctx, m.surface)
	failure := Failure{Surface: m.surface, Target: target, Action: action, From: from, To: to}

	err := m.dispatcher.Enqueue(ctx, target, action, func(err error) {
		defer m.finish()
		m.settle(ctx, failure, version, err)
	})
	if err != nil {
		m.settle(ctx, failure, version, err)
		m.finish()
	}
	return to, nil
}

func (m *Machine) beginLocked() {
	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
}

func (m *Machine) finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.inflight == 0 {
		close(m.idle)
	}
}

func (m *Machine) settle(ctx context.Context, f Failure, version uint64, err error) {
	if err == nil {
		m.metrics.actions.WithLabelValues(m.surface, string(f.Action), "ok").Inc()
		return
	}
	m.metrics.actions.WithLabelValues(m.surface, string(f.Action), "failed").Inc()

	reverted := false
	if m.policy == PolicyStrict {
		m.mu.Lock()
		if m.version[f.Target] == version {
			m.states[f.Target] = f.From
			m.version[f.Target]++
			reverted = true
		}
		m.mu.Unlock()
	}

	m.logger.ErrorContext(ctx, "relationship action failed",
		slog.Int64("target", f.Target),
		slog.String("action", string(f.Action)),
		slog.String("from", string(f.From)),
		slog.String("to", string(f.To)),
		slog.String("kind", outcome.Classify(err).String()),
		slog.Bool("reverted", reverted),
		slog.Any("error", err),
	)

	if m.onError != nil {
		f.Err = err
		m.onError(f)
	}
}

// Seed records a state read from the service, replacing the local copy.
func (m *Machine) Seed(target int64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[target] = state
	m.version[target]++
}

// State returns this surface's current view of the relationship.
func (m *Machine) State(target int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(target)
}

func (m *Machine) stateLocked(target int64) State {
	if s, ok := m.states[target]; ok {
		return s
	}
	return StateNone
}

// Refresh re-reads the relationship from the service and replaces the local
// copy with it.
func (m *Machine) Refresh(ctx context.Context, target int64) (State, error) {
	if m.remote == nil {
		return m.State(target), fmt.Errorf("%w: no remote configured", outcome.ErrNetwork)
	}
	raw, err := m.remote.FriendStatus(ctx, target)
	if err != nil {
		return m.State(target), fmt.Errorf("refresh relationship: %w", err)
	}
	state, err := ParseState(raw)
	if err != nil {
		return m.State(target), err
	}
	m.Seed(target, state)
	return state, nil
}

// Wait blocks until every action applied on this surface has been answered.
func (m *Machine) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.inflight == 0 {
			m.mu.Unlock()
			return nil
		}
		idle := m.idle
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}
