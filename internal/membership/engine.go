package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/f1v3nt5/poketroid/internal/logging"
	"github.com/f1v3nt5/poketroid/internal/models"
	"github.com/f1v3nt5/poketroid/internal/outcome"
)

// Phase describes where a media item's membership is in its optimistic cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseConfirmed
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// Updater sends list mutations to the server and returns the membership the
// server ended up with.
type Updater interface {
	UpdateList(ctx context.Context, mediaID int64, list models.ListType, add bool) (models.Membership, error)
}

// SessionSource reports whether an authenticated session is available.
type SessionSource interface {
	Current(ctx context.Context) (models.Session, error)
}

// Change is delivered to subscribers whenever an item's visible state moves.
type Change struct {
	MediaID    int64
	Membership models.Membership
	Phase      Phase
	Err        error
}

// Options configures an Engine.
type Options struct {
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

type op struct {
	id    uint64
	list  models.ListType
	value bool
}

type entry struct {
	confirmed models.Membership
	current   models.Membership
	pending   []op
	phase     Phase
}

// replayLocked rebuilds the visible state from the last server-confirmed
// snapshot plus the mutations still waiting for an answer.
func (e *entry) replayLocked() {
	m := e.confirmed
	for _, p := range e.pending {
		m = m.With(p.list, p.value)
	}
	e.current = m
}

func (e *entry) removeLocked(id uint64) bool {
	for i, p := range e.pending {
		if p.id == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Engine owns the viewer's list membership for every media item it has seen.
// Toggles are applied locally before the server answers and reconciled per
// item in the order the answers arrive.
type Engine struct {
	updater  Updater
	sessions SessionSource
	logger   *slog.Logger
	metrics  *metrics

	mu      sync.Mutex
	entries map[int64]*entry
	nextOp  uint64
	subs    map[int]func(Change)
	nextSub int
}

// New constructs an Engine.
func New(updater Updater, sessions SessionSource, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		updater:  updater,
		sessions: sessions,
		logger:   logger,
		metrics:  newMetrics(opts.Registerer),
		entries:  make(map[int64]*entry),
		subs:     make(map[int]func(Change)),
	}
}

// Toggle flips list membership for mediaID. The flipped state is visible
// immediately; the returned membership is the server-confirmed one. On
// failure the item is restored to its state before the toggle and the error
// is returned alongside that restored state.
func (e *Engine) Toggle(ctx context.Context, mediaID int64, list models.ListType) (models.Membership, error) {
	if _, err := models.ParseListType(string(list)); err != nil {
		return e.Snapshot(mediaID), fmt.Errorf("%w: %w", outcome.ErrValidation, err)
	}
	if e.sessions != nil {
		if _, err := e.sessions.Current(ctx); err != nil {
			e.metrics.toggles.WithLabelValues(string(list), "rejected").Inc()
			return e.Snapshot(mediaID), err
		}
	}

	ctx, span := logging.StartSpan(ctx, "membership.toggle",
		attribute.Int64("media.id", mediaID),
		attribute.String("media.list", string(list)),
	)

	e.mu.Lock()
	ent := e.entryLocked(mediaID)
	e.nextOp++
	pending := op{id: e.nextOp, list: list, value: !ent.current.Has(list)}
	ent.pending = append(ent.pending, pending)
	ent.replayLocked()
	ent.phase = PhasePending
	optimistic := Change{MediaID: mediaID, Membership: ent.current, Phase: ent.phase}
	e.mu.Unlock()
	e.notify(optimistic)

	confirmed, err := e.updater.UpdateList(ctx, mediaID, list, pending.value)
	if err != nil {
		restored := e.rollback(mediaID, pending.id, err)
		e.logFailure(ctx, mediaID, list, err)
		e.metrics.toggles.WithLabelValues(string(list), "rolled_back").Inc()
		span.End(err)
		return restored, err
	}

	e.confirm(mediaID, pending.id, confirmed)
	e.metrics.toggles.WithLabelValues(string(list), "confirmed").Inc()
	span.End(nil)
	return confirmed.Normalize(), nil
}

// Seed records a snapshot the server reported through another call, such as
// a catalog page. Mutations still in flight are replayed on top of it.
func (e *Engine) Seed(mediaID int64, m models.Membership) {
	e.mu.Lock()
	ent := e.entryLocked(mediaID)
	ent.confirmed = m.Normalize()
	ent.replayLocked()
	if len(ent.pending) == 0 {
		ent.phase = PhaseIdle
	}
	change := Change{MediaID: mediaID, Membership: ent.current, Phase: ent.phase}
	e.mu.Unlock()
	e.notify(change)
}

// Snapshot returns the membership currently visible for mediaID.
func (e *Engine) Snapshot(mediaID int64) models.Membership {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[mediaID]; ok {
		return ent.current
	}
	return models.Membership{}
}

// Phase returns the optimistic-cycle phase of mediaID.
func (e *Engine) Phase(mediaID int64) Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[mediaID]; ok {
		return ent.phase
	}
	return PhaseIdle
}

// InFlight reports how many toggles for mediaID are waiting on the server.
func (e *Engine) InFlight(mediaID int64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ent, ok := e.entries[mediaID]; ok {
		return len(ent.pending)
	}
	return 0
}

// Subscribe registers fn for every state change. The returned function
// removes the subscription.
func (e *Engine) Subscribe(fn func(Change)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Reset forgets every item, typically after the session ends.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.entries = make(map[int64]*entry)
	e.mu.Unlock()
}

// confirm makes server the confirmed snapshot and replays what is still
// pending on top of it. Answers are taken in arrival order, so when the
// service applies two toggles in order but their answers arrive reversed,
// the older answer lands last and the replay can re-apply an operation the
// service already absorbed. The item then differs from the service until
// the next Seed from a fresh fetch corrects it.
func (e *Engine) confirm(mediaID int64, opID uint64, server models.Membership) {
	e.mu.Lock()
	ent := e.entryLocked(mediaID)
	ent.removeLocked(opID)
	ent.confirmed = server.Normalize()
	ent.replayLocked()
	ent.phase = PhaseConfirmed
	if len(ent.pending) > 0 {
		ent.phase = PhasePending
	}
	change := Change{MediaID: mediaID, Membership: ent.current, Phase: ent.phase}
	e.mu.Unlock()
	e.notify(change)
}

// rollback drops opID from the item's pending mutations and rebuilds the
// visible state without it. Rolling back an operation that is already gone
// changes nothing.
func (e *Engine) rollback(mediaID int64, opID uint64, cause error) models.Membership {
	e.mu.Lock()
	ent := e.entryLocked(mediaID)
	if !ent.removeLocked(opID) {
		current := ent.current
		e.mu.Unlock()
		return current
	}
	ent.replayLocked()
	ent.phase = PhaseRolledBack
	if len(ent.pending) > 0 {
		ent.phase = PhasePending
	}
	change := Change{MediaID: mediaID, Membership: ent.current, Phase: ent.phase, Err: cause}
	e.mu.Unlock()
	e.notify(change)
	return change.Membership
}

func (e *Engine) entryLocked(mediaID int64) *entry {
	ent, ok := e.entries[mediaID]
	if !ok {
		ent = &entry{}
		e.entries[mediaID] = ent
	}
	return ent
}

func (e *Engine) notify(change Change) {
	e.mu.Lock()
	subs := make([]func(Change), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func (e *Engine) logFailure(ctx context.Context, mediaID int64, list models.ListType, err error) {
	level := slog.LevelWarn
	if errors.Is(err, outcome.ErrCancelled) {
		level = slog.LevelDebug
	}
	e.logger.Log(ctx, level, "list update rolled back",
		slog.Int64("media_id", mediaID),
		slog.String("list", string(list)),
		slog.String("kind", outcome.Classify(err).String()),
		slog.Any("error", err),
	)
}
