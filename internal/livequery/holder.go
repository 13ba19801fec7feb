package livequery

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// Discipline selects when a Holder fetches.
type Discipline int

const (
	// DisciplineEager fetches immediately on every mutation and notification.
	DisciplineEager Discipline = iota
	// DisciplineLazy marks the holder dirty and fetches on the next read.
	DisciplineLazy
)

func (d Discipline) String() string {
	if d == DisciplineLazy {
		return "lazy"
	}
	return "eager"
}

// ParseDiscipline parses "eager" or "lazy".
func ParseDiscipline(s string) (Discipline, bool) {
	switch s {
	case "eager":
		return DisciplineEager, true
	case "lazy":
		return DisciplineLazy, true
	default:
		return DisciplineEager, false
	}
}

// HolderOption configures a Holder.
type HolderOption func(*holderOptions)

type holderOptions struct {
	discipline Discipline
	logger     *slog.Logger
	base       context.Context
}

// WithDiscipline sets the refresh discipline. Defaults to DisciplineEager.
func WithDiscipline(d Discipline) HolderOption {
	return func(o *holderOptions) { o.discipline = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) HolderOption {
	return func(o *holderOptions) { o.logger = l }
}

// WithBaseContext sets the context used for fetches triggered by store
// notifications, which arrive without one. Defaults to
// context.Background().
func WithBaseContext(ctx context.Context) HolderOption {
	return func(o *holderOptions) { o.base = ctx }
}

// Holder owns the current Controller, the last good snapshot and the last
// error. It is meant to outlive the component that renders it: rebuild the
// Monitor, keep the Holder.
//
// T is the change token type.
type Holder[T comparable] struct {
	discipline Discipline
	logger     *slog.Logger
	base       context.Context

	mu         sync.Mutex
	controller *Controller
	token      Token[T]
	dirty      bool
	observers  []*observer

	state atomic.Pointer[result]
}

type observer struct {
	fn func()
}

// NewHolder creates an empty holder in PhaseEmpty.
func NewHolder[T comparable](opts ...HolderOption) *Holder[T] {
	o := holderOptions{
		discipline: DisciplineEager,
		logger:     slog.Default(),
		base:       context.Background(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	h := &Holder[T]{
		discipline: o.discipline,
		logger:     o.logger.With("component", "livequery"),
		base:       o.base,
	}
	h.state.Store(&result{})
	return h
}

// Discipline returns the holder's refresh discipline.
func (h *Holder[T]) Discipline() Discipline {
	return h.discipline
}

// SetQuery is called once per render.
//
//  1. If sc differs from the current controller's context, or there is no
//     controller, the old controller is disposed and a new one is bound to
//     sc. Its spec is the previous controller's spec when one existed,
//     otherwise declare(). When token also changed, the declared filter and
//     sort replace the carried-over ones, discarding any SetSortKeys or
//     SetFilter customization; only a context switch with an unchanged
//     token keeps it.
//  2. Else if token changed, the current controller is reconfigured with
//     the declared filter and sort keys.
//  3. Else nothing happens and nothing is fetched.
//
// After 1 or 2 the holder fetches (eager) or is marked dirty (lazy).
// declare is only invoked when its output is needed.
func (h *Holder[T]) SetQuery(ctx context.Context, sc StoreContext, token T, declare func() queryir.QuerySpec) {
	h.mu.Lock()
	changed := h.applyQueryLocked(sc, token, declare)
	if changed {
		h.refreshLocked(ctx)
	}
	h.mu.Unlock()

	if changed {
		h.notifyObservers()
	}
}

func (h *Holder[T]) applyQueryLocked(sc StoreContext, token T, declare func() queryir.QuerySpec) bool {
	tokenChanged := h.token.Observe(token)

	if prev := h.controller; prev == nil || prev.ContextID() != sc.ID() {
		var spec queryir.QuerySpec
		if prev != nil {
			spec = prev.Spec()
			prev.Dispose()
			h.controller = nil
			if tokenChanged {
				declared := declare()
				spec = spec.WithFilter(declared.Filter).WithSortKeys(declared.SortKeys...)
			}
			h.logger.Info("store context switched",
				"from", prev.ContextID(),
				"to", sc.ID(),
				"query", spec.String())
		} else {
			spec = declare()
		}
		h.controller = h.newController(sc, spec)
		return true
	}

	if tokenChanged {
		declared := declare()
		// Reconfigure only fails on a disposed controller, and the current
		// one never is.
		_ = h.controller.Reconfigure(declared.Filter, declared.SortKeys)
		return true
	}
	return false
}

func (h *Holder[T]) newController(sc StoreContext, spec queryir.QuerySpec) *Controller {
	var c *Controller
	c = NewController(sc, spec, func() { h.handleChange(c) }, h.logger)
	return c
}

// handleChange runs on a store notification for controller c.
func (h *Holder[T]) handleChange(c *Controller) {
	h.mu.Lock()
	if h.controller != c {
		h.mu.Unlock()
		return
	}
	h.refreshLocked(h.base)
	h.mu.Unlock()

	h.notifyObservers()
}

// refreshLocked executes now (eager) or marks the holder dirty (lazy).
func (h *Holder[T]) refreshLocked(ctx context.Context) {
	if h.discipline == DisciplineLazy {
		h.dirty = true
		return
	}
	h.executeLocked(ctx)
}

// executeLocked runs the current controller and publishes the outcome as
// one new result. On failure the previous records are kept.
func (h *Holder[T]) executeLocked(ctx context.Context) {
	h.dirty = false
	prev := h.state.Load()
	next := &result{records: prev.records, generation: prev.generation + 1}

	records, err := h.controller.Execute(ctx)
	if err != nil {
		next.err = err
		h.logger.Warn("live query fetch failed",
			"query", h.controller.spec.String(),
			"context_id", h.controller.ContextID(),
			"error", err)
	} else {
		next.records = records
	}
	h.state.Store(next)
}

// SetSortKeys replaces the sort keys of the current query, keeping its
// filter and subscription. The change survives reconstruction and context
// switches. Returns ErrNotConfigured before the first SetQuery.
func (h *Holder[T]) SetSortKeys(ctx context.Context, keys ...queryir.SortKey) error {
	return h.customize(ctx, func(spec queryir.QuerySpec) queryir.QuerySpec {
		return spec.WithSortKeys(keys...)
	})
}

// SetFilter replaces the filter of the current query, keeping its sort
// keys and subscription. Returns ErrNotConfigured before the first
// SetQuery.
func (h *Holder[T]) SetFilter(ctx context.Context, filter queryir.Predicate) error {
	return h.customize(ctx, func(spec queryir.QuerySpec) queryir.QuerySpec {
		return spec.WithFilter(filter)
	})
}

func (h *Holder[T]) customize(ctx context.Context, edit func(queryir.QuerySpec) queryir.QuerySpec) error {
	h.mu.Lock()
	if h.controller == nil {
		h.mu.Unlock()
		return ErrNotConfigured
	}
	spec := edit(h.controller.Spec())
	if err := h.controller.Reconfigure(spec.Filter, spec.SortKeys); err != nil {
		h.mu.Unlock()
		return err
	}
	h.refreshLocked(ctx)
	h.mu.Unlock()

	h.notifyObservers()
	return nil
}

// Refetch executes the current query immediately under either discipline
// and returns the resulting phase.
func (h *Holder[T]) Refetch(ctx context.Context) (Phase, error) {
	h.mu.Lock()
	if h.controller == nil {
		h.mu.Unlock()
		return h.Phase(), ErrNotConfigured
	}
	h.executeLocked(ctx)
	h.mu.Unlock()

	h.notifyObservers()
	return h.Phase(), nil
}

// Invalidate treats the current result as stale, exactly as a store
// notification would.
func (h *Holder[T]) Invalidate() {
	h.mu.Lock()
	c := h.controller
	h.mu.Unlock()
	if c != nil {
		h.handleChange(c)
	}
}

// Read returns the current phase. Under DisciplineLazy a dirty holder
// fetches first; every lazy reader must read through here.
func (h *Holder[T]) Read(ctx context.Context) Phase {
	h.mu.Lock()
	if h.dirty && h.controller != nil {
		h.executeLocked(ctx)
	}
	h.mu.Unlock()
	return h.Phase()
}

// Phase returns the current phase without fetching.
// Safe for concurrent use.
func (h *Holder[T]) Phase() Phase {
	return h.state.Load().phase()
}

// Snapshot returns the last good records, or nil if no fetch has
// succeeded. Safe for concurrent use.
func (h *Holder[T]) Snapshot() []ir.Record {
	return cloneRecords(h.state.Load().records)
}

// LastError returns the error of the last fetch, or nil if it succeeded.
// Safe for concurrent use.
func (h *Holder[T]) LastError() error {
	return h.state.Load().err
}

// Dirty reports whether a lazy holder has a deferred fetch pending.
func (h *Holder[T]) Dirty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dirty
}

// Spec returns the current controller's spec.
func (h *Holder[T]) Spec() (queryir.QuerySpec, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controller == nil {
		return queryir.QuerySpec{}, false
	}
	return h.controller.Spec(), true
}

// Subscription returns the current controller's subscription handle.
func (h *Holder[T]) Subscription() (ir.SubscriptionHandle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controller == nil {
		return ir.SubscriptionHandle{}, false
	}
	return h.controller.Subscription()
}

// ContextID returns the id of the bound store context.
func (h *Holder[T]) ContextID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.controller == nil {
		return "", false
	}
	return h.controller.ContextID(), true
}

// Observe registers fn to run after every republish (eager) or
// invalidation (lazy). Observers run on the goroutine that caused the
// change, after the holder's lock is released, so they may call back into
// the holder. The returned func cancels the registration.
func (h *Holder[T]) Observe(fn func()) (cancel func()) {
	o := &observer{fn: fn}
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if i := slices.Index(h.observers, o); i >= 0 {
			h.observers = slices.Delete(h.observers, i, i+1)
		}
	}
}

func (h *Holder[T]) notifyObservers() {
	h.mu.Lock()
	observers := slices.Clone(h.observers)
	h.mu.Unlock()

	for _, o := range observers {
		o.fn()
	}
}

// Dispose releases the controller and its subscription and drops all
// observers. The last result stays readable. A later SetQuery starts over
// from the declared spec.
func (h *Holder[T]) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.controller != nil {
		h.controller.Dispose()
		h.controller = nil
	}
	h.token.Reset()
	h.dirty = false
	h.observers = nil
}
