package livequery

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// StoreContext is the store boundary a controller runs against.
// *store.Context satisfies it.
type StoreContext interface {
	// ID identifies the context. Controllers compare ids, not pointers,
	// to decide whether the context changed.
	ID() string

	// Fetch runs spec synchronously and returns the matching records.
	Fetch(ctx context.Context, spec queryir.QuerySpec) ([]ir.Record, error)

	// Subscribe registers onChange for committed writes to entity.
	// onChange carries no payload.
	Subscribe(entity string, onChange func()) (ir.SubscriptionHandle, error)

	// Unsubscribe cancels a registration.
	Unsubscribe(h ir.SubscriptionHandle)
}

// Controller binds one QuerySpec to one store context.
//
// A Controller is not safe for concurrent use; it belongs to the goroutine
// that owns its store context.
type Controller struct {
	sc       StoreContext
	spec     queryir.QuerySpec
	onChange func()
	logger   *slog.Logger

	sub        ir.SubscriptionHandle
	subscribed bool
	disposed   atomic.Bool
}

// NewController binds spec to sc. onChange runs whenever the store reports
// a committed write to the spec's entity kind, until Dispose. Nothing is
// fetched or subscribed until the first Execute.
func NewController(sc StoreContext, spec queryir.QuerySpec, onChange func(), logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		sc:       sc,
		spec:     spec.Clone(),
		onChange: onChange,
		logger:   logger.With("entity", spec.Entity, "context_id", sc.ID()),
	}
	c.logger.Debug("controller created", "query", c.spec.String())
	return c
}

// Execute runs the bound spec and returns the matching records.
//
// The change subscription is made first if it is not already active, so a
// commit landing between subscribing and fetching is reported rather than
// missed. Failures are returned as *QueryExecutionError.
func (c *Controller) Execute(ctx context.Context) ([]ir.Record, error) {
	if c.disposed.Load() {
		return nil, &QueryExecutionError{
			Code:      ErrCodeDisposed,
			Entity:    c.spec.Entity,
			ContextID: c.sc.ID(),
			Message:   "execute after dispose",
		}
	}

	if !c.subscribed {
		h, err := c.sc.Subscribe(c.spec.Entity, c.notify)
		if err != nil {
			return nil, subscribeError(c.spec, c.sc.ID(), err)
		}
		c.sub = h
		c.subscribed = true
	}

	records, err := c.sc.Fetch(ctx, c.spec.Clone())
	if err != nil {
		return nil, fetchError(c.spec, c.sc.ID(), err)
	}
	if records == nil {
		records = []ir.Record{}
	}
	return records, nil
}

// Reconfigure replaces the filter and sort keys in place. The entity kind
// and subscription are untouched and nothing is executed.
func (c *Controller) Reconfigure(filter queryir.Predicate, sortKeys []queryir.SortKey) error {
	if c.disposed.Load() {
		return &QueryExecutionError{
			Code:      ErrCodeDisposed,
			Entity:    c.spec.Entity,
			ContextID: c.sc.ID(),
			Message:   "reconfigure after dispose",
		}
	}
	c.spec = queryir.QuerySpec{
		Entity:   c.spec.Entity,
		Filter:   filter,
		SortKeys: slices.Clone(sortKeys),
	}
	c.logger.Debug("controller reconfigured", "query", c.spec.String())
	return nil
}

// Spec returns a copy of the bound spec.
func (c *Controller) Spec() queryir.QuerySpec {
	return c.spec.Clone()
}

// ContextID returns the id of the bound store context.
func (c *Controller) ContextID() string {
	return c.sc.ID()
}

// Subscription returns the active subscription handle, if any.
func (c *Controller) Subscription() (ir.SubscriptionHandle, bool) {
	if !c.subscribed {
		return ir.SubscriptionHandle{}, false
	}
	return c.sub, true
}

// Disposed reports whether Dispose has been called.
func (c *Controller) Disposed() bool {
	return c.disposed.Load()
}

// Dispose releases the subscription. Idempotent.
func (c *Controller) Dispose() {
	if c.disposed.Swap(true) {
		return
	}
	if c.subscribed {
		c.sc.Unsubscribe(c.sub)
		c.subscribed = false
	}
	c.logger.Debug("controller disposed")
}

func (c *Controller) notify() {
	if c.disposed.Load() {
		c.logger.Debug("notification after dispose dropped")
		return
	}
	if c.onChange != nil {
		c.onChange()
	}
}
