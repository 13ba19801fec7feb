package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

// Context is an attached view of the store: the handle live queries fetch
// and subscribe through.
//
// Committed changes are queued per context. Subscription callbacks run only
// from ProcessPendingChanges (or Run) on the caller's goroutine, never from
// inside a write.
type Context struct {
	id     string
	name   string
	store  *Store
	queue  *changeQueue
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*subscription // registration order
	closed bool
}

type subscription struct {
	handle   ir.SubscriptionHandle
	onChange func()
	active   bool
}

// NewContext attaches a new context to the store.
func (s *Store) NewContext(name string) (*Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	id := s.ids.Generate()
	c := &Context{
		id:     id,
		name:   name,
		store:  s,
		queue:  newChangeQueue(),
		logger: s.logger.With("context", name, "context_id", id),
	}
	s.contexts[id] = c
	return c, nil
}

// ID returns the context identity. Two contexts never share an id.
func (c *Context) ID() string { return c.id }

// Name returns the label the context was created with.
func (c *Context) Name() string { return c.name }

// Store returns the store the context is attached to.
func (c *Context) Store() *Store { return c.store }

// Fetch evaluates spec against the store's current state.
func (c *Context) Fetch(ctx context.Context, spec queryir.QuerySpec) ([]ir.Record, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.store.Fetch(ctx, spec)
}

// Subscribe registers onChange to run after committed writes to entity.
// Subscribing to an undeclared entity kind fails with an error wrapping
// queryir.ErrUnknownEntity.
func (c *Context) Subscribe(entity string, onChange func()) (ir.SubscriptionHandle, error) {
	if onChange == nil {
		return ir.SubscriptionHandle{}, fmt.Errorf("subscribe %s: nil callback", entity)
	}
	if err := c.checkOpen(); err != nil {
		return ir.SubscriptionHandle{}, err
	}
	if _, err := c.store.Entity(context.Background(), entity); err != nil {
		return ir.SubscriptionHandle{}, fmt.Errorf("subscribe %s: %w", entity, err)
	}

	sub := &subscription{
		handle: ir.SubscriptionHandle{
			ID:        c.store.ids.Generate(),
			Entity:    entity,
			ContextID: c.id,
		},
		onChange: onChange,
		active:   true,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ir.SubscriptionHandle{}, ErrContextClosed
	}
	c.subs = append(c.subs, sub)
	c.logger.Debug("subscribed", "entity", entity, "subscription", sub.handle.ID)
	return sub.handle, nil
}

// Unsubscribe cancels a registration. Unknown or already-cancelled handles
// are ignored. A cancelled callback is never invoked again, even for
// changes already queued.
func (c *Context) Unsubscribe(h ir.SubscriptionHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, sub := range c.subs {
		if sub.handle == h {
			sub.active = false
			c.subs = slices.Delete(c.subs, i, i+1)
			c.logger.Debug("unsubscribed", "entity", h.Entity, "subscription", h.ID)
			return
		}
	}
}

// Subscriptions returns the number of active registrations.
func (c *Context) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Pending returns the number of queued, undelivered changes.
func (c *Context) Pending() int {
	return c.queue.Len()
}

// ProcessPendingChanges delivers every queued change. Each active
// subscription whose entity kind changed is invoked once, in registration
// order, however many changes to that kind were queued. Returns the number
// of callbacks invoked.
//
// Callbacks may subscribe, unsubscribe or fetch. Changes committed by a
// callback are delivered on the next call.
func (c *Context) ProcessPendingChanges() int {
	changes := c.queue.Drain()
	if len(changes) == 0 {
		return 0
	}

	changed := make(map[string]bool, len(changes))
	for _, ch := range changes {
		changed[ch.Entity] = true
	}

	c.mu.Lock()
	subs := slices.Clone(c.subs)
	c.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if !changed[sub.handle.Entity] {
			continue
		}
		c.mu.Lock()
		active := sub.active
		c.mu.Unlock()
		if !active {
			continue
		}
		sub.onChange()
		delivered++
	}
	return delivered
}

// Wait returns a channel that signals when changes may be pending.
// The channel is closed when the context is closed.
func (c *Context) Wait() <-chan struct{} {
	return c.queue.Wait()
}

// Run delivers changes as they arrive until ctx is cancelled or the
// context is closed. Run makes the calling goroutine the context owner;
// callbacks execute on it.
func (c *Context) Run(ctx context.Context) error {
	for {
		c.ProcessPendingChanges()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-c.queue.Wait():
			if !ok {
				return nil
			}
		}
	}
}

// Close detaches the context. Pending changes are dropped and every
// subscription is cancelled. Close is idempotent.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, sub := range c.subs {
		sub.active = false
	}
	c.subs = nil
	c.mu.Unlock()

	c.store.mu.Lock()
	delete(c.store.contexts, c.id)
	c.store.mu.Unlock()

	c.queue.Close()
	c.logger.Debug("context closed")
}

// Insert is Store.Insert.
func (c *Context) Insert(ctx context.Context, entity string, fields ir.IRObject) (ir.Record, error) {
	if err := c.checkOpen(); err != nil {
		return ir.Record{}, err
	}
	return c.store.Insert(ctx, entity, fields)
}

// Update is Store.Update.
func (c *Context) Update(ctx context.Context, id string, patch ir.IRObject) (ir.Record, error) {
	if err := c.checkOpen(); err != nil {
		return ir.Record{}, err
	}
	return c.store.Update(ctx, id, patch)
}

// Delete is Store.Delete.
func (c *Context) Delete(ctx context.Context, id string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.store.Delete(ctx, id)
}

func (c *Context) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	return nil
}
