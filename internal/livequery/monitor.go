package livequery

import (
	"context"

	"github.com/roach88/livefetch/internal/queryir"
)

// Monitor is the per-render binding between a component and its Holder.
//
// A Monitor is cheap and may be rebuilt with every component; the Holder
// it wraps is what must survive.
type Monitor[T comparable] struct {
	holder  *Holder[T]
	declare func() queryir.QuerySpec
}

// NewMonitor binds declare, the component's declared query, to holder.
func NewMonitor[T comparable](holder *Holder[T], declare func() queryir.QuerySpec) *Monitor[T] {
	return &Monitor[T]{holder: holder, declare: declare}
}

// Render applies the current context and token to the holder and returns
// the phase to draw. Call it once per render.
func (m *Monitor[T]) Render(ctx context.Context, sc StoreContext, token T) Phase {
	m.holder.SetQuery(ctx, sc, token, m.declare)
	return m.holder.Read(ctx)
}

// Holder returns the wrapped holder.
func (m *Monitor[T]) Holder() *Holder[T] {
	return m.holder
}
