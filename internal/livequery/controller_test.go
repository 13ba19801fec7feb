package livequery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/queryir"
)

func TestController_ReconfigureKeepsSubscription(t *testing.T) {
	s := createTestStore(t)
	sc := newContext(t, s, "main")
	insertItems(t, s, 3, 1, 2)
	ctx := context.Background()

	c := NewController(sc, queryir.New("Item", nil, queryir.Asc("timestamp")), nil, nil)

	_, ok := c.Subscription()
	assert.False(t, ok, "no subscription before first execute")

	records, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, timestamps(t, records))
	h1, ok := c.Subscription()
	require.True(t, ok)

	require.NoError(t, c.Reconfigure(nil, []queryir.SortKey{queryir.Desc("timestamp")}))
	records, err = c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, timestamps(t, records))

	h2, ok := c.Subscription()
	require.True(t, ok)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, sc.Subscriptions())
	assert.Equal(t, "Item", c.Spec().Entity)
}

func TestController_Notify(t *testing.T) {
	s := createTestStore(t)
	sc := newContext(t, s, "main")

	calls := 0
	c := NewController(sc, queryir.All("Item"), func() { calls++ }, nil)
	_, err := c.Execute(context.Background())
	require.NoError(t, err)

	insertItems(t, s, 1, 2)
	assert.Equal(t, 0, calls, "notifications wait for the owner")

	sc.ProcessPendingChanges()
	assert.Equal(t, 1, calls)
}

func TestController_Dispose(t *testing.T) {
	s := createTestStore(t)
	sc := newContext(t, s, "main")
	ctx := context.Background()

	calls := 0
	c := NewController(sc, queryir.All("Item"), func() { calls++ }, nil)
	_, err := c.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sc.Subscriptions())

	c.Dispose()
	c.Dispose()
	assert.True(t, c.Disposed())
	assert.Equal(t, 0, sc.Subscriptions())

	insertItems(t, s, 1)
	sc.ProcessPendingChanges()
	assert.Equal(t, 0, calls)

	_, err = c.Execute(ctx)
	assert.True(t, IsDisposedError(err))
	assert.True(t, IsDisposedError(c.Reconfigure(nil, nil)))
}

func TestController_NotifyAfterDisposeDropped(t *testing.T) {
	s := createTestStore(t)
	sc := newContext(t, s, "main")

	calls := 0
	c := NewController(sc, queryir.All("Item"), func() { calls++ }, nil)
	c.Dispose()
	c.notify()
	assert.Equal(t, 0, calls)
}

func TestController_ConfigurationErrors(t *testing.T) {
	s := createTestStore(t)
	sc := newContext(t, s, "main")
	ctx := context.Background()

	tests := []struct {
		name string
		spec queryir.QuerySpec
	}{
		{"unknown entity", queryir.All("Ghost")},
		{"unknown sort field", queryir.New("Item", nil, queryir.Asc("color"))},
		{"mistyped literal", queryir.New("Item", queryir.Equals{Field: "title", Value: nil})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(sc, tt.spec, nil, nil)
			defer c.Dispose()

			_, err := c.Execute(ctx)
			require.Error(t, err)
			assert.True(t, IsQueryExecutionError(err))
			assert.True(t, IsConfigurationError(err), "got %v", err)
		})
	}
}
