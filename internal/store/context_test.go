package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
)

func TestContext_Identity(t *testing.T) {
	s := createTestStore(t)

	a, err := s.NewContext("a")
	require.NoError(t, err)
	b, err := s.NewContext("b")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "a", a.Name())
	assert.Same(t, s, a.Store())
}

func TestContext_NotificationsAfterCommit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c, err := s.NewContext("main")
	require.NoError(t, err)

	calls := 0
	h, err := c.Subscribe("Item", func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, "Item", h.Entity)
	assert.Equal(t, c.ID(), h.ContextID)

	_, err = c.Insert(ctx, "Item", item(1, "a"))
	require.NoError(t, err)

	// Nothing runs until the owner drains the queue.
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, c.Pending())

	assert.Equal(t, 1, c.ProcessPendingChanges())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, c.ProcessPendingChanges())
}

func TestContext_CoalescesPerSubscription(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RegisterEntity(ctx, ir.EntitySchema{Name: "Tag", Fields: map[string]string{"name": ir.TypeString}}))
	c, err := s.NewContext("main")
	require.NoError(t, err)

	var order []string
	_, err = c.Subscribe("Item", func() { order = append(order, "first") })
	require.NoError(t, err)
	_, err = c.Subscribe("Tag", func() { order = append(order, "tag") })
	require.NoError(t, err)
	_, err = c.Subscribe("Item", func() { order = append(order, "second") })
	require.NoError(t, err)

	for ts := int64(1); ts <= 3; ts++ {
		_, err := s.Insert(ctx, "Item", item(ts, "x"))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, c.ProcessPendingChanges())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestContext_Unsubscribe(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c, err := s.NewContext("main")
	require.NoError(t, err)

	calls := 0
	h, err := c.Subscribe("Item", func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, c.Subscriptions())

	_, err = s.Insert(ctx, "Item", item(1, "a"))
	require.NoError(t, err)

	// Cancelled before delivery: the queued change must not reach it.
	c.Unsubscribe(h)
	c.Unsubscribe(h)
	assert.Equal(t, 0, c.Subscriptions())
	assert.Equal(t, 0, c.ProcessPendingChanges())
	assert.Equal(t, 0, calls)
}

func TestContext_UnsubscribeDuringDelivery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c, err := s.NewContext("main")
	require.NoError(t, err)

	var second ir.SubscriptionHandle
	secondCalls := 0
	_, err = c.Subscribe("Item", func() { c.Unsubscribe(second) })
	require.NoError(t, err)
	second, err = c.Subscribe("Item", func() { secondCalls++ })
	require.NoError(t, err)

	_, err = s.Insert(ctx, "Item", item(1, "a"))
	require.NoError(t, err)

	assert.Equal(t, 1, c.ProcessPendingChanges())
	assert.Equal(t, 0, secondCalls)
}

func TestContext_SubscribeUnknownEntity(t *testing.T) {
	s := createTestStore(t)
	c, err := s.NewContext("main")
	require.NoError(t, err)

	_, err = c.Subscribe("Ghost", func() {})
	assert.ErrorIs(t, err, queryir.ErrUnknownEntity)
	assert.Equal(t, 0, c.Subscriptions())
}

func TestContext_Close(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	c, err := s.NewContext("main")
	require.NoError(t, err)

	calls := 0
	_, err = c.Subscribe("Item", func() { calls++ })
	require.NoError(t, err)
	_, err = s.Insert(ctx, "Item", item(1, "a"))
	require.NoError(t, err)

	c.Close()
	c.Close()

	assert.Equal(t, 0, c.ProcessPendingChanges())
	assert.Equal(t, 0, calls)

	_, err = c.Fetch(ctx, queryir.All("Item"))
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = c.Subscribe("Item", func() {})
	assert.ErrorIs(t, err, ErrContextClosed)

	// Writes elsewhere no longer reach it.
	_, err = s.Insert(ctx, "Item", item(2, "b"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Pending())
}

func TestContext_Run(t *testing.T) {
	s := createTestStore(t)
	c, err := s.NewContext("main")
	require.NoError(t, err)

	delivered := make(chan struct{}, 8)
	_, err = c.Subscribe("Item", func() { delivered <- struct{}{} })
	require.NoError(t, err)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	_, err = s.Insert(context.Background(), "Item", item(1, "a"))
	require.NoError(t, err)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("change was not delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestContext_RunStopsOnClose(t *testing.T) {
	s := createTestStore(t)
	c, err := s.NewContext("main")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	c.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestSyncExternal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	local := openTestStore(t, path)
	other := openTestStore(t, path)

	c, err := local.NewContext("main")
	require.NoError(t, err)
	calls := 0
	_, err = c.Subscribe("Item", func() { calls++ })
	require.NoError(t, err)

	// First sync only records the starting point.
	n, err := local.SyncExternal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = other.Put(ctx, ir.Record{ID: "ext-1", Entity: "Item", Fields: item(1, "elsewhere")})
	require.NoError(t, err)
	_, err = local.Insert(ctx, "Item", item(2, "here"))
	require.NoError(t, err)

	n, err = local.SyncExternal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "local commit must not be republished")
	assert.Equal(t, 2, c.Pending())

	assert.Equal(t, 1, c.ProcessPendingChanges())
	assert.Equal(t, 1, calls)

	n, err = local.SyncExternal(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSyncExternal_ReloadsSchemas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx := context.Background()
	local := openTestStore(t, path)
	other := openTestStore(t, path)

	_, err := local.SyncExternal(ctx)
	require.NoError(t, err)

	extended := ir.EntitySchema{Name: "Item", Fields: map[string]string{
		"timestamp": ir.TypeInt,
		"title":     ir.TypeString,
		"done":      ir.TypeBool,
		"priority":  ir.TypeInt,
	}}
	require.NoError(t, other.RegisterEntity(ctx, extended))

	fields := item(1, "urgent")
	fields["priority"] = ir.IRInt(3)
	_, err = local.Insert(ctx, "Item", fields)
	require.Error(t, err, "local cache still holds the old schema")

	_, err = local.SyncExternal(ctx)
	require.NoError(t, err)

	_, err = local.Insert(ctx, "Item", fields)
	require.NoError(t, err)

	schema, err := local.Entity(ctx, "Item")
	require.NoError(t, err)
	assert.Equal(t, extended.Fields, schema.Fields)
}

func TestExternalWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local := openTestStore(t, path)
	other := openTestStore(t, path)

	c, err := local.NewContext("main")
	require.NoError(t, err)
	_, err = c.Subscribe("Item", func() {})
	require.NoError(t, err)

	w, err := local.WatchExternal(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()
	go w.Run(ctx)

	_, err = other.Put(ctx, ir.Record{ID: "ext-1", Entity: "Item", Fields: item(1, "elsewhere")})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return c.Pending() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestExternalWatcher_CommitBeforeRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	local := openTestStore(t, path)
	other := openTestStore(t, path)

	c, err := local.NewContext("main")
	require.NoError(t, err)

	w, err := local.WatchExternal(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	// Lands after the starting point is recorded but before Run.
	_, err = other.Put(ctx, ir.Record{ID: "ext-1", Entity: "Item", Fields: item(1, "early")})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Pending())

	go w.Run(ctx)

	assert.Eventually(t, func() bool { return c.Pending() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatchExternal_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WatchExternal(context.Background(), 0)
	assert.Error(t, err)
}
