package livequery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/queryir"
	"github.com/roach88/livefetch/internal/store"
)

var itemSchema = ir.EntitySchema{
	Name: "Item",
	Fields: map[string]string{
		"timestamp": ir.TypeInt,
		"title":     ir.TypeString,
		"done":      ir.TypeBool,
	},
}

// countingContext counts fetches and can be told to fail them.
type countingContext struct {
	*store.Context
	fetches  int
	failWith error
}

func (c *countingContext) Fetch(ctx context.Context, spec queryir.QuerySpec) ([]ir.Record, error) {
	c.fetches++
	if c.failWith != nil {
		return nil, c.failWith
	}
	return c.Context.Fetch(ctx, spec)
}

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithIDGenerator(store.NewSequenceGenerator("id")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.RegisterEntity(context.Background(), itemSchema))
	return s
}

func newContext(t *testing.T, s *store.Store, name string) *countingContext {
	t.Helper()
	c, err := s.NewContext(name)
	require.NoError(t, err)
	return &countingContext{Context: c}
}

func insertItems(t *testing.T, s *store.Store, stamps ...int64) {
	t.Helper()
	for _, ts := range stamps {
		_, err := s.Insert(context.Background(), "Item", ir.IRObject{
			"timestamp": ir.IRInt(ts),
			"title":     ir.IRString("item"),
			"done":      ir.IRBool(ts%2 == 0),
		})
		require.NoError(t, err)
	}
}

func timestamps(t *testing.T, records []ir.Record) []int64 {
	t.Helper()
	out := make([]int64, len(records))
	for i, r := range records {
		v, ok := r.Field("timestamp")
		require.True(t, ok)
		out[i] = int64(v.(ir.IRInt))
	}
	return out
}

func declareAsc() queryir.QuerySpec {
	return queryir.New("Item", nil, queryir.Asc("timestamp"))
}
