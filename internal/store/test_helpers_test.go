package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/ir"
)

var itemSchema = ir.EntitySchema{
	Name: "Item",
	Fields: map[string]string{
		"timestamp": ir.TypeInt,
		"title":     ir.TypeString,
		"done":      ir.TypeBool,
	},
}

// createTestStore opens a store in a temp dir with Item declared.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"))
}

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, WithIDGenerator(NewSequenceGenerator("id")))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.RegisterEntity(context.Background(), itemSchema))
	return s
}

func item(ts int64, title string) ir.IRObject {
	return ir.IRObject{"timestamp": ir.IRInt(ts), "title": ir.IRString(title), "done": ir.IRBool(false)}
}

func timestamps(t *testing.T, records []ir.Record) []int64 {
	t.Helper()
	out := make([]int64, len(records))
	for i, r := range records {
		v, ok := r.Field("timestamp")
		require.True(t, ok, "record %s has no timestamp", r.ID)
		out[i] = int64(v.(ir.IRInt))
	}
	return out
}
