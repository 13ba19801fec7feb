package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/ir"
	"github.com/roach88/livefetch/internal/store"
)

// seeded initializes a project and writes three items:
// a (ts 1, open), b (ts 2, done), c (ts 3, open).
func seeded(t *testing.T) *RootOptions {
	t.Helper()
	opts := project(t, itemDecl)
	mustRun(t, opts, "init")
	mustRun(t, opts, "put", "Item", "--id", "a", "timestamp=1", "title=first", "done=false")
	mustRun(t, opts, "put", "Item", "--id", "b", "timestamp=2", "title=second", "done=true")
	mustRun(t, opts, "put", "Item", "--id", "c", "timestamp=3", "title=third", "done=false")
	return opts
}

type phaseResponse struct {
	Status string `json:"status"`
	Data   struct {
		Phase      string `json:"phase"`
		Generation int64  `json:"generation"`
		Query      string `json:"query"`
		Records    []struct {
			ID string `json:"id"`
		} `json:"records"`
		Error string `json:"error"`
	} `json:"data"`
}

func (r phaseResponse) ids() []string {
	ids := make([]string, len(r.Data.Records))
	for i, rec := range r.Data.Records {
		ids[i] = rec.ID
	}
	return ids
}

func queryJSON(t *testing.T, opts *RootOptions, args ...string) phaseResponse {
	t.Helper()
	out := mustRun(t, opts, append(args, "--format", "json")...)

	var resp phaseResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

func TestInit(t *testing.T) {
	opts := project(t, itemDecl)

	out := mustRun(t, opts, "init")
	assert.Contains(t, out, "✓ Initialized "+filepath.Join(opts.Root, "livefetch.db"))
	assert.Contains(t, out, "entities: [Item]")

	// Re-running init is safe.
	mustRun(t, opts, "init")
}

func TestInitJSON(t *testing.T) {
	opts := project(t, itemDecl)

	out := mustRun(t, opts, "init", "--format", "json")

	var resp struct {
		Status string     `json:"status"`
		Data   InitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"Item"}, resp.Data.Entities)
	assert.ElementsMatch(t, []string{"recent", "open"}, resp.Data.Queries)
}

func TestInitInvalidDeclarations(t *testing.T) {
	opts := project(t, `package decl

query: orphan: entity: "Order"
`)

	_, err := run(t, opts, "init")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPut(t *testing.T) {
	opts := project(t, itemDecl)
	mustRun(t, opts, "init")

	out := mustRun(t, opts, "put", "Item", "--id", "a", "timestamp=1", "title=first", "done=false")
	assert.Contains(t, out, "✓ Item a (seq ")

	out = mustRun(t, opts, "put", "Item", "timestamp=2", "title=second")
	assert.Contains(t, out, "✓ Item ")
}

func TestPutMerge(t *testing.T) {
	opts := seeded(t)

	mustRun(t, opts, "put", "Item", "--id", "a", "--merge", "done=true")

	resp := queryJSON(t, opts, "query", "open")
	assert.Equal(t, []string{"c"}, resp.ids())
}

func TestPutErrors(t *testing.T) {
	opts := project(t, itemDecl)
	mustRun(t, opts, "init")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"merge without id", []string{"put", "Item", "--merge", "done=true"}, "--merge requires --id"},
		{"unknown entity", []string{"put", "Order", "total=3"}, "unknown entity"},
		{"unknown field", []string{"put", "Item", "colour=red"}, `has no field "colour"`},
		{"bad int", []string{"put", "Item", "timestamp=soon"}, `"soon" is not an int`},
		{"merge missing record", []string{"put", "Item", "--id", "zzz", "--merge", "done=true"}, "write failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, opts, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseAssignments(t *testing.T) {
	schema := ir.EntitySchema{Name: "Item", Fields: map[string]string{
		"timestamp": ir.TypeInt,
		"title":     ir.TypeString,
		"done":      ir.TypeBool,
	}}

	fields, err := ParseAssignments(schema, []string{"timestamp=42", "title=a=b", "done=true"})
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{
		"timestamp": ir.IRInt(42),
		"title":     ir.IRString("a=b"),
		"done":      ir.IRBool(true),
	}, fields)

	_, err = ParseAssignments(schema, []string{"title"})
	assert.ErrorContains(t, err, "expected field=value")

	_, err = ParseAssignments(schema, []string{"done=maybe"})
	assert.ErrorContains(t, err, `"maybe" is not a bool`)
}

func TestQueryDeclared(t *testing.T) {
	opts := seeded(t)

	resp := queryJSON(t, opts, "query", "recent")
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "updated", resp.Data.Phase)
	assert.Equal(t, []string{"c", "b", "a"}, resp.ids())

	resp = queryJSON(t, opts, "query", "open")
	assert.Equal(t, []string{"a", "c"}, resp.ids())
}

func TestQueryEntityWithOverrides(t *testing.T) {
	opts := seeded(t)

	resp := queryJSON(t, opts, "query", "Item", "--where", "timestamp>=2", "--sort", "timestamp:desc")
	assert.Equal(t, []string{"c", "b"}, resp.ids())

	// --sort replaces the declared sort of a named query.
	resp = queryJSON(t, opts, "query", "recent", "--sort", "timestamp:asc")
	assert.Equal(t, []string{"a", "b", "c"}, resp.ids())
}

func TestQueryText(t *testing.T) {
	opts := seeded(t)

	out := mustRun(t, opts, "query", "recent")
	assert.Contains(t, out, "[updated gen=1]")
	assert.Contains(t, out, "(3 records)")

	ia, ic := strings.Index(out, "\na "), strings.Index(out, "\nc ")
	require.True(t, ia > 0 && ic > 0, "output: %s", out)
	assert.Less(t, ic, ia, "recent sorts newest first")
}

func TestQueryLazyDiscipline(t *testing.T) {
	opts := seeded(t)

	resp := queryJSON(t, opts, "query", "recent", "--discipline", "lazy")
	assert.Equal(t, "updated", resp.Data.Phase)
	assert.Equal(t, []string{"c", "b", "a"}, resp.ids())
}

func TestQueryFailure(t *testing.T) {
	opts := seeded(t)

	out, err := run(t, opts, "query", "Item", "--sort", "colour", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp phaseResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "failed", resp.Data.Phase)
	assert.NotEmpty(t, resp.Data.Error)
}

func TestQueryInvalidFlags(t *testing.T) {
	opts := seeded(t)

	_, err := run(t, opts, "query", "Item", "--sort", "timestamp:sideways")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDelete(t *testing.T) {
	opts := seeded(t)

	out := mustRun(t, opts, "delete", "b")
	assert.Contains(t, out, "✓ deleted b")

	resp := queryJSON(t, opts, "query", "recent")
	assert.Equal(t, []string{"c", "a"}, resp.ids())

	_, err := run(t, opts, "delete", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")
}

func TestWatchCount(t *testing.T) {
	opts := seeded(t)

	out := mustRun(t, opts, "watch", "open", "--count", "1")
	assert.Contains(t, out, "[updated gen=1]")
	assert.Contains(t, out, "(2 records)")
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchSeesExternalCommit(t *testing.T) {
	opts := seeded(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := &syncBuffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch", "open", "--count", "2"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "(2 records)") },
		5*time.Second, 10*time.Millisecond)

	// Another process commits to the same database file.
	other, err := store.Open(filepath.Join(opts.Root, "livefetch.db"))
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Put(ctx, ir.Record{ID: "d", Entity: "Item", Fields: ir.IRObject{
		"timestamp": ir.IRInt(4), "title": ir.IRString("fourth"), "done": ir.IRBool(false),
	}})
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatalf("watch did not print the external commit; output:\n%s", out.String())
	}
	assert.Contains(t, out.String(), "(3 records)")
}
