package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/livefetch/internal/store"
)

const itemDecl = `package decl

entity: Item: fields: {
	timestamp: int
	title:     string
	done:      bool
}

query: recent: {
	entity: "Item"
	sort: ["timestamp:desc"]
}

query: open: {
	entity: "Item"
	where: [{field: "done", value: false}]
	sort: ["timestamp"]
}
`

// project creates a project directory with a declarations/ directory and
// returns root options pointing at it. The database is the default
// livefetch.db inside the project.
func project(t *testing.T, decl string) *RootOptions {
	t.Helper()

	root := t.TempDir()
	declDir := filepath.Join(root, "declarations")
	require.NoError(t, os.MkdirAll(declDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(declDir, "items.cue"), []byte(decl), 0o644))

	return &RootOptions{
		Format: "text",
		Root:   root,
		IDs:    store.NewSequenceGenerator("id"),
	}
}

// run executes a subcommand through the root command and returns stdout.
func run(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	cmd := newRootCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// mustRun is run that fails the test on error.
func mustRun(t *testing.T, opts *RootOptions, args ...string) string {
	t.Helper()
	out, err := run(t, opts, args...)
	require.NoError(t, err, "output: %s", out)
	return out
}

func findCommand(root *cobra.Command, name string) *cobra.Command {
	for _, c := range root.Commands() {
		if c.Name() == name {
			return c
		}
	}
	return nil
}
