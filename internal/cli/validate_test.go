package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValidDeclarations(t *testing.T) {
	opts := project(t, itemDecl)

	out := mustRun(t, opts, "validate")
	assert.Contains(t, out, "✓ All declarations valid (1 entities, 2 queries)")
}

func TestValidateValidDeclarationsJSON(t *testing.T) {
	opts := project(t, itemDecl)

	out := mustRun(t, opts, "validate", "--format", "json")

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Entities)
	assert.Equal(t, 2, resp.Data.Queries)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNoFiles, resp.Error.Code)
}

func TestValidateUndeclaredEntity(t *testing.T) {
	opts := project(t, `package decl

entity: Item: fields: { title: string }

query: orphan: entity: "Order"
`)

	out, err := run(t, opts, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeQueryEntity)
}

func TestValidateCollectsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`package decl

entity: Scored: fields: { score: float }
entity: Empty: fields: {}
`), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.ElementsMatch(t, []string{ErrCodeInvalidType, ErrCodeEntityFields}, codes)
}

func TestMapFieldToErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeEntityFields, MapFieldToErrorCode("fields"))
	assert.Equal(t, ErrCodeInvalidType, MapFieldToErrorCode("type"))
	assert.Equal(t, ErrCodeQueryEntity, MapFieldToErrorCode("entity"))
	assert.Equal(t, ErrCodeInvalidWhere, MapFieldToErrorCode("where.op"))
	assert.Equal(t, ErrCodeInvalidSort, MapFieldToErrorCode("sort"))
	assert.Equal(t, ErrCodeGeneric, MapFieldToErrorCode("unknown"))
}
