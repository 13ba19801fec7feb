package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".livefetch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "eager", cfg.Discipline)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Watch.External)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	root := t.TempDir()

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "livefetch.db"), cfg.Database)
	assert.Equal(t, filepath.Join(root, "declarations"), cfg.Declarations)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
database: data/items.db
discipline: lazy
watch:
  debounce: 200ms
log:
  format: json
`)

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "data/items.db"), cfg.Database)
	assert.Equal(t, "lazy", cfg.Discipline)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, cfg.Watch.External, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "discipline: lazy\n")
	t.Setenv("LIVEFETCH_DISCIPLINE", "eager")
	t.Setenv("LIVEFETCH_LOG_LEVEL", "debug")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, "eager", cfg.Discipline)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("LIVEFETCH_DATABASE=/tmp/from-dotenv.db\n"), 0o644))
	t.Setenv("LIVEFETCH_DATABASE", "")
	os.Unsetenv("LIVEFETCH_DATABASE")
	t.Cleanup(func() { os.Unsetenv("LIVEFETCH_DATABASE") })

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-dotenv.db", cfg.Database)
}

func TestLoad_ExplicitFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discipline: lazy\n"), 0o644))

	cfg, err := NewFileLoader(root, path).Load()
	require.NoError(t, err)
	assert.Equal(t, "lazy", cfg.Discipline)
}

func TestLoad_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "discipline: [lazy\n")

	_, err := NewLoader(root).Load()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "discipline: sometimes\n")

	_, err := NewLoader(root).Load()
	assert.ErrorIs(t, err, ErrInvalidDiscipline)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := &Config{
		Discipline: "sometimes",
		Log:        LogConfig{Level: "loud", Format: "xml"},
	}

	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyDatabase)
	assert.ErrorIs(t, err, ErrInvalidDiscipline)
	assert.ErrorIs(t, err, ErrInvalidDebounce)
	assert.ErrorIs(t, err, ErrInvalidLogLevel)
	assert.ErrorIs(t, err, ErrInvalidLogFormat)
}
