package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "fast", cfg.Scanner.HashMode)
	assert.Equal(t, "rename", cfg.Apply.ConflictPolicy)
	assert.Equal(t, "noop", cfg.Embeddings.Provider)
	assert.Equal(t, "noop", cfg.VectorStore.Backend)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Scanner.HashMode, cfg.Scanner.HashMode)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Apply.ConflictPolicy, cfg.Apply.ConflictPolicy)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "organizer.yaml")
	yamlContent := `
roots:
  paths:
    - /home/user/Documents
scanner:
  hash_mode: full
apply:
  conflict_policy: overwrite
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/home/user/Documents"}, cfg.Roots.Paths)
	assert.Equal(t, "full", cfg.Scanner.HashMode)
	assert.Equal(t, "overwrite", cfg.Apply.ConflictPolicy)
	// Unspecified fields retain their defaults.
	assert.Equal(t, "noop", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "organizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apply:\n  conflict_policy: skip\n"), 0o644))

	t.Setenv("ORGANIZER_CONFLICT_POLICY", "overwrite")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "overwrite", cfg.Apply.ConflictPolicy)
}

func TestLoad_InvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "organizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roots: [this is not valid: yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsInvalidHashMode(t *testing.T) {
	cfg := NewConfig()
	cfg.Scanner.HashMode = "ludicrous"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsInvalidConflictPolicy(t *testing.T) {
	cfg := NewConfig()
	cfg.Apply.ConflictPolicy = "explode"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeVectorWeight(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownEmbeddingsProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "magic"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownVectorStoreBackend(t *testing.T) {
	cfg := NewConfig()
	cfg.VectorStore.Backend = "pinecone"
	assert.Error(t, cfg.Validate())
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "written.yaml")

	cfg := NewConfig()
	cfg.Roots.Paths = []string{"/data"}
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data"}, loaded.Roots.Paths)
}
