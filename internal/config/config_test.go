package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPassesValidate(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
}

func TestValidateRejectsBadEmbeddingDim(t *testing.T) {
	c := Default()
	c.EmbeddingDim = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadVectorIndexParams(t *testing.T) {
	c := Default()
	c.VectorIndex.M = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsBadFullTextParams(t *testing.T) {
	c := Default()
	c.FullText.B = 1.5
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNonPositiveLockStripes(t *testing.T) {
	c := Default()
	c.LockStripes = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsEmptyKVBackend(t *testing.T) {
	c := Default()
	c.KVBackend = ""
	assert.Error(t, c.Validate())
}

func TestLoadFromJSONOverlaysOnDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"embedding_dim": 256}`), 0644))

	c, err := LoadFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, 256, c.EmbeddingDim)
	// Unset fields keep the documented default.
	assert.Equal(t, VectorHNSW, c.VectorIndex.Algorithm)
}

func TestLoadFromJSONMissingFile(t *testing.T) {
	_, err := LoadFromJSON(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadFromEnvOverlaysEnvironmentVariables(t *testing.T) {
	t.Setenv("MEMENGINE_KV_BACKEND", "postgres")
	t.Setenv("MEMENGINE_EMBEDDING_DIM", "768")
	t.Setenv("MEMENGINE_VECTOR_ALGORITHM", "flat")

	c, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", c.KVBackend)
	assert.Equal(t, 768, c.EmbeddingDim)
	assert.Equal(t, VectorFlat, c.VectorIndex.Algorithm)
}

func TestFindEnvFileSearchesParentDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(""), 0644))

	child := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0755))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	require.NoError(t, os.Chdir(child))

	path, found := FindEnvFile()
	assert.True(t, found)
	assert.Equal(t, filepath.Join(root, ".env"), path)
}
