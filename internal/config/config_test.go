package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kioku/internal/ranking"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
store:
  dsn: "postgres://kioku@localhost/kioku"
embedding:
  provider: openai
  model: text-embedding-3-large
search:
  semantic_weight: 0.5
rerank:
  enabled: true
  weights:
    exact_phrase: 1
    original: 1
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres://kioku@localhost/kioku", cfg.Store.DSN)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, 0.5, cfg.Search.SemanticWeight)
	assert.True(t, cfg.Rerank.Enabled)
	assert.Equal(t, ranking.Weights{ExactPhrase: 1, Original: 1}, cfg.Rerank.Weights)
	assert.False(t, cfg.Debug, "debug should default to false when unset")
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
store:
  dsn: "./data/kioku.db"
watch:
  directories: ["./dev/sample"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "kioku.db"), cfg.Store.DSN)
	require.Len(t, cfg.Watch.Directories, 1)
	assert.Equal(t, filepath.Join(dir, "dev", "sample"), cfg.Watch.Directories[0])
}

func TestLoad_URLDescriptorsAreNotExpanded(t *testing.T) {
	cfg, err := Load(writeConfig(t, "store:\n  dsn: \"qdrant://localhost:6334/notes\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "qdrant://localhost:6334/notes", cfg.Store.DSN)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not, a, map"))
	assert.Error(t, err)
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkSize)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("KIOKU_STORE_DSN", "memory://")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "secret")
	t.Setenv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "embeddings")
	t.Setenv("KIOKU_EMBEDDING_DIMENSIONS", "3072")
	t.Setenv("KIOKU_DEBUG", "true")

	cfg, err := Load(writeConfig(t, "store:\n  dsn: \"sqlite://from-file.db\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "memory://", cfg.Store.DSN)
	assert.Equal(t, "https://example.openai.azure.com", cfg.Embedding.Endpoint)
	assert.Equal(t, "secret", cfg.Embedding.APIKey)
	assert.Equal(t, "embeddings", cfg.Embedding.Deployment)
	assert.Equal(t, 3072, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Debug)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "azure", cfg.Embedding.Provider)
	assert.Equal(t, "2024-02-01", cfg.Embedding.APIVersion)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 1000, cfg.Embedding.CacheSize)
	assert.Equal(t, 500, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.True(t, cfg.Chunking.RespectParagraphsOrDefault())
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, 5, cfg.Search.SimilarLimit)
	assert.Equal(t, 0.5, cfg.Search.MinSimilarity)
	assert.Equal(t, 0.0, cfg.Search.MinScore)
	assert.Equal(t, 2, cfg.Search.CandidateMultiplier)
	assert.Equal(t, 4, cfg.Indexing.Workers)
	require.Len(t, cfg.Watch.Extensions, 10)
	assert.Equal(t, ".txt", cfg.Watch.Extensions[0])
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	require.NotNil(t, cfg.Watch.Recursive)
	assert.True(t, *cfg.Watch.Recursive)
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	f := false
	assert.True(t, (&WatchConfig{}).RecursiveOrDefault())
	assert.False(t, (&WatchConfig{Recursive: &f}).RecursiveOrDefault())
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "saved.yaml")
	cfg := &Config{
		Server: ServerConfig{Host: "localhost", Port: 9090},
		Store:  StoreConfig{DSN: "/tmp/kioku.db"},
	}
	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "/tmp/kioku.db", loaded.Store.DSN)
}
