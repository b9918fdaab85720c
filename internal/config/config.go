// Package config provides configuration loading and structs for the kioku service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kioku/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects the vector datastore. DSN is one of memory://, sqlite://path,
// postgres://..., qdrant://host:port/collection or a bare SQLite file path.
type StoreConfig struct {
	DSN string `yaml:"dsn"`
}

// EmbeddingConfig holds remote embedding provider settings.
type EmbeddingConfig struct {
	Provider       string  `yaml:"provider"` // azure or openai
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Deployment     string  `yaml:"deployment"`
	APIVersion     string  `yaml:"api_version"`
	Model          string  `yaml:"model"`
	Dimensions     int     `yaml:"dimensions"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst      int     `yaml:"rate_burst"`
	CacheSize      int     `yaml:"cache_size"` // cached embeddings, negative disables
}

// PrivacyConfig controls the anonymization gate.
type PrivacyConfig struct {
	ForceAnonymization bool `yaml:"force_anonymization"`
	StoreContentHash   bool `yaml:"store_content_hash"`
}

// ChunkingConfig holds text segmentation settings.
type ChunkingConfig struct {
	MaxChunkSize      int   `yaml:"max_chunk_size"`
	Overlap           int   `yaml:"overlap"`
	RespectParagraphs *bool `yaml:"respect_paragraphs"`
}

// RespectParagraphsOrDefault returns whether paragraph breaks are honored; defaults to true when unset.
func (c *ChunkingConfig) RespectParagraphsOrDefault() bool {
	if c.RespectParagraphs != nil {
		return *c.RespectParagraphs
	}
	return true
}

// SearchConfig holds retrieval defaults.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"default_limit"`
	MaxLimit       int     `yaml:"max_limit"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	MinScore       float64 `yaml:"min_score"`
	SimilarLimit   int     `yaml:"similar_limit"`
	MinSimilarity  float64 `yaml:"min_similarity"`
	// CandidateMultiplier scales the semantic branch's limit relative to the requested limit.
	CandidateMultiplier int `yaml:"candidate_multiplier"`
}

// RerankConfig holds reranker settings.
type RerankConfig struct {
	Enabled     bool            `yaml:"enabled"`
	TopK        int             `yaml:"top_k"`
	IdealLength int             `yaml:"ideal_length"`
	Weights     ranking.Weights `yaml:"weights"`
}

// Options converts the config to reranker options.
func (r *RerankConfig) Options() ranking.Options {
	return ranking.Options{TopK: r.TopK, IdealLength: r.IdealLength, Weights: r.Weights}
}

// IndexingConfig holds bulk indexing settings.
type IndexingConfig struct {
	Workers int `yaml:"workers"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
	// OwnerID owns every material indexed by the watcher.
	OwnerID string `yaml:"owner_id"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// DefaultPath returns ~/.config/kioku/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "kioku", "config.yaml")
}

// Load reads and parses the config file at path, expands paths, applies the
// environment overlay and defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if isFilePath(cfg.Store.DSN) {
		cfg.Store.DSN = expandPath(cfg.Store.DSN, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads path when it exists and otherwise starts from defaults.
// The environment overlay applies either way.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &Config{}
		ApplyEnv(cfg)
		ApplyDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// isFilePath reports whether dsn names a local SQLite file rather than a URL.
func isFilePath(dsn string) bool {
	return dsn != "" && dsn != "memory" && !strings.Contains(dsn, "://") && !strings.HasPrefix(dsn, "file:")
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
