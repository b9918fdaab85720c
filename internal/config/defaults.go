package config

import "github.com/hyperjump/kioku/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = "sqlite:///usr/local/var/kioku/data/kioku.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "azure"
	}
	if cfg.Embedding.APIVersion == "" {
		cfg.Embedding.APIVersion = "2024-02-01"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.RateLimit > 0 && cfg.Embedding.RateBurst == 0 {
		cfg.Embedding.RateBurst = 1
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 500
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = models.DefaultHybridLimit
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = models.MaxLimit
	}
	if cfg.Search.SemanticWeight == 0 {
		cfg.Search.SemanticWeight = models.DefaultSemanticWeight
	}
	if cfg.Search.SimilarLimit == 0 {
		cfg.Search.SimilarLimit = models.DefaultSimilarLimit
	}
	if cfg.Search.MinSimilarity == 0 {
		cfg.Search.MinSimilarity = models.DefaultMinSimilarity
	}
	if cfg.Search.CandidateMultiplier == 0 {
		cfg.Search.CandidateMultiplier = 2
	}
	if cfg.Rerank.IdealLength == 0 {
		cfg.Rerank.IdealLength = 500
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = 4
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".xlsx", ".pptx", ".odp", ".ods"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
