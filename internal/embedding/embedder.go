// Package embedding provides text embedding against a remote provider and vector similarity helpers.
package embedding

import "context"

// Usage reports provider token consumption for a result.
type Usage struct {
	Tokens int `json:"tokens"`
}

// Result is one embedded text. Index is the position of the text in the caller's input.
type Result struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
	Index  int       `json:"index"`
	Usage  Usage     `json:"usage"`
}

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) (*Result, error)
	EmbedBatch(ctx context.Context, texts []string) ([]*Result, error)
	IsConfigured() bool
	Model() string
	Dimensions() int
	Close() error
}

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"bge-m3":                 1024,
	"embeddinggemma":         768,
}

// DefaultDimensions is assumed for models not in the known list.
const DefaultDimensions = 1536

// DimensionsFor returns the vector size produced by model.
func DimensionsFor(model string) int {
	if d, ok := modelDimensions[model]; ok {
		return d
	}
	return DefaultDimensions
}

// New returns the embedder for cfg.Provider: MockEmbedder for ProviderMock and a
// remote Client otherwise.
func New(cfg ClientConfig, opts ...ClientOption) Embedder {
	if cfg.Provider == ProviderMock {
		return NewMockEmbedder(cfg.Dimensions)
	}
	return NewClient(cfg, opts...)
}
