// Package vector persists embedding records and answers similarity and keyword queries
// over them. Each datastore is a Backend strategy chosen once by Open.
package vector

import (
	"context"

	"github.com/hyperjump/kioku/internal/models"
)

// IndexKind describes how a backend finds nearest neighbors.
type IndexKind string

const (
	IndexKindScan    IndexKind = "scan"
	IndexKindFlat    IndexKind = "flat"
	IndexKindHNSW    IndexKind = "hnsw"
	IndexKindIVFFlat IndexKind = "ivfflat"
)

// BackendInfo reports which strategy is serving queries.
type BackendInfo struct {
	Name      string    `json:"name"`
	Native    bool      `json:"native"`
	IndexKind IndexKind `json:"index_kind"`
}

// Backend is a datastore strategy. Every implementation returns search results sorted by
// similarity descending, never below MinSimilarity and never more than Limit.
type Backend interface {
	Insert(ctx context.Context, rec *models.EmbeddingRecord) error
	Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error)
	KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error)
	FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error)
	DeleteByScope(ctx context.Context, scope models.Scope) (int, error)
	// ReplaceScope deletes every record in scope and inserts rec as one unit.
	ReplaceScope(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (int, error)
	Count(ctx context.Context) (int, error)
	Info() BackendInfo
	Close() error
}

// ContentSanitizer strips personal data from text before it is persisted.
type ContentSanitizer interface {
	Sanitize(text string) string
}
