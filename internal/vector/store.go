package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

// Store validates and anonymizes records before handing them to a Backend.
type Store struct {
	backend    Backend
	sanitizer  ContentSanitizer
	dimensions int
	logger     *zap.Logger
	now        func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used by the store.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore wraps backend. sanitizer runs on every record's content before it is written;
// dimensions is the vector length every record and query must have.
func NewStore(backend Backend, sanitizer ContentSanitizer, dimensions int, opts ...StoreOption) *Store {
	s := &Store{
		backend:    backend,
		sanitizer:  sanitizer,
		dimensions: dimensions,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dimensions returns the expected vector length.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Info describes the backend serving this store.
func (s *Store) Info() BackendInfo {
	return s.backend.Info()
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Store persists rec and returns its id. The record's content is anonymized and
// ID, timestamps, token count and dimensions are filled in.
func (s *Store) Store(ctx context.Context, rec *models.EmbeddingRecord) (string, error) {
	if err := s.prepare(rec); err != nil {
		return "", err
	}
	if err := s.backend.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("store embedding: %w", err)
	}
	s.logger.Debug("stored embedding",
		zap.String("id", rec.ID),
		zap.String("source_type", string(rec.SourceType)),
		zap.String("source_id", rec.SourceID),
		zap.Int("chunk", rec.ChunkIndex))
	return rec.ID, nil
}

// Replace deletes every record in scope and stores rec in its place as one unit
// where the backend supports it.
func (s *Store) Replace(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (string, error) {
	if err := scope.Validate(); err != nil {
		return "", err
	}
	if err := s.prepare(rec); err != nil {
		return "", err
	}
	replaced, err := s.backend.ReplaceScope(ctx, scope, rec)
	if err != nil {
		return "", fmt.Errorf("replace embedding: %w", err)
	}
	s.logger.Debug("replaced embeddings",
		zap.String("source_id", scope.SourceID),
		zap.Int("replaced", replaced),
		zap.String("id", rec.ID))
	return rec.ID, nil
}

func (s *Store) prepare(rec *models.EmbeddingRecord) error {
	if len(rec.Vector) != s.dimensions {
		return models.NewValidationError(fmt.Sprintf("Invalid vector dimensions: got %d, expected %d", len(rec.Vector), s.dimensions))
	}
	if rec.OwnerID == "" {
		return models.NewValidationError("owner id is required")
	}
	if rec.SourceID == "" {
		return models.NewValidationError("source id is required")
	}
	if !rec.SourceType.Valid() {
		return models.NewValidationError(fmt.Sprintf("unknown source type %q", rec.SourceType))
	}
	if s.sanitizer != nil {
		rec.Content = s.sanitizer.Sanitize(rec.Content)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Dimensions = len(rec.Vector)
	if rec.TokenCount == 0 {
		rec.TokenCount = models.EstimateTokens(rec.Content)
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return nil
}

// Search returns the records nearest to q.Vector, best first.
func (s *Store) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(q.Vector) != s.dimensions {
		return nil, models.NewValidationError(fmt.Sprintf("Invalid vector dimensions: got %d, expected %d", len(q.Vector), s.dimensions))
	}
	results, err := s.backend.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return results, nil
}

// KeywordSearch returns records containing any of q.Terms with their distinct match counts.
func (s *Store) KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error) {
	if q.OwnerID == "" {
		return nil, models.NewValidationError("owner id is required")
	}
	if len(q.Terms) == 0 {
		return []models.KeywordMatch{}, nil
	}
	matches, err := s.backend.KeywordSearch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return matches, nil
}

// FindByScope lists the records in scope.
func (s *Store) FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return s.backend.FindByScope(ctx, scope)
}

// DeleteByScope removes the records in scope and returns how many were removed.
func (s *Store) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	n, err := s.backend.DeleteByScope(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings: %w", err)
	}
	s.logger.Info("deleted embeddings",
		zap.String("owner_id", scope.OwnerID),
		zap.String("source_type", string(scope.SourceType)),
		zap.String("source_id", scope.SourceID),
		zap.Int("count", n))
	return n, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.backend.Count(ctx)
}

// SizeBytes returns the on-disk size of the backing file, or 0 for remote and in-memory stores.
func (s *Store) SizeBytes() int64 {
	type sizer interface{ SizeBytes() (int64, error) }
	if b, ok := s.backend.(sizer); ok {
		n, err := b.SizeBytes()
		if err == nil {
			return n
		}
	}
	return 0
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
