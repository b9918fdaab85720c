package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kioku/internal/models"
)

// MemoryBackend keeps records in process and scans them for every query.
// Suitable for tests and local development.
type MemoryBackend struct {
	dimensions int
	records    []*models.EmbeddingRecord
	mu         sync.RWMutex
}

// NewMemoryBackend creates an empty in-memory backend for vectors of the given dimension.
func NewMemoryBackend(dimensions int) (*MemoryBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryBackend{
		dimensions: dimensions,
		records:    make([]*models.EmbeddingRecord, 0),
	}, nil
}

// Info reports the portable scan strategy.
func (m *MemoryBackend) Info() BackendInfo {
	return BackendInfo{Name: "memory", Native: false, IndexKind: IndexKindScan}
}

// Insert stores a copy of rec.
func (m *MemoryBackend) Insert(ctx context.Context, rec *models.EmbeddingRecord) error {
	if len(rec.Vector) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, cloneRecord(rec))
	return nil
}

// Search ranks every record in the owner's scope by cosine similarity.
func (m *MemoryBackend) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if len(q.Vector) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), m.dimensions)
	}
	return rankCandidates(m.filter(queryScope(q.OwnerID, q.SourceType), q.Subject), q), nil
}

// KeywordSearch returns records containing at least one of the query terms.
func (m *MemoryBackend) KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error) {
	if len(q.Terms) == 0 {
		return []models.KeywordMatch{}, nil
	}
	return keywordCandidates(m.filter(queryScope(q.OwnerID, q.SourceType), q.Subject), q), nil
}

// FindByScope returns copies of the records in scope ordered by insertion.
func (m *MemoryBackend) FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error) {
	return m.filter(scope, ""), nil
}

// DeleteByScope removes the records in scope and returns how many were removed.
func (m *MemoryBackend) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(scope), nil
}

// ReplaceScope swaps the records in scope for rec under a single lock.
func (m *MemoryBackend) ReplaceScope(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (int, error) {
	if len(rec.Vector) != m.dimensions {
		return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.removeLocked(scope)
	m.records = append(m.records, cloneRecord(rec))
	return n, nil
}

// Count returns the number of stored records.
func (m *MemoryBackend) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) filter(scope models.Scope, subject string) []*models.EmbeddingRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.EmbeddingRecord, 0)
	for _, rec := range m.records {
		if scope.Matches(rec) && matchesSubject(rec, subject) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out
}

func (m *MemoryBackend) removeLocked(scope models.Scope) int {
	kept := make([]*models.EmbeddingRecord, 0, len(m.records))
	for _, rec := range m.records {
		if !scope.Matches(rec) {
			kept = append(kept, rec)
		}
	}
	n := len(m.records) - len(kept)
	m.records = kept
	return n
}

func cloneRecord(rec *models.EmbeddingRecord) *models.EmbeddingRecord {
	c := *rec
	if rec.Vector != nil {
		c.Vector = make([]float32, len(rec.Vector))
		copy(c.Vector, rec.Vector)
	}
	if rec.Tags != nil {
		c.Tags = append([]string(nil), rec.Tags...)
	}
	return &c
}
