package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/hyperjump/kioku/internal/models"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS content_embeddings (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL,
	embedding REAL[],
	model TEXT,
	dimensions INTEGER NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	subject TEXT,
	tags TEXT[],
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_embeddings_owner ON content_embeddings(owner_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_source ON content_embeddings(owner_id, source_type, source_id);
`

const pgColumns = `id, owner_id, source_type, source_id, chunk_index, content, embedding, model,
	dimensions, token_count, subject, tags, created_at, updated_at`

// probePostgres checks for the pgvector extension and any vector index on the embeddings table.
func probePostgres(ctx context.Context, pool *pgxpool.Pool) (Capabilities, error) {
	var version string
	err := pool.QueryRow(ctx, `SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Capabilities{Native: false, IndexKind: IndexKindScan}, nil
	}
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to probe pgvector: %w", err)
	}

	caps := Capabilities{Native: true, IndexKind: IndexKindFlat, Version: version}
	rows, err := pool.Query(ctx, `SELECT indexdef FROM pg_indexes WHERE tablename = 'content_embeddings'`)
	if err != nil {
		return Capabilities{}, fmt.Errorf("failed to list indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return Capabilities{}, err
		}
		def = strings.ToLower(def)
		switch {
		case strings.Contains(def, "using hnsw"):
			caps.IndexKind = IndexKindHNSW
		case strings.Contains(def, "using ivfflat") && caps.IndexKind != IndexKindHNSW:
			caps.IndexKind = IndexKindIVFFlat
		}
	}
	return caps, rows.Err()
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pgBackend holds the operations shared by both Postgres strategies.
type pgBackend struct {
	pool       *pgxpool.Pool
	dimensions int
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Insert writes rec as a new row.
func (p *pgBackend) Insert(ctx context.Context, rec *models.EmbeddingRecord) error {
	return p.insert(ctx, p.pool, rec)
}

func (p *pgBackend) insert(ctx context.Context, q pgQuerier, rec *models.EmbeddingRecord) error {
	if len(rec.Vector) != p.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), p.dimensions)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := q.Exec(ctx,
		`INSERT INTO content_embeddings (`+pgColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.OwnerID, string(rec.SourceType), rec.SourceID, rec.ChunkIndex, rec.Content,
		rec.Vector, rec.Model, rec.Dimensions, rec.TokenCount, rec.Subject, tags,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// KeywordSearch prefilters with ILIKE ANY and counts distinct term hits in Go.
func (p *pgBackend) KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error) {
	if len(q.Terms) == 0 {
		return []models.KeywordMatch{}, nil
	}
	where, args := scopeClause(queryScope(q.OwnerID, q.SourceType), q.Subject, dollar)
	patterns := make([]string, len(q.Terms))
	for i, term := range q.Terms {
		patterns[i] = "%" + escapeLike(term) + "%"
	}
	args = append(args, patterns)
	where += " AND content ILIKE ANY(" + dollar(len(args)) + "::text[])"
	records, err := p.query(ctx, p.pool, `SELECT `+pgColumns+` FROM content_embeddings WHERE `+where, args)
	if err != nil {
		return nil, err
	}
	return keywordCandidates(records, q), nil
}

// FindByScope returns the rows in scope ordered by source and chunk index.
func (p *pgBackend) FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error) {
	where, args := scopeClause(scope, "", dollar)
	return p.query(ctx, p.pool,
		`SELECT `+pgColumns+` FROM content_embeddings WHERE `+where+` ORDER BY source_id, chunk_index`, args)
}

// DeleteByScope removes the rows in scope.
func (p *pgBackend) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	return p.deleteScope(ctx, p.pool, scope)
}

func (p *pgBackend) deleteScope(ctx context.Context, q pgQuerier, scope models.Scope) (int, error) {
	where, args := scopeClause(scope, "", dollar)
	tag, err := q.Exec(ctx, `DELETE FROM content_embeddings WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ReplaceScope deletes the rows in scope and inserts rec in one transaction.
func (p *pgBackend) ReplaceScope(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (int, error) {
	var deleted int
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		n, err := p.deleteScope(ctx, tx, scope)
		if err != nil {
			return err
		}
		deleted = n
		return p.insert(ctx, tx, rec)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace scope: %w", err)
	}
	return deleted, nil
}

// Count returns the number of rows.
func (p *pgBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content_embeddings`).Scan(&n)
	return n, err
}

// Close releases the connection pool.
func (p *pgBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *pgBackend) query(ctx context.Context, q pgQuerier, sql string, args []any) ([]*models.EmbeddingRecord, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []*models.EmbeddingRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanPGRecord(rows pgx.Rows, extra ...any) (*models.EmbeddingRecord, error) {
	var (
		rec        models.EmbeddingRecord
		sourceType string
		model      *string
		subject    *string
		createdAt  time.Time
		updatedAt  time.Time
	)
	dest := []any{&rec.ID, &rec.OwnerID, &sourceType, &rec.SourceID, &rec.ChunkIndex, &rec.Content,
		&rec.Vector, &model, &rec.Dimensions, &rec.TokenCount, &subject, &rec.Tags, &createdAt, &updatedAt}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return nil, fmt.Errorf("failed to scan embedding: %w", err)
	}
	rec.SourceType = models.SourceType(sourceType)
	if model != nil {
		rec.Model = *model
	}
	if subject != nil {
		rec.Subject = *subject
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

// PGScanBackend serves Postgres servers without pgvector by ranking rows in process.
type PGScanBackend struct {
	pgBackend
}

// Info reports the portable scan strategy.
func (p *PGScanBackend) Info() BackendInfo {
	return BackendInfo{Name: "postgres", Native: false, IndexKind: IndexKindScan}
}

// Search loads the rows in the owner's scope and ranks them by cosine similarity.
func (p *PGScanBackend) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if len(q.Vector) != p.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), p.dimensions)
	}
	where, args := scopeClause(queryScope(q.OwnerID, q.SourceType), q.Subject, dollar)
	records, err := p.query(ctx, p.pool, `SELECT `+pgColumns+` FROM content_embeddings WHERE `+where, args)
	if err != nil {
		return nil, err
	}
	return rankCandidates(records, q), nil
}

// PGNativeBackend pushes ranking into Postgres with the pgvector cosine distance operator.
type PGNativeBackend struct {
	pgBackend
	indexKind IndexKind
}

// Info reports the native strategy and the vector index found by the probe.
func (p *PGNativeBackend) Info() BackendInfo {
	return BackendInfo{Name: "pgvector", Native: true, IndexKind: p.indexKind}
}

// Search orders rows by cosine distance and applies the similarity floor in SQL.
func (p *PGNativeBackend) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if len(q.Vector) != p.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), p.dimensions)
	}
	where, args := scopeClause(queryScope(q.OwnerID, q.SourceType), q.Subject, dollar)

	args = append(args, pgvector.NewVector(q.Vector).String())
	distance := fmt.Sprintf("(embedding::vector(%d) <=> %s::text::vector(%d))", p.dimensions, dollar(len(args)), p.dimensions)
	args = append(args, q.MinSimilarity)
	floor := dollar(len(args))
	args = append(args, q.Limit)
	limit := dollar(len(args))

	sql := fmt.Sprintf(`SELECT %s, 1 - %s AS similarity FROM content_embeddings
		WHERE %s AND cardinality(embedding) = %d AND 1 - %s >= %s
		ORDER BY %s, id LIMIT %s`,
		pgColumns, distance, where, p.dimensions, distance, floor, distance, limit)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	results := make([]models.VectorSearchResult, 0)
	for rows.Next() {
		var sim float64
		rec, err := scanPGRecord(rows, &sim)
		if err != nil {
			return nil, err
		}
		results = append(results, models.VectorSearchResult{RecordView: rec.View(), Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// openPostgres connects, ensures the schema and picks the native or scan strategy
// from the cached server capabilities.
func openPostgres(ctx context.Context, dsn string, dimensions int, cache *CapabilityCache) (Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	caps, err := cache.Resolve(ctx, dsn, func(ctx context.Context) (Capabilities, error) {
		return probePostgres(ctx, pool)
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	base := pgBackend{pool: pool, dimensions: dimensions}
	if caps.Native {
		return &PGNativeBackend{pgBackend: base, indexKind: caps.IndexKind}, nil
	}
	return &PGScanBackend{pgBackend: base}, nil
}
