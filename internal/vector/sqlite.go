package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kioku/internal/models"
)

// SQLiteBackend stores records in a single SQLite table and scans them for similarity.
type SQLiteBackend struct {
	db         *sql.DB
	path       string
	dimensions int
}

// NewSQLiteBackend opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" keeps everything in process.
func NewSQLiteBackend(dbPath string, dimensions int) (*SQLiteBackend, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db, path: dbPath, dimensions: dimensions}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS content_embeddings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL,
		embedding BLOB,
		model TEXT,
		dimensions INTEGER NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		subject TEXT,
		tags TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_owner ON content_embeddings(owner_id);
	CREATE INDEX IF NOT EXISTS idx_embeddings_source ON content_embeddings(owner_id, source_type, source_id);
	`
	_, err := db.Exec(schema)
	return err
}

const sqliteColumns = `id, owner_id, source_type, source_id, chunk_index, content, embedding, model,
	dimensions, token_count, subject, tags, created_at, updated_at`

// Info reports the portable scan strategy.
func (s *SQLiteBackend) Info() BackendInfo {
	return BackendInfo{Name: "sqlite", Native: false, IndexKind: IndexKindScan}
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert writes rec as a new row.
func (s *SQLiteBackend) Insert(ctx context.Context, rec *models.EmbeddingRecord) error {
	return s.insert(ctx, s.db, rec)
}

func (s *SQLiteBackend) insert(ctx context.Context, db sqlExecer, rec *models.EmbeddingRecord) error {
	if len(rec.Vector) != s.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), s.dimensions)
	}
	tagsJSON, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO content_embeddings (`+sqliteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, string(rec.SourceType), rec.SourceID, rec.ChunkIndex, rec.Content,
		float32SliceToBytes(rec.Vector), rec.Model, rec.Dimensions, rec.TokenCount,
		rec.Subject, string(tagsJSON), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return nil
}

// Search loads the rows in the owner's scope and ranks them by cosine similarity.
func (s *SQLiteBackend) Search(ctx context.Context, q models.SearchQuery) ([]models.VectorSearchResult, error) {
	if len(q.Vector) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(q.Vector), s.dimensions)
	}
	where, args := scopeClause(queryScope(q.OwnerID, q.SourceType), q.Subject, questionMark)
	records, err := s.query(ctx, where, args)
	if err != nil {
		return nil, err
	}
	return rankCandidates(records, q), nil
}

// KeywordSearch loads the rows in scope and counts distinct term hits in Go.
// SQLite LIKE folds ASCII case only, so it cannot prefilter non-ASCII terms.
func (s *SQLiteBackend) KeywordSearch(ctx context.Context, q models.KeywordQuery) ([]models.KeywordMatch, error) {
	if len(q.Terms) == 0 {
		return []models.KeywordMatch{}, nil
	}
	where, args := scopeClause(queryScope(q.OwnerID, q.SourceType), q.Subject, questionMark)
	records, err := s.query(ctx, where, args)
	if err != nil {
		return nil, err
	}
	return keywordCandidates(records, q), nil
}

// FindByScope returns the rows in scope ordered by source and chunk index.
func (s *SQLiteBackend) FindByScope(ctx context.Context, scope models.Scope) ([]*models.EmbeddingRecord, error) {
	where, args := scopeClause(scope, "", questionMark)
	return s.query(ctx, where+" ORDER BY source_id, chunk_index", args)
}

// DeleteByScope removes the rows in scope.
func (s *SQLiteBackend) DeleteByScope(ctx context.Context, scope models.Scope) (int, error) {
	return s.deleteScope(ctx, s.db, scope)
}

func (s *SQLiteBackend) deleteScope(ctx context.Context, db sqlExecer, scope models.Scope) (int, error) {
	where, args := scopeClause(scope, "", questionMark)
	result, err := db.ExecContext(ctx, `DELETE FROM content_embeddings WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ReplaceScope deletes the rows in scope and inserts rec in one transaction.
func (s *SQLiteBackend) ReplaceScope(ctx context.Context, scope models.Scope, rec *models.EmbeddingRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := s.deleteScope(ctx, tx, scope)
	if err != nil {
		return 0, err
	}
	if err := s.insert(ctx, tx, rec); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit replace: %w", err)
	}
	return n, nil
}

// Count returns the number of rows.
func (s *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_embeddings`).Scan(&n)
	return n, err
}

// SizeBytes returns the on-disk size of the database including its WAL files.
func (s *SQLiteBackend) SizeBytes() (int64, error) {
	if s.path == ":memory:" {
		return 0, nil
	}
	return DiskUsageBytes(s.path, s.path+"-wal", s.path+"-shm")
}

// Close closes the database.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) query(ctx context.Context, where string, args []any) ([]*models.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM content_embeddings WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var records []*models.EmbeddingRecord
	for rows.Next() {
		var (
			rec        models.EmbeddingRecord
			sourceType string
			blob       []byte
			model      sql.NullString
			subject    sql.NullString
			tagsJSON   sql.NullString
			createdAt  time.Time
			updatedAt  time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &sourceType, &rec.SourceID, &rec.ChunkIndex, &rec.Content,
			&blob, &model, &rec.Dimensions, &rec.TokenCount, &subject, &tagsJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.SourceType = models.SourceType(sourceType)
		if len(blob) > 0 {
			rec.Vector = bytesToFloat32Slice(blob)
		}
		rec.Model = model.String
		rec.Subject = subject.String
		if tagsJSON.Valid && tagsJSON.String != "" {
			if err := json.Unmarshal([]byte(tagsJSON.String), &rec.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		rec.CreatedAt = createdAt
		rec.UpdatedAt = updatedAt
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func questionMark(int) string { return "?" }

// scopeClause builds a WHERE fragment for scope and subject using the driver's placeholder style.
func scopeClause(scope models.Scope, subject string, placeholder func(n int) string) (string, []any) {
	conds := []string{"owner_id = " + placeholder(1)}
	args := []any{scope.OwnerID}
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, col+" = "+placeholder(len(args)))
	}
	if scope.SourceType != "" {
		add("source_type", string(scope.SourceType))
	}
	if scope.SourceID != "" {
		add("source_id", scope.SourceID)
	}
	if subject != "" {
		add("subject", subject)
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
