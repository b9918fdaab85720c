package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/extract"
	"github.com/hyperjump/kioku/internal/fileid"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/vector"
)

const (
	tagFilePrefix     = "file:"
	tagRevisionPrefix = "revision:"
)

// Indexer chunks, embeds and stores content for retrieval.
type Indexer struct {
	store     *vector.Store
	embedder  *privacy.Embedder
	chunker   *Chunker
	extractor *extract.Extractor
	privacy   privacy.Options
	workers   int
	pool      *ants.Pool
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the indexer logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithChunkOptions replaces the default chunking settings.
func WithChunkOptions(opts ChunkOptions) IndexerOption {
	return func(idx *Indexer) { idx.chunker = NewChunker(opts) }
}

// WithWorkers sets how many chunks are embedded concurrently.
func WithWorkers(n int) IndexerOption {
	return func(idx *Indexer) { idx.workers = n }
}

// WithPrivacyOptions sets the options used when embedding content.
func WithPrivacyOptions(o privacy.Options) IndexerOption {
	return func(idx *Indexer) { idx.privacy = o }
}

// WithExtractor sets the file extractor used by IndexFile.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// NewIndexer creates an indexer writing to store. Call Close to release its worker pool.
func NewIndexer(store *vector.Store, embedder *privacy.Embedder, opts ...IndexerOption) (*Indexer, error) {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		chunker:   NewChunker(DefaultChunkOptions()),
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	if idx.workers <= 0 {
		idx.workers = max(1, runtime.NumCPU()/2)
	}
	pool, err := ants.NewPool(idx.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	idx.pool = pool
	return idx, nil
}

// Close releases the worker pool.
func (idx *Indexer) Close() {
	idx.pool.Release()
}

type chunkOutcome struct {
	id     string
	tokens int
	err    error
}

// IndexMaterial chunks in.Content and embeds and stores every chunk as its own unit.
// Blank content indexes nothing and makes no provider call. A chunk that fails is
// logged and reported in the result's Failed list; the others are still stored.
func (idx *Indexer) IndexMaterial(ctx context.Context, in models.MaterialInput) (*models.IndexResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	result := &models.IndexResult{EmbeddingIDs: []string{}}
	if strings.TrimSpace(in.Content) == "" {
		return result, nil
	}
	chunks := idx.chunker.Chunk(in.Content)
	if len(chunks) == 0 {
		return result, nil
	}

	outcomes := make([]chunkOutcome, len(chunks))
	var wg sync.WaitGroup
	for i, ch := range chunks {
		wg.Add(1)
		err := idx.pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = idx.indexChunk(ctx, in, ch)
		})
		if err != nil {
			wg.Done()
			outcomes[i] = chunkOutcome{err: fmt.Errorf("submit chunk: %w", err)}
		}
	}
	wg.Wait()

	for i, o := range outcomes {
		if o.err != nil {
			idx.logger.Warn("failed to index chunk",
				zap.String("source_id", in.SourceID),
				zap.Int("chunk", chunks[i].Index),
				zap.Error(o.err))
			result.Failed = append(result.Failed, models.ChunkFailure{ChunkIndex: chunks[i].Index, Error: o.err.Error()})
			continue
		}
		result.ChunksIndexed++
		result.TotalTokens += o.tokens
		result.EmbeddingIDs = append(result.EmbeddingIDs, o.id)
	}

	idx.logger.Info("indexed material",
		zap.String("owner_id", in.OwnerID),
		zap.String("source_type", string(in.SourceType)),
		zap.String("source_id", in.SourceID),
		zap.Int("chunks", result.ChunksIndexed),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (idx *Indexer) indexChunk(ctx context.Context, in models.MaterialInput, ch models.TextChunk) chunkOutcome {
	if err := ctx.Err(); err != nil {
		return chunkOutcome{err: err}
	}
	embedded, err := idx.embedder.Embed(ctx, ch.Content, idx.privacy)
	if err != nil {
		return chunkOutcome{err: fmt.Errorf("embed chunk: %w", err)}
	}
	id, err := idx.store.Store(ctx, &models.EmbeddingRecord{
		OwnerID:    in.OwnerID,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		ChunkIndex: ch.Index,
		Content:    embedded.Content,
		Vector:     embedded.Vector,
		Model:      embedded.Model,
		TokenCount: tokenCount(embedded),
		Subject:    in.Subject,
		Tags:       append([]string{}, in.Tags...),
	})
	if err != nil {
		return chunkOutcome{err: err}
	}
	return chunkOutcome{id: id, tokens: tokenCount(embedded)}
}

// tokenCount is the provider's token usage for an embed call, or an estimate over the
// text that was sent when the provider reports none.
func tokenCount(embedded *privacy.PrivacyAwareResult) int {
	if embedded.Usage.Tokens > 0 {
		return embedded.Usage.Tokens
	}
	return models.EstimateTokens(embedded.Content)
}

// IndexConversationSummary stores summary as the single record for conversationID,
// replacing any earlier summary. Blank summaries are rejected before any I/O; embedding
// and storage errors are returned.
func (idx *Indexer) IndexConversationSummary(ctx context.Context, conversationID, ownerID, summary string, meta *models.SummaryMetadata) (string, error) {
	if strings.TrimSpace(summary) == "" {
		return "", models.NewValidationError("Summary text cannot be empty")
	}
	if conversationID == "" {
		return "", models.NewValidationError("conversation id is required")
	}
	scope := models.Scope{OwnerID: ownerID, SourceType: models.SourceConversationSummary, SourceID: conversationID}
	if err := scope.Validate(); err != nil {
		return "", err
	}

	existing, err := idx.store.FindByScope(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("look up summary: %w", err)
	}
	embedded, err := idx.embedder.Embed(ctx, summary, idx.privacy)
	if err != nil {
		return "", fmt.Errorf("embed summary: %w", err)
	}
	rec := &models.EmbeddingRecord{
		OwnerID:    ownerID,
		SourceType: models.SourceConversationSummary,
		SourceID:   conversationID,
		ChunkIndex: 0,
		Content:    embedded.Content,
		Vector:     embedded.Vector,
		Model:      embedded.Model,
		TokenCount: tokenCount(embedded),
		Tags:       meta.Tags(),
	}
	if len(existing) > 0 {
		rec.CreatedAt = existing[0].CreatedAt
	}
	id, err := idx.store.Replace(ctx, scope, rec)
	if err != nil {
		return "", err
	}
	idx.logger.Info("indexed conversation summary",
		zap.String("conversation_id", conversationID),
		zap.Bool("updated", len(existing) > 0),
		zap.Bool("anonymized", embedded.WasAnonymized))
	return id, nil
}

// IndexFile extracts the file at path and indexes it as a material owned by ownerID,
// replacing chunks from an earlier version. A file whose size and modification time
// match the indexed revision is skipped and a zero result is returned.
func (idx *Indexer) IndexFile(ctx context.Context, ownerID, path string) (*models.IndexResult, error) {
	absPath, sourceID, err := fileid.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, models.NewValidationError(fmt.Sprintf("not a regular file: %s", absPath))
	}
	if !idx.extractor.Supports(filepath.Ext(absPath)) {
		return nil, models.NewValidationError(fmt.Sprintf("unsupported file type: %s", filepath.Ext(absPath)))
	}
	scope := models.Scope{OwnerID: ownerID, SourceType: models.SourceMaterial, SourceID: sourceID}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	revision := tagRevisionPrefix + strconv.FormatInt(info.ModTime().UnixNano(), 10) + "-" + strconv.FormatInt(info.Size(), 10)
	existing, err := idx.store.FindByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("look up file: %w", err)
	}
	if len(existing) > 0 && slices.Contains(existing[0].Tags, revision) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return &models.IndexResult{EmbeddingIDs: []string{}}, nil
	}

	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	if len(existing) > 0 {
		if _, err := idx.store.DeleteByScope(ctx, scope); err != nil {
			return nil, err
		}
	}
	return idx.IndexMaterial(ctx, models.MaterialInput{
		OwnerID:    ownerID,
		SourceType: models.SourceMaterial,
		SourceID:   sourceID,
		Content:    text,
		Tags:       []string{tagFilePrefix + filepath.Base(absPath), revision},
	})
}

// IndexDirectory indexes every supported file under dir whose extension is in exts
// (all supported extensions when exts is empty). It returns how many files were indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, ownerID, dir string, exts []string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	n := 0
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if !idx.extractor.Supports(ext) || (len(exts) > 0 && !extensionAllowed(ext, exts)) {
			return nil
		}
		if _, err := idx.IndexFile(ctx, ownerID, path); err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

// RemoveFile deletes the chunks indexed for the file at path.
func (idx *Indexer) RemoveFile(ctx context.Context, ownerID, path string) (int, error) {
	_, sourceID, err := fileid.Resolve(path)
	if err != nil {
		return 0, err
	}
	return idx.DeleteSource(ctx, models.Scope{OwnerID: ownerID, SourceType: models.SourceMaterial, SourceID: sourceID})
}

// DeleteSource removes every record in scope and returns how many were removed.
func (idx *Indexer) DeleteSource(ctx context.Context, scope models.Scope) (int, error) {
	return idx.store.DeleteByScope(ctx, scope)
}

func extensionAllowed(ext string, allowed []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}
