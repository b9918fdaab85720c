// Package search runs hybrid (semantic + keyword) retrieval over the vector store.
package search

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/vector"
)

// Engine answers retrieval queries.
type Engine struct {
	store    *vector.Store
	embedder *privacy.Embedder
	config   config.SearchConfig
	privacy  privacy.Options
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPrivacyOptions sets the options used when embedding queries.
func WithPrivacyOptions(o privacy.Options) EngineOption {
	return func(e *Engine) {
		e.privacy = o
	}
}

// NewEngine creates a search engine. A nil cfg uses the built-in defaults.
func NewEngine(store *vector.Store, embedder *privacy.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	var c config.SearchConfig
	if cfg != nil {
		c = *cfg
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = 2
	}
	e := &Engine{
		store:    store,
		embedder: embedder,
		config:   c,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the vector store the engine searches.
func (e *Engine) Store() *vector.Store {
	return e.store
}

func (e *Engine) applyHybridDefaults(q *models.HybridQuery) {
	if q.Limit <= 0 && e.config.DefaultLimit > 0 {
		q.Limit = e.config.DefaultLimit
	}
	if q.SemanticWeight == nil && e.config.SemanticWeight > 0 {
		q.SemanticWeight = models.Float64(e.config.SemanticWeight)
	}
	if q.MinScore == nil {
		q.MinScore = models.Float64(e.config.MinScore)
	}
}

// HybridSearch embeds the query and searches semantically while matching extracted
// terms lexically, then fuses both. MinScore applies to the fused score; the semantic
// branch is pre-filtered at MinScore×SemanticWeight, the most a semantic-only hit can reach.
//
// If one branch fails the other's results are still returned; if every branch that ran
// fails, the first error is returned.
func (e *Engine) HybridSearch(ctx context.Context, q models.HybridQuery) (*models.HybridResponse, error) {
	startTime := time.Now()
	e.applyHybridDefaults(&q)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	candidates := q.Limit * e.config.CandidateMultiplier
	terms := keyword.ExtractTerms(q.Query)

	var (
		semanticResults []models.VectorSearchResult
		keywordResults  []models.KeywordMatch
		errChan         = make(chan error, 2)
		wg              sync.WaitGroup
		branches        = 1
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		embedded, err := e.embedder.Embed(ctx, q.Query, e.privacy)
		if err != nil {
			errChan <- fmt.Errorf("embedding failed: %w", err)
			return
		}
		results, err := e.store.Search(ctx, models.SearchQuery{
			OwnerID:       q.OwnerID,
			Vector:        embedded.Vector,
			Limit:         candidates,
			MinSimilarity: q.ScoreFloor() * q.Weight(),
			SourceType:    q.SourceType,
			Subject:       q.Subject,
		})
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		semanticResults = results
	}()

	if len(terms) > 0 {
		branches++
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.store.KeywordSearch(ctx, models.KeywordQuery{
				OwnerID:    q.OwnerID,
				Terms:      terms,
				Limit:      candidates,
				SourceType: q.SourceType,
				Subject:    q.Subject,
			})
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			keywordResults = results
		}()
	}

	wg.Wait()
	close(errChan)
	var errs []error
	for err := range errChan {
		errs = append(errs, err)
	}
	if len(errs) == branches {
		return nil, errs[0]
	}
	for _, err := range errs {
		e.logger.Warn("hybrid search branch failed, continuing with partial results",
			zap.String("owner_id", q.OwnerID), zap.Error(err))
	}

	fused := Fuse(semanticResults, keywordResults, q.Weight())
	fused = filterFused(fused, q.ScoreFloor(), excludeSet(q.ExcludeSourceIDs))
	total := len(fused)
	if len(fused) > q.Limit {
		fused = fused[:q.Limit]
	}

	e.logger.Debug("hybrid search",
		zap.String("owner_id", q.OwnerID),
		zap.Int("semantic", len(semanticResults)),
		zap.Int("keyword", len(keywordResults)),
		zap.Int("results", len(fused)))

	return &models.HybridResponse{
		Results:   fused,
		Total:     total,
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     q.Query,
	}, nil
}

// Hit is a hybrid result, optionally rescored by the reranker.
type Hit struct {
	*models.HybridRetrievalResult
	RerankedScore *float64         `json:"reranked_score,omitempty"`
	Signals       *ranking.Signals `json:"signals,omitempty"`
}

// Response is the result of Search.
type Response struct {
	Results   []*Hit `json:"results"`
	Total     int    `json:"total"`
	QueryTime int64  `json:"query_time_ms"`
	Query     string `json:"query"`
	Reranked  bool   `json:"reranked"`
}

// Search runs HybridSearch and, when rerank is non-nil, reorders the fused results
// with the reranker using each result's combined score as its original score.
func (e *Engine) Search(ctx context.Context, q models.HybridQuery, rerank *ranking.Options) (*Response, error) {
	startTime := time.Now()
	hybrid, err := e.HybridSearch(ctx, q)
	if err != nil {
		return nil, err
	}
	resp := &Response{
		Results: make([]*Hit, 0, len(hybrid.Results)),
		Total:   hybrid.Total,
		Query:   hybrid.Query,
	}
	if rerank == nil {
		for _, r := range hybrid.Results {
			resp.Results = append(resp.Results, &Hit{HybridRetrievalResult: r})
		}
		resp.QueryTime = time.Since(startTime).Milliseconds()
		return resp, nil
	}

	byID := make(map[string]*models.HybridRetrievalResult, len(hybrid.Results))
	candidates := make([]ranking.Candidate, len(hybrid.Results))
	for i, r := range hybrid.Results {
		byID[r.ID] = r
		candidates[i] = ranking.Candidate{ID: r.ID, Content: r.Content, Score: r.CombinedScore}
	}
	docs, err := ranking.Rerank(q.Query, candidates, *rerank)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	for _, d := range docs {
		score := d.RerankedScore
		signals := d.Signals
		resp.Results = append(resp.Results, &Hit{
			HybridRetrievalResult: byID[d.ID],
			RerankedScore:         &score,
			Signals:               &signals,
		})
	}
	resp.Reranked = true
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

func (e *Engine) applySimilarDefaults(q *models.SimilarQuery) {
	if q.Limit <= 0 && e.config.SimilarLimit > 0 {
		q.Limit = e.config.SimilarLimit
	}
	if q.MinSimilarity == nil && e.config.MinSimilarity > 0 {
		q.MinSimilarity = models.Float64(e.config.MinSimilarity)
	}
}

// queryVector returns the caller's embedding or embeds the query text.
func (e *Engine) queryVector(ctx context.Context, q models.SimilarQuery) ([]float32, error) {
	if len(q.Embedding) > 0 {
		return q.Embedding, nil
	}
	embedded, err := e.embedder.Embed(ctx, q.Query, e.privacy)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return embedded.Vector, nil
}

// FindSimilarMaterials returns study materials similar to the query text or embedding.
// MinSimilarity is a floor on raw cosine similarity.
func (e *Engine) FindSimilarMaterials(ctx context.Context, q models.SimilarQuery) ([]models.VectorSearchResult, error) {
	e.applySimilarDefaults(&q)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	vec, err := e.queryVector(ctx, q)
	if err != nil {
		return nil, err
	}
	return e.searchTypes(ctx, q, vec, []models.SourceType{models.SourceMaterial})
}

// FindRelatedConcepts searches flashcards and study kits (both unless disabled),
// merges the hits and returns the best ones.
func (e *Engine) FindRelatedConcepts(ctx context.Context, q models.ConceptQuery) ([]models.VectorSearchResult, error) {
	e.applySimilarDefaults(&q.SimilarQuery)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	types := q.SourceTypes()
	if len(types) == 0 {
		return []models.VectorSearchResult{}, nil
	}
	vec, err := e.queryVector(ctx, q.SimilarQuery)
	if err != nil {
		return nil, err
	}
	return e.searchTypes(ctx, q.SimilarQuery, vec, types)
}

func (e *Engine) searchTypes(ctx context.Context, q models.SimilarQuery, vec []float32, types []models.SourceType) ([]models.VectorSearchResult, error) {
	exclude := excludeSet(q.ExcludeSourceIDs)
	merged := make([]models.VectorSearchResult, 0)
	for _, st := range types {
		results, err := e.store.Search(ctx, models.SearchQuery{
			OwnerID:       q.OwnerID,
			Vector:        vec,
			Limit:         q.Limit + len(q.ExcludeSourceIDs),
			MinSimilarity: q.SimilarityFloor(),
			SourceType:    st,
			Subject:       q.Subject,
		})
		if err != nil {
			return nil, fmt.Errorf("%s search failed: %w", st, err)
		}
		for _, r := range results {
			if !exclude[r.SourceID] {
				merged = append(merged, r)
			}
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}
	return merged, nil
}
