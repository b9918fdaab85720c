package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/embedding/mocks"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/vector"
)

const owner = "student-1"

type fixture struct {
	engine *Engine
	store  *vector.Store
	mock   *mocks.MockEmbedder
}

// newFixture seeds four records whose cosine similarity to the query vector {1, 0} is
// 1.0 (m1), 0.6 (m2), 0.8 (f1) and 0.9 (k1).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	backend, err := vector.NewMemoryBackend(2)
	require.NoError(t, err)
	store := vector.NewStore(backend, privacy.NewAnonymizer(), 2)

	seed := []struct {
		st       models.SourceType
		sourceID string
		vec      []float32
		content  string
	}{
		{models.SourceMaterial, "m1", []float32{1, 0}, "Newton laws of motion"},
		{models.SourceMaterial, "m2", []float32{0.6, 0.8}, "Kepler orbital mechanics"},
		{models.SourceFlashcard, "f1", []float32{0.8, 0.6}, "Force equals mass times acceleration"},
		{models.SourceStudykit, "k1", []float32{0.9, 0.43588989}, "Energy conservation study kit"},
	}
	for _, s := range seed {
		_, err := store.Store(ctx, &models.EmbeddingRecord{
			ID: s.sourceID, OwnerID: owner, SourceType: s.st, SourceID: s.sourceID,
			Content: s.content, Vector: s.vec,
		})
		require.NoError(t, err)
	}

	ctrl := gomock.NewController(t)
	m := mocks.NewMockEmbedder(ctrl)
	return &fixture{
		engine: NewEngine(store, privacy.NewEmbedder(m, nil), nil),
		store:  store,
		mock:   m,
	}
}

func (f *fixture) queryVector(vec []float32) {
	f.mock.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(&embedding.Result{Vector: vec, Model: "mock-embedding"}, nil).AnyTimes()
}

func ids(results []*models.HybridRetrievalResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestHybridSearch_SemanticOnlyScoresAreWeighted(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{1, 0})

	resp, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{OwnerID: owner, Query: "zzzz qqqq"})
	require.NoError(t, err)
	require.Equal(t, []string{"m1", "k1", "f1", "m2"}, ids(resp.Results))
	assert.Equal(t, 4, resp.Total)

	top := resp.Results[0]
	assert.InDelta(t, 1.0, top.SemanticScore, 1e-6)
	assert.Equal(t, 0.0, top.KeywordScore)
	assert.InDelta(t, 0.7, top.CombinedScore, 1e-6)

	// a semantic-only hit at similarity 0.9 combines to 0.7 × 0.9
	assert.InDelta(t, 0.63, resp.Results[1].CombinedScore, 1e-6)
}

func TestHybridSearch_FusesKeywordMatches(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{0, 1})

	resp, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{OwnerID: owner, Query: "Newton motion"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m2", resp.Results[0].ID)

	var newton *models.HybridRetrievalResult
	for _, r := range resp.Results {
		if r.ID == "m1" {
			newton = r
		}
	}
	require.NotNil(t, newton)
	assert.Equal(t, 1.0, newton.KeywordScore)
	assert.InDelta(t, 0.0, newton.SemanticScore, 1e-6)
	assert.InDelta(t, 0.3, newton.CombinedScore, 1e-6)
}

func TestHybridSearch_MinScoreExcludeAndLimit(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{1, 0})
	ctx := context.Background()

	resp, err := f.engine.HybridSearch(ctx, models.HybridQuery{OwnerID: owner, Query: "zzzz", MinScore: models.Float64(0.5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "k1", "f1"}, ids(resp.Results))
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.CombinedScore, 0.5)
	}

	resp, err = f.engine.HybridSearch(ctx, models.HybridQuery{OwnerID: owner, Query: "zzzz", ExcludeSourceIDs: []string{"m1"}})
	require.NoError(t, err)
	assert.NotContains(t, ids(resp.Results), "m1")

	resp, err = f.engine.HybridSearch(ctx, models.HybridQuery{OwnerID: owner, Query: "zzzz", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, 4, resp.Total)

	resp, err = f.engine.HybridSearch(ctx, models.HybridQuery{OwnerID: owner, Query: "zzzz", SourceType: models.SourceFlashcard})
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, ids(resp.Results))
}

func TestHybridSearch_SemanticWeight(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{1, 0})

	resp, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{OwnerID: owner, Query: "zzzz", SemanticWeight: models.Float64(1)})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, resp.Results[0].CombinedScore, 1e-6)
}

func TestHybridSearch_ZeroSemanticWeightIsKeywordOnly(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{0, 1})

	resp, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{
		OwnerID:        owner,
		Query:          "Newton motion",
		SemanticWeight: models.Float64(0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "m1", resp.Results[0].ID)
	for _, r := range resp.Results {
		assert.Equal(t, r.KeywordScore, r.CombinedScore, "record %s", r.ID)
	}
}

func TestHybridSearch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, q := range []models.HybridQuery{
		{Query: "missing owner"},
		{OwnerID: owner},
		{OwnerID: owner, Query: "x", SemanticWeight: models.Float64(1.5)},
		{OwnerID: owner, Query: "x", MinScore: models.Float64(-0.1)},
	} {
		_, err := f.engine.HybridSearch(ctx, q)
		assert.ErrorIs(t, err, models.ErrValidation)
	}
}

func TestHybridSearch_KeywordSurvivesEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.mock.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(nil, errors.New("provider down"))

	resp, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{OwnerID: owner, Query: "Newton"})
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, ids(resp.Results))
	assert.InDelta(t, 0.3, resp.Results[0].CombinedScore, 1e-6)
}

func TestHybridSearch_AllBranchesFail(t *testing.T) {
	f := newFixture(t)
	f.mock.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(nil, &models.UpstreamError{Provider: "azure", StatusCode: 500, Body: "boom"})

	// no significant terms, so the keyword branch never runs
	_, err := f.engine.HybridSearch(context.Background(), models.HybridQuery{OwnerID: owner, Query: "of the"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
}

func TestSearch_Rerank(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{0, 1})
	ctx := context.Background()

	plain, err := f.engine.Search(ctx, models.HybridQuery{OwnerID: owner, Query: "Newton laws of motion"}, nil)
	require.NoError(t, err)
	assert.False(t, plain.Reranked)
	assert.Equal(t, "m2", plain.Results[0].ID)
	assert.Nil(t, plain.Results[0].Signals)

	reranked, err := f.engine.Search(ctx, models.HybridQuery{OwnerID: owner, Query: "Newton laws of motion"}, &ranking.Options{})
	require.NoError(t, err)
	assert.True(t, reranked.Reranked)
	require.NotEmpty(t, reranked.Results)
	top := reranked.Results[0]
	assert.Equal(t, "m1", top.ID)
	require.NotNil(t, top.Signals)
	assert.Equal(t, 1.0, top.Signals.ExactPhraseMatch)
	require.NotNil(t, top.RerankedScore)
	assert.InDelta(t, 0.25+0.25+0.15+0.35*0.3*0.5, *top.RerankedScore, 1e-6)

	_, err = f.engine.Search(ctx, models.HybridQuery{OwnerID: owner, Query: "Newton"}, &ranking.Options{Weights: ranking.Weights{Original: -1}})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestFindSimilarMaterials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	results, err := f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].SourceID)
	assert.Equal(t, "m2", results[1].SourceID)
	for _, r := range results {
		assert.Equal(t, models.SourceMaterial, r.SourceType)
	}

	results, err = f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}, MinSimilarity: models.Float64(0.7)})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}, ExcludeSourceIDs: []string{"m1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m2", results[0].SourceID)
}

func TestFindSimilarMaterials_ExplicitZeroFloor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// m1 is orthogonal to the query
	results, err := f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Embedding: []float32{0, 1}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m2", results[0].SourceID)

	results, err = f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Embedding: []float32{0, 1}, MinSimilarity: models.Float64(0)})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[1].SourceID)
	assert.InDelta(t, 0.0, results[1].Similarity, 1e-9)
}

func TestFindSimilarMaterials_RequiresQueryOrEmbedding(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.FindSimilarMaterials(context.Background(), models.SimilarQuery{OwnerID: owner})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Equal(t, "Either query or embedding must be provided", err.Error())
}

func TestFindSimilarMaterials_EmbedsQueryText(t *testing.T) {
	f := newFixture(t)
	f.mock.EXPECT().Embed(gomock.Any(), "orbits").
		Return(&embedding.Result{Vector: []float32{0.6, 0.8}}, nil)

	results, err := f.engine.FindSimilarMaterials(context.Background(), models.SimilarQuery{OwnerID: owner, Query: "orbits"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m2", results[0].SourceID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

// MinSimilarity (raw cosine) and MinScore (fused) are separate floors: the same
// material at similarity 0.6 passes a 0.5 similarity floor but its fused score of
// 0.42 fails a 0.5 score floor.
func TestMinSimilarityAndMinScoreAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.queryVector([]float32{1, 0})
	ctx := context.Background()

	similar, err := f.engine.FindSimilarMaterials(ctx, models.SimilarQuery{OwnerID: owner, Query: "zzzz", MinSimilarity: models.Float64(0.5)})
	require.NoError(t, err)
	var found bool
	for _, r := range similar {
		if r.SourceID == "m2" {
			found = true
			assert.InDelta(t, 0.6, r.Similarity, 1e-6)
		}
	}
	assert.True(t, found, "m2 passes the similarity floor")

	hybrid, err := f.engine.HybridSearch(ctx, models.HybridQuery{OwnerID: owner, Query: "zzzz", MinScore: models.Float64(0.5), SourceType: models.SourceMaterial})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(hybrid.Results))
}

func TestFindRelatedConcepts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	no := false

	results, err := f.engine.FindRelatedConcepts(ctx, models.ConceptQuery{
		SimilarQuery: models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "k1", results[0].SourceID)
	assert.Equal(t, "f1", results[1].SourceID)

	results, err = f.engine.FindRelatedConcepts(ctx, models.ConceptQuery{
		SimilarQuery:     models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}},
		IncludeStudykits: &no,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SourceFlashcard, results[0].SourceType)

	results, err = f.engine.FindRelatedConcepts(ctx, models.ConceptQuery{
		SimilarQuery: models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}, ExcludeSourceIDs: []string{"k1"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "f1", results[0].SourceID)

	results, err = f.engine.FindRelatedConcepts(ctx, models.ConceptQuery{
		SimilarQuery:      models.SimilarQuery{OwnerID: owner, Embedding: []float32{1, 0}},
		IncludeFlashcards: &no,
		IncludeStudykits:  &no,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}
