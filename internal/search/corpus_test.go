package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/privacy"
	"github.com/hyperjump/kioku/internal/ranking"
	"github.com/hyperjump/kioku/internal/vector"
)

type corpusDoc struct {
	sourceID string
	subject  string
	content  string
}

// studyCorpus has disjoint vocabulary per topic so each query has one right answer.
var studyCorpus = []corpusDoc{
	{"photosynthesis", "biology", "Photosynthesis converts sunlight into chemical energy. Chlorophyll in chloroplasts absorbs light."},
	{"mitosis", "biology", "Mitosis divides a nucleus into two identical daughter nuclei. Prophase, metaphase, anaphase follow."},
	{"newton", "physics", "Newton's second law relates force, mass and acceleration of a moving body."},
	{"thermodynamics", "physics", "Thermodynamics studies heat, entropy and temperature in closed systems."},
	{"renaissance", "history", "The Renaissance revived classical art in Florence under Medici patronage."},
	{"revolution", "history", "The French Revolution abolished feudal privileges and proclaimed citizens' rights."},
	{"derivatives", "math", "Derivatives measure instantaneous rate of change; the tangent slope of a curve."},
	{"matrices", "math", "Matrices multiply row by column; determinants reveal invertibility."},
	{"sonnet", "literature", "Petrarch's sonnet uses fourteen lines divided into octave and sestet."},
	{"volcanoes", "geography", "Volcanoes erupt magma through vents; tectonic plates drive eruptions."},
}

var corpusQueries = []struct {
	query string
	want  string
}{
	{"chlorophyll sunlight chloroplasts", "photosynthesis"},
	{"metaphase anaphase nuclei", "mitosis"},
	{"force acceleration mass", "newton"},
	{"entropy heat temperature", "thermodynamics"},
	{"Medici Florence classical", "renaissance"},
	{"feudal privileges citizens", "revolution"},
	{"tangent slope instantaneous", "derivatives"},
	{"determinants invertibility matrices", "matrices"},
	{"octave sestet Petrarch", "sonnet"},
	{"magma tectonic eruptions", "volcanoes"},
}

func newCorpusEngine(t testing.TB) *Engine {
	t.Helper()
	ctx := context.Background()
	backend, err := vector.NewMemoryBackend(64)
	require.NoError(t, err)
	anonymizer := privacy.NewAnonymizer()
	store := vector.NewStore(backend, anonymizer, 64)
	gate := privacy.NewEmbedder(embedding.NewMockEmbedder(64), anonymizer)

	idx, err := indexer.NewIndexer(store, gate, indexer.WithWorkers(4))
	require.NoError(t, err)
	defer idx.Close()
	for _, doc := range studyCorpus {
		res, err := idx.IndexMaterial(ctx, models.MaterialInput{
			OwnerID:  owner,
			SourceID: doc.sourceID,
			Subject:  doc.subject,
			Content:  doc.content,
		})
		require.NoError(t, err)
		require.Equal(t, 1, res.ChunksIndexed, doc.sourceID)
	}
	return NewEngine(store, gate, nil)
}

// The offline embedder carries no meaning, so a low semantic weight lets the lexical
// branch decide the ranking.
func TestCorpus_KeywordDominatedQueriesFindTheirTopic(t *testing.T) {
	engine := newCorpusEngine(t)
	for _, tc := range corpusQueries {
		t.Run(tc.want, func(t *testing.T) {
			resp, err := engine.HybridSearch(context.Background(), models.HybridQuery{
				OwnerID:        owner,
				Query:          tc.query,
				Limit:          3,
				SemanticWeight: models.Float64(0.2),
			})
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			top := resp.Results[0]
			assert.Equal(t, tc.want, top.SourceID)
			assert.InDelta(t, 1.0, top.KeywordScore, 1e-9)
			assert.LessOrEqual(t, len(resp.Results), 3)
		})
	}
}

func TestCorpus_SubjectFilterAndRerank(t *testing.T) {
	engine := newCorpusEngine(t)
	resp, err := engine.Search(context.Background(), models.HybridQuery{
		OwnerID:        owner,
		Query:          "entropy heat temperature",
		SemanticWeight: models.Float64(0.2),
		Subject:        "biology",
	}, nil)
	require.NoError(t, err)
	for _, hit := range resp.Results {
		assert.Equal(t, "biology", hit.Subject)
		assert.Zero(t, hit.KeywordScore)
	}

	resp, err = engine.Search(context.Background(), models.HybridQuery{
		OwnerID:        owner,
		Query:          "force acceleration mass",
		SemanticWeight: models.Float64(0.2),
		Limit:          5,
	}, &ranking.Options{TopK: 2})
	require.NoError(t, err)
	assert.True(t, resp.Reranked)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "newton", resp.Results[0].SourceID)
	require.NotNil(t, resp.Results[0].Signals)
	assert.InDelta(t, 1.0, resp.Results[0].Signals.TermCoverage, 1e-9)
}

func BenchmarkFuse(b *testing.B) {
	semantic := make([]models.VectorSearchResult, 100)
	matches := make([]models.KeywordMatch, 100)
	for i := range semantic {
		id := fmt.Sprintf("r%03d", i)
		semantic[i] = models.VectorSearchResult{RecordView: models.RecordView{ID: id}, Similarity: float64(100-i) / 100}
		matches[i] = models.KeywordMatch{RecordView: models.RecordView{ID: fmt.Sprintf("r%03d", (i*7)%150)}, MatchCount: i%3 + 1}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Fuse(semantic, matches, 0.7)
	}
}

func BenchmarkHybridSearch(b *testing.B) {
	engine := newCorpusEngine(b)
	ctx := context.Background()
	q := models.HybridQuery{OwnerID: owner, Query: "force acceleration mass", Limit: 5}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.HybridSearch(ctx, q); err != nil {
			b.Fatal(err)
		}
	}
}
