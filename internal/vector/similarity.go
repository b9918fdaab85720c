package vector

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
)

// rankCandidates is the portable nearest-neighbor scan shared by the memory, sqlite and
// postgres scan backends. Records without a vector are skipped.
func rankCandidates(records []*models.EmbeddingRecord, q models.SearchQuery) []models.VectorSearchResult {
	results := make([]models.VectorSearchResult, 0, len(records))
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(q.Vector, rec.Vector)
		if err != nil || sim < q.MinSimilarity {
			continue
		}
		results = append(results, models.VectorSearchResult{RecordView: rec.View(), Similarity: sim})
	}
	sortBySimilarity(results)
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

func sortBySimilarity(results []models.VectorSearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
}

// keywordCandidates counts distinct term hits per record and keeps those with at least one.
func keywordCandidates(records []*models.EmbeddingRecord, q models.KeywordQuery) []models.KeywordMatch {
	matches := make([]models.KeywordMatch, 0)
	for _, rec := range records {
		n := keyword.CountMatches(rec.Content, q.Terms)
		if n == 0 {
			continue
		}
		matches = append(matches, models.KeywordMatch{RecordView: rec.View(), MatchCount: n})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].MatchCount != matches[j].MatchCount {
			return matches[i].MatchCount > matches[j].MatchCount
		}
		return matches[i].ID < matches[j].ID
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches
}

func queryScope(ownerID string, sourceType models.SourceType) models.Scope {
	return models.Scope{OwnerID: ownerID, SourceType: sourceType}
}

func matchesSubject(rec *models.EmbeddingRecord, subject string) bool {
	return subject == "" || rec.Subject == subject
}

func float32SliceToBytes(s []float32) []byte {
	b := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToFloat32Slice(b []byte) []float32 {
	n := len(b) / 4
	s := make([]float32, n)
	for i := 0; i < n; i++ {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return s
}
