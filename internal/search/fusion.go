package search

import (
	"sort"

	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
)

// NormalizeKeywordScores maps record id to match count divided by the largest count.
func NormalizeKeywordScores(matches []models.KeywordMatch) map[string]float64 {
	counts := make(map[string]int, len(matches))
	for _, m := range matches {
		counts[m.ID] = m.MatchCount
	}
	return keyword.NormalizeCounts(counts)
}

// Fuse unions semantic and keyword hits by record id and scores each as
// semanticWeight·semantic + (1−semanticWeight)·keyword. A side that did not find the
// record contributes 0. Results are sorted by combined score, best first.
func Fuse(semantic []models.VectorSearchResult, matches []models.KeywordMatch, semanticWeight float64) []*models.HybridRetrievalResult {
	keywordScores := NormalizeKeywordScores(matches)
	byID := make(map[string]*models.HybridRetrievalResult, len(semantic)+len(matches))

	for _, r := range semantic {
		byID[r.ID] = &models.HybridRetrievalResult{
			RecordView:    r.RecordView,
			SemanticScore: r.Similarity,
		}
	}
	for _, m := range matches {
		if result, exists := byID[m.ID]; exists {
			result.KeywordScore = keywordScores[m.ID]
		} else {
			byID[m.ID] = &models.HybridRetrievalResult{
				RecordView:   m.RecordView,
				KeywordScore: keywordScores[m.ID],
			}
		}
	}

	results := make([]*models.HybridRetrievalResult, 0, len(byID))
	for _, result := range byID {
		result.CombinedScore = semanticWeight*result.SemanticScore + (1-semanticWeight)*result.KeywordScore
		results = append(results, result)
	}
	sortHybrid(results)
	return results
}

func sortHybrid(results []*models.HybridRetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ID < results[j].ID
	})
}

// filterFused drops results below minScore or belonging to an excluded source.
func filterFused(results []*models.HybridRetrievalResult, minScore float64, exclude map[string]bool) []*models.HybridRetrievalResult {
	filtered := results[:0]
	for _, r := range results {
		if r.CombinedScore < minScore || exclude[r.SourceID] {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func excludeSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
