package ranking

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kioku/internal/keyword"
)

// AnalyzedQuery is a query broken down for matching.
type AnalyzedQuery struct {
	Original string
	// Phrase is the trimmed, lowercased query used for verbatim matching.
	Phrase string
	// Words are every token in order, stop words included.
	Words []string
	// Terms are the significant tokens: stop words and very short tokens removed.
	Terms []string
}

// QueryAnalyzer analyzes rerank queries.
type QueryAnalyzer struct{}

// NewQueryAnalyzer creates a new QueryAnalyzer.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{}
}

// Analyze tokenizes query once so every candidate can reuse the result.
func (qa *QueryAnalyzer) Analyze(query string) *AnalyzedQuery {
	return &AnalyzedQuery{
		Original: query,
		Phrase:   strings.ToLower(strings.Join(strings.Fields(query), " ")),
		Words:    keyword.Tokenize(query),
		Terms:    keyword.ExtractTerms(query),
	}
}

// CountMatchingTerms counts how many terms are found in the lowercased text.
func CountMatchingTerms(terms []string, textLower string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(textLower, term) {
			count++
		}
	}
	return count
}

// FirstPositions returns the character offset of the first occurrence of each term
// found in the lowercased text, in term order.
func FirstPositions(terms []string, textLower string) []int {
	positions := make([]int, 0, len(terms))
	for _, term := range terms {
		if pos := strings.Index(textLower, term); pos >= 0 {
			positions = append(positions, utf8.RuneCountInString(textLower[:pos]))
		}
	}
	return positions
}
