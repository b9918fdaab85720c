package ranking

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	minPhraseWords = 3
	maxPhraseWords = 5
)

// exactPhraseMatch is 1 when the whole query appears verbatim. Otherwise it credits the
// longest run of 3 to 5 consecutive query words found in the text, as a share of all
// query words. Queries with fewer than three significant terms only score on a full match.
func exactPhraseMatch(q *AnalyzedQuery, textLower string) float64 {
	if q.Phrase != "" && strings.Contains(textLower, q.Phrase) {
		return 1
	}
	if len(q.Terms) < minPhraseWords || len(q.Words) == 0 {
		return 0
	}
	longest := min(maxPhraseWords, len(q.Words))
	for n := longest; n >= minPhraseWords; n-- {
		for i := 0; i+n <= len(q.Words); i++ {
			run := strings.Join(q.Words[i:i+n], " ")
			if strings.Contains(textLower, run) {
				return float64(n) / float64(len(q.Words))
			}
		}
	}
	return 0
}

// termCoverage is the share of significant query terms present in the text.
func termCoverage(q *AnalyzedQuery, textLower string) float64 {
	if len(q.Terms) == 0 {
		return 0
	}
	return float64(CountMatchingTerms(q.Terms, textLower)) / float64(len(q.Terms))
}

// termProximity rewards texts whose matched terms first appear close together.
// With fewer than two query terms there is nothing to measure and the signal is 1;
// when the query has several terms but at most one matches, it is 0.
func termProximity(q *AnalyzedQuery, textLower string) float64 {
	if len(q.Terms) < 2 {
		return 1
	}
	positions := FirstPositions(q.Terms, textLower)
	if len(positions) < 2 {
		return 0
	}
	sort.Ints(positions)
	var total float64
	for i := 1; i < len(positions); i++ {
		total += float64(positions[i] - positions[i-1])
	}
	avg := total / float64(len(positions)-1)
	switch {
	case avg <= nearDistance:
		return 1
	case avg >= farDistance:
		return 0
	default:
		return 1 - (avg-nearDistance)/(farDistance-nearDistance)
	}
}

// lengthPenalty is 1 inside [0.5, 2] times the ideal length, ramps down to 0.5 for very
// short texts (below 0.2x) and to 0.7 for very long ones (above 5x).
func lengthPenalty(text string, idealLength int) float64 {
	if idealLength <= 0 {
		return 1
	}
	ratio := float64(utf8.RuneCountInString(text)) / float64(idealLength)
	switch {
	case ratio < 0.2:
		return 0.5
	case ratio < 0.5:
		return 0.5 + 0.5*(ratio-0.2)/0.3
	case ratio <= 2:
		return 1
	case ratio <= 5:
		return 1 - 0.3*(ratio-2)/3
	default:
		return 0.7
	}
}

func computeSignals(q *AnalyzedQuery, content string, idealLength int) Signals {
	lower := strings.ToLower(content)
	return Signals{
		ExactPhraseMatch: exactPhraseMatch(q, lower),
		TermCoverage:     termCoverage(q, lower),
		TermProximity:    termProximity(q, lower),
		LengthPenalty:    lengthPenalty(content, idealLength),
	}
}
