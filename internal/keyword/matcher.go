package keyword

import "strings"

// CountMatches returns how many distinct terms occur in content as case-insensitive substrings.
func CountMatches(content string, terms []string) int {
	if len(terms) == 0 || content == "" {
		return 0
	}
	lower := strings.ToLower(content)
	n := 0
	for _, t := range terms {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			n++
		}
	}
	return n
}

// NormalizeCounts divides each count by the largest one. With no positive count the
// divisor is 1, so every score is 0.
func NormalizeCounts(counts map[string]int) map[string]float64 {
	maxCount := 1
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	normalized := make(map[string]float64, len(counts))
	for id, c := range counts {
		normalized[id] = float64(c) / float64(maxCount)
	}
	return normalized
}
