package ranking

import (
	"sort"
)

// Rerank rescores candidates against query and returns them best first, truncated to
// opts.TopK. Weights are normalized to sum to 1, so the reranked score stays in [0,1]
// when candidate scores do.
func Rerank(query string, candidates []Candidate, opts Options) ([]RerankedDocument, error) {
	opts.ApplyDefaults(len(candidates))
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	w := opts.Weights.Normalized()
	analyzed := NewQueryAnalyzer().Analyze(query)

	docs := make([]RerankedDocument, len(candidates))
	for i, c := range candidates {
		s := computeSignals(analyzed, c.Content, opts.IdealLength)
		docs[i] = RerankedDocument{
			Candidate: c,
			Signals:   s,
			RerankedScore: w.ExactPhrase*s.ExactPhraseMatch +
				w.TermCoverage*s.TermCoverage +
				w.Proximity*s.TermProximity +
				w.Original*c.Score*s.LengthPenalty,
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].RerankedScore > docs[j].RerankedScore
	})
	if len(docs) > opts.TopK {
		docs = docs[:opts.TopK]
	}
	return docs, nil
}
