// Package ranking rescores retrieval candidates with lexical and positional signals.
package ranking

// Candidate is a document to rerank. Score is its retrieval score in [0,1].
type Candidate struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Signals are the per-document features the reranker combines. Each lies in [0,1].
type Signals struct {
	ExactPhraseMatch float64 `json:"exact_phrase_match"`
	TermCoverage     float64 `json:"term_coverage"`
	TermProximity    float64 `json:"term_proximity"`
	LengthPenalty    float64 `json:"length_penalty"`
}

// RerankedDocument is a candidate with its new score and the signals behind it.
type RerankedDocument struct {
	Candidate
	RerankedScore float64 `json:"reranked_score"`
	Signals       Signals `json:"signals"`
}
