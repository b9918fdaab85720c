package models

import "fmt"

const (
	DefaultHybridLimit    = 10
	DefaultSemanticWeight = 0.7
	DefaultSimilarLimit   = 5
	DefaultMinSimilarity  = 0.5
	MaxLimit              = 100
)

// SearchQuery is a nearest-neighbor request against the vector store.
// MinSimilarity is a floor on raw cosine similarity; nothing below it is returned.
type SearchQuery struct {
	OwnerID       string     `json:"owner_id"`
	Vector        []float32  `json:"-"`
	Limit         int        `json:"limit,omitempty"`
	MinSimilarity float64    `json:"min_similarity,omitempty"`
	SourceType    SourceType `json:"source_type,omitempty"`
	Subject       string     `json:"subject,omitempty"`
}

// Validate checks the owner and vector and fills the default limit.
func (q *SearchQuery) Validate() error {
	if q.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if len(q.Vector) == 0 {
		return NewValidationError("query vector cannot be empty")
	}
	if q.SourceType != "" && !q.SourceType.Valid() {
		return NewValidationError(fmt.Sprintf("unknown source type %q", q.SourceType))
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHybridLimit
	}
	return nil
}

// KeywordQuery asks the store for records containing any of Terms as a substring.
type KeywordQuery struct {
	OwnerID    string     `json:"owner_id"`
	Terms      []string   `json:"terms"`
	Limit      int        `json:"limit,omitempty"`
	SourceType SourceType `json:"source_type,omitempty"`
	Subject    string     `json:"subject,omitempty"`
}

// Float64 returns a pointer to v, for the optional fields of queries.
func Float64(v float64) *float64 {
	return &v
}

// HybridQuery is a fused semantic + keyword retrieval request.
// MinScore is applied to the combined score after fusion, unlike SearchQuery.MinSimilarity.
// MinScore and SemanticWeight are optional; nil selects the default while an explicit
// zero is kept (a zero weight fuses on the keyword score alone).
type HybridQuery struct {
	OwnerID          string     `json:"owner_id"`
	Query            string     `json:"query"`
	Limit            int        `json:"limit,omitempty"`
	MinScore         *float64   `json:"min_score,omitempty"`
	SemanticWeight   *float64   `json:"semantic_weight,omitempty"`
	SourceType       SourceType `json:"source_type,omitempty"`
	Subject          string     `json:"subject,omitempty"`
	ExcludeSourceIDs []string   `json:"exclude_source_ids,omitempty"`
}

// Validate ensures the hybrid query has valid fields and sets defaults.
// A nil SemanticWeight selects DefaultSemanticWeight and a nil MinScore selects 0.
func (q *HybridQuery) Validate() error {
	if q.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if q.Query == "" {
		return NewValidationError("query cannot be empty")
	}
	if q.SourceType != "" && !q.SourceType.Valid() {
		return NewValidationError(fmt.Sprintf("unknown source type %q", q.SourceType))
	}
	if q.SemanticWeight == nil {
		q.SemanticWeight = Float64(DefaultSemanticWeight)
	}
	if q.MinScore == nil {
		q.MinScore = Float64(0)
	}
	if w := *q.SemanticWeight; w < 0 || w > 1 {
		return NewValidationError(fmt.Sprintf("semantic weight must be within [0,1], got %v", w))
	}
	if m := *q.MinScore; m < 0 || m > 1 {
		return NewValidationError(fmt.Sprintf("min score must be within [0,1], got %v", m))
	}
	if q.Limit <= 0 {
		q.Limit = DefaultHybridLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}

// Weight returns the semantic weight, or the default when unset.
func (q *HybridQuery) Weight() float64 {
	if q.SemanticWeight == nil {
		return DefaultSemanticWeight
	}
	return *q.SemanticWeight
}

// ScoreFloor returns the minimum fused score, 0 when unset.
func (q *HybridQuery) ScoreFloor() float64 {
	if q.MinScore == nil {
		return 0
	}
	return *q.MinScore
}

// SimilarQuery looks up records similar to a text query or a precomputed embedding.
// A nil MinSimilarity selects DefaultMinSimilarity; an explicit zero admits every
// non-negative neighbour.
type SimilarQuery struct {
	OwnerID          string    `json:"owner_id"`
	Query            string    `json:"query,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	Limit            int       `json:"limit,omitempty"`
	MinSimilarity    *float64  `json:"min_similarity,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	ExcludeSourceIDs []string  `json:"exclude_source_ids,omitempty"`
}

// Validate requires either Query or Embedding and fills defaults.
func (q *SimilarQuery) Validate() error {
	if q.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if q.Query == "" && len(q.Embedding) == 0 {
		return NewValidationError("Either query or embedding must be provided")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSimilarLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.MinSimilarity == nil {
		q.MinSimilarity = Float64(DefaultMinSimilarity)
	}
	if m := *q.MinSimilarity; m < -1 || m > 1 {
		return NewValidationError(fmt.Sprintf("min similarity must be within [-1,1], got %v", m))
	}
	return nil
}

// SimilarityFloor returns the minimum cosine similarity, or the default when unset.
func (q *SimilarQuery) SimilarityFloor() float64 {
	if q.MinSimilarity == nil {
		return DefaultMinSimilarity
	}
	return *q.MinSimilarity
}

// ConceptQuery searches flashcards and study kits. Both are included unless disabled.
type ConceptQuery struct {
	SimilarQuery
	IncludeFlashcards *bool `json:"include_flashcards,omitempty"`
	IncludeStudykits  *bool `json:"include_studykits,omitempty"`
}

// SourceTypes returns the source types the query should cover.
func (q *ConceptQuery) SourceTypes() []SourceType {
	var types []SourceType
	if q.IncludeFlashcards == nil || *q.IncludeFlashcards {
		types = append(types, SourceFlashcard)
	}
	if q.IncludeStudykits == nil || *q.IncludeStudykits {
		types = append(types, SourceStudykit)
	}
	return types
}
