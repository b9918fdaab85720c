package models

// RecordView is the read-only projection of an EmbeddingRecord returned by queries.
type RecordView struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	ChunkIndex int        `json:"chunk_index"`
	Content    string     `json:"content"`
	Subject    string     `json:"subject,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

// View projects the record without its vector.
func (r *EmbeddingRecord) View() RecordView {
	return RecordView{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		SourceType: r.SourceType,
		SourceID:   r.SourceID,
		ChunkIndex: r.ChunkIndex,
		Content:    r.Content,
		Subject:    r.Subject,
		Tags:       r.Tags,
	}
}

// VectorSearchResult is a semantic hit.
type VectorSearchResult struct {
	RecordView
	Similarity float64 `json:"similarity"`
}

// KeywordMatch is a lexical hit; MatchCount is the number of distinct query terms found.
type KeywordMatch struct {
	RecordView
	MatchCount int `json:"match_count"`
}

// HybridRetrievalResult is a fused hit. Either side's score is 0 when the record was not found by it.
type HybridRetrievalResult struct {
	RecordView
	CombinedScore float64 `json:"combined_score"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordScore  float64 `json:"keyword_score"`
}

// IndexResult summarizes a bulk indexing call. Failed chunks are reported, not returned as errors.
type IndexResult struct {
	ChunksIndexed int            `json:"chunks_indexed"`
	TotalTokens   int            `json:"total_tokens"`
	EmbeddingIDs  []string       `json:"embedding_ids"`
	Failed        []ChunkFailure `json:"failed,omitempty"`
}

// MaterialInput is the input for indexing a piece of content.
type MaterialInput struct {
	OwnerID    string     `json:"owner_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Content    string     `json:"content"`
	Subject    string     `json:"subject,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
}

// Validate checks identity fields. Blank content is allowed and indexes nothing.
func (in *MaterialInput) Validate() error {
	if in.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if in.SourceID == "" {
		return NewValidationError("source id is required")
	}
	if in.SourceType == "" {
		in.SourceType = SourceMaterial
	}
	if !in.SourceType.Valid() {
		return NewValidationError("unknown source type " + string(in.SourceType))
	}
	return nil
}

// SummaryMetadata annotates a conversation summary with its tutor and topics.
type SummaryMetadata struct {
	MaestroID string   `json:"maestro_id,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// Tags renders metadata as maestro:<id> followed by one topic:<t> per topic.
func (m *SummaryMetadata) Tags() []string {
	tags := []string{}
	if m == nil {
		return tags
	}
	if m.MaestroID != "" {
		tags = append(tags, "maestro:"+m.MaestroID)
	}
	for _, t := range m.Topics {
		if t == "" {
			continue
		}
		tags = append(tags, "topic:"+t)
	}
	return tags
}

// HybridResponse is the response for a hybrid search request.
type HybridResponse struct {
	Results   []*HybridRetrievalResult `json:"results"`
	Total     int                      `json:"total"`
	QueryTime int64                    `json:"query_time_ms"`
	Query     string                   `json:"query"`
}
