// Package models defines core data structures for embedding records, queries, and retrieval results.
package models

import (
	"fmt"
	"time"
)

// SourceType identifies what kind of content an embedding record was derived from.
type SourceType string

const (
	SourceMaterial            SourceType = "material"
	SourceFlashcard           SourceType = "flashcard"
	SourceStudykit            SourceType = "studykit"
	SourceMessage             SourceType = "message"
	SourceConversationSummary SourceType = "conversation_summary"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []SourceType{
	SourceMaterial,
	SourceFlashcard,
	SourceStudykit,
	SourceMessage,
	SourceConversationSummary,
}

// Valid reports whether s is one of the known source types.
func (s SourceType) Valid() bool {
	for _, t := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ParseSourceType converts a string to a SourceType, failing on unknown values.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.Valid() {
		return "", NewValidationError(fmt.Sprintf("unknown source type %q", s))
	}
	return t, nil
}

// EmbeddingRecord is a persisted chunk-level vector with its (anonymized) content.
type EmbeddingRecord struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"owner_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	ChunkIndex int        `json:"chunk_index"`
	Content    string     `json:"content"`
	Vector     []float32  `json:"-"`
	Model      string     `json:"model"`
	Dimensions int        `json:"dimensions"`
	TokenCount int        `json:"token_count"`
	Subject    string     `json:"subject,omitempty"`
	Tags       []string   `json:"tags"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Scope selects records by owner and optionally by source type and source id.
type Scope struct {
	OwnerID    string     `json:"owner_id"`
	SourceType SourceType `json:"source_type,omitempty"`
	SourceID   string     `json:"source_id,omitempty"`
}

// Validate requires an owner and, when set, a known source type.
func (s Scope) Validate() error {
	if s.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if s.SourceType != "" && !s.SourceType.Valid() {
		return NewValidationError(fmt.Sprintf("unknown source type %q", s.SourceType))
	}
	return nil
}

// Matches reports whether r falls inside the scope.
func (s Scope) Matches(r *EmbeddingRecord) bool {
	if r.OwnerID != s.OwnerID {
		return false
	}
	if s.SourceType != "" && r.SourceType != s.SourceType {
		return false
	}
	if s.SourceID != "" && r.SourceID != s.SourceID {
		return false
	}
	return true
}

// TextChunk is a bounded segment of source text produced during ingestion. Never persisted on its own.
type TextChunk struct {
	Content       string `json:"content"`
	Index         int    `json:"index"`
	StartIndex    int    `json:"start_index"`
	EndIndex      int    `json:"end_index"`
	TokenEstimate int    `json:"token_estimate"`
}

// EstimateTokens approximates token usage as one token per four characters.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	return (n + 3) / 4
}
