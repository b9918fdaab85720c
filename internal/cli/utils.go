// Package cli renders retrieval and indexing results for the kioku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewLength = 200

// ParseOutputFormat accepts "text", "json" or an empty string (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(OutputText):
		return OutputText, nil
	case string(OutputJSON):
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes a hybrid search response in the given format.
func WriteSearchResults(w io.Writer, resp *search.Response, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	mode := "hybrid"
	if resp.Reranked {
		mode = "reranked"
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (%s)\n\n", resp.Total, resp.QueryTime, mode)
	for i, hit := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d Score: %.4f (Semantic: %.4f, Keyword: %.4f)",
			i+1, hit.CombinedScore, hit.SemanticScore, hit.KeywordScore)
		if hit.RerankedScore != nil {
			fmt.Fprintf(w, " Reranked: %.4f", *hit.RerankedScore)
		}
		fmt.Fprintln(w)
		writeRecord(w, hit.RecordView)
	}
	return nil
}

// WriteSimilarResults writes semantic-only results in the given format.
func WriteSimilarResults(w io.Writer, results []models.VectorSearchResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]any{"results": results})
	}
	fmt.Fprintf(w, "\nFound %d results\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d Similarity: %.4f\n", i+1, r.Similarity)
		writeRecord(w, r.RecordView)
	}
	return nil
}

func writeRecord(w io.Writer, r models.RecordView) {
	fmt.Fprintf(w, "Source: %s/%s (chunk %d)\n", r.SourceType, r.SourceID, r.ChunkIndex)
	if r.Subject != "" {
		fmt.Fprintf(w, "Subject: %s\n", r.Subject)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(utils.SingleLine(r.Content), previewLength))
}

// WriteIndexResult writes the outcome of an indexing call. Failed chunks are listed.
func WriteIndexResult(w io.Writer, res *models.IndexResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %d chunk(s), %d token(s)\n", res.ChunksIndexed, res.TotalTokens)
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  chunk %d failed: %s\n", f.ChunkIndex, f.Error)
	}
	return nil
}
