package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/ranking"
)

// writeConfig writes a config using the offline embedder and a SQLite store in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`store:
  dsn: sqlite://%s
embedding:
  provider: mock
  dimensions: 32
indexing:
  workers: 2
`, filepath.Join(dir, "kioku.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"newton"}, "newton"},
		{"multiple words", []string{"orbital", "mechanics"}, "orbital mechanics"},
		{"single quoted phrase", []string{"orbital mechanics"}, "orbital mechanics"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildSearchQuery(tt.args))
		})
	}
}

func TestReadText(t *testing.T) {
	got, err := readText(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readText(strings.NewReader("from stdin"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readText(strings.NewReader("ignored"), []string{"two", "words"})
	require.NoError(t, err)
	assert.Equal(t, "two words", got)
}

func TestParseOptionalSourceType(t *testing.T) {
	st, err := parseOptionalSourceType("")
	require.NoError(t, err)
	assert.Empty(t, st)

	st, err = parseOptionalSourceType("flashcard")
	require.NoError(t, err)
	assert.Equal(t, models.SourceFlashcard, st)

	_, err = parseOptionalSourceType("video")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func rankingDefaults() ranking.Options {
	return ranking.Options{IdealLength: 500}
}

func TestSearchFlags_RerankOptions(t *testing.T) {
	f := &searchFlags{}
	assert.Nil(t, f.rerankOptions(rankingDefaults(), false))
	require.NotNil(t, f.rerankOptions(rankingDefaults(), true))

	f.rerank = true
	f.topK = 3
	opts := f.rerankOptions(rankingDefaults(), false)
	require.NotNil(t, opts)
	assert.Equal(t, 3, opts.TopK)
	assert.Equal(t, 500, opts.IdealLength)
}

func TestCLI_IndexSearchStatusDelete(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "Newton's laws of motion relate force, mass and acceleration.",
		"--config", cfg, "index", "-", "--owner", "u1", "--source-id", "notes", "--format", "json")
	require.NoError(t, err)
	var res models.IndexResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.ChunksIndexed)
	assert.Len(t, res.EmbeddingIDs, 1)
	assert.Empty(t, res.Failed)

	out, err = execute(t, "", "--config", cfg, "search", "--owner", "u1", "--format", "json", "newton", "motion")
	require.NoError(t, err)
	var resp struct {
		Results []struct {
			SourceID     string  `json:"source_id"`
			KeywordScore float64 `json:"keyword_score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "notes", resp.Results[0].SourceID)
	assert.InDelta(t, 1.0, resp.Results[0].KeywordScore, 1e-9)

	out, err = execute(t, "", "--config", cfg, "search", "--owner", "u1", "--semantic-weight", "0", "--format", "json", "newton")
	require.NoError(t, err)
	var keywordOnly struct {
		Results []struct {
			CombinedScore float64 `json:"combined_score"`
			KeywordScore  float64 `json:"keyword_score"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &keywordOnly))
	require.NotEmpty(t, keywordOnly.Results)
	assert.Equal(t, keywordOnly.Results[0].KeywordScore, keywordOnly.Results[0].CombinedScore)

	out, err = execute(t, "", "--config", cfg, "search", "--owner", "u2", "newton")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 0 results")

	out, err = execute(t, "", "--config", cfg, "status", "--format", "json")
	require.NoError(t, err)
	var status statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, 1, status.Records)
	assert.Equal(t, 32, status.Dimensions)
	assert.Equal(t, "mock", status.Provider)
	assert.True(t, status.Configured)

	out, err = execute(t, "", "--config", cfg, "delete", "--owner", "u1", "--source-id", "notes")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 1 record(s)\n", out)
}

func TestCLI_IndexFile(t *testing.T) {
	cfg := writeConfig(t)
	file := filepath.Join(t.TempDir(), "kepler.md")
	require.NoError(t, os.WriteFile(file, []byte("# Kepler\n\nPlanets move in ellipses."), 0o644))

	out, err := execute(t, "", "--config", cfg, "index", file, "--owner", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 chunk(s)")

	// unchanged files are skipped
	out, err = execute(t, "", "--config", cfg, "index", file, "--owner", "u1")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 0 chunk(s)")

	out, err = execute(t, "", "--config", cfg, "index", filepath.Dir(file), "--owner", "u2")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 1 file(s)")
}

func TestCLI_Summary(t *testing.T) {
	cfg := writeConfig(t)
	out, err := execute(t, "", "--config", cfg, "summary", "conv-1", "We reviewed projectile motion.",
		"--owner", "u1", "--maestro", "galileo", "--topic", "physics")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Summary indexed: "))

	_, err = execute(t, "   ", "--config", cfg, "summary", "conv-1", "--owner", "u1")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCLI_Anonymize(t *testing.T) {
	out, err := execute(t, "", "anonymize", "write to mario.rossi@example.com")
	require.NoError(t, err)
	assert.Equal(t, "write to [EMAIL]\n", out)

	out, err = execute(t, "call +39 333 1234567\n", "anonymize", "--format", "json")
	require.NoError(t, err)
	var res struct {
		Content           string `json:"content"`
		TotalReplacements int    `json:"total_replacements"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Contains(t, res.Content, "[PHONE]")
	assert.Equal(t, 1, res.TotalReplacements)
}

func TestCLI_Errors(t *testing.T) {
	cfg := writeConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"index without owner", []string{"index", "-", "--source-id", "s"}},
		{"stdin without source id", []string{"index", "-", "--owner", "u1"}},
		{"unknown source type", []string{"index", "-", "--owner", "u1", "--source-id", "s", "--type", "video"}},
		{"unknown search mode", []string{"search", "--owner", "u1", "--mode", "fuzzy", "newton"}},
		{"unknown format", []string{"status", "--format", "yaml"}},
		{"missing file", []string{"index", "/does/not/exist.md", "--owner", "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "content", append([]string{"--config", cfg}, tt.args...)...)
			assert.Error(t, err)
		})
	}
}
