// Package extract turns study material files into plain text for indexing.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupported is returned for extensions no extractor handles.
var ErrUnsupported = fmt.Errorf("unsupported file format")

type extractFunc func(content []byte) (string, error)

// Extractor extracts text from material files by extension.
type Extractor struct {
	formats map[string]extractFunc
}

// NewExtractor returns an extractor for plain text, Markdown, PDF, OOXML
// (docx, pptx, xlsx) and OpenDocument (odt, odp, ods) files.
func NewExtractor() *Extractor {
	return &Extractor{formats: map[string]extractFunc{
		".txt":  extractPlain,
		".md":   extractPlain,
		".rst":  extractPlain,
		".pdf":  extractPDF,
		".docx": wordprocessing.extract,
		".pptx": presentation.extract,
		".xlsx": extractSpreadsheet,
		".odt":  openDocument.extract,
		".odp":  openDocument.extract,
		".ods":  openDocument.extract,
	}}
}

// Supports reports whether ext (with or without the leading dot) can be extracted.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.formats[normalizeExt(ext)]
	return ok
}

// Extensions lists the supported extensions, sorted.
func (e *Extractor) Extensions() []string {
	out := make([]string, 0, len(e.formats))
	for ext := range e.formats {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract reads path and returns its text with whitespace normalized.
func (e *Extractor) Extract(path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content in the format named by ext.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	fn, ok := e.formats[normalizeExt(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	text, err := fn(content)
	if err != nil {
		return "", err
	}
	return normalizeWhitespace(text), nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// normalizeWhitespace collapses runs of blanks inside lines and runs of blank lines
// to a single empty line, so paragraph breaks survive for the chunker.
func normalizeWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
