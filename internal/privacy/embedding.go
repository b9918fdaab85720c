package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/embedding"
)

// Options controls privacy-aware embedding.
type Options struct {
	// ForceAnonymization anonymizes even when no detector trips.
	ForceAnonymization bool
	// StoreContentHash attaches a one-way hash of the original text.
	StoreContentHash bool
}

// PrivacyAwareResult is an embedding result plus what the gate did to the input.
// Content is the text that was actually sent to the provider.
type PrivacyAwareResult struct {
	*embedding.Result
	Content       string     `json:"content"`
	WasAnonymized bool       `json:"was_anonymized"`
	PIIRemoved    []Category `json:"pii_removed"`
	ContentHash   string     `json:"content_hash,omitempty"`
}

// Embedder wraps an embedding.Embedder so that no raw PII reaches the provider.
type Embedder struct {
	embedder   embedding.Embedder
	anonymizer *Anonymizer
	logger     *zap.Logger
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EmbedderOption {
	return func(e *Embedder) {
		e.logger = l
	}
}

// NewEmbedder creates a privacy-aware embedder.
func NewEmbedder(e embedding.Embedder, a *Anonymizer, opts ...EmbedderOption) *Embedder {
	if a == nil {
		a = NewAnonymizer()
	}
	pe := &Embedder{embedder: e, anonymizer: a, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(pe)
	}
	return pe
}

// Anonymizer returns the anonymizer used by the embedder.
func (e *Embedder) Anonymizer() *Anonymizer { return e.anonymizer }

// Model returns the underlying embedding model.
func (e *Embedder) Model() string { return e.embedder.Model() }

// Dimensions returns the underlying vector size.
func (e *Embedder) Dimensions() int { return e.embedder.Dimensions() }

func (e *Embedder) sanitize(text string, opts Options) (string, Result, bool) {
	res := e.anonymizer.Anonymize(text)
	if res.TotalReplacements > 0 || opts.ForceAnonymization {
		return res.Content, res, true
	}
	return text, res, false
}

// Embed anonymizes text when PII is detected (or when forced) and embeds the result.
// Provider errors propagate.
func (e *Embedder) Embed(ctx context.Context, text string, opts Options) (*PrivacyAwareResult, error) {
	content, res, anonymized := e.sanitize(text, opts)
	out, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	if anonymized {
		e.logger.Debug("anonymized text before embedding",
			zap.Any("pii_types", res.PIITypesFound),
			zap.Int("replacements", res.TotalReplacements))
	}
	return e.wrap(out, text, content, res, anonymized, opts), nil
}

// EmbedBatch anonymizes each text and embeds them in a single provider call.
// Blank texts are skipped; each result's Index refers to its position in texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, opts Options) ([]*PrivacyAwareResult, error) {
	contents := make([]string, len(texts))
	results := make([]Result, len(texts))
	anonymized := make([]bool, len(texts))
	for i, t := range texts {
		contents[i], results[i], anonymized[i] = e.sanitize(t, opts)
	}
	embedded, err := e.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, err
	}
	out := make([]*PrivacyAwareResult, 0, len(embedded))
	for _, r := range embedded {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", r.Index)
		}
		i := r.Index
		out = append(out, e.wrap(r, texts[i], contents[i], results[i], anonymized[i], opts))
	}
	return out, nil
}

func (e *Embedder) wrap(r *embedding.Result, original, content string, res Result, anonymized bool, opts Options) *PrivacyAwareResult {
	out := &PrivacyAwareResult{
		Result:        r,
		Content:       content,
		WasAnonymized: anonymized,
		PIIRemoved:    res.PIITypesFound,
	}
	if opts.StoreContentHash {
		out.ContentHash = ContentHash(original)
	}
	return out
}

// ContentHash returns a one-way debug hash of text in the form h_<hex>.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "h_" + hex.EncodeToString(sum[:8])
}
