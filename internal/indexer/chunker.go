// Package indexer provides text chunking and the ingestion side of retrieval:
// material indexing, conversation summary upserts, and file ingestion.
package indexer

import (
	"unicode"

	"github.com/hyperjump/kioku/internal/models"
)

const (
	DefaultMaxChunkSize = 500
	DefaultChunkOverlap = 50
)

// ChunkOptions controls segmentation. Sizes are in characters.
type ChunkOptions struct {
	MaxChunkSize      int
	Overlap           int
	RespectParagraphs bool
}

// DefaultChunkOptions returns 500-character chunks with a 50-character overlap, paragraph aware.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkSize:      DefaultMaxChunkSize,
		Overlap:           DefaultChunkOverlap,
		RespectParagraphs: true,
	}
}

// Chunker splits text into overlapping chunks that respect paragraph and sentence boundaries.
type Chunker struct {
	maxChunkSize      int
	overlap           int
	respectParagraphs bool
}

// NewChunker creates a chunker. Non-positive sizes fall back to defaults; overlap is capped at half the chunk size.
func NewChunker(opts ChunkOptions) *Chunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.Overlap > opts.MaxChunkSize/2 {
		opts.Overlap = opts.MaxChunkSize / 2
	}
	return &Chunker{
		maxChunkSize:      opts.MaxChunkSize,
		overlap:           opts.Overlap,
		respectParagraphs: opts.RespectParagraphs,
	}
}

// Chunk splits text with the given options.
func Chunk(text string, opts ChunkOptions) []models.TextChunk {
	return NewChunker(opts).Chunk(text)
}

// Chunk splits text into ordered chunks. Each chunk's content is the exact source
// substring between StartIndex and EndIndex (rune offsets).
func (c *Chunker) Chunk(text string) []models.TextChunk {
	src := []rune(text)
	whole := trimSpan(src, 0, len(src))
	if whole.len() == 0 {
		return nil
	}
	if whole.len() <= c.maxChunkSize {
		return []models.TextChunk{newChunk(src, whole, 0)}
	}

	var segments []span
	if c.respectParagraphs {
		segments = splitParagraphs(src)
	}
	if len(segments) <= 1 {
		segments = splitSentences(src, whole.start, whole.end)
	}

	limit := c.coreLimit()
	cores := pack(segments, limit, func(seg span) []span {
		return pack(wordSpans(src, seg), limit, func(word span) []span {
			return splitFixed(word, limit)
		})
	})

	chunks := make([]models.TextChunk, 0, len(cores))
	var prev span
	for i, core := range cores {
		s := core
		if i > 0 {
			s.start = c.overlapStart(src, prev, core)
		}
		chunks = append(chunks, newChunk(src, s, i))
		prev = s
	}
	return chunks
}

// coreLimit is the room left for new text once the overlap is reserved. It never
// shrinks as maxChunkSize grows, so a larger size never yields more chunks.
func (c *Chunker) coreLimit() int {
	return c.maxChunkSize - c.overlap
}

// pack groups consecutive atoms greedily while a group's extent stays within limit.
// Atoms longer than limit close the current group and are replaced by split(atom).
func pack(atoms []span, limit int, split func(span) []span) []span {
	var (
		out []span
		cur span
		has bool
	)
	for _, a := range atoms {
		if a.len() > limit {
			if has {
				out = append(out, cur)
				has = false
			}
			out = append(out, split(a)...)
			continue
		}
		if has && a.end-cur.start <= limit {
			cur.end = a.end
			continue
		}
		if has {
			out = append(out, cur)
		}
		cur, has = a, true
	}
	if has {
		out = append(out, cur)
	}
	return out
}

// wordSpans returns the whitespace-separated words of seg.
func wordSpans(src []rune, seg span) []span {
	var words []span
	start := -1
	for i := seg.start; i < seg.end; i++ {
		if unicode.IsSpace(src[i]) {
			if start >= 0 {
				words = append(words, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, span{start, seg.end})
	}
	return words
}

// splitFixed cuts s into windows of limit characters.
func splitFixed(s span, limit int) []span {
	var pieces []span
	for pos := s.start; pos < s.end; pos += limit {
		end := pos + limit
		if end > s.end {
			end = s.end
		}
		pieces = append(pieces, span{pos, end})
	}
	return pieces
}

// overlapStart returns where the chunk for core begins once the tail of prev is
// carried over. Trailing whole sentences are preferred, then the raw last overlap
// characters; a tail is only used when the chunk stays within maxChunkSize.
func (c *Chunker) overlapStart(src []rune, prev, core span) int {
	if c.overlap == 0 {
		return core.start
	}
	for _, tail := range []int{c.sentenceTail(src, prev), c.rawTail(src, prev)} {
		if tail >= 0 && tail < prev.end && core.end-tail <= c.maxChunkSize {
			return tail
		}
	}
	return core.start
}

// sentenceTail looks in the last overlap*2 characters of s for trailing sentences
// that fit in overlap*1.5 and returns where they start, or -1.
func (c *Chunker) sentenceTail(src []rune, s span) int {
	windowStart := s.end - c.overlap*2
	if windowStart < s.start {
		windowStart = s.start
	}
	maxTail := c.overlap * 3 / 2
	for p := windowStart + 1; p < s.end; p++ {
		if !unicode.IsSpace(src[p]) || !isSentenceEnd(src[:s.end], s.start, p-1) {
			continue
		}
		q := p
		for q < s.end && unicode.IsSpace(src[q]) {
			q++
		}
		if q < s.end && s.end-q <= maxTail {
			return q
		}
	}
	return -1
}

// rawTail returns the start of the last overlap characters of s, skipping leading blanks.
func (c *Chunker) rawTail(src []rune, s span) int {
	tail := s.end - c.overlap
	if tail < s.start {
		tail = s.start
	}
	for tail < s.end && unicode.IsSpace(src[tail]) {
		tail++
	}
	return tail
}

func newChunk(src []rune, s span, index int) models.TextChunk {
	content := string(src[s.start:s.end])
	return models.TextChunk{
		Content:       content,
		Index:         index,
		StartIndex:    s.start,
		EndIndex:      s.end,
		TokenEstimate: models.EstimateTokens(content),
	}
}
