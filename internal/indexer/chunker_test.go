package indexer

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ShortText(t *testing.T) {
	chunks := Chunk("This is a short sentence.", ChunkOptions{MaxChunkSize: 500})
	require.Len(t, chunks, 1)
	assert.Equal(t, "This is a short sentence.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunk_TrimsSingleChunk(t *testing.T) {
	chunks := Chunk("   padded text \n", DefaultChunkOptions())
	require.Len(t, chunks, 1)
	assert.Equal(t, "padded text", chunks[0].Content)
	assert.Equal(t, 3, chunks[0].StartIndex)
	assert.Equal(t, 14, chunks[0].EndIndex)
}

func TestChunk_Empty(t *testing.T) {
	for _, in := range []string{"", "   \n\t  "} {
		assert.Empty(t, Chunk(in, DefaultChunkOptions()), "input %q", in)
	}
}

func TestChunk_RepeatedSentences(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	require.Len(t, sentence, 45)
	text := strings.Repeat(sentence, 20)

	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 200, Overlap: 50})
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 250)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestChunk_OverlapCarriesTrailingSentence(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	text := strings.Repeat(sentence, 20)

	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 200, Overlap: 50})
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.True(t, strings.HasPrefix(chunks[i].Content, "The quick"),
			"chunk %d should start at a sentence boundary: %q", i, chunks[i].Content)
		assert.Less(t, chunks[i].StartIndex, chunks[i-1].EndIndex, "chunk %d should overlap its predecessor", i)
	}
}

func TestChunk_Invariants(t *testing.T) {
	text := sampleText()
	n := len([]rune(text))
	for _, size := range []int{80, 150, 300, 600} {
		chunks := Chunk(text, ChunkOptions{MaxChunkSize: size, Overlap: 20, RespectParagraphs: true})
		require.NotEmpty(t, chunks)
		prevStart, prevEnd := 0, 0
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
			assert.NotEmpty(t, strings.TrimSpace(ch.Content))
			assert.GreaterOrEqual(t, ch.StartIndex, prevStart, "size %d chunk %d start", size, i)
			assert.GreaterOrEqual(t, ch.EndIndex, prevEnd, "size %d chunk %d end", size, i)
			assert.LessOrEqual(t, ch.EndIndex, n)
			assert.Equal(t, string([]rune(text)[ch.StartIndex:ch.EndIndex]), ch.Content)
			assert.Positive(t, ch.TokenEstimate)
			prevStart, prevEnd = ch.StartIndex, ch.EndIndex
		}
	}
}

// mixedTexts builds deterministic inputs mixing paragraphs, sentences, abbreviations
// and words longer than the smallest chunk size.
func mixedTexts() []string {
	vocab := []string{"alpha", "beta", "gamma.", "delta!", "Prof. Rossi", "3.14", "why?",
		"longwordlongword", "\n\n", "Photosynthesis", "e.g. leaves", strings.Repeat("x", 130)}
	rng := rand.New(rand.NewSource(7))
	texts := []string{
		"\n\n delta! longwordlongword delta! alpha alpha delta! alpha longwordlongword longwordlongword alpha alpha gamma. gamma. beta ",
		sampleText(),
	}
	for i := 0; i < 40; i++ {
		n := 20 + rng.Intn(120)
		words := make([]string, n)
		for j := range words {
			words[j] = vocab[rng.Intn(len(vocab))]
		}
		texts = append(texts, strings.Join(words, " "))
	}
	return texts
}

func TestChunk_SmallerSizeNeverFewerChunks(t *testing.T) {
	for _, overlap := range []int{0, 10, 50} {
		for i, text := range mixedTexts() {
			prev := 0
			for size := 400; size >= 100; size-- {
				got := len(Chunk(text, ChunkOptions{MaxChunkSize: size, Overlap: overlap, RespectParagraphs: true}))
				require.GreaterOrEqual(t, got, prev, "text %d overlap %d size %d", i, overlap, size)
				prev = got
			}
		}
	}
}

func TestChunk_OneCharacterSmallerKeepsChunks(t *testing.T) {
	text := "\n\n delta! longwordlongword delta! alpha alpha delta! alpha longwordlongword longwordlongword alpha alpha gamma. gamma. beta "
	larger := Chunk(text, ChunkOptions{MaxChunkSize: 101, Overlap: 50, RespectParagraphs: true})
	smaller := Chunk(text, ChunkOptions{MaxChunkSize: 100, Overlap: 50, RespectParagraphs: true})
	assert.GreaterOrEqual(t, len(smaller), len(larger))
}

func TestChunk_SizeSweepInvariants(t *testing.T) {
	for _, text := range mixedTexts() {
		src := []rune(text)
		for size := 400; size >= 100; size -= 7 {
			chunks := Chunk(text, ChunkOptions{MaxChunkSize: size, Overlap: 50, RespectParagraphs: true})
			prevStart, prevEnd := 0, 0
			for i, ch := range chunks {
				require.NotEmpty(t, strings.TrimSpace(ch.Content))
				require.LessOrEqual(t, len([]rune(ch.Content)), size, "size %d chunk %d", size, i)
				require.GreaterOrEqual(t, ch.StartIndex, prevStart)
				require.GreaterOrEqual(t, ch.EndIndex, prevEnd)
				require.LessOrEqual(t, ch.EndIndex, len(src))
				require.Equal(t, string(src[ch.StartIndex:ch.EndIndex]), ch.Content)
				prevStart, prevEnd = ch.StartIndex, ch.EndIndex
			}
		}
	}
}

func TestChunk_OversizedSegmentSnapsToSpace(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 40))
	chunks := Chunk(text, ChunkOptions{MaxChunkSize: 100, Overlap: 10})
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch.Content), 100)
		assert.False(t, strings.HasPrefix(ch.Content, " "))
	}
	// cuts land on word boundaries, so every chunk but the last ends with a whole word
	for _, ch := range chunks[:len(chunks)-1] {
		last := ch.Content[strings.LastIndex(ch.Content, " ")+1:]
		assert.Contains(t, []string{"lorem", "ipsum", "dolor", "sit", "amet"}, last)
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"basic", "One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"abbreviation", "Il Prof. Rossi spiega. Poi esce.", []string{"Il Prof. Rossi spiega.", "Poi esce."}},
		{"honorific", "Dr. Smith arrived. He sat.", []string{"Dr. Smith arrived.", "He sat."}},
		{"decimal", "Pi is 3.14 roughly. Yes.", []string{"Pi is 3.14 roughly.", "Yes."}},
		{"etc", "Apples, pears, etc. are fruit. Good.", []string{"Apples, pears, etc. are fruit.", "Good."}},
		{"ellipsis", "Wait... Go on.", []string{"Wait...", "Go on."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []rune(tt.text)
			spans := splitSentences(src, 0, len(src))
			got := make([]string, len(spans))
			for i, s := range spans {
				got[i] = string(src[s.start:s.end])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitParagraphs(t *testing.T) {
	src := []rune("First para.\n\nSecond para.\n  \n\nThird.")
	spans := splitParagraphs(src)
	require.Len(t, spans, 3)
	assert.Equal(t, "Second para.", string(src[spans[1].start:spans[1].end]))
}

func sampleText() string {
	paragraphs := []string{
		"Il teorema di Pitagora afferma che in un triangolo rettangolo il quadrato costruito sull'ipotenusa è equivalente alla somma dei quadrati costruiti sui cateti. Il Prof. Rossi lo dimostra con le aree.",
		"The Roman Empire was one of the largest empires in history. At its height it covered about 5.0 million square kilometres. Trade routes connected distant provinces, etc. and the roads lasted for centuries.",
		"Photosynthesis converts light energy into chemical energy. Plants absorb carbon dioxide and release oxygen. Chlorophyll gives leaves their green colour!",
		"Die Französische Revolution begann 1789. Sie veränderte Europa grundlegend. Viele Ideen wirken bis heute nach?",
	}
	return strings.Join(paragraphs, "\n\n")
}
