package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"english stop words", "What is the theorem of Pythagoras", []string{"theorem", "pythagoras"}},
		{"italian stop words", "il teorema di Pitagora per i triangoli", []string{"teorema", "pitagora", "triangoli"}},
		{"french", "la révolution française et les droits", []string{"révolution", "française", "droits"}},
		{"short tokens dropped", "an ox is in DNA ab", []string{"dna"}},
		{"deduplicated", "Rome rome ROME empire", []string{"rome", "empire"}},
		{"punctuation", "photosynthesis, chlorophyll; light!", []string{"photosynthesis", "chlorophyll", "light"}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTerms(tt.query))
		})
	}
}

func TestIsStopWord(t *testing.T) {
	for _, w := range []string{"the", "della", "les", "und", "los", "THE"} {
		assert.True(t, IsStopWord(w), w)
	}
	for _, w := range []string{"theorem", "teorema"} {
		assert.False(t, IsStopWord(w), w)
	}
}

func TestCountMatches(t *testing.T) {
	content := "The Pythagorean theorem relates the sides of a right triangle."
	assert.Equal(t, 2, CountMatches(content, []string{"theorem", "triangle"}))
	// substring semantics: "pythagora" is inside "Pythagorean"
	assert.Equal(t, 1, CountMatches(content, []string{"pythagora"}))
	assert.Zero(t, CountMatches(content, nil))
	assert.Zero(t, CountMatches("", []string{"x"}))
}

func TestNormalizeCounts(t *testing.T) {
	got := NormalizeCounts(map[string]int{"a": 4, "b": 2, "c": 0})
	assert.InDelta(t, 1.0, got["a"], 1e-9)
	assert.InDelta(t, 0.5, got["b"], 1e-9)
	assert.Zero(t, got["c"])

	zeros := NormalizeCounts(map[string]int{"a": 0})
	assert.Zero(t, zeros["a"])
	assert.Empty(t, NormalizeCounts(nil))
}
