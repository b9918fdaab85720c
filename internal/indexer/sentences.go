package indexer

import (
	"strings"
	"unicode"
)

// abbreviations are tokens whose trailing period never ends a sentence.
// Covers English, Italian, French, German and Spanish honorifics and
// common bibliographic shorthands.
var abbreviations = map[string]struct{}{
	"dr": {}, "prof": {}, "mr": {}, "mrs": {}, "ms": {}, "st": {}, "jr": {}, "sr": {},
	"sig": {}, "sigg": {}, "sigra": {}, "dott": {}, "dottssa": {}, "ing": {}, "avv": {}, "geom": {}, "arch": {},
	"mme": {}, "mlle": {}, "mm": {}, "hr": {}, "fr": {}, "frau": {}, "sra": {}, "srta": {}, "dra": {}, "dna": {},
	"etc": {}, "ecc": {}, "es": {}, "ex": {}, "vs": {}, "cf": {}, "cfr": {}, "ca": {}, "approx": {},
	"pag": {}, "pagg": {}, "pp": {}, "no": {}, "nr": {}, "vol": {}, "cap": {}, "fig": {}, "ed": {}, "eds": {},
	"art": {}, "al": {}, "bzw": {}, "usw": {}, "vgl": {}, "ggf": {}, "inkl": {}, "z.b": {}, "u.a": {},
	"e.g": {}, "i.e": {}, "a.c": {}, "d.c": {}, "ad": {},
}

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isSentenceEnd reports whether the terminator at src[i] closes a sentence.
// Periods after known abbreviations or single-letter initials, and periods
// between digits, do not.
func isSentenceEnd(src []rune, lo, i int) bool {
	if !isTerminator(src[i]) {
		return false
	}
	j := i + 1
	for j < len(src) && isTerminator(src[j]) {
		j++
	}
	if j < len(src) && !unicode.IsSpace(src[j]) {
		return false
	}
	if src[i] != '.' || j != i+1 {
		return true
	}
	if i > lo && unicode.IsDigit(src[i-1]) && j < len(src) && unicode.IsDigit(src[j]) {
		return false
	}
	k := i
	for k > lo && (unicode.IsLetter(src[k-1]) || src[k-1] == '.') {
		k--
	}
	token := strings.ToLower(strings.Trim(string(src[k:i]), "."))
	if token == "" {
		return true
	}
	if len([]rune(token)) == 1 && unicode.IsUpper(src[k]) {
		return false
	}
	_, ok := abbreviations[token]
	return !ok
}

// trimSpan shrinks [start,end) past surrounding whitespace.
func trimSpan(src []rune, start, end int) span {
	for start < end && unicode.IsSpace(src[start]) {
		start++
	}
	for end > start && unicode.IsSpace(src[end-1]) {
		end--
	}
	return span{start, end}
}

func appendTrimmed(spans []span, src []rune, start, end int) []span {
	s := trimSpan(src, start, end)
	if s.len() > 0 {
		spans = append(spans, s)
	}
	return spans
}

// splitParagraphs splits on blank lines (a newline, optional horizontal whitespace, newline).
func splitParagraphs(src []rune) []span {
	var spans []span
	start := 0
	for i := 0; i < len(src); i++ {
		if src[i] != '\n' {
			continue
		}
		j := i + 1
		for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\r') {
			j++
		}
		if j >= len(src) || src[j] != '\n' {
			continue
		}
		spans = appendTrimmed(spans, src, start, i)
		for j < len(src) && unicode.IsSpace(src[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	return appendTrimmed(spans, src, start, len(src))
}

// splitSentences splits src[lo:hi) at sentence boundaries.
func splitSentences(src []rune, lo, hi int) []span {
	var spans []span
	start := lo
	for i := lo; i < hi; i++ {
		if !isSentenceEnd(src[:hi], lo, i) {
			continue
		}
		j := i + 1
		for j < hi && isTerminator(src[j]) {
			j++
		}
		spans = appendTrimmed(spans, src, start, j)
		start = j
		i = j - 1
	}
	return appendTrimmed(spans, src, start, hi)
}
