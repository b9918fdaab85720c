// Package keyword extracts significant query terms and counts lexical matches.
package keyword

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// MinTermLength is the shortest token kept as a query term.
const MinTermLength = 3

var (
	stopWordsOnce sync.Once
	stopWords     analysis.TokenMap

	tokenizer  = unicode.NewUnicodeTokenizer()
	lowercaser = lowercase.NewLowerCaseFilter()
)

// StopWords returns the combined English, Italian, French, German and Spanish stop-word set.
func StopWords() analysis.TokenMap {
	stopWordsOnce.Do(func() {
		stopWords = analysis.NewTokenMap()
		for _, list := range [][]byte{
			en.EnglishStopWords,
			it.ItalianStopWords,
			fr.FrenchStopWords,
			de.GermanStopWords,
			es.SpanishStopWords,
		} {
			// the lists are compiled into bleve and always parse
			_ = stopWords.LoadBytes(list)
		}
	})
	return stopWords
}

// IsStopWord reports whether the lower-cased token is a stop word in any supported language.
func IsStopWord(token string) bool {
	return StopWords()[strings.ToLower(token)]
}

// Tokenize splits text into lower-cased word tokens.
func Tokenize(text string) []string {
	stream := lowercaser.Filter(tokenizer.Tokenize([]byte(text)))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

// ExtractTerms returns the significant terms of query: lower-cased, without stop words
// and tokens of two characters or fewer, deduplicated in first-seen order.
func ExtractTerms(query string) []string {
	stop := StopWords()
	seen := make(map[string]bool)
	var terms []string
	for _, tok := range Tokenize(query) {
		if utf8.RuneCountInString(tok) < MinTermLength || stop[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}
