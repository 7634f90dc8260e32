// Package tokenize turns message text into tagged tokens for the word index.
package tokenize

import (
	"iter"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tag classifies a token.
type Tag string

const (
	TagWord        Tag = "word"
	TagNumber      Tag = "number"
	TagPunctuation Tag = "punctuation"
	TagSymbol      Tag = "symbol"
)

// Token is one tagged piece of text.
type Token struct {
	Value string
	Tag   Tag
}

// Tokenizer produces a lazy sequence of tagged tokens for a string.
type Tokenizer interface {
	Tokenize(text string) iter.Seq[Token]
}

// Fold normalizes a word for index lookups: NFKC, trimmed, lower case.
func Fold(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

// DistinctWords returns the folded word-tagged tokens of text, each once,
// in order of first appearance.
func DistinctWords(t Tokenizer, text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for tok := range t.Tokenize(text) {
		if tok.Tag != TagWord {
			continue
		}
		w := Fold(tok.Value)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
