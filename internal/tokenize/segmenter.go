package tokenize

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/unicode/norm"
)

// Segmenter splits text on Unicode (UAX #29) word boundaries and then breaks
// each segment into runs of letters, digits, punctuation and symbols. A
// segment such as "abc123" yields the word "abc" and the number "123";
// whitespace is dropped.
type Segmenter struct{}

// NewSegmenter returns the default Tokenizer.
func NewSegmenter() *Segmenter { return &Segmenter{} }

// Tokenize implements Tokenizer.
func (s *Segmenter) Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		segments := words.FromString(norm.NFKC.String(text))
		for segments.Next() {
			for _, tok := range splitSegment(segments.Value()) {
				if !yield(tok) {
					return
				}
			}
		}
	}
}

type runeClass int

const (
	classSpace runeClass = iota
	classLetter
	classDigit
	classPunct
	classSymbol
)

func classify(r rune) runeClass {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case unicode.IsLetter(r), unicode.IsMark(r):
		return classLetter
	case unicode.IsDigit(r), unicode.IsNumber(r):
		return classDigit
	case unicode.IsPunct(r):
		return classPunct
	}
	return classSymbol
}

func (c runeClass) tag() Tag {
	switch c {
	case classLetter:
		return TagWord
	case classDigit:
		return TagNumber
	case classPunct:
		return TagPunctuation
	}
	return TagSymbol
}

// isMidLetter reports apostrophes that stay inside a word when letters
// surround them (don't, o’clock).
func isMidLetter(r rune) bool {
	return r == '\'' || r == '’'
}

func splitSegment(seg string) []Token {
	var out []Token
	start := 0
	cur := classSpace
	first := true

	flush := func(end int) {
		if end > start && cur != classSpace {
			out = append(out, Token{Value: seg[start:end], Tag: cur.tag()})
		}
	}

	for i, r := range seg {
		c := classify(r)
		if cur == classLetter && c == classPunct && isMidLetter(r) {
			next, _ := utf8.DecodeRuneInString(seg[i+utf8.RuneLen(r):])
			if next != utf8.RuneError && classify(next) == classLetter {
				continue
			}
		}
		if first {
			cur = c
			first = false
			continue
		}
		// punctuation and symbols are emitted one rune at a time
		if c != cur || c == classPunct || c == classSymbol {
			flush(i)
			start = i
			cur = c
		}
	}
	if !first {
		flush(len(seg))
	}
	return out
}
