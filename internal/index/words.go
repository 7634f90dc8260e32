package index

import (
	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/tinytelemetry/logdex/internal/model"
	"github.com/tinytelemetry/logdex/internal/tokenize"
)

// WordIndex maps a case-folded word to the set of record indices whose
// message contains it. Sets are roaring bitmaps, so iteration is ascending;
// record indices are assigned in increasing order, which makes ascending
// order the insertion order.
type WordIndex struct {
	tokenizer tokenize.Tokenizer
	postings  map[string]*roaring64.Bitmap
}

// NewWordIndex creates an empty index that tokenizes messages with t.
func NewWordIndex(t tokenize.Tokenizer) *WordIndex {
	if t == nil {
		t = tokenize.NewSegmenter()
	}
	return &WordIndex{
		tokenizer: t,
		postings:  make(map[string]*roaring64.Bitmap),
	}
}

// Words returns the distinct folded words of message that IndexMessage would add.
func (wi *WordIndex) Words(message string) []string {
	return tokenize.DistinctWords(wi.tokenizer, message)
}

// IndexMessage tokenizes message and adds idx under each distinct word.
// It returns the words added.
func (wi *WordIndex) IndexMessage(idx uint64, message string) []string {
	words := wi.Words(message)
	wi.Add(idx, words)
	return words
}

// Add records idx under each of the already folded words. Adding the same
// (word, idx) pair twice has no effect.
func (wi *WordIndex) Add(idx uint64, words []string) {
	for _, w := range words {
		bm, ok := wi.postings[w]
		if !ok {
			bm = roaring64.NewBitmap()
			wi.postings[w] = bm
		}
		bm.Add(idx)
	}
}

// Search returns the indices for word in ascending order. The query is
// trimmed and folded first; an empty query is an error, an unknown word is not.
func (wi *WordIndex) Search(word string) ([]uint64, error) {
	w := tokenize.Fold(word)
	if w == "" {
		return nil, model.ErrEmptyQuery
	}
	bm, ok := wi.postings[w]
	if !ok {
		return []uint64{}, nil
	}
	return bm.ToArray(), nil
}

// Len returns the number of distinct words.
func (wi *WordIndex) Len() int { return len(wi.postings) }

// Snapshot copies the index as word -> ascending indices.
func (wi *WordIndex) Snapshot() map[string][]uint64 {
	out := make(map[string][]uint64, len(wi.postings))
	for w, bm := range wi.postings {
		out[w] = bm.ToArray()
	}
	return out
}

// Reset drops every posting.
func (wi *WordIndex) Reset() {
	wi.postings = make(map[string]*roaring64.Bitmap)
}
