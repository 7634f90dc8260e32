// Package index holds the derived lookup structures maintained alongside the
// record store: the level filter buckets and the inverted word index.
//
// Neither type locks internally; the owning store serializes writers and
// lets readers share access.
package index

import "github.com/tinytelemetry/logdex/internal/model"

// LevelIndex maps each filter bucket to the record indices it contains, in
// ingest order. The "message" bucket holds every index; the four level
// buckets partition them.
type LevelIndex struct {
	buckets map[string][]uint64
}

// NewLevelIndex returns an index with all five buckets present and empty.
func NewLevelIndex() *LevelIndex {
	li := &LevelIndex{}
	li.Reset()
	return li
}

// RecordIngested appends idx to the bucket for level and to the message bucket.
func (li *LevelIndex) RecordIngested(idx uint64, level model.Level) {
	li.buckets[string(level)] = append(li.buckets[string(level)], idx)
	li.buckets[model.BucketMessage] = append(li.buckets[model.BucketMessage], idx)
}

// Lookup returns a copy of the indices in bucket.
func (li *LevelIndex) Lookup(bucket string) ([]uint64, error) {
	ids, ok := li.buckets[bucket]
	if !ok {
		return nil, &model.InvalidFilterError{Bucket: bucket}
	}
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// Len returns the number of indices in bucket, or 0 for an unknown bucket.
func (li *LevelIndex) Len(bucket string) int {
	return len(li.buckets[bucket])
}

// Snapshot copies every bucket.
func (li *LevelIndex) Snapshot() map[string][]uint64 {
	out := make(map[string][]uint64, len(li.buckets))
	for name, ids := range li.buckets {
		cp := make([]uint64, len(ids))
		copy(cp, ids)
		out[name] = cp
	}
	return out
}

// Reset empties all buckets.
func (li *LevelIndex) Reset() {
	li.buckets = make(map[string][]uint64, len(model.Buckets))
	for _, name := range model.Buckets {
		li.buckets[name] = []uint64{}
	}
}
