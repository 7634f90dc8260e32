// Package logstore owns ingested log records and keeps the level and word
// indices consistent with them.
package logstore

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/tinytelemetry/logdex/internal/index"
	"github.com/tinytelemetry/logdex/internal/model"
	"github.com/tinytelemetry/logdex/internal/tokenize"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("logstore: store is closed")

// Options configures Open.
type Options struct {
	Tokenizer tokenize.Tokenizer
	// PersistAcrossRestarts replays the backend instead of resetting it.
	PersistAcrossRestarts bool
}

// Store is the record store plus its derived indices. One RWMutex guards all
// three structures: an ingest holds the write lock from index assignment
// through the backend commit and the in-memory update, so readers never see
// a record without its index entries.
type Store struct {
	mu        sync.RWMutex
	backend   Backend
	tokenizer tokenize.Tokenizer
	persist   bool

	records []model.LogRecord // records[i] has index i+1
	levels  *index.LevelIndex
	words   *index.WordIndex
	closed  bool
}

// Open builds a Store on top of b. Unless opts.PersistAcrossRestarts is set
// the backend is reset first, so every run starts empty.
func Open(b Backend, opts Options) (*Store, error) {
	if b == nil {
		b = NewMemoryBackend()
	}
	tok := opts.Tokenizer
	if tok == nil {
		tok = tokenize.NewSegmenter()
	}
	s := &Store{
		backend:   b,
		tokenizer: tok,
		persist:   opts.PersistAcrossRestarts,
		levels:    index.NewLevelIndex(),
		words:     index.NewWordIndex(tok),
	}

	if !opts.PersistAcrossRestarts {
		if err := b.Reset(); err != nil {
			return nil, &model.PersistenceError{Op: "reset", Err: err}
		}
		log.Printf("logstore: %s backend cleared for new session", b.Name())
		return s, nil
	}

	if err := b.Load(s.replay); err != nil {
		var pe *model.PersistenceError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &model.PersistenceError{Op: "load", Err: err}
	}
	if n := len(s.records); n > 0 {
		log.Printf("logstore: restored %d records from %s backend", n, b.Name())
	}
	return s, nil
}

func (s *Store) replay(e model.Entry) error {
	last := uint64(len(s.records))
	switch {
	case e.Index <= last:
		return &model.PersistenceError{
			Op:  "load",
			Err: fmt.Errorf("duplicate index %d: have %d records", e.Index, last),
		}
	case e.Index != last+1:
		return &model.PersistenceError{
			Op:  "load",
			Err: fmt.Errorf("index gap: have %d, next entry is %d", last, e.Index),
		}
	}
	if err := normalize(&e.Record); err != nil {
		return &model.PersistenceError{Op: "load", Err: fmt.Errorf("entry %d: %w", e.Index, err)}
	}
	if e.Words == nil {
		e.Words = tokenize.DistinctWords(s.tokenizer, e.Record.Message)
	}
	s.apply(e)
	return nil
}

// normalize validates r and rewrites its level into canonical form.
func normalize(r *model.LogRecord) error {
	if level, ok := model.ParseLevel(string(r.Level)); ok {
		r.Level = level
	}
	return r.Validate()
}

func (s *Store) apply(e model.Entry) {
	s.records = append(s.records, e.Record)
	s.levels.RecordIngested(e.Index, e.Record.Level)
	s.words.Add(e.Index, e.Words)
}

// Ingest validates rec, assigns it the next index and persists it together
// with its index entries.
func (s *Store) Ingest(rec model.LogRecord) (uint64, error) {
	if err := normalize(&rec); err != nil {
		return 0, err
	}
	if len(rec.Metadata) > 0 {
		rec.Metadata = append([]byte(nil), rec.Metadata...)
	}
	words := tokenize.DistinctWords(s.tokenizer, rec.Message)
	if words == nil {
		words = []string{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	e := model.Entry{
		Index:  uint64(len(s.records)) + 1,
		Record: rec,
		Words:  words,
	}
	if err := s.backend.Commit(e); err != nil {
		return 0, &model.PersistenceError{Op: "commit", Err: err}
	}
	s.apply(e)
	return e.Index, nil
}

// Get returns the record stored at idx.
func (s *Store) Get(idx uint64) (model.LogRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.lookup(idx)
	return rec, ok, nil
}

func (s *Store) lookup(idx uint64) (model.LogRecord, bool) {
	if idx == 0 || idx > uint64(len(s.records)) {
		return model.LogRecord{}, false
	}
	return s.records[idx-1], true
}

// All returns every record in ascending index order.
func (s *Store) All() []model.IndexedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.all()
}

func (s *Store) all() []model.IndexedRecord {
	out := make([]model.IndexedRecord, len(s.records))
	for i, rec := range s.records {
		out[i] = model.IndexedRecord{Index: uint64(i) + 1, Record: rec}
	}
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset discards all records and both indices, in memory and in the backend.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.backend.Reset(); err != nil {
		return &model.PersistenceError{Op: "reset", Err: err}
	}
	s.records = nil
	s.levels.Reset()
	s.words.Reset()
	return nil
}

// Rebuild recomputes the level and word indices from the stored records,
// persists them and swaps them in. On failure the current indices are kept.
func (s *Store) Rebuild() (model.RebuildStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.RebuildStats{}, ErrClosed
	}

	levels := index.NewLevelIndex()
	words := index.NewWordIndex(s.tokenizer)
	entries := make([]model.Entry, len(s.records))
	for i, rec := range s.records {
		idx := uint64(i) + 1
		levels.RecordIngested(idx, rec.Level)
		added := words.IndexMessage(idx, rec.Message)
		if added == nil {
			added = []string{}
		}
		entries[i] = model.Entry{Index: idx, Record: rec, Words: added}
	}

	if err := s.backend.Reindex(entries); err != nil {
		return model.RebuildStats{}, &model.PersistenceError{Op: "reindex", Err: err}
	}
	s.levels = levels
	s.words = words

	stats := model.RebuildStats{Records: len(entries), Words: words.Len()}
	log.Printf("logstore: rebuilt indices for %d records (%d words)", stats.Records, stats.Words)
	return stats, nil
}

// Close closes the backend. Further writes fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.backend.Close()
}
