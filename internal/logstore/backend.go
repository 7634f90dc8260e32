package logstore

import "github.com/tinytelemetry/logdex/internal/model"

// Backend durably persists ingest entries. Commit must make the record and
// its derived index entries durable together before returning.
type Backend interface {
	Name() string
	// Load calls fn for every persisted entry in ascending index order.
	Load(fn func(model.Entry) error) error
	Commit(entry model.Entry) error
	// Reindex replaces the persisted index entries with those in entries.
	Reindex(entries []model.Entry) error
	Reset() error
	Close() error
}

// memoryBackend keeps nothing; state lives only in the Store.
type memoryBackend struct{}

// NewMemoryBackend returns a Backend that persists nothing.
func NewMemoryBackend() Backend { return memoryBackend{} }

func (memoryBackend) Name() string                       { return "memory" }
func (memoryBackend) Load(func(model.Entry) error) error { return nil }
func (memoryBackend) Commit(model.Entry) error           { return nil }
func (memoryBackend) Reindex([]model.Entry) error        { return nil }
func (memoryBackend) Reset() error                       { return nil }
func (memoryBackend) Close() error                       { return nil }
