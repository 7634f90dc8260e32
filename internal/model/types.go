package model

import (
	"encoding/json"
	"strings"
)

// Level is the severity of a log record. Only four levels are recognized.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// BucketMessage is the synthetic filter bucket that holds every record index.
const BucketMessage = "message"

// Buckets lists every filter bucket name, levels first, then the "message" bucket.
var Buckets = []string{
	string(LevelError),
	string(LevelWarn),
	string(LevelInfo),
	string(LevelDebug),
	BucketMessage,
}

// ParseLevel matches s against the recognized levels, ignoring case and
// surrounding whitespace.
func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelError:
		return LevelError, true
	case LevelWarn:
		return LevelWarn, true
	case LevelInfo:
		return LevelInfo, true
	case LevelDebug:
		return LevelDebug, true
	}
	return "", false
}

// IsBucket reports whether name is one of the five filter buckets.
func IsBucket(name string) bool {
	for _, b := range Buckets {
		if b == name {
			return true
		}
	}
	return false
}

// LogRecord is one ingested log line. Records are immutable once stored.
type LogRecord struct {
	Level      Level           `json:"level"`
	Message    string          `json:"message"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"` // caller supplied, not validated
	TraceID    string          `json:"traceId,omitempty"`
	SpanID     string          `json:"spanId,omitempty"`
	Commit     string          `json:"commit,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the fields that drive index maintenance.
func (r *LogRecord) Validate() error {
	if _, ok := ParseLevel(string(r.Level)); !ok {
		if r.Level == "" {
			return &ValidationError{Field: "level", Reason: "is required"}
		}
		return &ValidationError{Field: "level", Reason: "must be one of error, warn, info, debug"}
	}
	if strings.TrimSpace(r.Message) == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if len(r.Metadata) > 0 && !json.Valid(r.Metadata) {
		return &ValidationError{Field: "metadata", Reason: "is not well-formed JSON"}
	}
	return nil
}

// IndexedRecord pairs a record with the index assigned at ingest.
type IndexedRecord struct {
	Index  uint64    `json:"index"`
	Record LogRecord `json:"record"`
}

// Entry is the unit a backend persists for one ingest: the record plus the
// index entries derived from it. Level bucket membership follows from
// Record.Level; Words is the distinct, case-folded word list.
type Entry struct {
	Index  uint64    `json:"index"`
	Record LogRecord `json:"record"`
	Words  []string  `json:"words"`
}

// Stats summarizes store contents.
type Stats struct {
	Records  int            `json:"records"`
	LastIdx  uint64         `json:"last_index"`
	Buckets  map[string]int `json:"buckets"`
	Words    int            `json:"distinct_words"`
	Backend  string         `json:"backend"`
	Persists bool           `json:"persist_across_restarts"`
}

// RebuildStats reports the outcome of an index rebuild.
type RebuildStats struct {
	Records int `json:"records"`
	Words   int `json:"distinct_words"`
}
