package duckdb

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tinytelemetry/logdex/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func commitTestEntries(t *testing.T, store *Store, entries ...model.Entry) {
	t.Helper()
	for _, e := range entries {
		if err := store.Commit(e); err != nil {
			t.Fatalf("Commit(%d): %v", e.Index, err)
		}
	}
}

func loadAll(t *testing.T, store *Store) []model.Entry {
	t.Helper()
	var out []model.Entry
	if err := store.Load(func(e model.Entry) error {
		out = append(out, e)
		return nil
	}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return out
}

func TestCommitLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	first := model.Entry{
		Index: 1,
		Record: model.LogRecord{
			Level:      model.LevelError,
			Message:    "server-500 crashed",
			ResourceID: "server-1234",
			Timestamp:  "2023-09-15T08:00:00Z",
			TraceID:    "abc-xyz-123",
			SpanID:     "span-456",
			Commit:     "5e5342f",
			Metadata:   json.RawMessage(`{"parentResourceId":"server-0987"}`),
		},
		Words: []string{"server", "crashed"},
	}
	second := model.Entry{
		Index:  2,
		Record: model.LogRecord{Level: model.LevelInfo, Message: "42"},
		Words:  []string{},
	}
	commitTestEntries(t, store, first, second)

	got := loadAll(t, store)
	if len(got) != 2 {
		t.Fatalf("Load returned %d entries, want 2", len(got))
	}
	if !reflect.DeepEqual(got[0], first) {
		t.Errorf("entry 1 = %+v, want %+v", got[0], first)
	}
	if got[1].Index != 2 || got[1].Record.Message != "42" {
		t.Errorf("entry 2 = %+v", got[1])
	}
	if got[1].Words == nil || len(got[1].Words) != 0 {
		t.Errorf("entry 2 words = %#v, want empty non-nil", got[1].Words)
	}
	if got[1].Record.Metadata != nil {
		t.Errorf("entry 2 metadata = %s, want nil", got[1].Record.Metadata)
	}
}

func TestCommitDuplicateIndexIsRolledBack(t *testing.T) {
	store := newTestStore(t)

	e := model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelWarn, Message: "disk high"}, Words: []string{"disk", "high"}}
	commitTestEntries(t, store, e)

	dup := model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelInfo, Message: "other"}, Words: []string{"other"}}
	if err := store.Commit(dup); err == nil {
		t.Fatal("expected duplicate index commit to fail")
	}

	var words int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM word_index WHERE word = 'other'`).Scan(&words); err != nil {
		t.Fatalf("count words: %v", err)
	}
	if words != 0 {
		t.Errorf("failed commit left %d word rows behind", words)
	}
	var buckets int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM level_index`).Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != 2 {
		t.Errorf("level_index rows = %d, want 2", buckets)
	}
}

func TestCommitWritesLevelBuckets(t *testing.T) {
	store := newTestStore(t)
	commitTestEntries(t, store,
		model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelError, Message: "a"}, Words: []string{"a"}},
		model.Entry{Index: 2, Record: model.LogRecord{Level: model.LevelDebug, Message: "b"}, Words: []string{"b"}},
	)

	rows, err := store.DB().Query(`SELECT bucket, idx FROM level_index ORDER BY bucket, idx`)
	if err != nil {
		t.Fatalf("query level_index: %v", err)
	}
	defer rows.Close()

	var got []string
	for rows.Next() {
		var bucket string
		var idx uint64
		if err := rows.Scan(&bucket, &idx); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, fmt.Sprintf("%s:%d", bucket, idx))
	}
	want := []string{"debug:2", "error:1", "message:1", "message:2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("level_index = %v, want %v", got, want)
	}
}

func TestReindexReplacesIndexTables(t *testing.T) {
	store := newTestStore(t)
	commitTestEntries(t, store,
		model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelInfo, Message: "cache warmed"}, Words: []string{"stale"}},
	)

	err := store.Reindex([]model.Entry{
		{Index: 1, Record: model.LogRecord{Level: model.LevelInfo, Message: "cache warmed"}, Words: []string{"cache", "warmed"}},
	})
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	got := loadAll(t, store)
	if len(got) != 1 {
		t.Fatalf("Load returned %d entries, want 1", len(got))
	}
	if want := []string{"cache", "warmed"}; !reflect.DeepEqual(got[0].Words, want) {
		t.Fatalf("words after reindex = %v, want %v", got[0].Words, want)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t)
	commitTestEntries(t, store,
		model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelInfo, Message: "hello"}, Words: []string{"hello"}},
	)

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := loadAll(t, store); len(got) != 0 {
		t.Fatalf("Load after Reset returned %d entries", len(got))
	}
	commitTestEntries(t, store,
		model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelInfo, Message: "again"}, Words: []string{"again"}},
	)
}

func TestReopenOnDisk(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "logdex.duckdb")

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	commitTestEntries(t, store,
		model.Entry{Index: 1, Record: model.LogRecord{Level: model.LevelWarn, Message: "retry budget low"}, Words: []string{"retry", "budget", "low"}},
	)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.DBPath() != dbPath {
		t.Errorf("DBPath = %q, want %q", reopened.DBPath(), dbPath)
	}
	got := loadAll(t, reopened)
	if len(got) != 1 || got[0].Record.Message != "retry budget low" {
		t.Fatalf("Load after reopen = %+v", got)
	}
}
