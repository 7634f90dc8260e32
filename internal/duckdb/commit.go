package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/tinytelemetry/logdex/internal/model"
)

const insertLogSQL = `INSERT INTO logs (idx, level, message, resource_id, ts, trace_id, span_id, commit_ref, metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Commit writes the record, its level buckets and its words in a single
// transaction.
func (s *Store) Commit(e model.Entry) error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var meta any
		if len(e.Record.Metadata) > 0 {
			meta = string(e.Record.Metadata)
		}
		r := e.Record
		if _, err := tx.ExecContext(ctx, insertLogSQL,
			e.Index, string(r.Level), r.Message, r.ResourceID, r.Timestamp,
			r.TraceID, r.SpanID, r.Commit, meta,
		); err != nil {
			return fmt.Errorf("record insert: %w", err)
		}
		return insertIndexEntries(ctx, tx, e)
	})
}

func insertIndexEntries(ctx context.Context, tx *sql.Tx, e model.Entry) error {
	for _, bucket := range []string{string(e.Record.Level), model.BucketMessage} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO level_index (bucket, idx) VALUES (?, ?)`, bucket, e.Index,
		); err != nil {
			return fmt.Errorf("level index insert: %w", err)
		}
	}
	if len(e.Words) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO word_index (word, idx, pos) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for pos, w := range e.Words {
		if _, err := stmt.ExecContext(ctx, w, e.Index, pos); err != nil {
			return fmt.Errorf("word index insert %q: %w", w, err)
		}
	}
	return nil
}

// Load streams every record with its words in ascending index order.
func (s *Store) Load(fn func(model.Entry) error) error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.loadWords(ctx)
	if err != nil {
		return err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, level, message, resource_id, ts, trace_id, span_id, commit_ref, metadata FROM logs ORDER BY idx`)
	if err != nil {
		return fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var loaded int
	for rows.Next() {
		var (
			e     model.Entry
			level string
			meta  sql.NullString
		)
		if err := rows.Scan(&e.Index, &level, &e.Record.Message, &e.Record.ResourceID,
			&e.Record.Timestamp, &e.Record.TraceID, &e.Record.SpanID, &e.Record.Commit, &meta); err != nil {
			return fmt.Errorf("scan log row: %w", err)
		}
		e.Record.Level = model.Level(level)
		if meta.Valid {
			e.Record.Metadata = []byte(meta.String)
		}
		e.Words = words[e.Index]
		if e.Words == nil {
			e.Words = []string{}
		}
		if err := fn(e); err != nil {
			return err
		}
		loaded++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var buckets int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM level_index`).Scan(&buckets); err != nil {
		return fmt.Errorf("count level index: %w", err)
	}
	if buckets != 2*loaded {
		log.Printf("duckdb: level index holds %d entries for %d records; run a reindex to repair", buckets, loaded)
	}
	return nil
}

func (s *Store) loadWords(ctx context.Context) (map[uint64][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT idx, word FROM word_index ORDER BY idx, pos`)
	if err != nil {
		return nil, fmt.Errorf("query word index: %w", err)
	}
	defer rows.Close()

	out := make(map[uint64][]string)
	for rows.Next() {
		var (
			idx  uint64
			word string
		)
		if err := rows.Scan(&idx, &word); err != nil {
			return nil, fmt.Errorf("scan word row: %w", err)
		}
		out[idx] = append(out[idx], word)
	}
	return out, rows.Err()
}

// Reindex replaces both index tables with the entries given. Records are
// left untouched.
func (s *Store) Reindex(entries []model.Entry) error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"level_index", "word_index"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, e := range entries {
			if err := insertIndexEntries(ctx, tx, e); err != nil {
				return fmt.Errorf("entry %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

// Reset deletes all records and index entries.
func (s *Store) Reset() error {
	ctx, cancel := s.queryContext()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"logs", "level_index", "word_index"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
