package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755
)

// ErrCorrupt marks a journal with a malformed entry before its last line.
var ErrCorrupt = errors.New("journal: corrupt entry")

// Journal is a durable append-only log of ingest entries, one JSON object per
// line. Each line carries the record together with its derived index
// entries, so a single fsync'd write commits all of them at once.
type Journal struct {
	mu   sync.Mutex
	path string
	file *os.File
	size int64
	last uint64

	// corrupt is set when Open found damage it must not cut away. Load
	// reports it until Reset.
	corrupt error

	syncFile func(*os.File) error
}

// Open creates or opens a journal at path. A torn final line left by a crash
// is cut off so later appends start on a clean line. Damage earlier in the
// file is left in place and reported by Load.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	j := &Journal{path: path, file: f, syncFile: (*os.File).Sync}

	valid, last, err := scan(f, nil)
	switch {
	case errors.Is(err, ErrCorrupt):
		info, serr := f.Stat()
		if serr != nil {
			_ = f.Close()
			return nil, fmt.Errorf("journal: stat: %w", serr)
		}
		j.size, j.last, j.corrupt = info.Size(), last, err
		return j, nil
	case err != nil:
		_ = f.Close()
		return nil, err
	}

	if err := j.truncate(valid); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("journal: truncate torn tail: %w", err)
	}
	j.last = last
	return j, nil
}

// Name identifies the backend.
func (j *Journal) Name() string { return "journal" }

// LastIndex returns the highest index written.
func (j *Journal) LastIndex() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}

// Commit appends e and syncs it to disk. On failure the file is cut back to
// its previous length, so a rejected entry never reappears on replay.
func (j *Journal) Commit(e model.Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	switch {
	case j.file == nil:
		return errors.New("journal: closed")
	case j.corrupt != nil:
		return j.corrupt
	case e.Index <= j.last:
		return fmt.Errorf("journal: index %d not after last %d", e.Index, j.last)
	}

	_, err = j.file.Write(line)
	if err == nil {
		err = j.syncFile(j.file)
	}
	if err != nil {
		if terr := j.truncate(j.size); terr != nil {
			return fmt.Errorf("journal: commit entry %d: %w (rollback: %v)", e.Index, err, terr)
		}
		return fmt.Errorf("journal: commit entry %d: %w", e.Index, err)
	}
	j.size += int64(len(line))
	j.last = e.Index
	return nil
}

// truncate cuts the file to n bytes and syncs it. Callers hold mu or own j.
func (j *Journal) truncate(n int64) error {
	if err := j.file.Truncate(n); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return err
	}
	j.size = n
	return nil
}

// Load calls fn for each entry in file order. A journal damaged before its
// last line fails with an error wrapping ErrCorrupt.
func (j *Journal) Load(fn func(model.Entry) error) error {
	if fn == nil {
		return errors.New("journal: load callback is nil")
	}

	j.mu.Lock()
	path, corrupt := j.path, j.corrupt
	j.mu.Unlock()
	if corrupt != nil {
		return corrupt
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for load: %w", err)
	}
	defer f.Close()

	_, _, err = scan(f, fn)
	return err
}

// Reindex rewrites the journal with entries, replacing the stored word lists.
// The new file is written beside the old one and renamed over it.
func (j *Journal) Reindex(entries []model.Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("journal: closed")
	}

	tmpPath := j.path + ".reindex"
	last, err := writeEntries(tmpPath, entries)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: reindex: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal: reindex rename: %w", err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: reopen after reindex: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("journal: stat after reindex: %w", err)
	}
	_ = j.file.Close()
	j.file, j.size, j.last, j.corrupt = f, info.Size(), last, nil
	return nil
}

// writeEntries writes entries to a fresh file at path and syncs it. It
// returns the index of the last entry written.
func writeEntries(path string, entries []model.Entry) (last uint64, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFileMode)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return 0, fmt.Errorf("entry %d: %w", e.Index, err)
		}
		last = e.Index
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	return last, f.Sync()
}

// Reset truncates the journal to empty. It also clears a damaged journal,
// since a fresh session does not read it.
func (j *Journal) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New("journal: closed")
	}
	if err := j.truncate(0); err != nil {
		return fmt.Errorf("journal: truncate: %w", err)
	}
	j.last = 0
	j.corrupt = nil
	return nil
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scan reads entries from the start of r, calling fn (when non-nil) for
// each. It returns the byte length of the valid prefix and the last index
// seen. An unterminated or malformed final line is a torn write and ends
// the scan cleanly. A malformed line followed by more data, or an index that
// does not increase, fails with ErrCorrupt.
func scan(r io.ReadSeeker, fn func(model.Entry) error) (int64, uint64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, 0, fmt.Errorf("journal: seek: %w", err)
	}

	reader := bufio.NewReader(r)
	var valid int64
	var last uint64

	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return valid, last, fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return valid, last, nil
		}

		var e model.Entry
		if uerr := json.Unmarshal(line, &e); uerr != nil || e.Index == 0 {
			if _, perr := reader.Peek(1); errors.Is(perr, io.EOF) {
				return valid, last, nil
			}
			return valid, last, fmt.Errorf("%w: line %d (byte %d) is malformed", ErrCorrupt, lineNo, valid)
		}
		if e.Index <= last {
			return valid, last, fmt.Errorf("%w: line %d repeats index %d after %d", ErrCorrupt, lineNo, e.Index, last)
		}
		if fn != nil {
			if ferr := fn(e); ferr != nil {
				return valid, last, ferr
			}
		}
		valid += int64(len(line))
		last = e.Index
	}
}
