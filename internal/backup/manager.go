// Package backup writes periodic compressed snapshots of the store.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	defaultInterval = 6 * time.Hour
	defaultKeepLast = 24

	// Extension of snapshot files.
	Extension = ".json.zst"
)

// Manager snapshots a store on a fixed interval, keeping the newest
// KeepLast files in Dir.
type Manager struct {
	store    Snapshotter
	cfg      Config
	uploader Uploader
	ids      snapshotIDs

	encOnce sync.Once
	enc     *zstd.Encoder
	encErr  error

	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewManager validates cfg and starts the snapshot loop. It returns a nil
// Manager when backups are disabled.
func NewManager(store Snapshotter, cfg Config) (*Manager, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if store == nil {
		return nil, errors.New("backup: nil snapshotter")
	}
	cfg.Dir = strings.TrimSpace(cfg.Dir)
	if cfg.Dir == "" {
		return nil, errors.New("backup: backup-dir is required when backup is enabled")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = defaultKeepLast
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: create backup-dir: %w", err)
	}

	m := &Manager{store: store, cfg: cfg}
	if strings.TrimSpace(cfg.Remote.BucketURL) != "" {
		remote := cfg.Remote
		remote.ContentType = "application/zstd"
		u, err := NewS3Uploader(remote)
		if err != nil {
			return nil, fmt.Errorf("backup: init s3 uploader: %w", err)
		}
		m.uploader = u
	}
	m.start()
	return m, nil
}

func (m *Manager) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.stopped = make(chan struct{})
	go m.loop(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("backup: periodic snapshot failed: %v", err)
			}
		}
	}
}

// RunOnce writes one snapshot, uploads it when a remote is configured, and
// prunes old local copies. It returns the path written.
func (m *Manager) RunOnce(ctx context.Context) (string, error) {
	snap, err := m.store.Snapshot()
	if err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	enc, err := m.encoder()
	if err != nil {
		return "", fmt.Errorf("zstd encoder: %w", err)
	}

	path := filepath.Join(m.cfg.Dir, m.ids.next(time.Now())+Extension)
	if err := writeFileAtomic(path, enc.EncodeAll(doc, nil)); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	log.Printf("backup: wrote %s (%d records)", filepath.Base(path), len(snap.Logs.Records))

	if m.uploader != nil {
		if err := m.uploader.UploadFile(ctx, path); err != nil {
			return path, fmt.Errorf("upload: %w", err)
		}
		log.Printf("backup: uploaded %s", filepath.Base(path))
	}

	if err := prune(m.cfg.Dir, m.cfg.KeepLast); err != nil {
		return path, fmt.Errorf("prune: %w", err)
	}
	return path, nil
}

// Stop ends the loop and cancels an in-flight upload. Safe to call twice.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
			<-m.stopped
		}
		if m.enc != nil {
			m.enc.Close()
		}
	})
}

func (m *Manager) encoder() (*zstd.Encoder, error) {
	m.encOnce.Do(func() {
		m.enc, m.encErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	return m.enc, m.encErr
}

// ReadSnapshot decompresses a snapshot file and returns its JSON document.
func ReadSnapshot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// writeFileAtomic writes to a sibling temp file and renames it into place,
// so readers never see a partial snapshot.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// prune removes all but the keep newest snapshots in dir.
func prune(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Extension) {
			names = append(names, e.Name())
		}
	}
	if keep <= 0 || len(names) <= keep {
		return nil
	}
	slices.Sort(names)
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
