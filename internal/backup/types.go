package backup

import (
	"context"
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid"

	"github.com/tinytelemetry/logdex/internal/model"
)

// Config controls periodic store snapshots. Snapshots are also copied to
// Remote when Remote.BucketURL is set.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Dir      string
	KeepLast int
	Remote   S3Config
}

// Snapshotter captures a consistent view of records and both indices.
type Snapshotter interface {
	Snapshot() (model.Snapshot, error)
}

// Uploader copies one snapshot file off the host.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}

// snapshotIDs hands out monotonic ULIDs, so file names sort in creation
// order even within one millisecond.
type snapshotIDs struct {
	mu      sync.Mutex
	entropy io.Reader
}

func (s *snapshotIDs) next(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}
