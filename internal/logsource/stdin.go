package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	// DefaultStdinBuffer is the default channel buffer size for stdin lines.
	DefaultStdinBuffer = 50_000

	// DefaultStdinMaxLineSize is the default maximum size (in bytes) of a single stdin line.
	DefaultStdinMaxLineSize = 1024 * 1024 // 1MB
)

// StdinConfig holds tunable parameters for the stdin source.
type StdinConfig struct {
	BufferSize  int
	MaxLineSize int
}

// StdinSource reads newline-delimited payloads piped into the process. The
// line channel closes at EOF, on a read error, on an over-long line, or on
// Stop.
type StdinSource struct {
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	lines  atomic.Int64
}

// NewStdinSource creates a StdinSource that reads from stdin in a background goroutine.
func NewStdinSource(ctx context.Context, conf ...StdinConfig) *StdinSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...StdinConfig) *StdinSource {
	cfg := StdinConfig{BufferSize: DefaultStdinBuffer, MaxLineSize: DefaultStdinMaxLineSize}
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			cfg.BufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			cfg.MaxLineSize = conf[0].MaxLineSize
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &StdinSource{
		ch:     make(chan model.IngestEnvelope, cfg.BufferSize),
		cancel: cancel,
	}
	go s.read(ctx, r, cfg.MaxLineSize)
	return s
}

func (s *StdinSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	// A blocked Read only returns once the reader is closed.
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineSize)), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case s.ch <- model.IngestEnvelope{Source: s.Name(), Line: line}:
			s.lines.Add(1)
		case <-ctx.Done():
			return
		}
	}

	switch err := scanner.Err(); {
	case err == nil, ctx.Err() != nil:
		log.Printf("logsource: stdin closed after %d lines", s.lines.Load())
	case errors.Is(err, bufio.ErrTooLong):
		log.Printf("logsource: stdin line exceeded max size (%d bytes), stopping stdin source", maxLineSize)
	default:
		log.Printf("logsource: stdin scanner error: %v", err)
	}
}

func (s *StdinSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *StdinSource) Stop()                              { s.cancel() }
func (s *StdinSource) Name() string                       { return "stdin" }

// Forwarded is the number of lines delivered on the channel so far.
func (s *StdinSource) Forwarded() int64 { return s.lines.Load() }
