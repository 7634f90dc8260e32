package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/logdex/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 50_000

// SourceMultiplexer fans several line sources into one channel, so a single
// ingest loop performs every store write.
type SourceMultiplexer struct {
	sources []NamedLogSource
	out     chan model.IngestEnvelope
	drained chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	forwarded atomic.Int64
	skipped   atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLogSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		sources: sources,
		out:     make(chan model.IngestEnvelope, buffer),
		drained: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start runs one forwarder per source. Lines closes after the last source
// closes or after Stop.
func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		var wg sync.WaitGroup
		for _, src := range m.sources {
			wg.Go(func() { m.forward(src) })
		}
		go func() {
			wg.Wait()
			m.finish()
		}()
	})
}

// Stop cancels forwarding, stops every source and waits for Lines to close.
// It is safe to call before Start.
func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.startOnce.Do(m.finish)
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		<-m.drained
	})
}

func (m *SourceMultiplexer) finish() {
	close(m.out)
	close(m.drained)
}

func (m *SourceMultiplexer) HasSources() bool { return len(m.sources) > 0 }

// SourceNames lists the sources in registration order.
func (m *SourceMultiplexer) SourceNames() []string {
	names := make([]string, len(m.sources))
	for i, src := range m.sources {
		names[i] = src.Name()
	}
	return names
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope { return m.out }

// Forwarded is the number of lines handed to Lines.
func (m *SourceMultiplexer) Forwarded() int64 { return m.forwarded.Load() }

// Skipped is the number of blank lines dropped.
func (m *SourceMultiplexer) Skipped() int64 { return m.skipped.Load() }

func (m *SourceMultiplexer) forward(src NamedLogSource) {
	in := src.Lines()
	for {
		var env model.IngestEnvelope
		var ok bool
		select {
		case <-m.ctx.Done():
			return
		case env, ok = <-in:
		}
		if !ok {
			return
		}
		if strings.TrimSpace(env.Line) == "" {
			m.skipped.Add(1)
			continue
		}
		if env.Source == "" {
			env.Source = src.Name()
		}
		select {
		case m.out <- env:
			m.forwarded.Add(1)
		case <-m.ctx.Done():
			return
		}
	}
}
