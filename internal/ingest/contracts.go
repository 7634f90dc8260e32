package ingest

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/logdex/internal/model"
)

const (
	// ProcessorModeParse decodes JSON lines as ingest payloads and falls back
	// to plain text for anything else.
	ProcessorModeParse = "parse"
	// ProcessorModePassthrough stores every line as a plain-text message.
	ProcessorModePassthrough = "passthrough"
)

// EnvelopeProcessor consumes source-tagged ingest lines and writes records.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// NewEnvelopeProcessor creates the processor for mode. An empty mode means parse.
func NewEnvelopeProcessor(mode string, sink model.LogWriter, sourceName string) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeParse:
		return NewProcessor(sink, sourceName), nil
	case ProcessorModePassthrough:
		p := NewProcessor(sink, sourceName)
		p.passthrough = true
		return p, nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}
