package ingest

import (
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/logdex/internal/logparse"
	"github.com/tinytelemetry/logdex/internal/model"
)

// Processor turns stream lines into records and ingests them.
type Processor struct {
	sink        model.LogWriter
	passthrough bool

	sourceName string

	rejected  atomic.Int64
	lastLogAt atomic.Int64 // unix seconds of the last rejection log line
}

// NewProcessor creates a parse-mode processor writing to sink.
func NewProcessor(sink model.LogWriter, sourceName string) *Processor {
	return &Processor{
		sink:       sink,
		sourceName: sourceName,
	}
}

// ProcessResult holds the outcome of one line.
type ProcessResult struct {
	Index  uint64
	Record model.LogRecord
	Err    error
}

// Name reports the processor mode.
func (p *Processor) Name() string {
	if p.passthrough {
		return ProcessorModePassthrough
	}
	return ProcessorModeParse
}

// ProcessLine processes an untagged line using the processor source name.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope decodes one line and ingests it. Blank lines are skipped
// and return nil.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	line := strings.TrimSpace(env.Line)
	if line == "" {
		return nil
	}
	source := env.Source
	if source == "" {
		source = p.sourceName
	}

	rec, err := p.decode(line)
	if err != nil {
		p.reject(source, err)
		return &ProcessResult{Err: err}
	}

	result := &ProcessResult{Record: rec}
	if p.sink == nil {
		return result
	}
	idx, err := p.sink.Ingest(rec)
	if err != nil {
		p.reject(source, err)
		result.Err = err
		return result
	}
	result.Index = idx
	return result
}

func (p *Processor) decode(line string) (model.LogRecord, error) {
	if !p.passthrough && strings.HasPrefix(line, "{") {
		return ParsePayload([]byte(line))
	}
	return PlainTextRecord(line), nil
}

// PlainTextRecord wraps a non-JSON line as a record, inferring its level
// from severity keywords in the text.
func PlainTextRecord(line string) model.LogRecord {
	return model.LogRecord{
		Level:   logparse.ExtractLevel(line),
		Message: line,
	}
}

// Rejected returns how many lines failed to decode or ingest.
func (p *Processor) Rejected() int64 {
	return p.rejected.Load()
}

// reject counts a failed line and logs at most once per second.
func (p *Processor) reject(source string, err error) {
	n := p.rejected.Add(1)
	now := time.Now().Unix()
	last := p.lastLogAt.Load()
	if now > last && p.lastLogAt.CompareAndSwap(last, now) {
		log.Printf("ingest: rejected line from %s (%d total): %v", source, n, err)
	}
}

