package ingest

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/logdex/internal/model"
)

type recordingSink struct {
	records []model.LogRecord
	err     error
}

func (s *recordingSink) Ingest(rec model.LogRecord) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	s.records = append(s.records, rec)
	return uint64(len(s.records)), nil
}

func TestNewEnvelopeProcessor_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode string
		want string
	}{
		{"", ProcessorModeParse},
		{"parse", ProcessorModeParse},
		{"Passthrough", ProcessorModePassthrough},
	}
	for _, tt := range tests {
		p, err := NewEnvelopeProcessor(tt.mode, nil, "")
		if err != nil {
			t.Fatalf("NewEnvelopeProcessor(%q): %v", tt.mode, err)
		}
		if p.Name() != tt.want {
			t.Fatalf("mode %q: name = %q, want %q", tt.mode, p.Name(), tt.want)
		}
	}

	if _, err := NewEnvelopeProcessor("otel", nil, ""); err == nil {
		t.Fatal("expected error for invalid processor mode")
	}
}

func TestProcessor_JSONLine(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "tcp")

	result := p.ProcessEnvelope(model.IngestEnvelope{Line: `{"level":"ERROR","message":"disk failure"}`})
	if result == nil || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Index != 1 {
		t.Fatalf("index = %d, want 1", result.Index)
	}
	if len(sink.records) != 1 || sink.records[0].Message != "disk failure" {
		t.Fatalf("sink records = %+v", sink.records)
	}
}

func TestProcessor_PlainTextFallback(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "stdin")

	result := p.ProcessLine("2024-01-01 WARN queue depth 900")
	if result == nil || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if result.Record.Level != model.LevelWarn {
		t.Fatalf("level = %q, want warn", result.Record.Level)
	}
	if result.Record.Message != "2024-01-01 WARN queue depth 900" {
		t.Fatalf("message = %q", result.Record.Message)
	}
}

func TestProcessor_PassthroughKeepsJSONAsText(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p, err := NewEnvelopeProcessor(ProcessorModePassthrough, sink, "stdin")
	if err != nil {
		t.Fatalf("NewEnvelopeProcessor: %v", err)
	}

	line := `{"level":"error","message":"x"}`
	result := p.ProcessEnvelope(model.IngestEnvelope{Line: line})
	if result == nil || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if sink.records[0].Message != line {
		t.Fatalf("message = %q, want raw line", sink.records[0].Message)
	}
}

func TestProcessor_SkipsBlankLines(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "stdin")
	if result := p.ProcessLine("   "); result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
	if len(sink.records) != 0 {
		t.Fatalf("blank line was ingested")
	}
}

func TestProcessor_CountsRejections(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	p := NewProcessor(sink, "tcp")

	result := p.ProcessLine(`{"level":"verbose","message":"x"}`)
	var ve *model.ValidationError
	if result == nil || !errors.As(result.Err, &ve) {
		t.Fatalf("result = %+v, want ValidationError", result)
	}
	p.ProcessLine(`{"level":`)

	sink.err = &model.PersistenceError{Op: "commit", Err: errors.New("disk full")}
	p.ProcessLine("plain line")

	if got := p.Rejected(); got != 3 {
		t.Fatalf("Rejected = %d, want 3", got)
	}
	if len(sink.records) != 0 {
		t.Fatalf("sink records = %d, want 0", len(sink.records))
	}
}
