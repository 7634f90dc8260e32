package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEnvelopeMarshal_KeyOrder(t *testing.T) {
	t.Parallel()

	env := Envelope{
		Filters: map[string][]uint64{
			"error":   {2},
			"info":    {1, 10},
			"message": {1, 2, 10},
		},
		Records: []IndexedRecord{
			{Index: 1, Record: LogRecord{Level: LevelInfo, Message: "first"}},
			{Index: 2, Record: LogRecord{Level: LevelError, Message: "second"}},
			{Index: 10, Record: LogRecord{Level: LevelInfo, Message: "tenth"}},
		},
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := string(data)

	want := `{"0":{"error":[2],"warn":[],"info":[1,10],"debug":[],"message":[1,2,10]}`
	if !strings.HasPrefix(got, want) {
		t.Fatalf("envelope prefix = %s, want %s", got, want)
	}

	i1 := strings.Index(got, `"1":`)
	i2 := strings.Index(got, `"2":`)
	i10 := strings.Index(got, `"10":`)
	if i1 < 0 || i2 < 0 || i10 < 0 || !(i1 < i2 && i2 < i10) {
		t.Fatalf("record keys not in ascending order: %s", got)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if len(decoded) != 4 {
		t.Fatalf("decoded keys = %d, want 4", len(decoded))
	}
}

func TestEnvelopeMarshal_Empty(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Envelope{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"0":{"error":[],"warn":[],"info":[],"debug":[],"message":[]}}`
	if string(data) != want {
		t.Fatalf("empty envelope = %s, want %s", data, want)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"error", LevelError, true},
		{" WARN ", LevelWarn, true},
		{"Info", LevelInfo, true},
		{"debug", LevelDebug, true},
		{"fatal", "", false},
		{"", "", false},
		{"message", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLogRecordValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		rec   LogRecord
		field string
	}{
		{"ok", LogRecord{Level: LevelInfo, Message: "hello"}, ""},
		{"missing level", LogRecord{Message: "hello"}, "level"},
		{"unknown level", LogRecord{Level: "trace", Message: "hello"}, "level"},
		{"missing message", LogRecord{Level: LevelWarn}, "message"},
		{"blank message", LogRecord{Level: LevelWarn, Message: " \t\n "}, "message"},
		{"bad metadata", LogRecord{Level: LevelWarn, Message: "x", Metadata: []byte(`{`)}, "metadata"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
			if !IsClientError(err) {
				t.Errorf("IsClientError(%v) = false", err)
			}
		})
	}
}
