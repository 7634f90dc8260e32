package ingest

import (
	"encoding/json"

	"github.com/tinytelemetry/logdex/internal/model"
	"github.com/valyala/fastjson"
)

var parserPool fastjson.ParserPool

// ParsePayload decodes one JSON ingest payload into a record. Unknown keys are
// ignored. metadata keeps the exact bytes the caller sent; every other field
// must be a string when present. Level and message presence are checked by
// the store, not here.
func ParsePayload(data []byte) (model.LogRecord, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return model.LogRecord{}, &model.ValidationError{Reason: "payload is not valid JSON: " + err.Error()}
	}
	obj, err := v.Object()
	if err != nil {
		return model.LogRecord{}, &model.ValidationError{Reason: "payload must be a JSON object"}
	}

	var rec model.LogRecord
	fields := []struct {
		key string
		dst *string
	}{
		{"message", &rec.Message},
		{"resourceId", &rec.ResourceID},
		{"timestamp", &rec.Timestamp},
		{"traceId", &rec.TraceID},
		{"spanId", &rec.SpanID},
		{"commit", &rec.Commit},
	}
	for _, f := range fields {
		if err := stringField(obj, f.key, f.dst); err != nil {
			return model.LogRecord{}, err
		}
	}

	var level string
	if err := stringField(obj, "level", &level); err != nil {
		return model.LogRecord{}, err
	}
	rec.Level = model.Level(level)

	if meta := obj.Get("metadata"); meta != nil && meta.Type() != fastjson.TypeNull {
		raw, err := rawMember(data, "metadata")
		if err != nil {
			return model.LogRecord{}, err
		}
		rec.Metadata = raw
	}
	return rec, nil
}

// rawMember returns the bytes of one top-level member as written in data.
// fastjson unescapes strings on parse, so re-marshaling its value would not
// reproduce escapes such as \u00e9.
func rawMember(data []byte, key string) (json.RawMessage, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, &model.ValidationError{Field: key, Reason: "could not be read: " + err.Error()}
	}
	return members[key], nil
}

// stringField copies key into dst. Absent and null leave dst untouched.
func stringField(obj *fastjson.Object, key string, dst *string) error {
	v := obj.Get(key)
	if v == nil || v.Type() == fastjson.TypeNull {
		return nil
	}
	b, err := v.StringBytes()
	if err != nil {
		return &model.ValidationError{Field: key, Reason: "must be a string"}
	}
	*dst = string(b)
	return nil
}
