package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Envelope is the legacy "fetch all" shape: key "0" carries the level filter
// buckets and every other key is a stringified record index. Keys are written
// in ascending numeric order.
type Envelope struct {
	Filters map[string][]uint64
	Records []IndexedRecord
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"0":{`)
	for i, name := range Buckets {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(name))
		buf.WriteByte(':')
		ids := e.Filters[name]
		if ids == nil {
			ids = []uint64{}
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')

	for _, r := range e.Records {
		data, err := json.Marshal(r.Record)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`,"`)
		buf.WriteString(strconv.FormatUint(r.Index, 10))
		buf.WriteString(`":`)
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Snapshot is the point-in-time export of the whole store: the legacy
// records envelope and the word index as word -> ascending indices.
type Snapshot struct {
	Logs  Envelope            `json:"logs"`
	Words map[string][]uint64 `json:"words"`
}
