package model

// IngestEnvelope carries one raw line from a stream input with its source name.
// It is the transport contract between input plugins and the ingest processor.
type IngestEnvelope struct {
	Source string
	Line   string
}
