// Package logsource adapts stream inputs to one line-channel contract.
package logsource

import "github.com/tinytelemetry/logdex/internal/model"

// LogSource is a unified interface for stream ingest inputs (TCP, stdin).
type LogSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of payload lines
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "stdin"
}
