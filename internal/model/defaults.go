package model

import "time"

// Shared defaults used by both the service and the CLI binaries.
const (
	DefaultQueryTimeout = 30 * time.Second
	DefaultFormat       = "text"
)
