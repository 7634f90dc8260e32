package model

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed ingest payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// ErrEmptyQuery is returned when a search word is empty or whitespace only.
var ErrEmptyQuery = errors.New("search word is empty")

// InvalidFilterError reports a filter bucket name outside the five known buckets.
type InvalidFilterError struct {
	Bucket string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter %q: want one of error, warn, info, debug, message", e.Bucket)
}

// PersistenceError wraps a storage read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsClientError reports whether err is caused by bad caller input.
func IsClientError(err error) bool {
	var ve *ValidationError
	var fe *InvalidFilterError
	return errors.As(err, &ve) || errors.As(err, &fe) || errors.Is(err, ErrEmptyQuery)
}
