// Package internalerr holds the sentinel errors shared by the pipeline packages.
// Callers wrap them with fmt.Errorf("...: %w", err) and test with errors.Is.
package internalerr

import "errors"

var (
	// ErrInvalidInput marks a record-level validation failure: the record is skipped.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidConfig marks a malformed sources or taxonomy file.
	ErrInvalidConfig = errors.New("invalid configuration")

	ErrNotFound         = errors.New("incident not found")
	ErrDuplicateOrigin  = errors.New("origin url already used by another incident")
	ErrStoreUnavailable = errors.New("store unavailable")
)
