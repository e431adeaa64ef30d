package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNonCanonicalSymbol is returned when a price write targets a
	// symbol that is not the canonical one for its ISIN. The write is
	// rejected as a data-integrity failure, never silently dropped.
	ErrNonCanonicalSymbol = errors.New("non-canonical symbol for isin")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
