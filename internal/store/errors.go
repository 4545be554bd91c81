package store

import "errors"

// Domain errors for the store package.
var (
	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("store: missing required field")

	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
)
