package types

import "errors"

// Key-related errors
var (
	// ErrNullKey is returned when a partitioning key evaluates to NULL
	ErrNullKey = errors.New("partitioning key is NULL")

	// ErrMissingColumn is returned when a row lacks a column the key expression needs
	ErrMissingColumn = errors.New("row is missing a key column")
)
