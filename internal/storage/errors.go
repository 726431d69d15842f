// Package storage holds errors shared by the store backends.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a unique key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a record is missing its key fields.
	ErrInvalidInput = errors.New("invalid input")
)
