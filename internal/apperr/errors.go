// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid request")

	// ErrOutOfRange is returned when a requested link index falls outside
	// the positions a sibling group can accept.
	ErrOutOfRange = errors.New("index out of range")

	// ErrInvariantViolation signals two siblings would share an index.
	// It points at a caller that did not serialize the group.
	ErrInvariantViolation = errors.New("ordering invariant violated")
)
