package domain

import "errors"

var (
	// ErrInvalidBounds is returned when a query rectangle cannot be used.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrNotFound is returned when a pin does not exist.
	ErrNotFound = errors.New("not found")
)
