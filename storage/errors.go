package storage

import "errors"

var (
	// ErrNotFound is returned when a referenced week, day list, task or
	// user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidPayload is returned when a write carries a days structure
	// that fails validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrConflict is returned when a create collides with an existing
	// record, such as a duplicate account email.
	ErrConflict = errors.New("already exists")
)
