package repositories

import "errors"

var (
	// ErrNotFound is returned when the requested document or row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)
