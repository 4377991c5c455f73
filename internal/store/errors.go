package store

import "errors"

var (
	// ErrFlagNotFound is returned when no live flag has the requested key.
	ErrFlagNotFound = errors.New("flag not found")

	// ErrFlagExists is returned when creating a key that is already live.
	ErrFlagExists = errors.New("flag already exists")

	// ErrVersionConflict is returned when the caller's version is stale.
	ErrVersionConflict = errors.New("flag version conflict")
)
