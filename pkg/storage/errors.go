package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a uniqueness constraint rejects a
	// write.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStaleStatus is returned when a compare-and-set status update finds
	// the record in a different state than expected.
	ErrStaleStatus = errors.New("record status changed concurrently")
)
