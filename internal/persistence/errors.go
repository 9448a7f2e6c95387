package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrExclusionViolation is returned when a write would overlap another active
	// appointment of the same technician.
	ErrExclusionViolation = errors.New("persistence: appointment exclusion violated")
	// ErrVersionMismatch is returned when a compare-and-swap write observes a newer version.
	ErrVersionMismatch = errors.New("persistence: version mismatch")
	// ErrDuplicate is returned when a record with the same key already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned for foreign key and check constraint failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrLocked is returned when the store could not acquire its write lock in time.
	ErrLocked = errors.New("persistence: store locked")
)
