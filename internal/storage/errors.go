package storage

import "errors"

// Storage errors.
var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrContention is returned when a vote write could not be serialized
	// against concurrent writes on the same pair after all retries.
	ErrContention = errors.New("write contention: concurrent update on the same vote")

	// ErrLimitReached is returned when an author already holds the maximum
	// number of comments on a subject.
	ErrLimitReached = errors.New("comment limit reached")

	// ErrDuplicate is returned when a submitter already has a note on a subject.
	ErrDuplicate = errors.New("already submitted")
)
