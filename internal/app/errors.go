package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidDeleteMode = errors.New("invalid delete mode")
	ErrCodeExhausted     = errors.New("could not allocate a unique code")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrCommitTimeout     = errors.New("commit timed out")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
)
