package models

import "errors"

var (
	// ErrValidation marks input that is rejected immediately and never retried:
	// bad chunking configuration, unsupported file types, oversize uploads.
	ErrValidation = errors.New("validation failed")

	// ErrProviderTransient marks embedding or generation provider failures. These are retried
	// with bounded backoff; exhausted retries surface scoped to one batch or one question.
	ErrProviderTransient = errors.New("provider call failed")

	// ErrIntegrity marks persisted data that cannot be interpreted, such as a malformed stored vector.
	ErrIntegrity = errors.New("integrity violation")

	// ErrNotFound is returned when a document or chunk does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a document state change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)
