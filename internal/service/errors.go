package service

import "errors"

// Sentinel errors. Handlers map these to HTTP status codes with errors.Is;
// services wrap them with fmt.Errorf("...: %w", ...) to add context.
var (
	// ErrValidation rejects bad input before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means a referenced request, user or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the entity changed underneath the caller (a
	// concurrent transition won the optimistic status check).
	ErrConflict = errors.New("conflict")
)
