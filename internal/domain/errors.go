package domain

import "errors"

// Sentinel errors shared across storage backends and handlers.
var (
	// ErrNotFound marks a lookup for a record the tenant does not have.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput marks a structurally invalid request, such as a
	// missing tenant id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicatePolicy marks an attempt to create a policy whose id is
	// already taken for the tenant.
	ErrDuplicatePolicy = errors.New("policy already exists")
)
