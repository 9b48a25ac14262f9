package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy. Each failure returned by a usecase wraps exactly one of
// these sentinels so callers can branch with errors.Is.
var (
	// ErrValidation: malformed input (trait out of [0,1], empty agent ID).
	// Raised before any mutation is attempted.
	ErrValidation = goerr.New("validation failed")

	// ErrExternalService: the reasoning or embedding capability is
	// unreachable, timed out, or returned output that cannot be used.
	ErrExternalService = goerr.New("external service failed")

	// ErrRetrieval: the vector index is unavailable. Not used for "no
	// matching facts", which is a valid empty result.
	ErrRetrieval = goerr.New("retrieval failed")

	// ErrNotFound is reserved for operations that require pre-existing
	// state. Profile access auto-creates, so only repositories raise it.
	ErrNotFound = goerr.New("not found")
)
