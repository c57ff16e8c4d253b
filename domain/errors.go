package domain

import "errors"

// Error kinds surfaced by the service. Handlers map these to HTTP
// statuses; everything else is a 500.
var (
	// ErrNotInitialized means a dependent component has not finished
	// start-up loading (e.g. no personalities were loaded).
	ErrNotInitialized = errors.New("service not initialized")

	// ErrInvalidIdentifier means a supplied session id is not a
	// well-formed token.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNotFound means a referenced entity (personality, session, job)
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidDefinition means a structured personality definition
	// failed validation.
	ErrInvalidDefinition = errors.New("invalid personality definition")

	// ErrGenerationFailed wraps an LLM call failure. No ledger writes
	// happen when this is returned.
	ErrGenerationFailed = errors.New("generation failed")
)
