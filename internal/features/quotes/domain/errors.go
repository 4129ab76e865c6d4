package domain

import "errors"

// Error taxonomy. Handlers map these to HTTP statuses; the orchestrator
// distinguishes fail-closed guards (lock, capacity) from fail-open ones
// (idempotency cache) at each call site.
var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks a lost race: lock already held or capacity
	// already exhausted.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an unknown order, quote or carrier.
	ErrNotFound = errors.New("not found")
	// ErrExternalService marks a failed or timed-out carrier call.
	ErrExternalService = errors.New("external service error")
	// ErrBusinessLogic marks a request with zero eligible carriers.
	ErrBusinessLogic = errors.New("business logic error")
	// ErrRateLimit is reserved for future throttling.
	ErrRateLimit = errors.New("rate limited")
)
