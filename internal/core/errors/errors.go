// Package errors holds the sentinel errors shared by the resolver packages.
// Storage maps driver errors onto them; callers classify with errors.Is.
package errors

import "errors"

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Lookup errors.
var (
	// ErrReviewNotFound indicates a pending review entry does not exist.
	ErrReviewNotFound = errors.New("review entry not found")

	// ErrRunNotFound indicates a resolution run record does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrProductNotFound indicates a referential product does not exist.
	ErrProductNotFound = errors.New("product not found")
)

// Extraction oracle errors. Callers classify oracle failures with errors.Is.
var (
	// ErrMissingCredentials indicates the extraction oracle has no credentials configured.
	// It is run-fatal and raised before any work starts.
	ErrMissingCredentials = errors.New("extraction oracle credentials missing")

	// ErrAuthentication indicates the oracle rejected the configured credentials.
	ErrAuthentication = errors.New("extraction oracle authentication failed")

	// ErrRateLimited indicates rate limiting was triggered.
	ErrRateLimited = errors.New("rate limited")

	// ErrConnectivity indicates a transient transport or server failure.
	ErrConnectivity = errors.New("extraction oracle unreachable")

	// ErrMalformedResponse indicates the oracle answered with something that is not the expected record list.
	ErrMalformedResponse = errors.New("malformed extraction response")

	// ErrBudgetExceeded indicates the daily token budget is exhausted.
	ErrBudgetExceeded = errors.New("llm token budget exceeded")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a review status change the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid review status transition")
)

// Run coordination errors.
var (
	// ErrRunInProgress indicates another run already holds the lease for the supplier scope.
	ErrRunInProgress = errors.New("resolution run already in progress")
)
