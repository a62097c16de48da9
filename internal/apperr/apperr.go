// Package apperr collects the sentinel error kinds shared across the
// ingestion and access-control packages. Callers use errors.Is against
// these values rather than matching on string content.
package apperr

import "errors"

var (
	// ErrNotFound mirrors the donor repository's not-found sentinel.
	ErrNotFound = errors.New("apperr: not found")

	// ErrNotLinked is returned when a session has no identity link.
	ErrNotLinked = errors.New("apperr: session not linked to an identity")

	// ErrAccessDenied is returned for both "no grant" and "insufficient
	// grant" cases, and for unknown index names, so callers never learn
	// whether an index exists from the error alone.
	ErrAccessDenied = errors.New("apperr: access denied")

	// ErrConfigInvalid signals a configuration error that must fail
	// fast, before a job ever reaches the running state.
	ErrConfigInvalid = errors.New("apperr: invalid configuration")

	// ErrVectorStoreUnavailable wraps a vector-store connectivity or
	// query failure that should fail the enclosing job.
	ErrVectorStoreUnavailable = errors.New("apperr: vector store unavailable")

	// ErrJobTerminal names an update to a job that has already reached
	// a terminal status. jobstore.UpdateStatus treats such updates as
	// no-ops and returns nil rather than this error.
	ErrJobTerminal = errors.New("apperr: job already in a terminal state")
)
