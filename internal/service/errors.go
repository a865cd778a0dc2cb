package service

import "errors"

// Validation errors are user-correctable and surfaced verbatim to the caller.
var (
	ErrUnknownChannel = errors.New("channel is not configured for rating")
	ErrInvalidConfig  = errors.New("invalid channel configuration")
)

// Not-found errors are reported, never retried.
var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrPlayerNotFound = errors.New("player not found")
)

// ErrUndoConflict rejects undoing a match when a participant's rating has
// already moved again; arithmetic rollback would corrupt the ledger.
var ErrUndoConflict = errors.New("a later rating change exists for a participant")

// ErrInvariant marks programming errors (e.g. an empty team). These propagate
// to the top-level handler, which logs and drops the task without crashing.
var ErrInvariant = errors.New("invariant violation")
