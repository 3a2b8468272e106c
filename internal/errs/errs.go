// Package errs holds the sentinel errors mapped to HTTP statuses and
// WebSocket error codes at the adapter boundary.
package errs

import "errors"

var (
	// ErrUnknownSession reports a token that was not found or has expired.
	ErrUnknownSession = errors.New("unknown session")
	// ErrSessionClosed reports a token whose session already completed; a
	// consumed link cannot be reused.
	ErrSessionClosed = errors.New("session closed")
	// ErrDuplicateToken reports that a session with this token already exists.
	ErrDuplicateToken = errors.New("duplicate session token")
	// ErrInvalidTransition reports a status change the lifecycle does not permit.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrStoreUnavailable reports a failed durable write; the transition
	// was not applied.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
