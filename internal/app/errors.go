package app

import "errors"

// Error taxonomy of the call-state core. None of these is process-fatal;
// every one is scoped to a single session or connection.
var (
	// ErrTargetUnknown: the callee identity was never registered.
	ErrTargetUnknown = errors.New("target unknown")
	// ErrTargetUnreachable: the callee exists but has no live connection.
	ErrTargetUnreachable = errors.New("target unreachable")
	// ErrInvalidSession: message references an expired or foreign session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrRelayDropped: counter-party vanished between send and delivery.
	// Logged, never surfaced to the sender; a stale signaling payload is
	// useless once its target is gone.
	ErrRelayDropped = errors.New("relay dropped")
)
