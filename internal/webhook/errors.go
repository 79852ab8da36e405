package webhook

import "errors"

// Sentinel errors for the webhook domain package.
var (
	// ErrNotFound indicates no record exists for the given webhook_id.
	ErrNotFound = errors.New("webhook record not found")

	// ErrTerminal indicates an attempted transition on a record already
	// in a terminal state.
	ErrTerminal = errors.New("webhook record is in a terminal state")

	// ErrIllegalTransition indicates a state transition not permitted by
	// the state machine.
	ErrIllegalTransition = errors.New("illegal webhook status transition")

	// ErrStaleWrite indicates a compare-and-set write observed a status
	// that did not match the expected predecessor.
	ErrStaleWrite = errors.New("stale write: record status changed concurrently")
)
