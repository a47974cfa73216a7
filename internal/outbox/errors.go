package outbox

import "errors"

// Rejection reasons for send and retry requests. All are handled locally
// (status flips, log lines, bus notices); none propagates as a panic.
var (
	// ErrQueueFull means the send queue is at capacity. Recoverable by
	// waiting for an in-flight job to complete.
	ErrQueueFull = errors.New("send queue full")

	// ErrNotConnected means no live transport session exists. No job is
	// created.
	ErrNotConnected = errors.New("transport not connected")

	// ErrInvalidTarget means the referenced conversation or message no
	// longer exists. Benign stale UI state, logged only.
	ErrInvalidTarget = errors.New("unknown conversation or message")

	// ErrNotRetryable means retry was requested for a message that is not
	// in failed state.
	ErrNotRetryable = errors.New("message is not in failed state")
)
