package notifications

import "errors"

// Errors surfaced by the engine. Match with errors.Is.
var (
	// ErrValidation marks a malformed event; the caller must fix it, not retry.
	ErrValidation = errors.New("invalid notification event")
	// ErrNotFound is returned by MarkRead for an unknown thread id.
	ErrNotFound = errors.New("notification not found")
	// ErrForbidden is returned by MarkRead when the caller does not own the thread.
	ErrForbidden = errors.New("notification belongs to another user")
	// ErrConflict means the thread kept changing underneath every retry. Transient.
	ErrConflict = errors.New("notification changed concurrently, retry later")
	// ErrStoreUnavailable wraps persistence timeouts and connection failures. Retryable.
	ErrStoreUnavailable = errors.New("notification store unavailable")
)
