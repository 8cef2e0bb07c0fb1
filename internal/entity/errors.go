package entity

import "errors"

// Sentinel errors describing the taxonomy from the error-handling design:
// validation failures and unknown event types are distinguished from plain
// wrapped errors so use cases and the HTTP adapter can branch on them with
// errors.Is/errors.As.
var (
	// ErrUnknownEventType means a persisted event tag has no registered
	// apply handler in this binary. Fatal: replay must fail closed.
	ErrUnknownEventType = errors.New("entity: unknown event type")

	// ErrValidation wraps a rejected command (bad input or broken invariant).
	ErrValidation = errors.New("entity: validation failed")
)
