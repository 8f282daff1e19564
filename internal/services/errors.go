package services

import "fmt"

// ── Error Types ──

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// NoActiveSessionError is returned by StopSession when the user has no open
// session.
type NoActiveSessionError struct {
	UserID int64
}

func (e *NoActiveSessionError) Error() string { return "No active session" }

// InvalidTimestampError reports a client timestamp that could not be parsed.
// The tracker logs it and falls back to the server clock.
type InvalidTimestampError struct {
	Value string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp %q", e.Value)
}

// StoreUnavailableError wraps any storage failure surfaced by the tracker.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

func storeUnavailable(op string, err error) error {
	return &StoreUnavailableError{Op: op, Err: err}
}
