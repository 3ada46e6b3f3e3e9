package broker

import (
	"errors"
	"fmt"
)

// ErrRejected is matched (errors.Is) by every order submission failure.
var ErrRejected = errors.New("order rejected")

// Error is a failed brokerage call.
type Error struct {
	Op         string
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Rejected wraps a submission failure so callers can match ErrRejected
// while keeping the upstream detail.
func Rejected(statusCode int, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Op:         "submit order",
		StatusCode: statusCode,
		Msg:        msg,
		Err:        errors.Join(ErrRejected, cause),
	}
}
