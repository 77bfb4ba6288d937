package errcode

import (
	"errors"
	"fmt"
)

// Normalized errors.
var (
	ErrInvalidArgument = errors.New("INVALID_ARGUMENT")
	ErrReadFailed      = errors.New("READ_FAILED")
	ErrOpenFailed      = errors.New("OPEN_FAILED")
	ErrInternal        = errors.New("INTERNAL")
	ErrNotSupported    = errors.New("NOT_SUPPORTED")
	ErrNotReady        = errors.New("NOT_READY")
)

// UnknownError is the marker logged when a remote failure carries no text.
const UnknownError = "unknown error"

// CallError wraps a failed remote call with the operation that issued it.
type CallError struct {
	Op  string // remote method, e.g. "AddNetwork"
	Err error  // error reported by the service, may be nil
}

// NewCallError returns a CallError for op. A nil err is allowed and reported as UnknownError.
func NewCallError(op string, err error) *CallError {
	return &CallError{Op: op, Err: err}
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Detail())
}

// Detail returns the service's error text, or UnknownError.
func (e *CallError) Detail() string {
	if e.Err == nil || e.Err.Error() == "" {
		return UnknownError
	}
	return e.Err.Error()
}

// Unwrap exposes the original service error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Is reports every remote call failure as ErrInternal.
func (e *CallError) Is(target error) bool {
	return target == ErrInternal
}

// Detail returns the most specific human-readable text for err, falling back to UnknownError.
func Detail(err error) string {
	if err == nil {
		return UnknownError
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Detail()
	}
	return err.Error()
}

// Code maps err to its stable string code. Unrecognized errors map to INTERNAL.
func Code(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, ErrInvalidArgument):
		return ErrInvalidArgument.Error()
	case errors.Is(err, ErrReadFailed):
		return ErrReadFailed.Error()
	case errors.Is(err, ErrOpenFailed):
		return ErrOpenFailed.Error()
	case errors.Is(err, ErrNotSupported):
		return ErrNotSupported.Error()
	case errors.Is(err, ErrNotReady):
		return ErrNotReady.Error()
	default:
		return ErrInternal.Error()
	}
}
