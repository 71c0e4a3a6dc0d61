// Package errors implements the AVDECC controller error taxonomy.
package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"
)

// protocolMarker is implemented by every local (non-wire) protocol-layer
// error type so callers can classify an error chain with one predicate.
type protocolMarker interface {
	error
	isProtocol()
}

// TransportError indicates a driver or OS-level packet failure. It is fatal
// for the Protocol Interface that observed it: the interface notifies its
// observers and tears down.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport error: %s", e.Op)
	}
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}
func (e *TransportError) Unwrap() error { return e.Err }
func (e *TransportError) isProtocol()   {}

// UnknownEntityError is returned synchronously when a command's target is
// not present in the controller's entity registry.
type UnknownEntityError struct {
	Op  string
	Err error
}

func (e *UnknownEntityError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unknown entity: %s", e.Op)
	}
	return fmt.Sprintf("unknown entity: %s: %v", e.Op, e.Err)
}
func (e *UnknownEntityError) Unwrap() error { return e.Err }
func (e *UnknownEntityError) isProtocol()   {}

// BadArgumentsError indicates the caller violated a local precondition
// (oversized mapping list, invalid descriptor index, ...). It is synchronous:
// the command is never transmitted.
type BadArgumentsError struct {
	Op  string
	Err error
}

func (e *BadArgumentsError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("bad arguments: %s", e.Op)
	}
	return fmt.Sprintf("bad arguments: %s: %v", e.Op, e.Err)
}
func (e *BadArgumentsError) Unwrap() error { return e.Err }
func (e *BadArgumentsError) isProtocol()   {}

// NotSupportedError indicates a message type unsupported by this Protocol
// Interface implementation (e.g. a direct send on a virtual backend).
type NotSupportedError struct {
	Op  string
	Err error
}

func (e *NotSupportedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("not supported: %s", e.Op)
	}
	return fmt.Sprintf("not supported: %s: %v", e.Op, e.Err)
}
func (e *NotSupportedError) Unwrap() error { return e.Err }
func (e *NotSupportedError) isProtocol()   {}

// AbortedError is delivered to every pending command callback when the
// Protocol Interface is torn down while the command was still in flight.
type AbortedError struct {
	Op string
}

func (e *AbortedError) Error() string { return fmt.Sprintf("aborted: %s", e.Op) }
func (e *AbortedError) isProtocol()   {}

// TimeoutError indicates a command exceeded its timeout after exhausting its
// retry budget.
type TimeoutError struct {
	Op       string
	Duration time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (after %s)", e.Op, e.Duration)
	if e.Err != nil {
		return base + ": " + e.Err.Error()
	}
	return base
}
func (e *TimeoutError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is (or wraps) a TimeoutError, a context
// deadline, or any error exposing Timeout() bool returning true.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stdErrors.As(err, &te) {
		return true
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var toErr interface{ Timeout() bool }
	if stdErrors.As(err, &toErr) && toErr.Timeout() {
		return true
	}
	return false
}

// IsProtocolError reports whether the error chain contains any local
// protocol-layer error (TransportError, UnknownEntityError,
// BadArgumentsError, NotSupportedError, AbortedError, CodecError).
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var pm protocolMarker
	return stdErrors.As(err, &pm)
}

// Constructors. Callers are encouraged to keep layering context with
// fmt.Errorf("...: %w", err) before wrapping in one of these.
func NewTransportError(op string, cause error) error { return &TransportError{Op: op, Err: cause} }
func NewUnknownEntityError(op string, cause error) error {
	return &UnknownEntityError{Op: op, Err: cause}
}
func NewBadArgumentsError(op string, cause error) error {
	return &BadArgumentsError{Op: op, Err: cause}
}
func NewNotSupportedError(op string, cause error) error {
	return &NotSupportedError{Op: op, Err: cause}
}
func NewAbortedError(op string) error { return &AbortedError{Op: op} }
func NewTimeoutError(op string, d time.Duration, cause error) error {
	return &TimeoutError{Op: op, Duration: d, Err: cause}
}
