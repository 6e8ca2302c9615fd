package message

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures the way §7 requires: callers branch on kind,
// never on string matching.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindValidation
	ErrorKindAuthorization
	ErrorKindNotFound
	ErrorKindDuplicate
	ErrorKindCapacityExceeded
	ErrorKindTransient
	ErrorKindPermanent
	ErrorKindTimeout
	ErrorKindCancelled
	ErrorKindInvalidArgument
	ErrorKindInvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindValidation:
		return "validation"
	case ErrorKindAuthorization:
		return "authorization"
	case ErrorKindNotFound:
		return "not_found"
	case ErrorKindDuplicate:
		return "duplicate"
	case ErrorKindCapacityExceeded:
		return "capacity_exceeded"
	case ErrorKindTransient:
		return "transient"
	case ErrorKindPermanent:
		return "permanent"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindCancelled:
		return "cancelled"
	case ErrorKindInvalidArgument:
		return "invalid_argument"
	case ErrorKindInvalidOperation:
		return "invalid_operation"
	default:
		return "unknown"
	}
}

// Error is the uniform error type carried across queue/outbox/inbox/
// transport/pipeline boundaries.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs an Error, optionally wrapping a lower-level cause.
func NewError(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

// KindOf extracts the ErrorKind from err, walking the unwrap chain.
// Returns ErrorKindUnknown if err is nil or carries no *Error in its chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindUnknown
}

// IsRetryable reports whether err's kind represents a condition that may
// succeed on a later attempt (transient failures, timeouts, capacity limits).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case ErrorKindTransient, ErrorKindTimeout, ErrorKindCapacityExceeded:
		return true
	default:
		return false
	}
}

var (
	ErrQueueClosed    = NewError(ErrorKindPermanent, "queue", "queue is closed", nil)
	ErrQueueFull      = NewError(ErrorKindCapacityExceeded, "queue", "queue is full", nil)
	ErrQueueNotFound  = NewError(ErrorKindNotFound, "queue", "queue not found", nil)
	ErrDuplicateEntry = NewError(ErrorKindDuplicate, "inbox", "duplicate message", nil)
)
