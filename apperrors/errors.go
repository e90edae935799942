// Package apperrors defines the failure taxonomy shared by the stores, the
// ledger and the HTTP envelope. Every failure carries a stable Kind that
// callers can switch on, plus a human message.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable category of a failure.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindValidation         Kind = "validation_error"
	KindSignatureInvalid   Kind = "signature_invalid"
	KindGateway            Kind = "gateway_error"
	KindStoreInconsistency Kind = "store_inconsistency"
	KindInternal           Kind = "internal"
)

// Error is a categorised failure. Err is optional and kept for unwrapping.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	sentinel bool
}

// Sentinels match any Error of the same kind through errors.Is.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found", sentinel: true}
	ErrConflict           = &Error{Kind: KindConflict, Message: "conflict", sentinel: true}
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid input", sentinel: true}
	ErrSignatureInvalid   = &Error{Kind: KindSignatureInvalid, Message: "signature mismatch", sentinel: true}
	ErrGateway            = &Error{Kind: KindGateway, Message: "payment gateway failure", sentinel: true}
	ErrStoreInconsistency = &Error{Kind: KindStoreInconsistency, Message: "store inconsistency", sentinel: true}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.sentinel {
		return t.Kind == e.Kind
	}
	return t == e
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Gateway(format string, args ...any) *Error {
	return New(KindGateway, format, args...)
}

// KindOf returns the kind of the first Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the human message of the first Error in err's chain.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
