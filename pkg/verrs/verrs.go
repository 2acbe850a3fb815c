// Package verrs provides the structured error taxonomy used across the
// verification engine. It mirrors the shape of a teacher-style structured
// error type (a stable code, a human message, optional details, a context
// map, a timestamp and an optional wrapped cause) but is closed over the
// fixed set of failure codes the round protocol can actually raise.
package verrs

import (
	"errors"
	"fmt"
	"time"
)

// Code is one of the fixed verification failure codes.
type Code string

const (
	CodeElementNotFound  Code = "ELEMENT_NOT_FOUND"
	CodeDeleted          Code = "DELETED"
	CodeSubrootMismatch  Code = "SUBROOT_MISMATCH"
	CodeRootMismatch     Code = "ROOT_MISMATCH"
	CodeFreshnessFail    Code = "FRESHNESS_FAIL"
	CodeCorrectnessFail  Code = "CORRECTNESS_FAIL"
	CodeFilterOverflow   Code = "FILTER_OVERFLOW"
	CodeMalformedProof   Code = "MALFORMED_PROOF"
	CodeSignatureInvalid Code = "SIGNATURE_INVALID"
	CodeInternal         Code = "INTERNAL"
)

// VerificationError is the structured error type returned by every
// verification primitive in this module.
type VerificationError struct {
	Code      Code
	Message   string
	Details   string
	Context   map[string]any
	Timestamp time.Time
	Cause     error
}

func (e *VerificationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *VerificationError) Unwrap() error { return e.Cause }

// New creates a VerificationError with no cause.
func New(code Code, message string) *VerificationError {
	return &VerificationError{Code: code, Message: message, Context: map[string]any{}, Timestamp: time.Now()}
}

// Newf creates a VerificationError with a formatted message.
func Newf(code Code, format string, args ...any) *VerificationError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error under a taxonomy code.
func Wrap(err error, code Code, message string) *VerificationError {
	ve := New(code, message)
	ve.Cause = err
	return ve
}

// WithDetails attaches a details string and returns the receiver for chaining.
func (e *VerificationError) WithDetails(details string) *VerificationError {
	e.Details = details
	return e
}

// WithContext attaches a context key/value pair and returns the receiver.
func (e *VerificationError) WithContext(key string, value any) *VerificationError {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

// As extracts a *VerificationError from err, if any.
func As(err error) (*VerificationError, bool) {
	var ve *VerificationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// HasCode reports whether err is a VerificationError with the given code.
func HasCode(err error, code Code) bool {
	ve, ok := As(err)
	return ok && ve.Code == code
}
