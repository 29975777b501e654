package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so callers can decide between retrying,
// alerting an operator, or fixing their input.
type Kind string

const (
	KindExtractionFailed       Kind = "ExtractionFailed"
	KindInsufficientText       Kind = "InsufficientText"
	KindStructuringRateLimited Kind = "StructuringRateLimited"
	KindStructuringAuthError   Kind = "StructuringAuthError"
	KindStructuringBadRequest  Kind = "StructuringBadRequest"
	KindStructuringParseError  Kind = "StructuringParseError"
	KindStructuringFailed      Kind = "StructuringFailed"
	KindRenderFailed           Kind = "RenderFailed"
	KindRecordNotFound         Kind = "RecordNotFound"
	KindPersistenceFailed      Kind = "PersistenceFailed"
)

// Extraction stages reported in Error.Stage.
const (
	StageDecode    = "decode"
	StageRecognize = "recognize"
)

// Error is the single error type carried across the pipeline boundary.
type Error struct {
	Kind    Kind
	Message string
	// Field names the offending schema/template field when it is known.
	Field string
	// Stage distinguishes decode from recognition failures during extraction.
	Stage string
	// Detail carries upstream text that is safe to show to the caller.
	Detail     string
	ResourceID string
	// Minimum and Length describe InsufficientText failures.
	Minimum int
	Length  int
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around cause. A nil cause still yields an Error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsStructuring reports whether kind belongs to the structuring family.
func IsStructuring(kind Kind) bool {
	switch kind {
	case KindStructuringRateLimited, KindStructuringAuthError, KindStructuringBadRequest,
		KindStructuringParseError, KindStructuringFailed:
		return true
	default:
		return false
	}
}
