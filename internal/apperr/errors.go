package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can tell recoverable from fatal conditions
// without matching on error strings.
type Kind int

const (
	// KindUnknown is the zero value for errors that were never classified.
	KindUnknown Kind = iota
	// KindConfiguration is a missing or invalid required setting. Fatal at startup.
	KindConfiguration
	// KindTransientUpstream is a network, rate-limit or 5xx failure from an external service.
	KindTransientUpstream
	// KindUpstream is a non-retryable rejection from an external service (4xx, malformed reply).
	KindUpstream
	// KindDataContract is a violated contract between pipeline stages (missing column, row mismatch).
	KindDataContract
	// KindValidation is invalid caller input.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransientUpstream:
		return "transient_upstream"
	case KindUpstream:
		return "upstream"
	case KindDataContract:
		return "data_contract"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

var (
	// ErrConfiguration matches any error of KindConfiguration.
	ErrConfiguration = &Error{Kind: KindConfiguration}
	// ErrTransientUpstream matches any error of KindTransientUpstream.
	ErrTransientUpstream = &Error{Kind: KindTransientUpstream}
	// ErrUpstream matches any error of KindUpstream.
	ErrUpstream = &Error{Kind: KindUpstream}
	// ErrDataContract matches any error of KindDataContract.
	ErrDataContract = &Error{Kind: KindDataContract}
	// ErrValidation matches any error of KindValidation.
	ErrValidation = &Error{Kind: KindValidation}
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New creates a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return KindValidation
	}
	return KindUnknown
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientUpstream)
}

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidation) match field-level validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
