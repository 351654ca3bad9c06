package ferrors

import (
	"errors"
	"fmt"
)

// OrganizerError is the structured error type used across the engine.
// It carries enough context for logging, undo/audit records, and the
// safety gates in the apply engine to make retry/skip decisions without
// string-matching error messages.
type OrganizerError struct {
	// Code is the unique error code (e.g. "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs, e.g.
	// the file path or rule ID involved.
	Details map[string]string

	// Cause is the underlying error that produced this error.
	Cause error

	// Retryable indicates whether the dirty-queue processor should
	// re-attempt this operation on the next pass.
	Retryable bool
}

// Error implements the error interface.
func (e *OrganizerError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *OrganizerError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, enabling
// errors.Is() to work with OrganizerError.
func (e *OrganizerError) Is(target error) bool {
	if t, ok := target.(*OrganizerError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error. Returns the error for
// method chaining.
func (e *OrganizerError) WithDetail(key, value string) *OrganizerError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new OrganizerError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *OrganizerError {
	return &OrganizerError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an OrganizerError from an existing error, using the
// wrapped error's message as the OrganizerError message.
func Wrap(code string, err error) *OrganizerError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsRetryable reports whether err is an OrganizerError with its
// Retryable flag set.
func IsRetryable(err error) bool {
	var oe *OrganizerError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return false
}

// IsFatal reports whether err has fatal severity, meaning the current
// pipeline run should abort rather than continue to the next file.
func IsFatal(err error) bool {
	var oe *OrganizerError
	if errors.As(err, &oe) {
		return oe.Severity == SeverityFatal
	}
	return false
}

// Code extracts the error code from err, or "" if err is not an
// OrganizerError.
func Code(err error) string {
	var oe *OrganizerError
	if errors.As(err, &oe) {
		return oe.Code
	}
	return ""
}
