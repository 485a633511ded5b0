package errors

import (
	stderrors "errors"
	"fmt"
)

// DocError is a failure with a stable ERR_NNN_NAME code. Everything a caller
// branches on (category, severity, retryability) follows from the code, so a
// DocError only stores what varies per occurrence.
type DocError struct {
	Code       string
	Message    string
	Cause      error
	Details    map[string]string
	Suggestion string
}

func (e *DocError) Error() string { return "[" + e.Code + "] " + e.Message }

func (e *DocError) Unwrap() error { return e.Cause }

// Is matches by code, so errors.Is(err, &DocError{Code: X}) sees through
// wrapping.
func (e *DocError) Is(target error) bool {
	t, ok := target.(*DocError)
	return ok && t.Code == e.Code
}

// Category is the hundreds digit of the code.
func (e *DocError) Category() Category { return categoryFromCode(e.Code) }

func (e *DocError) Severity() Severity { return severityFromCode(e.Code) }

// Retryable reports whether repeating the same call may succeed.
func (e *DocError) Retryable() bool { return isRetryableCode(e.Code) }

// WithDetail records a key/value for logs and CLI output.
func (e *DocError) WithDetail(key, value string) *DocError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets the hint shown after the message.
func (e *DocError) WithSuggestion(s string) *DocError {
	e.Suggestion = s
	return e
}

func New(code, message string, cause error) *DocError {
	return &DocError{Code: code, Message: message, Cause: cause}
}

func Newf(code, format string, args ...any) *DocError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Shorthands for the generic code of each category.

func ConfigError(message string, cause error) *DocError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func IOError(message string, cause error) *DocError {
	return New(ErrCodeFileNotFound, message, cause)
}

func NetworkError(message string, cause error) *DocError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

func ValidationError(message string, cause error) *DocError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *DocError {
	return New(ErrCodeInternal, message, cause)
}

// DimensionMismatch is returned when a vector or snapshot does not have the
// index dimension.
func DimensionMismatch(expected, got int) *DocError {
	return Newf(ErrCodeDimensionMismatch, "vector dimension mismatch: index has %d, got %d", expected, got).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("Use the same embedding model and dimension the index was built with, or reindex.")
}

// As returns the first *DocError in err's chain.
func As(err error) (*DocError, bool) {
	var de *DocError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// GetCode returns the code of the first DocError in err's chain, or "".
func GetCode(err error) string {
	if de, ok := As(err); ok {
		return de.Code
	}
	return ""
}

// GetCategory returns "" for errors without a DocError.
func GetCategory(err error) Category {
	if de, ok := As(err); ok {
		return de.Category()
	}
	return ""
}

func IsRetryable(err error) bool { return isRetryableCode(GetCode(err)) }

func IsFatal(err error) bool {
	code := GetCode(err)
	return code != "" && severityFromCode(code) == SeverityFatal
}

func IsValidation(err error) bool { return GetCategory(err) == CategoryValidation }
