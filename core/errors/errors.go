// Package errors carries classified errors across the CLI boundary.
// Lifecycle sentinels (unsealed access, sealed mutation) stay in their
// owning packages; this layer only attaches category, code, and hint for
// user-facing reporting.
package errors

import "errors"

type Category string

const (
	CategoryInvalidInput    Category = "invalid_input"
	CategoryVerification    Category = "verification_failed"
	CategoryInconclusive    Category = "verification_inconclusive"
	CategoryLifecycle       Category = "lifecycle_violation"
	CategoryIOFailure       Category = "io_failure"
	CategoryInternalFailure Category = "internal_failure"
)

type classifiedError struct {
	category Category
	code     string
	hint     string
	cause    error
}

func (e *classifiedError) Error() string {
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

func Wrap(cause error, category Category, code, hint string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category: category,
		code:     code,
		hint:     hint,
		cause:    cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}
