package apperrors

import "errors"

// Error kinds. Every failure the application reports to a user is one of these.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnauthenticated  = errors.New("authentication required")
)

// CustomError carries a user-facing message on top of one of the error kinds.
type CustomError struct {
	Err     error
	Message string
	// Field names the form field a validation error belongs to, if any.
	Field string
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NotFound creates a not-found error with a message.
func NotFound(message string) error {
	return &CustomError{Err: ErrNotFound, Message: message}
}

// Validation creates a validation error with a message.
func Validation(message string) error {
	return &CustomError{Err: ErrValidation, Message: message}
}

// FieldValidation creates a validation error bound to a form field.
func FieldValidation(field, message string) error {
	return &CustomError{Err: ErrValidation, Message: message, Field: field}
}

// Conflict creates a conflict error with a message.
func Conflict(message string) error {
	return &CustomError{Err: ErrConflict, Message: message}
}

// Forbidden creates a permission error with a message.
func Forbidden(message string) error {
	return &CustomError{Err: ErrPermissionDenied, Message: message}
}

// Message returns the user-facing message of err, or fallback when err carries none.
func Message(err error, fallback string) string {
	var ce *CustomError
	if errors.As(err, &ce) && ce.Message != "" {
		return ce.Message
	}
	return fallback
}

// Is returns whether err matches target or any of errList.
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
