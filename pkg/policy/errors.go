package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by errors.Is for every *NotFoundError.
	ErrNotFound = errors.New("policy not found")

	// ErrFormat is matched by errors.Is for every *FormatError.
	ErrFormat = errors.New("unrecognized policy format")
)

// NotFoundError is returned when a policy path does not exist.
type NotFoundError struct {
	// Path is the path that could not be opened.
	Path string

	// Err is the underlying filesystem error.
	Err error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("policy file not found: %s", e.Path)
}

// Unwrap returns the underlying filesystem error.
func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FormatError is returned when a document matches no known dialect or carries
// a value that cannot be normalized.
type FormatError struct {
	// Source names the file or "<document>" for in-memory input.
	Source string

	// ControlID is set when the error concerns a single control.
	ControlID string

	// Message describes what was wrong.
	Message string

	// Err is the underlying parse error, if any.
	Err error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := e.Message
	if e.ControlID != "" {
		msg = fmt.Sprintf("%s (control=%s)", msg, e.ControlID)
	}
	if e.Source != "" {
		msg = fmt.Sprintf("%s: %s", e.Source, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying parse error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// IsNotFound returns true if err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFormat returns true if err is or wraps a *FormatError.
func IsFormat(err error) bool {
	return errors.Is(err, ErrFormat)
}
