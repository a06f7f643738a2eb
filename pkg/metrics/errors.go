package metrics

import (
	"errors"
	"fmt"
)

// ErrorClass tells the evaluator how a metric failure is handled.
type ErrorClass string

const (
	// ErrorClassExpectedSkip means the metric cannot run on this input:
	// roles or columns are missing, or the data is unusable for it.
	// Skipped in lenient mode, fatal in strict mode.
	ErrorClassExpectedSkip ErrorClass = "expected_skip"

	// ErrorClassUnexpectedFailure covers everything else, including panics.
	// Always logged and skipped.
	ErrorClassUnexpectedFailure ErrorClass = "unexpected_failure"
)

var (
	// ErrExpectedSkip matches any MetricError of class expected_skip.
	ErrExpectedSkip = &MetricError{Class: ErrorClassExpectedSkip}

	// ErrUnexpectedFailure matches any MetricError of class unexpected_failure.
	ErrUnexpectedFailure = &MetricError{Class: ErrorClassUnexpectedFailure}

	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("metric registry is frozen")
)

// MetricError is a classified metric failure.
type MetricError struct {
	Class   ErrorClass `json:"class"`
	Metric  string     `json:"metric,omitempty"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

// Error implements the error interface.
func (e *MetricError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Metric != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Metric, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Class, msg)
}

// Unwrap returns the underlying error.
func (e *MetricError) Unwrap() error {
	return e.Err
}

// Is matches on class only, so errors.Is(err, ErrExpectedSkip) works for any
// skip regardless of message.
func (e *MetricError) Is(target error) bool {
	t, ok := target.(*MetricError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// WithMetric records the metric key on the error.
func (e *MetricError) WithMetric(key string) *MetricError {
	e.Metric = key
	return e
}

// Skip returns an expected-skip error.
func Skip(format string, args ...interface{}) error {
	return &MetricError{
		Class:   ErrorClassExpectedSkip,
		Message: fmt.Sprintf(format, args...),
	}
}

// Failure wraps err as an unexpected failure.
func Failure(message string, err error) error {
	return &MetricError{
		Class:   ErrorClassUnexpectedFailure,
		Message: message,
		Err:     err,
	}
}

// Classify returns the class of err. Errors that carry no MetricError are
// unexpected failures. A nil error has no class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var me *MetricError
	if errors.As(err, &me) {
		return me.Class
	}
	return ErrorClassUnexpectedFailure
}

// IsSkip reports whether err is an expected skip.
func IsSkip(err error) bool {
	return Classify(err) == ErrorClassExpectedSkip
}
