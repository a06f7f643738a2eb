package compliance

import (
	"errors"
	"fmt"
)

var (
	// ErrMetricNotRegistered matches any MetricNotRegisteredError.
	ErrMetricNotRegistered = errors.New("metric not registered")

	// ErrControl matches any ControlError.
	ErrControl = errors.New("control evaluation failed")
)

// MetricNotRegisteredError is returned in strict mode when a control names a
// metric the registry does not know.
type MetricNotRegisteredError struct {
	ControlID string
	MetricKey string
}

// Error implements the error interface.
func (e *MetricNotRegisteredError) Error() string {
	return fmt.Sprintf("no metric function registered for %q in control %q", e.MetricKey, e.ControlID)
}

// Is matches ErrMetricNotRegistered.
func (e *MetricNotRegisteredError) Is(target error) bool {
	return target == ErrMetricNotRegistered
}

// ControlError is returned in strict mode when a control cannot be evaluated
// because its roles are unresolved or its metric skipped.
type ControlError struct {
	ControlID string
	MetricKey string
	// Unresolved lists roles still bound to MISSING, if that was the cause.
	Unresolved []string
	Err        error
}

// Error implements the error interface.
func (e *ControlError) Error() string {
	if len(e.Unresolved) > 0 {
		return fmt.Sprintf("control %q has unresolved roles %v", e.ControlID, e.Unresolved)
	}
	return fmt.Sprintf("control %q (%s): %v", e.ControlID, e.MetricKey, e.Err)
}

// Unwrap returns the underlying metric error.
func (e *ControlError) Unwrap() error {
	return e.Err
}

// Is matches ErrControl.
func (e *ControlError) Is(target error) bool {
	return target == ErrControl
}
