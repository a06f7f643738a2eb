package gate

import (
	"time"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
)

// Severity decides whether a gate's violations block a release.
type Severity string

const (
	// SeverityWarning violations are reported but do not block.
	SeverityWarning Severity = "warning"

	// SeverityError violations deny the release.
	SeverityError Severity = "error"
)

// Gate is a Rego release rule evaluated over compliance results.
type Gate struct {
	// Name is the unique name of the gate.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego module. Its package must define a deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the gate is evaluated.
	Enabled bool `json:"enabled"`

	// Params are exposed to the module as data.params.
	Params map[string]interface{} `json:"params,omitempty"`

	// Source is the file the gate was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// Violation is one deny message produced by a gate.
type Violation struct {
	Gate      string   `json:"gate"`
	ControlID string   `json:"control_id,omitempty"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

// Decision is the outcome of evaluating every enabled gate.
type Decision struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists gates that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedGates lists the names of gates that were evaluated.
	EvaluatedGates []string `json:"evaluated_gates"`

	Summary     compliance.Summary `json:"summary"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
	Duration    time.Duration      `json:"duration"`
}

// Input is the document gates see as input.
type Input struct {
	Results []compliance.ComplianceResult `json:"results"`
	Summary compliance.Summary            `json:"summary"`
}
