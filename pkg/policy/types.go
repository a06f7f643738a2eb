package policy

import "strings"

// Severity represents how serious a failed control is.
type Severity string

const (
	// SeverityLow is the default severity for controls that do not declare one.
	SeverityLow Severity = "low"

	// SeverityMedium marks controls that should be reviewed when they fail.
	SeverityMedium Severity = "medium"

	// SeverityHigh marks controls whose failure should block a release.
	SeverityHigh Severity = "high"

	// SeverityCritical marks controls that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severity levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// Rank orders severities from low (0) to critical (3). Unknown values rank as low.
func (s Severity) Rank() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Control is one governance rule: a metric, a threshold, a comparison operator
// and the role bindings the metric needs. Controls are values and are never
// modified after the loader returns them.
type Control struct {
	// ID identifies the control. Uniqueness within a policy is not enforced.
	ID string `json:"id" yaml:"id"`

	// Description is a human-readable summary of the rule.
	Description string `json:"description" yaml:"description"`

	// Severity defaults to "low" when the document omits it.
	Severity Severity `json:"severity" yaml:"severity"`

	// MetricKey names a function in the metric registry.
	MetricKey string `json:"metric_key" yaml:"metric_key"`

	// Threshold is the value the computed metric is compared against.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Operator is the comparison token, taken verbatim from the document.
	Operator string `json:"operator" yaml:"operator"`

	// RequiredVars lists the abstract variables a caller must supply, in
	// declaration order. Flat lists decoded from JSON or CUE, and in-memory
	// documents, have no key order and list them sorted by role.
	RequiredVars []string `json:"required_vars,omitempty" yaml:"required_vars,omitempty"`

	// InputMapping maps a metric role (e.g. "target") to the abstract
	// variable (e.g. "y") the caller binds to a column at call time.
	InputMapping Props `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`

	// Params holds static metric parameters such as "average".
	Params Props `json:"params,omitempty" yaml:"params,omitempty"`
}

// Policy is a named, ordered collection of controls.
type Policy struct {
	// Title is taken from metadata.title, the file name, or a dialect default.
	Title string `json:"title" yaml:"title"`

	// Controls are kept in the order they were encountered while parsing.
	Controls []Control `json:"controls" yaml:"controls"`

	// Source is the path the policy was loaded from, empty for in-memory documents.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// MetricKeys returns the distinct metric keys referenced by the policy in
// first-seen order.
func (p *Policy) MetricKeys() []string {
	seen := make(map[string]bool, len(p.Controls))
	keys := make([]string, 0, len(p.Controls))
	for i := range p.Controls {
		key := p.Controls[i].MetricKey
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
