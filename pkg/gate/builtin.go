package gate

// Built-in gate names.
const (
	GateNoCriticalFailures = "no-critical-failures"
	GateNoHighFailures     = "no-high-failures"
	GateMinPassRate        = "min-pass-rate"
)

// BuiltinGates returns the built-in gates. Only no-critical-failures is
// enabled by default.
func BuiltinGates() []Gate {
	return []Gate{
		noCriticalFailuresGate(),
		noHighFailuresGate(),
		minPassRateGate(),
	}
}

func noCriticalFailuresGate() Gate {
	return Gate{
		Name:        GateNoCriticalFailures,
		Description: "Denies a release when any critical control failed",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package venturalitica.gates.critical

import rego.v1

deny contains violation if {
	some r in input.results
	not r.passed
	lower(r.severity) == "critical"
	violation := {
		"message": sprintf("Critical control %s failed: %v %s %v is false", [r.control_id, r.actual_value, r.operator, r.threshold]),
		"control_id": r.control_id,
	}
}
`,
	}
}

func noHighFailuresGate() Gate {
	return Gate{
		Name:        GateNoHighFailures,
		Description: "Denies a release when any high or critical control failed",
		Severity:    SeverityError,
		Enabled:     false,
		Rego: `package venturalitica.gates.high

import rego.v1

blocking := {"high", "critical"}

deny contains violation if {
	some r in input.results
	not r.passed
	lower(r.severity) in blocking
	violation := {
		"message": sprintf("Control %s (%s) failed: %v %s %v is false", [r.control_id, r.severity, r.actual_value, r.operator, r.threshold]),
		"control_id": r.control_id,
	}
}
`,
	}
}

func minPassRateGate() Gate {
	return Gate{
		Name:        GateMinPassRate,
		Description: "Denies a release when the share of passed controls is below data.params.threshold",
		Severity:    SeverityError,
		Enabled:     false,
		Params:      map[string]interface{}{"threshold": 1.0},
		Rego: `package venturalitica.gates.pass_rate

import rego.v1

deny contains violation if {
	input.summary.total > 0
	input.summary.pass_rate < data.params.threshold
	violation := {
		"message": sprintf("Pass rate %v is below the required %v (%d of %d controls failed)", [input.summary.pass_rate, data.params.threshold, input.summary.failed, input.summary.total]),
	}
}
`,
	}
}
