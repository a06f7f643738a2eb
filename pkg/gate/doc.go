// Package gate decides whether a set of compliance results may ship.
//
// Gates are Rego modules evaluated with OPA. Each module defines a deny set
// over an input document of the form
//
//	{"results": [...], "summary": {"total": 3, "passed": 2, "failed": 1, "pass_rate": 0.66, ...}}
//
// and may read its parameters from data.params. A decision is denied when any
// gate of error severity produces a deny entry. Entries may be plain strings
// or objects with message, control_id and severity fields.
//
// Built-in gates:
//
//   - no-critical-failures (enabled): any failed critical control
//   - no-high-failures: any failed high or critical control
//   - min-pass-rate: pass rate below data.params.threshold (default 1.0)
package gate
