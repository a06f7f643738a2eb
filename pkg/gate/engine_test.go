package gate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func result(id string, severity policy.Severity, passed bool) compliance.ComplianceResult {
	actual := 0.5
	return compliance.ComplianceResult{
		ControlID:   id,
		MetricKey:   "accuracy_score",
		Threshold:   0.8,
		ActualValue: &actual,
		Operator:    ">=",
		Passed:      passed,
		Severity:    severity,
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	gates := eng.ListGates()
	want := []string{GateMinPassRate, GateNoCriticalFailures, GateNoHighFailures}
	if len(gates) != len(want) {
		t.Fatalf("got %d gates, want %d", len(gates), len(want))
	}
	for i, g := range gates {
		if g.Name != want[i] {
			t.Errorf("gate %d = %s, want %s", i, g.Name, want[i])
		}
	}

	g, err := eng.GetGate(GateNoHighFailures)
	if err != nil {
		t.Fatalf("GetGate() error = %v", err)
	}
	if g.Enabled {
		t.Error("no-high-failures should be disabled by default")
	}
}

func TestEvaluate_BuiltinGates(t *testing.T) {
	tests := []struct {
		name        string
		results     []compliance.ComplianceResult
		enable      []string
		wantAllowed bool
		wantDenied  []string
	}{
		{
			name:        "all passed",
			results:     []compliance.ComplianceResult{result("c1", policy.SeverityCritical, true)},
			wantAllowed: true,
		},
		{
			name:        "no results",
			wantAllowed: true,
		},
		{
			name:        "critical failure",
			results:     []compliance.ComplianceResult{result("c1", policy.SeverityCritical, false)},
			wantAllowed: false,
			wantDenied:  []string{"c1"},
		},
		{
			name:        "high failure with default gates",
			results:     []compliance.ComplianceResult{result("c1", policy.SeverityHigh, false)},
			wantAllowed: true,
		},
		{
			name: "high failure with high gate",
			results: []compliance.ComplianceResult{
				result("c2", policy.SeverityHigh, false),
				result("c1", policy.SeverityLow, false),
			},
			enable:      []string{GateNoHighFailures},
			wantAllowed: false,
			wantDenied:  []string{"c2"},
		},
		{
			name: "pass rate",
			results: []compliance.ComplianceResult{
				result("c1", policy.SeverityLow, true),
				result("c2", policy.SeverityLow, false),
			},
			enable:      []string{GateMinPassRate},
			wantAllowed: false,
			wantDenied:  []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			for _, name := range tt.enable {
				if err := eng.EnableGate(name); err != nil {
					t.Fatalf("EnableGate() error = %v", err)
				}
			}

			d, err := eng.Evaluate(context.Background(), tt.results)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if len(d.Errors) > 0 {
				t.Fatalf("gate errors: %v", d.Errors)
			}
			if d.Allowed != tt.wantAllowed {
				t.Errorf("Allowed = %v, want %v (violations %+v)", d.Allowed, tt.wantAllowed, d.Violations)
			}
			if len(d.Violations) != len(tt.wantDenied) {
				t.Fatalf("got %d violations, want %d: %+v", len(d.Violations), len(tt.wantDenied), d.Violations)
			}
			for i, v := range d.Violations {
				if v.ControlID != tt.wantDenied[i] {
					t.Errorf("violation %d control = %q, want %q", i, v.ControlID, tt.wantDenied[i])
				}
				if v.Message == "" {
					t.Errorf("violation %d has no message", i)
				}
			}
		})
	}
}

func TestSetParam_MinPassRate(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.EnableGate(GateMinPassRate); err != nil {
		t.Fatalf("EnableGate() error = %v", err)
	}
	if err := eng.SetParam(context.Background(), GateMinPassRate, "threshold", 0.5); err != nil {
		t.Fatalf("SetParam() error = %v", err)
	}

	results := []compliance.ComplianceResult{
		result("c1", policy.SeverityLow, true),
		result("c2", policy.SeverityLow, false),
	}
	d, err := eng.Evaluate(context.Background(), results)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("50%% pass rate should satisfy a 0.5 threshold: %+v", d.Violations)
	}

	g, _ := eng.GetGate(GateMinPassRate)
	if !g.Enabled {
		t.Error("SetParam should keep the gate enabled")
	}

	if err := eng.SetParam(context.Background(), "missing", "k", 1); err == nil {
		t.Error("SetParam on an unknown gate should fail")
	}
}

func TestLoadGates(t *testing.T) {
	dir := t.TempDir()
	rego := `# Controls tagged as experimental must not fail.
package custom.experimental

import rego.v1

deny contains msg if {
	some r in input.results
	not r.passed
	startswith(r.control_id, "exp-")
	msg := sprintf("experimental control %s failed", [r.control_id])
}
`
	if err := os.WriteFile(filepath.Join(dir, "experimental.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}
	warn := `{"name": "advisory", "severity": "warning", "rego": "package custom.advisory\n\nimport rego.v1\n\ndeny contains \"advisory only\" if { input.summary.failed > 0 }\n"}`
	if err := os.WriteFile(filepath.Join(dir, "advisory.json"), []byte(warn), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "experimental_test.rego"), []byte("not rego"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadGates(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadGates() error = %v", err)
	}

	g, err := eng.GetGate("experimental")
	if err != nil {
		t.Fatalf("GetGate() error = %v", err)
	}
	if g.Description != "Controls tagged as experimental must not fail." {
		t.Errorf("Description = %q", g.Description)
	}

	d, err := eng.Evaluate(context.Background(), []compliance.ComplianceResult{
		result("exp-1", policy.SeverityLow, false),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if d.Allowed {
		t.Error("custom gate should deny")
	}
	if len(d.Violations) != 1 || d.Violations[0].Message != "experimental control exp-1 failed" {
		t.Errorf("unexpected violations: %+v", d.Violations)
	}
	if len(d.Warnings) != 1 || d.Warnings[0].Gate != "advisory" {
		t.Errorf("unexpected warnings: %+v", d.Warnings)
	}

	if err := eng.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := eng.GetGate("experimental"); err == nil {
		t.Error("Reset should drop custom gates")
	}
}

func TestAddGate_Invalid(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.AddGate(context.Background(), Gate{Name: "broken", Rego: "package x\n deny contains"}); err == nil {
		t.Error("AddGate should reject invalid Rego")
	}
	if err := eng.AddGate(context.Background(), Gate{Rego: "package x"}); err == nil {
		t.Error("AddGate should reject a gate without a name")
	}
}

func TestEnableDisableGate(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.DisableGate(GateNoCriticalFailures); err != nil {
		t.Fatalf("DisableGate() error = %v", err)
	}

	d, err := eng.Evaluate(context.Background(), []compliance.ComplianceResult{
		result("c1", policy.SeverityCritical, false),
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.Allowed || len(d.EvaluatedGates) != 0 {
		t.Errorf("disabled gates should not run: %+v", d)
	}

	if err := eng.EnableGate("nope"); err == nil {
		t.Error("EnableGate on an unknown gate should fail")
	}
}

func TestEvaluate_PublishesDenied(t *testing.T) {
	ep, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}
	var denied int
	ep.Subscribe(func(telemetry.Event) { denied++ }, telemetry.FilterByType(telemetry.EventTypeGateDenied))

	eng := newTestEngine(t, WithEvents(ep))
	if _, err := eng.Evaluate(context.Background(), []compliance.ComplianceResult{
		result("c1", policy.SeverityCritical, false),
	}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if denied != 1 {
		t.Errorf("published %d gate.denied events, want 1", denied)
	}
}
