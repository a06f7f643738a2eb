package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLoader() *Loader {
	return NewLoader(zerolog.New(nil).Level(zerolog.Disabled))
}

func findControl(p *Policy, id string) *Control {
	for i := range p.Controls {
		if p.Controls[i].ID == id {
			return &p.Controls[i]
		}
	}
	return nil
}

func TestLoadFile_EquivalentAcrossShapes(t *testing.T) {
	loader := newTestLoader()
	ctx := context.Background()

	files := []string{
		"component-definition.yaml",
		"assessment-plan.yaml",
		"catalog.json",
		"profile.yaml",
		"flat.yaml",
		"policy.cue",
	}

	for _, name := range files {
		t.Run(name, func(t *testing.T) {
			p, err := loader.LoadFile(ctx, filepath.Join("testdata", name))
			if err != nil {
				t.Fatalf("Failed to load policy: %v", err)
			}

			c := findControl(p, "credit-acc")
			if c == nil {
				t.Fatalf("control credit-acc not found in %+v", p.Controls)
			}
			if c.MetricKey != "accuracy_score" {
				t.Errorf("Expected metric_key accuracy_score, got %s", c.MetricKey)
			}
			if c.Threshold != 0.8 {
				t.Errorf("Expected threshold 0.8, got %v", c.Threshold)
			}
			if c.Operator != ">=" {
				t.Errorf("Expected operator >=, got %s", c.Operator)
			}
			if c.Severity != SeverityHigh {
				t.Errorf("Expected severity high, got %s", c.Severity)
			}
			if c.Description != "Model accuracy must reach 0.8" {
				t.Errorf("Unexpected description %q", c.Description)
			}
			if got := c.InputMapping.Get("target"); got != "target" {
				t.Errorf("Expected input mapping target->target, got %q", got)
			}
		})
	}
}

func TestLoadFile_ComponentDefinition(t *testing.T) {
	p, err := newTestLoader().LoadFile(context.Background(), filepath.Join("testdata", "component-definition.yaml"))
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if p.Title != "Credit Scoring Fairness" {
		t.Errorf("Expected title from metadata, got %q", p.Title)
	}
	if len(p.Controls) != 2 {
		t.Fatalf("Expected 2 controls, got %d", len(p.Controls))
	}

	dp := p.Controls[1]
	if dp.ID != "credit-dp" {
		t.Errorf("Expected controls in document order, got %s second", dp.ID)
	}
	if dp.Description != "Control credit-dp" {
		t.Errorf("Expected default description, got %q", dp.Description)
	}
	if dp.Severity != SeverityLow {
		t.Errorf("Expected default severity low, got %s", dp.Severity)
	}

	wantVars := []string{"target", "prediction", "gender"}
	if !reflect.DeepEqual(dp.RequiredVars, wantVars) {
		t.Errorf("Expected required vars %v, got %v", wantVars, dp.RequiredVars)
	}
	wantRoles := []string{"target", "prediction", "dimension"}
	if !reflect.DeepEqual(dp.InputMapping.Keys(), wantRoles) {
		t.Errorf("Expected roles %v, got %v", wantRoles, dp.InputMapping.Keys())
	}
	if p.Source == "" {
		t.Error("Expected source path to be recorded")
	}
}

func TestLoadFile_AssessmentPlanLinks(t *testing.T) {
	p, err := newTestLoader().LoadFile(context.Background(), filepath.Join("testdata", "assessment-plan.yaml"))
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if len(p.Controls) != 2 {
		t.Fatalf("Expected 2 controls (unknown links ignored), got %d", len(p.Controls))
	}

	quality := p.Controls[1]
	if quality.ID != "quality" || quality.MetricKey != "f1_score" {
		t.Errorf("Unexpected linked control %+v", quality)
	}
	if quality.Severity != SeverityMedium {
		t.Errorf("Expected inventory severity medium, got %s", quality.Severity)
	}
	if quality.Params.Get("average") != "macro" {
		t.Errorf("Expected param average=macro, got %q", quality.Params.Get("average"))
	}
	if len(quality.RequiredVars) != 0 {
		t.Errorf("Expected no required vars, got %v", quality.RequiredVars)
	}
}

func TestLoadFile_CatalogRecursion(t *testing.T) {
	p, err := newTestLoader().LoadFile(context.Background(), filepath.Join("testdata", "catalog.json"))
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	ids := make([]string, len(p.Controls))
	for i, c := range p.Controls {
		ids[i] = c.ID
	}
	want := []string{"credit-acc", "credit-acc.1", "unknown"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("Expected controls %v, got %v", want, ids)
	}

	nested := p.Controls[1]
	if nested.Operator != "==" {
		t.Errorf("Expected default operator ==, got %s", nested.Operator)
	}
	if nested.Threshold != 0.2 {
		t.Errorf("Expected numeric prop value 0.2, got %v", nested.Threshold)
	}
	if nested.Description != "credit-acc.1" {
		t.Errorf("Expected description to fall back to id, got %q", nested.Description)
	}

	anon := p.Controls[2]
	if anon.Params.Get("quasi_identifiers") != "age, zip" {
		t.Errorf("Expected quasi_identifiers param, got %q", anon.Params.Get("quasi_identifiers"))
	}
}

func TestLoadFile_Flat(t *testing.T) {
	p, err := newTestLoader().LoadFile(context.Background(), filepath.Join("testdata", "flat.yaml"))
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if p.Title != "Flat Policy" {
		t.Errorf("Expected title 'Flat Policy', got %q", p.Title)
	}
	if len(p.Controls) != 1 {
		t.Fatalf("Expected incomplete entry to be dropped, got %d controls", len(p.Controls))
	}
	if got := p.Controls[0].InputMapping.Keys(); !reflect.DeepEqual(got, []string{"target", "prediction"}) {
		t.Errorf("Expected flat input mapping in declaration order, got %v", got)
	}
}

func TestLoadBytes_FlatKeepsDeclarationOrder(t *testing.T) {
	data := []byte(`
- id: parity
  metric_key: demographic_parity_diff
  threshold: 0.1
  operator: "<"
  input_mapping:
    target: y
    dimension: gender
    prediction: p
  params:
    positive: "1"
    baseline: female
`)

	p, err := newTestLoader().LoadBytes(context.Background(), data, FormatYAML)
	if err != nil {
		t.Fatalf("Failed to load bytes: %v", err)
	}
	if len(p.Controls) != 1 {
		t.Fatalf("Expected 1 control, got %d", len(p.Controls))
	}

	c := p.Controls[0]
	if want := []string{"y", "gender", "p"}; !reflect.DeepEqual(c.RequiredVars, want) {
		t.Errorf("Expected required vars %v, got %v", want, c.RequiredVars)
	}
	if want := []string{"target", "dimension", "prediction"}; !reflect.DeepEqual(c.InputMapping.Keys(), want) {
		t.Errorf("Expected roles %v, got %v", want, c.InputMapping.Keys())
	}
	if want := []string{"positive", "baseline"}; !reflect.DeepEqual(c.Params.Keys(), want) {
		t.Errorf("Expected params %v, got %v", want, c.Params.Keys())
	}

	// JSON objects carry no key order once decoded.
	jsonData := []byte(`[{"id": "parity", "metric_key": "demographic_parity_diff", "threshold": 0.1, "operator": "<",
		"input_mapping": {"target": "y", "dimension": "gender", "prediction": "p"}}]`)
	p, err = newTestLoader().LoadBytes(context.Background(), jsonData, FormatJSON)
	if err != nil {
		t.Fatalf("Failed to load bytes: %v", err)
	}
	if want := []string{"gender", "p", "y"}; !reflect.DeepEqual(p.Controls[0].RequiredVars, want) {
		t.Errorf("Expected required vars sorted by role %v, got %v", want, p.Controls[0].RequiredVars)
	}
}

func TestLoadFile_TitleFallsBackToStem(t *testing.T) {
	p, err := newTestLoader().LoadFile(context.Background(), filepath.Join("testdata", "profile.yaml"))
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if p.Title != "profile" {
		t.Errorf("Expected file stem title, got %q", p.Title)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	loader := newTestLoader()
	ctx := context.Background()

	tests := []struct {
		name     string
		path     string
		sentinel error
		check    func(*testing.T, error)
	}{
		{
			name:     "missing file",
			path:     filepath.Join("testdata", "does-not-exist.yaml"),
			sentinel: ErrNotFound,
		},
		{
			name:     "unknown root",
			path:     filepath.Join("testdata", "unknown-root.yaml"),
			sentinel: ErrFormat,
		},
		{
			name:     "empty document",
			path:     filepath.Join("testdata", "empty.yaml"),
			sentinel: ErrFormat,
		},
		{
			name:     "non-numeric threshold",
			path:     filepath.Join("testdata", "bad-threshold.yaml"),
			sentinel: ErrFormat,
			check: func(t *testing.T, err error) {
				var ferr *FormatError
				if !errors.As(err, &ferr) {
					t.Fatalf("Expected *FormatError, got %T", err)
				}
				if ferr.ControlID != "broken" {
					t.Errorf("Expected error to name control 'broken', got %q", ferr.ControlID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.LoadFile(ctx, tt.path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected errors.Is(err, %v), got %v", tt.sentinel, err)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestLoad_Idempotent(t *testing.T) {
	loader := newTestLoader()
	ctx := context.Background()
	src := FromPath(filepath.Join("testdata", "assessment-plan.yaml"))

	first, err := loader.Load(ctx, src)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	second, err := loader.Load(ctx, src)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected structurally equal policies:\n%+v\n%+v", first, second)
	}

	// Mutating a returned policy must not leak into the cache.
	first.Controls[0].Threshold = 42
	third, _ := loader.Load(ctx, src)
	if third.Controls[0].Threshold == 42 {
		t.Error("Cached policy was mutated through a returned value")
	}

	loader.ClearCache()
	fourth, err := loader.Load(ctx, src)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if !reflect.DeepEqual(second, fourth) {
		t.Error("Expected reload after ClearCache to be structurally equal")
	}
}

func TestLoadDocument(t *testing.T) {
	loader := newTestLoader()
	ctx := context.Background()

	t.Run("embedded title", func(t *testing.T) {
		doc := map[string]any{
			"catalog": map[string]any{
				"controls": []any{
					map[string]any{
						"id": "c1",
						"props": []any{
							map[string]any{"name": "metric_key", "value": "accuracy_score"},
							map[string]any{"name": "threshold", "value": "0.5"},
						},
					},
				},
			},
		}

		p, err := loader.Load(ctx, FromDocument(doc))
		if err != nil {
			t.Fatalf("Failed to load document: %v", err)
		}
		if p.Title != "Embedded Policy" {
			t.Errorf("Expected 'Embedded Policy', got %q", p.Title)
		}
		if len(p.Controls) != 1 || p.Controls[0].Threshold != 0.5 {
			t.Errorf("Unexpected controls %+v", p.Controls)
		}
	})

	t.Run("flat list", func(t *testing.T) {
		doc := []any{
			map[string]any{"id": "x", "metric_key": "m", "threshold": 1, "operator": "gt"},
		}
		p, err := loader.LoadDocument(ctx, doc)
		if err != nil {
			t.Fatalf("Failed to load document: %v", err)
		}
		if p.Title != "Flat Policy" || len(p.Controls) != 1 {
			t.Errorf("Unexpected policy %+v", p)
		}
		if p.Controls[0].Severity != SeverityLow {
			t.Errorf("Expected default severity low, got %s", p.Controls[0].Severity)
		}
	})

	t.Run("root key order", func(t *testing.T) {
		doc := map[string]any{
			"catalog":         map[string]any{"metadata": map[string]any{"title": "from catalog"}},
			"assessment-plan": map[string]any{"metadata": map[string]any{"title": "from plan"}},
		}
		p, err := loader.LoadDocument(ctx, doc)
		if err != nil {
			t.Fatalf("Failed to load document: %v", err)
		}
		if p.Title != "from plan" {
			t.Errorf("Expected assessment-plan to win, got %q", p.Title)
		}
	})

	t.Run("scalar document", func(t *testing.T) {
		_, err := loader.LoadDocument(ctx, "just a string")
		if !errors.Is(err, ErrFormat) {
			t.Errorf("Expected format error, got %v", err)
		}
	})

	t.Run("root not a mapping", func(t *testing.T) {
		_, err := loader.LoadDocument(ctx, map[string]any{"catalog": []any{}})
		if !errors.Is(err, ErrFormat) {
			t.Errorf("Expected format error, got %v", err)
		}
	})
}

func TestLoadBytes(t *testing.T) {
	data := []byte(`[{"id": "a", "metric_key": "accuracy_score", "threshold": "0.9", "operator": "ge"}]`)

	p, err := newTestLoader().LoadBytes(context.Background(), data, FormatJSON)
	if err != nil {
		t.Fatalf("Failed to load bytes: %v", err)
	}
	if len(p.Controls) != 1 || p.Controls[0].Threshold != 0.9 {
		t.Errorf("Unexpected policy %+v", p)
	}

	if _, err := newTestLoader().LoadBytes(context.Background(), []byte("{"), FormatJSON); !errors.Is(err, ErrFormat) {
		t.Errorf("Expected format error for malformed JSON, got %v", err)
	}
}

func TestLoadFromPaths(t *testing.T) {
	loader := newTestLoader()
	ctx := context.Background()

	dir := t.TempDir()
	copyFile(t, filepath.Join("testdata", "component-definition.yaml"), filepath.Join(dir, "a.yaml"))
	copyFile(t, filepath.Join("testdata", "flat.yaml"), filepath.Join(dir, "nested", "b.yml"))
	copyFile(t, filepath.Join("testdata", "unknown-root.yaml"), filepath.Join(dir, "broken.yaml"))
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# not a policy"), 0644); err != nil {
		t.Fatal(err)
	}

	policies, err := loader.LoadFromPaths(ctx, []string{dir, filepath.Join("testdata", "catalog.json")})
	if err != nil {
		t.Fatalf("Failed to load from paths: %v", err)
	}
	if len(policies) != 3 {
		t.Fatalf("Expected 3 policies (broken file skipped), got %d", len(policies))
	}

	_, err = loader.LoadFromPaths(ctx, []string{filepath.Join(dir, "missing")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	loader := newTestLoader()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	copyFile(t, filepath.Join("testdata", "flat.yaml"), path)

	var mu sync.Mutex
	var reloaded []*Policy
	done := make(chan struct{}, 1)

	err := loader.Watch(ctx, []string{dir}, func(policies []*Policy) error {
		mu.Lock()
		reloaded = policies
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}
	defer loader.StopWatching()

	copyFile(t, filepath.Join("testdata", "component-definition.yaml"), path)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reloaded) != 1 || reloaded[0].Title != "Credit Scoring Fairness" {
		t.Errorf("Expected reloaded component definition, got %+v", reloaded)
	}
}

func TestStopWatching_CancelsPendingReload(t *testing.T) {
	loader := newTestLoader()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	copyFile(t, filepath.Join("testdata", "flat.yaml"), path)

	var mu sync.Mutex
	reloads := 0
	err := loader.Watch(ctx, []string{dir}, func([]*Policy) error {
		mu.Lock()
		reloads++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to start watching: %v", err)
	}

	copyFile(t, filepath.Join("testdata", "component-definition.yaml"), path)

	// Let the write event arm the reload timer, then stop before it fires.
	time.Sleep(100 * time.Millisecond)
	if err := loader.StopWatching(); err != nil {
		t.Fatalf("Failed to stop watching: %v", err)
	}
	time.Sleep(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if reloads != 0 {
		t.Errorf("Expected no reload after StopWatching, got %d", reloads)
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", dst, err)
	}
}
