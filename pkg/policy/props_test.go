package policy

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestProps_OrderAndOverride(t *testing.T) {
	var p Props
	p.Set("input:target", "y")
	p.Set("input:prediction", "y_hat")
	p.Set("severity", "high")
	p.Set("input:target", "label")

	if got := p.Keys(); !reflect.DeepEqual(got, []string{"input:target", "input:prediction", "severity"}) {
		t.Errorf("Expected later duplicate to keep first position, got %v", got)
	}
	if p.Get("input:target") != "label" {
		t.Errorf("Expected later duplicate to win, got %q", p.Get("input:target"))
	}
	if p.Len() != 3 {
		t.Errorf("Expected 3 props, got %d", p.Len())
	}

	inputs := p.WithPrefix("input:")
	if got := inputs.Keys(); !reflect.DeepEqual(got, []string{"target", "prediction"}) {
		t.Errorf("Unexpected prefixed keys %v", got)
	}

	if _, ok := p.Lookup("missing"); ok {
		t.Error("Expected missing key lookup to fail")
	}
	if p.GetOr("missing", "fallback") != "fallback" {
		t.Error("Expected fallback for missing key")
	}
}

func TestProps_Float(t *testing.T) {
	p := NewProps(Prop{Name: "threshold", Value: " 0.25 "}, Prop{Name: "bad", Value: "x"})

	f, ok, err := p.Float("threshold")
	if err != nil || !ok || f != 0.25 {
		t.Errorf("Float(threshold) = %v, %v, %v", f, ok, err)
	}
	if _, ok, err := p.Float("missing"); ok || err != nil {
		t.Errorf("Expected missing key to report absent without error")
	}
	if _, _, err := p.Float("bad"); err == nil {
		t.Error("Expected parse error for non-numeric value")
	}
}

func TestProps_Encoding(t *testing.T) {
	p := NewProps(Prop{Name: "z", Value: "1"}, Prop{Name: "a", Value: "2"})

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if string(data) != `{"z":"1","a":"2"}` {
		t.Errorf("Expected insertion order in JSON, got %s", data)
	}

	var decoded Props
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if !reflect.DeepEqual(decoded.Keys(), []string{"z", "a"}) {
		t.Errorf("Expected JSON key order preserved, got %v", decoded.Keys())
	}

	var fromYAML Props
	if err := yaml.Unmarshal([]byte("z: 1\na: two\n"), &fromYAML); err != nil {
		t.Fatalf("Failed to unmarshal YAML: %v", err)
	}
	if !reflect.DeepEqual(fromYAML.Map(), map[string]string{"z": "1", "a": "two"}) {
		t.Errorf("Unexpected YAML props %v", fromYAML.Map())
	}
}
