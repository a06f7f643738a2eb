package config

import (
	"errors"
	"testing"
)

func TestDecodeCUE(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		checkFunc func(*testing.T, any)
	}{
		{
			name: "component definition",
			content: `
"component-definition": {
	metadata: title: "CUE Policy"
	"control-implementations": [{
		"implemented-requirements": [{
			"control-id": "acc-1"
			props: [
				{name: "metric_key", value: "accuracy_score"},
				{name: "threshold", value: "0.8"},
			]
		}]
	}]
}
`,
			checkFunc: func(t *testing.T, v any) {
				root, ok := v.(map[string]any)
				if !ok {
					t.Fatalf("expected map, got %T", v)
				}
				cd, ok := root["component-definition"].(map[string]any)
				if !ok {
					t.Fatalf("expected component-definition map, got %T", root["component-definition"])
				}
				meta := cd["metadata"].(map[string]any)
				if meta["title"] != "CUE Policy" {
					t.Errorf("expected title 'CUE Policy', got %v", meta["title"])
				}
			},
		},
		{
			name: "references are resolved",
			content: `
_threshold: 0.75
catalog: controls: [{id: "c1", props: [{name: "threshold", value: "\(_threshold)"}]}]
`,
			checkFunc: func(t *testing.T, v any) {
				root := v.(map[string]any)
				catalog := root["catalog"].(map[string]any)
				controls := catalog["controls"].([]any)
				props := controls[0].(map[string]any)["props"].([]any)
				value := props[0].(map[string]any)["value"]
				if value != "0.75" {
					t.Errorf("expected interpolated threshold '0.75', got %v", value)
				}
			},
		},
		{
			name:    "invalid syntax",
			content: `catalog: {`,
			wantErr: true,
		},
		{
			name:    "non-concrete value",
			content: `catalog: title: string`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := DecodeCUE([]byte(tt.content), "policy.cue")
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCUE() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var cueErr *CUEError
				if !errors.As(err, &cueErr) {
					t.Errorf("expected *CUEError, got %T", err)
				}
				return
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, v)
			}
		})
	}
}
