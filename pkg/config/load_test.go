package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venturalitica.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{EnvStrict, EnvCI, EnvLogLevel, EnvStorePath} {
		t.Setenv(name, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}

	if cfg.Strict {
		t.Error("expected strict to be off by default")
	}
	if cfg.Parallelism != 1 {
		t.Errorf("expected parallelism 1, got %d", cfg.Parallelism)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
	if cfg.ScriptTimeout != 5*time.Second {
		t.Errorf("expected script timeout 5s, got %v", cfg.ScriptTimeout)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
strict: true
policies:
  - policies/fairness.yaml
synonyms_file: synonyms.yaml
parallelism: 4
script_timeout: 2s
store:
  path: evidence.db
logging:
  level: debug
  format: json
  output: stdout
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Strict {
		t.Error("expected strict mode")
	}
	if got := cfg.PolicyPaths(); len(got) != 1 || got[0] != "policies/fairness.yaml" {
		t.Errorf("unexpected policy paths: %v", got)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("expected parallelism 4, got %d", cfg.Parallelism)
	}
	if cfg.ScriptTimeout != 2*time.Second {
		t.Errorf("expected script timeout 2s, got %v", cfg.ScriptTimeout)
	}
	if cfg.Store.Path != "evidence.db" {
		t.Errorf("expected store path evidence.db, got %s", cfg.Store.Path)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected json format, got %s", cfg.Logging.Format)
	}
	// Untouched sections keep their defaults.
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("expected default metrics path, got %s", cfg.Metrics.Path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantStrict bool
		wantLevel  string
		wantStore  string
	}{
		{
			name:       "no overrides",
			env:        map[string]string{},
			wantStrict: false,
			wantLevel:  "info",
		},
		{
			name:       "explicit strict",
			env:        map[string]string{EnvStrict: "true"},
			wantStrict: true,
			wantLevel:  "info",
		},
		{
			name:       "ci enables strict",
			env:        map[string]string{EnvCI: "true"},
			wantStrict: true,
			wantLevel:  "info",
		},
		{
			name:       "non-boolean strict ignored",
			env:        map[string]string{EnvStrict: "yes please"},
			wantStrict: false,
			wantLevel:  "info",
		},
		{
			name:       "log level and store",
			env:        map[string]string{EnvLogLevel: "DEBUG", EnvStorePath: "/tmp/ev.db"},
			wantStrict: false,
			wantLevel:  "debug",
			wantStore:  "/tmp/ev.db",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("failed to load config: %v", err)
			}
			if cfg.Strict != tt.wantStrict {
				t.Errorf("expected strict=%v, got %v", tt.wantStrict, cfg.Strict)
			}
			if cfg.Logging.Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, cfg.Logging.Level)
			}
			if cfg.Store.Path != tt.wantStore {
				t.Errorf("expected store %q, got %q", tt.wantStore, cfg.Store.Path)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "strict: [\n"},
		{name: "unknown key", content: "polices: []\n"},
		{name: "bad exporter", content: "tracing:\n  enabled: true\n  exporter: jaeger\n"},
		{name: "otlp without endpoint", content: "tracing:\n  enabled: true\n  exporter: otlp\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EnvLogLevelValidated(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "chatty")

	if _, err := Load(""); err == nil {
		t.Error("expected invalid log level from environment to fail validation")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestConfig_Telemetry(t *testing.T) {
	cfg := Default()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"

	tc := cfg.Telemetry("1.2.3")
	if tc.ServiceVersion != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", tc.ServiceVersion)
	}
	if tc.Metrics.Namespace != "venturalitica" {
		t.Errorf("expected namespace venturalitica, got %s", tc.Metrics.Namespace)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "stdout" {
		t.Errorf("unexpected tracing config: %+v", tc.Tracing)
	}
}
