package config

import (
	"time"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

// Config is the application configuration for the compliance engine and CLI.
type Config struct {
	// Strict turns skipped controls into errors.
	Strict bool `yaml:"strict" json:"strict"`

	// PolicyDir is walked for policy files when Policies is empty.
	PolicyDir string `yaml:"policy_dir,omitempty" json:"policy_dir,omitempty"`

	// Policies lists explicit policy files.
	Policies []string `yaml:"policies,omitempty" json:"policies,omitempty" validate:"dive,required"`

	// SynonymsFile extends the built-in column synonym table.
	SynonymsFile string `yaml:"synonyms_file,omitempty" json:"synonyms_file,omitempty"`

	// ScriptsDir holds Starlark metric scripts registered at startup.
	ScriptsDir string `yaml:"scripts_dir,omitempty" json:"scripts_dir,omitempty"`

	// Parallelism bounds concurrent control evaluation. 0 or 1 is sequential.
	Parallelism int `yaml:"parallelism" json:"parallelism" validate:"gte=0,lte=256"`

	// ScriptTimeout bounds a single scripted metric evaluation.
	ScriptTimeout time.Duration `yaml:"script_timeout" json:"script_timeout" validate:"gte=0"`

	Store   StoreConfig   `yaml:"store" json:"store"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// StoreConfig configures the SQLite evidence store.
type StoreConfig struct {
	// Path is the database file. Empty disables persistence.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" json:"format" validate:"oneof=console json"`
	Output string `yaml:"output" json:"output" validate:"required"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address,omitempty" json:"listen_address,omitempty" validate:"required_if=Enabled true"`
	Path          string `yaml:"path,omitempty" json:"path,omitempty" validate:"required_if=Enabled true"`
	Namespace     string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter,omitempty" json:"exporter,omitempty" validate:"omitempty,oneof=otlp stdout none"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty" validate:"required_if=Exporter otlp"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate" validate:"gte=0,lte=1"`
}

// PolicyPaths returns the explicit policy list, or the policy directory when
// no files are listed.
func (c *Config) PolicyPaths() []string {
	if len(c.Policies) > 0 {
		return c.Policies
	}
	if c.PolicyDir != "" {
		return []string{c.PolicyDir}
	}
	return nil
}

// Telemetry converts the configuration into the telemetry package's form.
func (c *Config) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version

	cfg.Logging.Level = c.Logging.Level
	cfg.Logging.Format = c.Logging.Format
	cfg.Logging.Output = c.Logging.Output

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.ListenAddress = c.Metrics.ListenAddress
	cfg.Metrics.Path = c.Metrics.Path
	if c.Metrics.Namespace != "" {
		cfg.Metrics.Namespace = c.Metrics.Namespace
	}

	cfg.Tracing.Enabled = c.Tracing.Enabled
	if c.Tracing.Exporter != "" {
		cfg.Tracing.Exporter = c.Tracing.Exporter
	}
	cfg.Tracing.Endpoint = c.Tracing.Endpoint
	cfg.Tracing.SamplingRate = c.Tracing.SamplingRate

	return cfg
}
