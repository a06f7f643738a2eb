package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvStrict    = "VENTURALITICA_STRICT"
	EnvCI        = "CI"
	EnvLogLevel  = "VENTURALITICA_LOG_LEVEL"
	EnvStorePath = "VENTURALITICA_STORE_PATH"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Parallelism:   1,
		ScriptTimeout: 5 * time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "venturalitica",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "none",
			SamplingRate: 1.0,
		},
	}
}

// Load reads the YAML file at path on top of Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
		if err := ValidateDocument(data); err != nil {
			return nil, fmt.Errorf("configuration file %q: %w", path, err)
		}
	}

	ApplyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv applies environment overrides. CI=true enables strict mode the same
// way VENTURALITICA_STRICT=true does.
func ApplyEnv(cfg *Config) {
	if envTrue(EnvStrict) || envTrue(EnvCI) {
		cfg.Strict = true
	}
	if val := os.Getenv(EnvLogLevel); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
	if val := os.Getenv(EnvStorePath); val != "" {
		cfg.Store.Path = val
	}
}

// StrictFromEnv reports whether the environment requests strict mode.
func StrictFromEnv() bool {
	return envTrue(EnvStrict) || envTrue(EnvCI)
}

func envTrue(name string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && b
}

var validate = validator.New()

// Validate checks struct-level constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}
