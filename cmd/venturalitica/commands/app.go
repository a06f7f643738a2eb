package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/binding"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/config"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/enforce"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics/script"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/stores"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

// errNoStore is returned by commands that read the evidence store when none
// is configured.
var errNoStore = errors.New("no evidence store configured (set store.path or VENTURALITICA_STORE_PATH)")

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	tel       *telemetry.Telemetry
	logger    zerolog.Logger
	registry  *metrics.Registry
	loader    *policy.Loader
	evaluator *compliance.Evaluator
	store     *stores.SQLiteStore
}

func newApp(ctx context.Context, version string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	tel, err := telemetry.NewTelemetry(cfg.Telemetry(version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	tel.StartMetricsServer()

	a := &app{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.Zerolog(),
	}

	a.registry = metrics.NewRegistry()
	metrics.RegisterBuiltins(a.registry)
	if cfg.ScriptsDir != "" {
		keys, err := script.LoadDir(cfg.ScriptsDir, a.registry, cfg.ScriptTimeout, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.logger.Debug().Strs("metrics", keys).Msg("Loaded script metrics")
	}
	a.registry.Freeze()

	synonyms := binding.DefaultSynonyms()
	if cfg.SynonymsFile != "" {
		synonyms, err = binding.LoadSynonyms(cfg.SynonymsFile)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	a.loader = policy.NewLoader(a.logger)
	a.evaluator = compliance.NewEvaluator(
		compliance.WithRegistry(a.registry),
		compliance.WithSynonyms(synonyms),
		compliance.WithLogger(a.logger),
		compliance.WithParallelism(cfg.Parallelism),
		compliance.WithMetrics(tel.Metrics),
		compliance.WithTracer(tel.Tracer),
	)

	if cfg.Store.Path != "" {
		if err := a.openStore(ctx); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if dir := filepath.Dir(a.cfg.Store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: a.cfg.Store.Path})
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return err
	}
	a.store = store
	return nil
}

// enforcer builds an enforcer persisting to the results file and, when
// configured, the evidence store.
func (a *app) enforcer(resultsFile string) *enforce.Enforcer {
	opts := []enforce.Option{
		enforce.WithLogger(a.logger),
		enforce.WithMetrics(a.tel.Metrics),
		enforce.WithTracer(a.tel.Tracer),
		enforce.WithEvents(a.tel.Events),
	}
	if resultsFile != "" {
		opts = append(opts, enforce.WithSink(enforce.NewFileSink(resultsFile)))
	}
	if a.store != nil {
		opts = append(opts, enforce.WithSink(a.store))
	}
	return enforce.NewEnforcer(a.loader, a.evaluator, opts...)
}

func (a *app) audit(ctx context.Context, action, target string, details any) {
	if a.store == nil {
		return
	}
	entry := &stores.AuditEntry{Action: action, Actor: actor()}
	if target != "" {
		entry.TargetID = &target
	}
	if details != nil {
		if s, err := encodeJSON(details); err == nil {
			entry.Details = &s
		}
	}
	if err := a.store.RecordAudit(ctx, entry); err != nil {
		a.logger.Warn().Err(err).Str("action", action).Msg("Failed to record audit entry")
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// policyPaths returns the explicit paths, or the configured ones. Directories
// are expanded to the policy files they contain.
func (a *app) policyPaths(explicit []string) ([]string, error) {
	paths := explicit
	if len(paths) == 0 {
		paths = a.cfg.PolicyPaths()
	}
	return expandPolicyPaths(paths)
}

func expandPolicyPaths(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			// Missing files are reported by the enforcer.
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := policy.FormatForPath(path); ok {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk policy directory %s: %w", p, err)
		}
	}
	return out, nil
}

func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
