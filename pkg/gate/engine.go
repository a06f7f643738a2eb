package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

// Engine evaluates release gates over compliance results.
type Engine struct {
	mu      sync.RWMutex
	gates   map[string]*compiledGate
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// compiledGate is a gate with its prepared deny query.
type compiledGate struct {
	gate     *Gate
	module   *ast.Module
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records gate decisions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithEvents publishes a gate.denied event for every denied decision.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(e *Engine) {
		e.events = ep
	}
}

// NewEngine creates a gate engine with the built-in gates loaded.
func NewEngine(logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		gates:  make(map[string]*compiledGate),
		logger: logger.With().Str("component", "release-gate").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	builtins := BuiltinGates()
	for i := range builtins {
		if err := e.compileAndStore(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in gate %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in gates loaded")
	return e, nil
}

// Evaluate runs every enabled gate over results.
func (e *Engine) Evaluate(ctx context.Context, results []compliance.ComplianceResult) (*Decision, error) {
	startTime := time.Now()

	input, err := buildInput(results)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	gates := make([]*compiledGate, 0, len(e.gates))
	for _, cg := range e.gates {
		if cg.gate.Enabled {
			gates = append(gates, cg)
		}
	}
	e.mu.RUnlock()
	sort.Slice(gates, func(i, j int) bool { return gates[i].gate.Name < gates[j].gate.Name })

	decision := &Decision{
		Allowed:        true,
		EvaluatedGates: make([]string, 0, len(gates)),
		Summary:        compliance.Summarize(results),
	}

	for _, cg := range gates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		decision.EvaluatedGates = append(decision.EvaluatedGates, cg.gate.Name)

		violations, err := e.evaluateGate(ctx, cg, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("gate", cg.gate.Name).
				Msg("Gate evaluation failed")
			decision.Errors = append(decision.Errors, fmt.Sprintf("gate %s evaluation failed: %v", cg.gate.Name, err))
			decision.Allowed = false
			continue
		}

		for _, v := range violations {
			if v.Severity == SeverityError {
				decision.Violations = append(decision.Violations, v)
				decision.Allowed = false
			} else {
				decision.Warnings = append(decision.Warnings, v)
			}
		}
	}

	decision.EvaluatedAt = time.Now()
	decision.Duration = time.Since(startTime)

	e.metrics.RecordGateDecision(decision.Allowed)
	if !decision.Allowed {
		e.publishDenied(decision)
	}

	e.logger.Info().
		Bool("allowed", decision.Allowed).
		Int("violations", len(decision.Violations)).
		Int("warnings", len(decision.Warnings)).
		Dur("duration", decision.Duration).
		Msg("Release gate evaluated")

	return decision, nil
}

// buildInput converts results into the plain JSON document gates see.
func buildInput(results []compliance.ComplianceResult) (map[string]interface{}, error) {
	if results == nil {
		results = []compliance.ComplianceResult{}
	}
	raw, err := json.Marshal(Input{Results: results, Summary: compliance.Summarize(results)})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gate input: %w", err)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to decode gate input: %w", err)
	}
	return input, nil
}

// evaluateGate evaluates a single compiled gate.
func (e *Engine) evaluateGate(ctx context.Context, cg *compiledGate, input map[string]interface{}) ([]Violation, error) {
	rs, err := cg.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("gate evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range rs {
		if len(result.Expressions) == 0 {
			continue
		}
		// A deny set decodes as a slice.
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, createViolation(cg.gate, d))
		}
	}

	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].ControlID < violations[j].ControlID
	})
	return violations, nil
}

// createViolation creates a Violation from a deny entry.
func createViolation(g *Gate, entry interface{}) Violation {
	v := Violation{
		Gate:     g.Name,
		Severity: g.Severity,
	}

	switch d := entry.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if id, ok := d["control_id"].(string); ok {
			v.ControlID = id
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}

	return v
}

func (e *Engine) publishDenied(d *Decision) {
	if e.events == nil {
		return
	}
	gates := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		gates = append(gates, v.Gate)
	}
	err := e.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeGateDenied,
		Source:  "release-gate",
		Message: fmt.Sprintf("Release denied: %d violations", len(d.Violations)),
		Level:   telemetry.EventLevelError,
		Data: map[string]interface{}{
			"gates":     gates,
			"errors":    d.Errors,
			"pass_rate": d.Summary.PassRate,
		},
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to publish gate event")
	}
}

// compileAndStore compiles a gate and stores it, replacing any gate with the
// same name. Callers must not hold e.mu.
func (e *Engine) compileAndStore(ctx context.Context, g *Gate) error {
	cg, err := compile(ctx, g)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.gates[g.Name] = cg
	e.mu.Unlock()

	e.logger.Debug().
		Str("gate", g.Name).
		Msg("Gate compiled successfully")
	return nil
}

func compile(ctx context.Context, g *Gate) (*compiledGate, error) {
	if g.Name == "" {
		return nil, fmt.Errorf("gate has no name")
	}
	if g.Severity == "" {
		g.Severity = SeverityError
	}

	module, err := ast.ParseModule(g.Name, g.Rego)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gate: %w", err)
	}

	params := g.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	store := inmem.NewFromObject(map[string]interface{}{"params": params})

	r := rego.New(
		rego.Module(g.Name, g.Rego),
		rego.Store(store),
		rego.Query(module.Package.Path.String()+".deny"),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare query: %w", err)
	}

	return &compiledGate{
		gate:     g,
		module:   module,
		query:    query,
		compiled: time.Now(),
	}, nil
}

// AddGate compiles and registers g.
func (e *Engine) AddGate(ctx context.Context, g Gate) error {
	return e.compileAndStore(ctx, &g)
}

// LoadGates loads custom gates from .rego and .json files or directories.
func (e *Engine) LoadGates(ctx context.Context, paths []string) error {
	gates, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load gates: %w", err)
	}

	for i := range gates {
		if err := e.compileAndStore(ctx, &gates[i]); err != nil {
			e.logger.Error().Err(err).
				Str("gate", gates[i].Name).
				Msg("Failed to compile gate")
			return fmt.Errorf("failed to compile gate %s: %w", gates[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(gates)).
		Msg("Gates loaded successfully")
	return nil
}

// GetGate returns a gate by name.
func (e *Engine) GetGate(name string) (*Gate, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cg, exists := e.gates[name]
	if !exists {
		return nil, fmt.Errorf("gate not found: %s", name)
	}
	g := *cg.gate
	return &g, nil
}

// ListGates returns all gates sorted by name.
func (e *Engine) ListGates() []Gate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	gates := make([]Gate, 0, len(e.gates))
	for _, cg := range e.gates {
		gates = append(gates, *cg.gate)
	}
	sort.Slice(gates, func(i, j int) bool { return gates[i].Name < gates[j].Name })
	return gates
}

// EnableGate enables a gate by name.
func (e *Engine) EnableGate(name string) error {
	return e.setEnabled(name, true)
}

// DisableGate disables a gate by name.
func (e *Engine) DisableGate(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cg, exists := e.gates[name]
	if !exists {
		return fmt.Errorf("gate not found: %s", name)
	}
	cg.gate.Enabled = enabled
	e.logger.Info().Str("gate", name).Bool("enabled", enabled).Msg("Gate toggled")
	return nil
}

// SetParam sets data.params.<key> for a gate and recompiles it.
func (e *Engine) SetParam(ctx context.Context, name, key string, value interface{}) error {
	e.mu.RLock()
	cg, exists := e.gates[name]
	var g Gate
	if exists {
		g = *cg.gate
	}
	e.mu.RUnlock()
	if !exists {
		return fmt.Errorf("gate not found: %s", name)
	}

	params := make(map[string]interface{}, len(g.Params)+1)
	for k, v := range g.Params {
		params[k] = v
	}
	params[key] = value
	g.Params = params

	return e.compileAndStore(ctx, &g)
}

// Reset drops custom gates and restores the built-ins.
func (e *Engine) Reset(ctx context.Context) error {
	builtins := BuiltinGates()
	compiled := make(map[string]*compiledGate, len(builtins))
	for i := range builtins {
		cg, err := compile(ctx, &builtins[i])
		if err != nil {
			return fmt.Errorf("failed to compile built-in gate %s: %w", builtins[i].Name, err)
		}
		compiled[builtins[i].Name] = cg
	}

	e.mu.Lock()
	e.gates = compiled
	e.mu.Unlock()
	return nil
}
