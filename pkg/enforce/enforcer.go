package enforce

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/binding"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/compliance"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

// DefaultPolicyPath is enforced when a request names no policy.
const DefaultPolicyPath = "risks.oscal.yaml"

// Enforcement statuses recorded in metrics.
const (
	StatusPassed = "passed"
	StatusFailed = "failed"
	StatusError  = "error"
)

// ErrNoSession is returned when Enforce is called without a session.
var ErrNoSession = errors.New("enforce: nil session")

// Request describes one enforcement run. Exactly one of Data and Metrics is
// normally set; Data wins when both are.
type Request struct {
	// Policies are policy file paths.
	Policies []string

	// Documents are already-decoded policy documents, loaded after Policies.
	Documents []any

	// Data is evaluated with the registered metrics.
	Data *dataset.Frame

	// Metrics are precomputed values keyed by metric key.
	Metrics map[string]float64

	// Target and Prediction name the label and model-output columns. When a
	// name is not a column the role is discovered through the synonym table.
	Target     string
	Prediction string

	// Attributes are extra role to column bindings, e.g. dimension=gender.
	Attributes map[string]string

	Strict bool
}

// Enforcer loads policies and evaluates them for a session.
type Enforcer struct {
	loader    *policy.Loader
	evaluator *compliance.Evaluator
	sinks     []ResultSink
	events    *telemetry.EventPublisher
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	logger    zerolog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithSink adds a result sink.
func WithSink(sink ResultSink) Option {
	return func(e *Enforcer) {
		if sink != nil {
			e.sinks = append(e.sinks, sink)
		}
	}
}

// WithEvents publishes control and enforcement events.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(e *Enforcer) {
		e.events = ep
	}
}

// WithMetrics records policy loads and enforcement outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Enforcer) {
		e.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Enforcer) {
		e.tracer = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// NewEnforcer creates an enforcer. Nil arguments select defaults.
func NewEnforcer(loader *policy.Loader, evaluator *compliance.Evaluator, opts ...Option) *Enforcer {
	e := &Enforcer{
		loader:    loader,
		evaluator: evaluator,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = policy.NewLoader(e.logger)
	}
	if e.evaluator == nil {
		e.evaluator = compliance.NewEvaluator(compliance.WithLogger(e.logger))
	}
	if e.tracer == nil {
		e.tracer = telemetry.NoopTracer()
	}
	e.logger = e.logger.With().Str("component", "enforcer").Logger()
	return e
}

// Enforce evaluates every policy of req and records the results in session.
//
// A missing policy file is logged and skipped. Other load failures are
// returned in strict mode and skipped otherwise. Strict evaluation errors are
// returned. Sink failures are logged and never fail the run.
func (e *Enforcer) Enforce(ctx context.Context, session *Session, req Request) ([]compliance.ComplianceResult, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	session.MarkEnforced()

	ctx, span := e.tracer.StartEnforcementSpan(ctx, session.ID())
	defer span.End()

	start := time.Now()
	logger := e.logger.With().Str("session_id", session.ID()).Logger()

	sources := make([]policy.Source, 0, len(req.Policies)+len(req.Documents))
	for _, p := range req.Policies {
		sources = append(sources, policy.FromPath(p))
	}
	for _, d := range req.Documents {
		sources = append(sources, policy.FromDocument(d))
	}
	if len(sources) == 0 {
		sources = append(sources, policy.FromPath(DefaultPolicyPath))
	}

	var mapping map[string]string
	if req.Data != nil {
		mapping = e.contextMapping(req)
	}

	var all []compliance.ComplianceResult
	for _, src := range sources {
		label := sourceLabel(src)
		logger.Info().Str("policy", label).Msg("Enforcing policy")

		pol, err := e.loader.Load(ctx, src)
		e.metrics.RecordPolicyLoad(err == nil)
		if err != nil {
			if policy.IsNotFound(err) {
				logger.Warn().Str("policy", label).Msg("Policy file not found")
				continue
			}
			if req.Strict {
				e.fail(span, err)
				return nil, fmt.Errorf("failed to load policy %s: %w", label, err)
			}
			logger.Warn().Err(err).Str("policy", label).Msg("Failed to load policy")
			continue
		}

		e.publishLoaded(session.ID(), pol)

		var results []compliance.ComplianceResult
		switch {
		case req.Data != nil:
			results, err = e.evaluator.ComputeAndEvaluate(ctx, pol, req.Data, mapping, req.Strict)
			if err != nil {
				e.fail(span, err)
				return nil, fmt.Errorf("policy %q: %w", pol.Title, err)
			}
		case req.Metrics != nil:
			results = e.evaluator.Evaluate(pol, req.Metrics)
		}

		if len(results) == 0 {
			logger.Warn().Str("policy", label).Msg("No applicable controls found")
			continue
		}

		session.record(results)
		all = append(all, results...)
		e.publishFailures(session.ID(), results)
		e.persist(ctx, logger, session.ID(), pol.Title, results)

		summary := compliance.Summarize(results)
		logger.Info().
			Str("policy", pol.Title).
			Int("total", summary.Total).
			Int("passed", summary.Passed).
			Int("failed", summary.Failed).
			Msg("Policy enforced")
	}

	summary := compliance.Summarize(all)
	status := StatusPassed
	if summary.Failed > 0 {
		status = StatusFailed
	}
	e.metrics.RecordEnforcement(status)
	if err := e.events.PublishEnforcementCompleted(session.ID(), summary.Total, summary.Failed, time.Since(start)); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish enforcement event")
	}
	telemetry.RecordSuccess(span)

	return all, nil
}

// contextMapping binds target and prediction, discovering them through the
// synonym table when the requested names are not columns, then layers the
// request attributes on top.
func (e *Enforcer) contextMapping(req Request) map[string]string {
	columns := req.Data.Columns()
	binder := e.evaluator.Binder()
	mapping := make(map[string]string, 2+len(req.Attributes))

	bind := func(role, requested string) {
		if requested == "" {
			requested = role
		}
		if req.Data.Has(requested) {
			mapping[role] = requested
			return
		}
		if col := binder.Resolve(role, nil, columns); col != binding.Missing {
			mapping[role] = col
		}
	}
	bind(metrics.RoleTarget, req.Target)
	bind(metrics.RolePrediction, req.Prediction)

	for role, col := range req.Attributes {
		mapping[role] = col
	}
	return mapping
}

func (e *Enforcer) publishFailures(sessionID string, results []compliance.ComplianceResult) {
	for _, r := range results {
		if r.Passed {
			continue
		}
		if err := e.events.PublishControlFailed(sessionID, r.ControlID, string(r.Severity), r.Actual(), r.Threshold, r.Operator); err != nil {
			e.logger.Warn().Err(err).Str("control_id", r.ControlID).Msg("Failed to publish control event")
		}
	}
}

func (e *Enforcer) publishLoaded(sessionID string, pol *policy.Policy) {
	err := e.events.Publish(telemetry.Event{
		Type:      telemetry.EventTypePolicyLoaded,
		Source:    "enforcer",
		SessionID: sessionID,
		Message:   fmt.Sprintf("Policy %q loaded with %d controls", pol.Title, len(pol.Controls)),
		Data: map[string]interface{}{
			"title":    pol.Title,
			"source":   pol.Source,
			"controls": len(pol.Controls),
		},
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to publish policy event")
	}
}

func (e *Enforcer) persist(ctx context.Context, logger zerolog.Logger, sessionID, title string, results []compliance.ComplianceResult) {
	for _, sink := range e.sinks {
		if err := sink.SaveResults(ctx, sessionID, title, results); err != nil {
			logger.Warn().Err(err).Str("policy", title).Msg("Failed to persist results")
		}
	}
}

func (e *Enforcer) fail(span trace.Span, err error) {
	telemetry.RecordError(span, err)
	e.metrics.RecordEnforcement(StatusError)
}

func sourceLabel(src policy.Source) string {
	if src.Path != "" {
		return src.Path
	}
	return "<document>"
}
