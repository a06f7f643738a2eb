package compliance

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/binding"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/dataset"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/metrics"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/policy"
	"github.com/Venturalitica/venturalitica-sdk-sub000/pkg/telemetry"
)

// Evaluator computes metrics for policy controls and compares them against
// their thresholds.
type Evaluator struct {
	registry    *metrics.Registry
	synonyms    binding.Synonyms
	binder      *binding.Binder
	logger      zerolog.Logger
	metrics     *telemetry.Metrics
	tracer      *telemetry.Tracer
	parallelism int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithRegistry sets the metric registry. Defaults to metrics.Default().
func WithRegistry(r *metrics.Registry) Option {
	return func(e *Evaluator) {
		e.registry = r
	}
}

// WithSynonyms sets the role synonym table.
func WithSynonyms(s binding.Synonyms) Option {
	return func(e *Evaluator) {
		e.synonyms = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Evaluator) {
		e.tracer = t
	}
}

// WithParallelism evaluates up to n controls concurrently. Values below 2
// keep evaluation sequential.
func WithParallelism(n int) Option {
	return func(e *Evaluator) {
		e.parallelism = n
	}
}

// NewEvaluator creates an evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		logger:      zerolog.Nop(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = metrics.Default()
	}
	if e.tracer == nil {
		e.tracer = telemetry.NoopTracer()
	}
	e.binder = binding.NewBinder(e.synonyms, e.logger)
	e.logger = e.logger.With().Str("component", "compliance-evaluator").Logger()
	return e
}

// Binder returns the role binder used by the evaluator.
func (e *Evaluator) Binder() *binding.Binder {
	return e.binder
}

type outcome struct {
	result *ComplianceResult
	err    error
}

// ComputeAndEvaluate computes each control's metric on data and returns one
// result per control that could be evaluated, in control order.
//
// In lenient mode controls whose metric is unknown, whose roles do not bind,
// or whose metric reports an expected skip are left out. In strict mode those
// cases return the first error in control order. Unexpected metric failures,
// panics included, are logged and skipped in both modes.
func (e *Evaluator) ComputeAndEvaluate(
	ctx context.Context,
	pol *policy.Policy,
	data *dataset.Frame,
	contextMapping map[string]string,
	strict bool,
) ([]ComplianceResult, error) {
	if pol == nil {
		return nil, nil
	}

	ctx, span := e.tracer.StartEvaluationSpan(ctx, pol.Title, len(pol.Controls), strict)
	defer span.End()

	start := time.Now()
	columns := data.Columns()

	outcomes, err := e.run(ctx, pol.Controls, func(ctx context.Context, ctrl policy.Control) outcome {
		res, err := e.evaluateControl(ctx, ctrl, data, contextMapping, columns, strict)
		return outcome{result: res, err: err}
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	results := make([]ComplianceResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			telemetry.RecordError(span, o.err)
			return nil, o.err
		}
		if o.result != nil {
			results = append(results, *o.result)
		}
	}

	telemetry.RecordSuccess(span)
	e.logger.Info().
		Str("policy", pol.Title).
		Int("controls", len(pol.Controls)).
		Int("evaluated", len(results)).
		Bool("strict", strict).
		Dur("duration", time.Since(start)).
		Msg("Policy evaluated")

	return results, nil
}

// run applies fn to every control, sequentially or through a bounded worker
// pool, and returns the outcomes indexed by control position. In sequential
// mode it stops at the first error.
func (e *Evaluator) run(ctx context.Context, controls []policy.Control, fn func(context.Context, policy.Control) outcome) ([]outcome, error) {
	outcomes := make([]outcome, len(controls))

	workers := e.parallelism
	if workers > len(controls) {
		workers = len(controls)
	}
	if workers < 2 {
		for i, ctrl := range controls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			outcomes[i] = fn(ctx, ctrl)
			if outcomes[i].err != nil {
				return outcomes[:i+1], nil
			}
		}
		return outcomes, nil
	}

	workQueue := make(chan int, len(controls))
	for i := range controls {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				if ctx.Err() != nil {
					return
				}
				outcomes[i] = fn(ctx, controls[i])
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Evaluator) evaluateControl(
	ctx context.Context,
	ctrl policy.Control,
	data *dataset.Frame,
	contextMapping map[string]string,
	columns []string,
	strict bool,
) (*ComplianceResult, error) {
	ctx, span := e.tracer.StartControlSpan(ctx, ctrl.ID, ctrl.MetricKey)
	defer span.End()

	logger := e.logger.With().
		Str("control_id", ctrl.ID).
		Str("metric_key", ctrl.MetricKey).
		Logger()

	fn, ok := e.registry.Lookup(ctrl.MetricKey)
	if !ok {
		if strict {
			err := &MetricNotRegisteredError{ControlID: ctrl.ID, MetricKey: ctrl.MetricKey}
			telemetry.RecordError(span, err)
			return nil, err
		}
		logger.Warn().Msg("No metric registered, skipping control")
		e.skip(span, telemetry.SkipMetricNotRegistered)
		return nil, nil
	}

	roles, unresolved := e.bindRoles(ctrl, contextMapping, columns)
	if len(unresolved) > 0 {
		if strict {
			err := &ControlError{
				ControlID:  ctrl.ID,
				MetricKey:  ctrl.MetricKey,
				Unresolved: unresolved,
				Err:        metrics.Skip("unresolved roles %v", unresolved),
			}
			telemetry.RecordError(span, err)
			return nil, err
		}
		logger.Warn().Strs("roles", unresolved).Msg("Unresolved roles, skipping control")
		e.skip(span, telemetry.SkipMissingRole)
		return nil, nil
	}

	value, err := e.compute(ctx, fn, ctrl.MetricKey, data, roles)
	if err != nil {
		switch metrics.Classify(err) {
		case metrics.ErrorClassExpectedSkip:
			if strict {
				cerr := &ControlError{ControlID: ctrl.ID, MetricKey: ctrl.MetricKey, Err: err}
				telemetry.RecordError(span, cerr)
				return nil, cerr
			}
			logger.Warn().Err(err).Msg("Metric skipped")
			e.skip(span, telemetry.SkipExpected)
		default:
			logger.Warn().Err(err).Msg("Metric failed unexpectedly, skipping control")
			telemetry.RecordError(span, err)
			e.skip(span, telemetry.SkipUnexpected)
		}
		return nil, nil
	}

	res := newResult(ctrl, value.Number, NewMetadata(value.Metadata))
	e.metrics.RecordControlEvaluated(res.Passed)
	span.SetAttributes(
		telemetry.AttrActualValue.Float64(value.Number),
		telemetry.AttrPassed.Bool(res.Passed),
	)
	telemetry.RecordSuccess(span)

	logger.Debug().
		Float64("actual", value.Number).
		Str("operator", ctrl.Operator).
		Float64("threshold", ctrl.Threshold).
		Bool("passed", res.Passed).
		Msg("Control evaluated")

	return &res, nil
}

// bindRoles builds the metric's role set. Context mapping entries are
// forwarded first, then the control's input mapping is resolved on top, then
// its params are added. It returns the input-mapping roles left unbound.
func (e *Evaluator) bindRoles(ctrl policy.Control, contextMapping map[string]string, columns []string) (metrics.Roles, []string) {
	roles := metrics.NewRoles()
	for role, col := range contextMapping {
		roles.SetColumn(role, col)
	}

	var unresolved []string
	for _, item := range ctrl.InputMapping.Items() {
		if item.Name == metrics.ParamAverage {
			roles.SetParam(item.Name, item.Value)
			continue
		}
		col := e.binder.BindRole(item.Name, item.Value, contextMapping, columns)
		roles.SetColumn(item.Name, col)
		if col == binding.Missing {
			unresolved = append(unresolved, item.Name)
		}
	}

	for _, item := range ctrl.Params.Items() {
		switch item.Name {
		case metrics.ParamQuasiIdentifiers, metrics.ParamSensitiveColumns:
			roles.SetParam(item.Name, e.binder.ResolveMany(item.Value, columns))
		default:
			roles.SetParam(item.Name, item.Value)
		}
	}

	sort.Strings(unresolved)
	return roles, unresolved
}

// compute runs fn, turning a panic or a non-finite value into an unexpected
// failure.
func (e *Evaluator) compute(ctx context.Context, fn metrics.MetricFn, key string, data *dataset.Frame, roles metrics.Roles) (value metrics.Value, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("metric_key", key).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Metric panicked")
			value = metrics.Value{}
			err = metrics.Failure("panic", fmt.Errorf("%v", r))
		}
		e.metrics.ObserveMetricDuration(key, time.Since(start))
	}()

	value, err = fn.Compute(ctx, data, roles)
	if err == nil && !finite(value.Number) {
		return metrics.Value{}, metrics.Failure("non-finite value", fmt.Errorf("metric %s returned %v", key, value.Number))
	}
	return value, err
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (e *Evaluator) skip(span trace.Span, reason string) {
	telemetry.AddEvent(span, "control.skipped", telemetry.AttrSkipReason.String(reason))
	e.metrics.RecordControlSkipped(reason)
}

// Evaluate compares precomputed metric values against the policy's controls.
// Controls whose metric key is absent from values, or whose value is NaN or
// infinite, are skipped.
func (e *Evaluator) Evaluate(pol *policy.Policy, values map[string]float64) []ComplianceResult {
	if pol == nil {
		return nil
	}

	results := make([]ComplianceResult, 0, len(pol.Controls))
	for _, ctrl := range pol.Controls {
		actual, ok := values[ctrl.MetricKey]
		if !ok {
			e.logger.Debug().
				Str("control_id", ctrl.ID).
				Str("metric_key", ctrl.MetricKey).
				Msg("No value for metric, skipping control")
			e.metrics.RecordControlSkipped(telemetry.SkipMetricAbsent)
			continue
		}
		if !finite(actual) {
			e.logger.Warn().
				Str("control_id", ctrl.ID).
				Str("metric_key", ctrl.MetricKey).
				Float64("value", actual).
				Msg("Non-finite metric value, skipping control")
			e.metrics.RecordControlSkipped(telemetry.SkipUnexpected)
			continue
		}
		res := newResult(ctrl, actual, Metadata{})
		e.metrics.RecordControlEvaluated(res.Passed)
		results = append(results, res)
	}
	return results
}
