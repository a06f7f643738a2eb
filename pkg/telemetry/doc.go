// Package telemetry provides the observability stack of the compliance engine:
// structured logging (zerolog), tracing (OpenTelemetry), metrics (Prometheus)
// and an in-process event publisher.
//
// Initialize it once at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	tel.StartMetricsServer()
//
// Library packages accept a zerolog.Logger and derive component loggers from
// it; pass tel.Logger.Zerolog().
//
// # Metrics
//
// With metrics enabled the following series are exported under the
// configured namespace:
//
//	controls_evaluated_total{result="passed|failed"}
//	controls_skipped_total{reason}
//	metric_compute_duration_seconds{metric}
//	policies_loaded_total{status}
//	enforcements_total{status}
//	gate_decisions_total{outcome}
//
// A disabled or nil *Metrics accepts every call and records nothing.
//
// # Tracing
//
// Evaluations open a "policy.evaluate" span with one "control.evaluate"
// child per control. Exporters: otlp (gRPC), stdout (written to stderr), none.
//
// # Events
//
// Subscribers receive control.failed and enforcement.completed events.
// Delivery is synchronous unless EventsConfig.EnableAsync is set.
package telemetry
