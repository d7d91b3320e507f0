// Package telemetry provides observability for core enumeration runs.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and run events into one Telemetry
// value that is carried through context.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("telemetry")
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Runs
//
// A run opens a span, counts itself as active and publishes run.started:
//
//	ctx, scope := telemetry.WithRunContext(ctx, runID, "flags", "punch", len(universe))
//	enumerator := engine.NewPunchEngine(oracle, ddmin,
//	    engine.WithObserver[string](scope.Observer(nil)))
//	err := enumerator.ComputeAllCores(ctx, universe)
//	status := scope.End(enumerator.Registry().Len(), err)
//
// The observer turns every engine notification into a span event, a log line,
// a core.found or intersection.found event and metric updates. End records
// completed, canceled or failed.
//
// # Predicates
//
// InstrumentPredicate wraps a predicate so each real evaluation gets its own
// span and duration sample:
//
//	pred = tel.InstrumentPredicate("starlark", pred)
//
// Cache hits in the oracle never reach the wrapped predicate, so
// predicate_call_duration_seconds counts actual checks only.
//
// # Metrics
//
// Key metrics exposed:
//
//   - coreprobe_runs_started_total{strategy}
//   - coreprobe_runs_completed_total{strategy,status}
//   - coreprobe_run_duration_seconds{strategy}
//   - coreprobe_predicate_checks_total{strategy,kind}
//   - coreprobe_cores_found_total{strategy}
//   - coreprobe_core_size{strategy}
//   - coreprobe_predicate_call_duration_seconds{adapter}
//   - coreprobe_predicate_errors_total{adapter}
//   - coreprobe_errors_by_class_total{class}
//   - coreprobe_active_runs
//
// Metrics are exposed via HTTP at /metrics (default :9090/metrics).
//
// # Exporters
//
//   - "stdout": print traces to stdout (development)
//   - "otlp": export via OTLP/gRPC
//   - "none": record spans without exporting
package telemetry
