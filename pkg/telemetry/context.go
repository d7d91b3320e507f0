package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/coreprobe/coreprobe/pkg/engine"
)

// Telemetry combines logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger creates a telemetry instance around an existing logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	// reverse order of initialization
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return t.Metrics.StopMetricsServer(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() error {
	return t.Metrics.StartMetricsServer()
}

// InstrumentedContext bundles the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Span:   trace.SpanFromContext(ctx),
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span == nil {
		return
	}
	if err != nil {
		RecordError(ic.Span, err)
	} else {
		RecordSuccess(ic.Span)
	}
	ic.Span.End()
}

// Run statuses reported to metrics and events.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// RunScope carries the telemetry of one enumeration run. Without a
// Telemetry in the context it only logs.
type RunScope struct {
	RunID    string
	Problem  string
	Strategy string
	Span     trace.Span
	Logger   *Logger

	tel   *Telemetry
	timer *Timer
}

type runScopeKey struct{}

// WithRunContext opens the run span, records the run start and returns a
// context carrying the run logger and scope.
func WithRunContext(ctx context.Context, runID, problem, strategy string, universe int) (context.Context, *RunScope) {
	scope := &RunScope{
		RunID:    runID,
		Problem:  problem,
		Strategy: strategy,
		timer:    NewTimer(),
	}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		scope.Span = trace.SpanFromContext(ctx)
		scope.Logger = FromContext(ctx).WithRunID(runID).WithProblem(problem).WithStrategy(strategy)
	} else {
		scope.tel = tel
		ctx, scope.Span = tel.Tracer.StartRunSpan(ctx, runID, problem, strategy)
		scope.Logger = tel.Logger.WithRunID(runID).WithProblem(problem).WithStrategy(strategy)
		tel.Metrics.RecordRunStarted(strategy)
		if err := tel.Events.PublishRunStarted(runID, problem, strategy, universe); err != nil {
			scope.Logger.WithError(err).Warn("Failed to publish run event")
		}
	}

	ctx = scope.Logger.WithContext(ctx)
	return context.WithValue(ctx, runScopeKey{}, scope), scope
}

// RunScopeFromContext returns the run scope stored by WithRunContext.
func RunScopeFromContext(ctx context.Context) (*RunScope, bool) {
	s, ok := ctx.Value(runScopeKey{}).(*RunScope)
	return s, ok
}

// End closes the run span and records the outcome. err decides between the
// completed, canceled and failed statuses.
func (s *RunScope) End(cores int, err error) string {
	status := RunStatusCompleted
	switch {
	case err == nil:
	case engine.IsCanceled(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = RunStatusCanceled
	default:
		status = RunStatusFailed
	}

	s.Span.SetAttributes(AttrRunStatus.String(status))
	if err != nil {
		var classified *engine.EngineError
		if errors.As(err, &classified) {
			s.Span.SetAttributes(
				AttrErrorClass.String(string(classified.Class)),
				AttrErrorCode.String(classified.Code),
			)
		}
		RecordError(s.Span, err)
	} else {
		RecordSuccess(s.Span)
	}
	if s.tel != nil {
		s.Span.End()
	}

	duration := s.timer.Duration()
	if s.tel == nil {
		return status
	}

	s.tel.Metrics.RecordRunCompleted(s.Strategy, status, duration)
	var publishErr error
	if err != nil {
		class := string(engine.ClassOf(err))
		if class == "" {
			class = "unknown"
		}
		s.tel.Metrics.RecordError(class, errorCode(err))
		publishErr = s.tel.Events.PublishRunFailed(s.RunID, err.Error())
	} else {
		publishErr = s.tel.Events.PublishRunCompleted(s.RunID, cores, duration)
	}
	if publishErr != nil {
		s.Logger.WithError(publishErr).Warn("Failed to publish run event")
	}
	return status
}

func errorCode(err error) string {
	var classified *engine.EngineError
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ""
}
