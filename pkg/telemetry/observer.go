package telemetry

import (
	"context"
	"time"

	"github.com/coreprobe/coreprobe/pkg/engine"
)

// Observer is an engine observer that feeds the run's metrics, span, events
// and log. Check counters are exported as deltas between notifications.
type Observer struct {
	scope  *RunScope
	render engine.Renderer[string]
	last   engine.Stats
}

var _ engine.Observer[string] = (*Observer)(nil)

// Observer returns an engine observer bound to the run. A nil render uses
// engine.DefaultRenderer.
func (s *RunScope) Observer(render engine.Renderer[string]) *Observer {
	if render == nil {
		render = engine.DefaultRenderer[string]
	}
	return &Observer{scope: s, render: render}
}

// Begin implements engine.Observer.
func (o *Observer) Begin() {
	o.scope.Logger.Debug("Core enumeration started")
}

// CoreFound implements engine.Observer.
func (o *Observer) CoreFound(core []string, stats engine.Stats, elapsed time.Duration) {
	rendered := o.render(core)
	o.addChecks(stats)

	AddCoreEvent(o.scope.Span, rendered, len(core), stats.TotalChecks, stats.ActualChecks)
	log := o.scope.Logger.Zerolog()
	log.Info().
		Str("core", rendered).
		Int("size", len(core)).
		Int64("total_checks", stats.TotalChecks).
		Int64("actual_checks", stats.ActualChecks).
		Dur("elapsed", elapsed).
		Msg("Core found")

	if tel := o.scope.tel; tel != nil {
		tel.Metrics.RecordCoreFound(o.scope.Strategy, len(core))
		if err := tel.Events.PublishCoreFound(o.scope.RunID, rendered, len(core), stats.TotalChecks, stats.ActualChecks); err != nil {
			o.scope.Logger.WithError(err).Warn("Failed to publish core event")
		}
	}
}

// CoresIntersectionFound implements engine.Observer.
func (o *Observer) CoresIntersectionFound(intersection []string, stats engine.Stats, elapsed time.Duration) {
	rendered := o.render(intersection)
	o.addChecks(stats)

	AddIntersectionEvent(o.scope.Span, rendered, len(intersection))
	log := o.scope.Logger.Zerolog()
	log.Info().
		Str("intersection", rendered).
		Int("size", len(intersection)).
		Dur("elapsed", elapsed).
		Msg("Cores intersection found")

	if tel := o.scope.tel; tel != nil {
		if err := tel.Events.PublishIntersectionFound(o.scope.RunID, rendered, len(intersection)); err != nil {
			o.scope.Logger.WithError(err).Warn("Failed to publish intersection event")
		}
	}
}

// End implements engine.Observer.
func (o *Observer) End(stats engine.Stats, elapsed time.Duration) {
	o.addChecks(stats)
	o.scope.Span.SetAttributes(
		AttrChecksTotal.Int64(stats.TotalChecks),
		AttrChecksActual.Int64(stats.ActualChecks),
	)
	log := o.scope.Logger.Zerolog()
	log.Debug().
		Int64("total_checks", stats.TotalChecks).
		Int64("actual_checks", stats.ActualChecks).
		Dur("elapsed", elapsed).
		Msg("Core enumeration finished")
}

func (o *Observer) addChecks(stats engine.Stats) {
	if tel := o.scope.tel; tel != nil {
		tel.Metrics.AddChecks(o.scope.Strategy,
			stats.TotalChecks-o.last.TotalChecks,
			stats.ActualChecks-o.last.ActualChecks)
	}
	o.last = stats
}

// InstrumentPredicate wraps pred so that every evaluation is timed, counted
// and traced under the adapter name.
func (t *Telemetry) InstrumentPredicate(adapter string, pred engine.Predicate[string]) engine.Predicate[string] {
	return engine.PredicateFunc[string](func(ctx context.Context, subset []string) (bool, error) {
		ctx, span := t.Tracer.StartPredicateSpan(ctx, adapter, len(subset))
		defer span.End()

		timer := NewTimer()
		ok, err := pred.Check(ctx, subset)
		t.Metrics.RecordPredicateCall(adapter, timer.Duration(), err)
		if err != nil {
			RecordError(span, err)
			return false, err
		}
		span.SetAttributes(AttrVerdict.Bool(ok))
		return ok, nil
	})
}
