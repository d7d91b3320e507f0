package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Renderer converts a subset to a display string.
type Renderer[E any] func(subset []E) string

// DefaultRenderer lists the elements literally, e.g. "{a b c}".
func DefaultRenderer[E any](subset []E) string {
	parts := make([]string, len(subset))
	for i, e := range subset {
		parts[i] = fmt.Sprint(e)
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// NopObserver ignores every event.
type NopObserver[E any] struct{}

// Begin implements Observer.
func (NopObserver[E]) Begin() {}

// CoreFound implements Observer.
func (NopObserver[E]) CoreFound([]E, Stats, time.Duration) {}

// CoresIntersectionFound implements Observer.
func (NopObserver[E]) CoresIntersectionFound([]E, Stats, time.Duration) {}

// End implements Observer.
func (NopObserver[E]) End(Stats, time.Duration) {}

// MultiObserver fans every event out to several observers in order.
type MultiObserver[E any] []Observer[E]

// Begin implements Observer.
func (m MultiObserver[E]) Begin() {
	for _, o := range m {
		o.Begin()
	}
}

// CoreFound implements Observer.
func (m MultiObserver[E]) CoreFound(core []E, stats Stats, elapsed time.Duration) {
	for _, o := range m {
		o.CoreFound(core, stats, elapsed)
	}
}

// CoresIntersectionFound implements Observer.
func (m MultiObserver[E]) CoresIntersectionFound(intersection []E, stats Stats, elapsed time.Duration) {
	for _, o := range m {
		o.CoresIntersectionFound(intersection, stats, elapsed)
	}
}

// End implements Observer.
func (m MultiObserver[E]) End(stats Stats, elapsed time.Duration) {
	for _, o := range m {
		o.End(stats, elapsed)
	}
}

// LogObserver writes every event to a zerolog logger.
type LogObserver[E any] struct {
	logger zerolog.Logger
	render Renderer[E]
}

// NewLogObserver creates a log observer. A nil render uses DefaultRenderer.
func NewLogObserver[E any](logger zerolog.Logger, render Renderer[E]) *LogObserver[E] {
	if render == nil {
		render = DefaultRenderer[E]
	}
	return &LogObserver[E]{logger: logger, render: render}
}

// Begin implements Observer.
func (l *LogObserver[E]) Begin() {
	l.logger.Info().Msg("Core enumeration started")
}

// CoreFound implements Observer.
func (l *LogObserver[E]) CoreFound(core []E, stats Stats, elapsed time.Duration) {
	l.logger.Info().
		Str("core", l.render(core)).
		Int("size", len(core)).
		Int64("total_checks", stats.TotalChecks).
		Int64("actual_checks", stats.ActualChecks).
		Dur("elapsed", elapsed).
		Msg("Core found")
}

// CoresIntersectionFound implements Observer.
func (l *LogObserver[E]) CoresIntersectionFound(intersection []E, stats Stats, elapsed time.Duration) {
	l.logger.Info().
		Str("intersection", l.render(intersection)).
		Int("size", len(intersection)).
		Int64("total_checks", stats.TotalChecks).
		Int64("actual_checks", stats.ActualChecks).
		Dur("elapsed", elapsed).
		Msg("Cores intersection found")
}

// End implements Observer.
func (l *LogObserver[E]) End(stats Stats, elapsed time.Duration) {
	l.logger.Info().
		Int64("total_checks", stats.TotalChecks).
		Int64("actual_checks", stats.ActualChecks).
		Dur("elapsed", elapsed).
		Msg("Core enumeration finished")
}
