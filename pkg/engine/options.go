package engine

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures an enumeration engine.
type Option[E any] func(*options[E])

type options[E any] struct {
	registry *Registry[E]
	observer Observer[E]
	logger   zerolog.Logger
	render   Renderer[E]
	now      func() time.Time
}

func newOptions[E any](ord Ordering[E], opts []Option[E]) *options[E] {
	o := &options[E]{
		observer: NopObserver[E]{},
		logger:   zerolog.Nop(),
		render:   DefaultRenderer[E],
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewRegistry(ord)
	}
	return o
}

// WithRegistry makes the engine record cores into r instead of a fresh registry.
// Sharing a registry between engines is allowed when they run one at a time.
func WithRegistry[E any](r *Registry[E]) Option[E] {
	return func(o *options[E]) {
		o.registry = r
	}
}

// WithObserver attaches an observer. Use MultiObserver to attach several.
func WithObserver[E any](obs Observer[E]) Option[E] {
	return func(o *options[E]) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the logger used for trace and debug output.
func WithLogger[E any](logger zerolog.Logger) Option[E] {
	return func(o *options[E]) {
		o.logger = logger
	}
}

// WithRenderer sets how subsets are printed in log output.
func WithRenderer[E any](render Renderer[E]) Option[E] {
	return func(o *options[E]) {
		if render != nil {
			o.render = render
		}
	}
}

// WithClock replaces time.Now for elapsed-time reporting.
func WithClock[E any](now func() time.Time) Option[E] {
	return func(o *options[E]) {
		if now != nil {
			o.now = now
		}
	}
}
