package engine

import (
	"context"
	"errors"
	"time"
)

// PunchEngine enumerates all minimal cores by repeatedly finding one core,
// splitting its elements into removable and essential ones, and recursing on
// every branch where one removable element is punched out of the candidates.
//
// All state lives in the oracle and the registry, so several engines can
// cooperate through a shared oracle.
type PunchEngine[E any] struct {
	oracle    *Oracle[E]
	minimizer Minimizer[E]
	ord       Ordering[E]
	opts      *options[E]
	start     time.Time
}

// NewPunchEngine creates a punch engine that checks through oracle and
// shrinks cores with minimizer.
func NewPunchEngine[E any](oracle *Oracle[E], minimizer Minimizer[E], opts ...Option[E]) *PunchEngine[E] {
	ord := oracle.Ordering()
	return &PunchEngine[E]{
		oracle:    oracle,
		minimizer: minimizer,
		ord:       ord,
		opts:      newOptions(ord, opts),
	}
}

// Name implements CoreEnumerator.
func (p *PunchEngine[E]) Name() string {
	return string(StrategyPunch)
}

// Registry implements CoreEnumerator.
func (p *PunchEngine[E]) Registry() *Registry[E] {
	return p.opts.registry
}

// Stats implements CoreEnumerator. The counters belong to the oracle and
// include checks made by any other strategy sharing it.
func (p *PunchEngine[E]) Stats() Stats {
	return p.oracle.Stats()
}

// Oracle returns the oracle the engine checks through.
func (p *PunchEngine[E]) Oracle() *Oracle[E] {
	return p.oracle
}

// ComputeAllCores implements CoreEnumerator. A universe on which the predicate
// does not hold has no cores and no intersection.
func (p *PunchEngine[E]) ComputeAllCores(ctx context.Context, universe []E) error {
	p.start = p.opts.now()
	p.opts.observer.Begin()
	defer func() {
		p.opts.observer.End(p.oracle.Stats(), p.elapsed())
	}()

	ok, err := p.oracle.Check(ctx, universe)
	if err != nil {
		return p.wrap(err, "check universe")
	}
	if !ok {
		p.opts.logger.Debug().Int("universe", len(universe)).Msg("Predicate does not hold on the universe")
		return nil
	}

	return p.recurse(ctx, universe, nil)
}

// FindCore computes a single core of universe without enumerating the others.
// It reports false when the predicate does not hold on the universe. Observers
// see it as a run of its own, between Begin and End.
func (p *PunchEngine[E]) FindCore(ctx context.Context, universe []E) ([]E, bool, error) {
	p.start = p.opts.now()
	p.opts.observer.Begin()
	defer func() {
		p.opts.observer.End(p.oracle.Stats(), p.elapsed())
	}()

	ok, err := p.oracle.Check(ctx, universe)
	if err != nil {
		return nil, false, p.wrap(err, "check universe")
	}
	if !ok {
		return nil, false, nil
	}
	core, err := p.findOrComputeCore(ctx, universe, nil)
	if err != nil {
		return nil, false, err
	}
	return core, true, nil
}

func (p *PunchEngine[E]) recurse(ctx context.Context, candidates, base []E) error {
	p.opts.logger.Trace().
		Int("candidates", len(candidates)).
		Int("base", len(base)).
		Msg("Punch recursion")

	core, err := p.findOrComputeCore(ctx, candidates, base)
	if err != nil {
		return err
	}

	remainder := Without(p.ord, core, base...)
	var removable, essential []E
	for _, e := range remainder {
		ok, err := p.oracle.Check(ctx, Without(p.ord, candidates, e))
		if err != nil {
			return p.wrap(err, "probe element")
		}
		if ok {
			removable = append(removable, e)
		} else {
			essential = append(essential, e)
		}
	}
	newBase := Union(p.ord, base, essential)

	// the first call always gets here before any recursion, so this fires
	// exactly once per run and records the essentials of the whole universe
	if p.opts.registry.SetIntersection(newBase) {
		intersection, _ := p.opts.registry.Intersection()
		p.opts.observer.CoresIntersectionFound(intersection, p.oracle.Stats(), p.elapsed())
	}

	for _, e := range removable {
		if err := p.recurse(ctx, Without(p.ord, candidates, e), newBase); err != nil {
			return err
		}
	}
	return nil
}

// findOrComputeCore reuses the most recently registered core contained in
// candidates, or minimizes a new one.
func (p *PunchEngine[E]) findOrComputeCore(ctx context.Context, candidates, base []E) ([]E, error) {
	if core, ok := p.opts.registry.LatestContainedIn(candidates); ok {
		return core, nil
	}

	reduced, err := p.minimizer.Minimize(ctx, Without(p.ord, candidates, base...), base)
	if err != nil {
		return nil, p.wrap(err, "minimize")
	}
	core := p.opts.registry.Add(Union(p.ord, base, reduced))
	p.oracle.Register(true, core)

	p.opts.logger.Debug().
		Str("core", p.opts.render(core)).
		Int("size", len(core)).
		Msg("New core")
	p.opts.observer.CoreFound(core, p.oracle.Stats(), p.elapsed())
	return core, nil
}

func (p *PunchEngine[E]) elapsed() time.Duration {
	return p.opts.now().Sub(p.start)
}

func (p *PunchEngine[E]) wrap(err error, operation string) error {
	var classified *EngineError
	if errors.As(err, &classified) {
		return err
	}
	return NewPredicateError("predicate check failed", err).
		WithStrategy(p.Name()).
		WithOperation(operation)
}
