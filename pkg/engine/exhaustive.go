package engine

import (
	"context"
	"errors"
	"time"
)

// Lookup is the outcome of consulting the exhaustive engine's memo table.
type Lookup int

const (
	// LookupUnknown means nothing recorded decides the subset.
	LookupUnknown Lookup = iota

	// LookupNegative means the subset lies inside a recorded negative set.
	LookupNegative

	// LookupPositiveExact means this exact subset was checked positive and
	// has already been explored for its own minimal subsets.
	LookupPositiveExact

	// LookupPositiveUnexpanded means a recorded positive set lies inside the
	// subset, so it holds too, but the subset itself has not been explored.
	LookupPositiveUnexpanded
)

// String returns the lookup outcome name.
func (l Lookup) String() string {
	switch l {
	case LookupNegative:
		return "negative"
	case LookupPositiveExact:
		return "positive-exact"
	case LookupPositiveUnexpanded:
		return "positive-unexpanded"
	default:
		return "unknown"
	}
}

// ExhaustiveEngine enumerates minimal cores top-down: from every positive set
// it tries all single-element removals, descends into each removal that keeps
// the predicate true, and registers a set as a core when no removal does.
//
// It keeps its own memo table instead of an Oracle and counts every probe in
// TotalChecks and every predicate call in ActualChecks, so its Stats compare
// directly with the punch engine's.
type ExhaustiveEngine[E any] struct {
	pred  Predicate[E]
	ord   Ordering[E]
	opts  *options[E]
	start time.Time
	stats Stats

	// negatives are canonical sets known to fail
	negatives [][]E
	// positives are canonical sets known to hold; expanded marks the explored ones
	positives [][]E
	expanded  []bool
}

// NewExhaustiveEngine creates an exhaustive engine over pred.
func NewExhaustiveEngine[E any](pred Predicate[E], ord Ordering[E], opts ...Option[E]) *ExhaustiveEngine[E] {
	return &ExhaustiveEngine[E]{
		pred: pred,
		ord:  ord,
		opts: newOptions(ord, opts),
	}
}

// Name implements CoreEnumerator.
func (x *ExhaustiveEngine[E]) Name() string {
	return string(StrategyExhaustive)
}

// Registry implements CoreEnumerator.
func (x *ExhaustiveEngine[E]) Registry() *Registry[E] {
	return x.opts.registry
}

// Stats implements CoreEnumerator.
func (x *ExhaustiveEngine[E]) Stats() Stats {
	return x.stats
}

// ComputeAllCores implements CoreEnumerator. Once exploration finishes the
// intersection of every discovered core is recorded.
func (x *ExhaustiveEngine[E]) ComputeAllCores(ctx context.Context, universe []E) error {
	x.start = x.opts.now()
	x.opts.observer.Begin()
	defer func() {
		x.opts.observer.End(x.stats, x.elapsed())
	}()

	canon := Canonicalize(x.ord, universe)
	ok, err := x.probe(ctx, canon)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	x.markExpanded(canon)
	if err := x.explore(ctx, canon); err != nil {
		return err
	}

	cores := x.opts.registry.Cores()
	if len(cores) == 0 {
		return nil
	}
	common := cores[0]
	for _, c := range cores[1:] {
		common = Intersect(x.ord, common, c)
	}
	if x.opts.registry.SetIntersection(common) {
		intersection, _ := x.opts.registry.Intersection()
		x.opts.observer.CoresIntersectionFound(intersection, x.stats, x.elapsed())
	}
	return nil
}

// explore visits set, which is known positive and marked expanded.
func (x *ExhaustiveEngine[E]) explore(ctx context.Context, set []E) error {
	minimal := true
	for i := range set {
		sub := removeIndex(set, i)

		switch x.lookup(sub) {
		case LookupNegative:
			x.stats.TotalChecks++
			continue
		case LookupPositiveExact:
			x.stats.TotalChecks++
			minimal = false
			continue
		case LookupPositiveUnexpanded:
			x.stats.TotalChecks++
		case LookupUnknown:
			ok, err := x.probe(ctx, sub)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}

		minimal = false
		x.markExpanded(sub)
		if err := x.explore(ctx, sub); err != nil {
			return err
		}
	}

	if minimal {
		core := x.opts.registry.Add(set)
		x.opts.logger.Debug().
			Str("core", x.opts.render(core)).
			Int("size", len(core)).
			Msg("New core")
		x.opts.observer.CoreFound(core, x.stats, x.elapsed())
	}
	return nil
}

// Lookup consults the memo table for a subset without calling the predicate.
func (x *ExhaustiveEngine[E]) Lookup(subset []E) Lookup {
	return x.lookup(Canonicalize(x.ord, subset))
}

func (x *ExhaustiveEngine[E]) lookup(canon []E) Lookup {
	for _, n := range x.negatives {
		if IsSubset(x.ord, canon, n) {
			return LookupNegative
		}
	}
	known := false
	for i, p := range x.positives {
		if len(p) == len(canon) && x.expanded[i] && Equal(x.ord, p, canon) {
			return LookupPositiveExact
		}
		if !known && IsSubset(x.ord, p, canon) {
			known = true
		}
	}
	if known {
		return LookupPositiveUnexpanded
	}
	return LookupUnknown
}

// probe calls the predicate and memoizes the verdict.
func (x *ExhaustiveEngine[E]) probe(ctx context.Context, canon []E) (bool, error) {
	x.stats.TotalChecks++
	ok, err := x.pred.Check(ctx, canon)
	x.stats.ActualChecks++
	if err != nil {
		var classified *EngineError
		if errors.As(err, &classified) {
			return false, err
		}
		return false, NewPredicateError("predicate check failed", err).
			WithStrategy(x.Name()).
			WithOperation("probe")
	}
	if ok {
		x.positives = append(x.positives, canon)
		x.expanded = append(x.expanded, false)
	} else {
		x.negatives = append(x.negatives, canon)
	}
	return ok, nil
}

func (x *ExhaustiveEngine[E]) markExpanded(canon []E) {
	for i, p := range x.positives {
		if len(p) == len(canon) && Equal(x.ord, p, canon) {
			x.expanded[i] = true
			return
		}
	}
	x.positives = append(x.positives, canon)
	x.expanded = append(x.expanded, true)
}

func (x *ExhaustiveEngine[E]) elapsed() time.Duration {
	return x.opts.now().Sub(x.start)
}

// removeIndex returns a copy of s without s[i].
func removeIndex[E any](s []E, i int) []E {
	out := make([]E, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}
