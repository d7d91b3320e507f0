package engine

import (
	"context"
	"time"
)

// Predicate is a monotonic test over subsets of the universe: if Check holds
// for S it must hold for every superset of S. Monotonicity is a precondition
// and is never verified; a violating predicate silently yields wrong cores.
//
// A non-nil error aborts the run that issued the check. Errors are never cached.
type Predicate[E any] interface {
	Check(ctx context.Context, subset []E) (bool, error)
}

// PredicateFunc adapts a function to the Predicate interface.
type PredicateFunc[E any] func(ctx context.Context, subset []E) (bool, error)

// Check implements Predicate.
func (f PredicateFunc[E]) Check(ctx context.Context, subset []E) (bool, error) {
	return f(ctx, subset)
}

// Infallible adapts a plain boolean function that never fails.
func Infallible[E any](check func(subset []E) bool) Predicate[E] {
	return PredicateFunc[E](func(_ context.Context, subset []E) (bool, error) {
		return check(subset), nil
	})
}

// Minimizer shrinks candidates to a 1-minimal subset that still satisfies the
// predicate together with base.
//
// Contract: the result r is a subset of candidates, check(base ∪ r) holds and
// for every e in r, check(base ∪ (r \ {e})) does not. Implementations must send
// every check through the shared Oracle. The engines trust this contract.
type Minimizer[E any] interface {
	Minimize(ctx context.Context, candidates, base []E) ([]E, error)
}

// CoreEnumerator computes every minimal core of a universe together with the
// elements common to all of them.
type CoreEnumerator[E any] interface {
	// Name identifies the strategy in logs, metrics and stored runs.
	Name() string

	// ComputeAllCores runs the enumeration over universe. Discovered cores
	// accumulate in Registry even when an error cuts the run short.
	ComputeAllCores(ctx context.Context, universe []E) error

	// Registry returns the record of discovered cores.
	Registry() *Registry[E]

	// Stats returns the check counters accumulated so far.
	Stats() Stats
}

// Observer receives progress notifications from an enumeration run. Observers
// never influence the result. Every elapsed value is measured from Begin.
type Observer[E any] interface {
	Begin()
	CoreFound(core []E, stats Stats, elapsed time.Duration)
	CoresIntersectionFound(intersection []E, stats Stats, elapsed time.Duration)
	End(stats Stats, elapsed time.Duration)
}

// Stats holds the check counters of a run.
type Stats struct {
	// TotalChecks counts every predicate query, cached or not.
	TotalChecks int64 `json:"total_checks"`

	// ActualChecks counts the queries that reached the real predicate,
	// including one that failed.
	ActualChecks int64 `json:"actual_checks"`
}

// CacheHits returns the number of queries answered without the predicate.
func (s Stats) CacheHits() int64 {
	return s.TotalChecks - s.ActualChecks
}

// Strategy names an enumeration strategy.
type Strategy string

const (
	// StrategyPunch selects the recursive punch algorithm.
	StrategyPunch Strategy = "punch"

	// StrategyExhaustive selects the brute-force top-down search.
	StrategyExhaustive Strategy = "exhaustive"
)
