// Package engine finds the minimal cores of a monotonic predicate.
//
// # Overview
//
// Given a finite universe of elements and a predicate over subsets that, once
// true, stays true as elements are added, a core is an inclusion-minimal subset
// on which the predicate holds. The package enumerates every core, records the
// elements common to all of them, and tries hard to call the predicate as few
// times as possible because in practice each call is expensive (solving a game,
// running a model checker, synthesizing a controller).
//
// # Core Types
//
//   - Ordering: the canonical total order over elements, supplied by the caller
//   - Predicate: the monotonic test, supplied by the caller
//   - Oracle: memoizes a Predicate with positive and negative subset caches
//   - Minimizer: shrinks a satisfying set to a 1-minimal one (DDMin by default)
//   - PartitionMinimizer: minimizes independent groups separately
//   - Registry: discovered cores in order plus the write-once intersection
//   - PunchEngine and ExhaustiveEngine: the two CoreEnumerator strategies
//
// # Wiring
//
// Construction wires every dependency explicitly; nothing is global:
//
//	ord := engine.NaturalOrdering[int]()
//	oracle := engine.NewOracle(pred, ord)
//	punch := engine.NewPunchEngine(oracle, engine.NewDDMin(oracle),
//	    engine.WithObserver[int](engine.NewLogObserver[int](logger, nil)))
//
//	if err := punch.ComputeAllCores(ctx, universe); err != nil {
//	    return err
//	}
//	cores := punch.Registry().Cores()
//	common, _ := punch.Registry().Intersection()
//
// An Oracle may be shared by several strategies over the same universe so that
// what one learns the other reuses. Nothing in the package is synchronized;
// strategies sharing an oracle or registry must run one at a time.
//
// # Errors
//
// Monotonicity of the predicate and the minimizer contract are preconditions
// and are not checked. A predicate error aborts the run and is returned as an
// *EngineError of class predicate (or canceled, for context errors); the
// registry keeps every core found before the failure.
//
//	if engine.IsCanceled(err) {
//	    // the deadline passed; the registry holds a partial result
//	}
package engine
