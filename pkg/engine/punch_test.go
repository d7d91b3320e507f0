package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPunch(check func([]int) bool, opts ...Option[int]) *PunchEngine[int] {
	oracle := NewOracle(Infallible(check), intOrd)
	return NewPunchEngine(oracle, NewDDMin(oracle), opts...)
}

func TestPunch_SingleCore(t *testing.T) {
	punch := newPunch(containsAll(1, 2))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3, 4}))

	assert.Equal(t, [][]int{{1, 2}}, punch.Registry().Cores())
	intersection, ok := punch.Registry().Intersection()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, intersection)
}

func TestPunch_AllPairs(t *testing.T) {
	obs := &recordingObserver{}
	punch := newPunch(sizeAtLeast(2), WithObserver[int](obs))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	assert.ElementsMatch(t, [][]int{{1, 2}, {1, 3}, {2, 3}}, punch.Registry().Cores())
	intersection, ok := punch.Registry().Intersection()
	require.True(t, ok)
	assert.Empty(t, intersection)

	require.GreaterOrEqual(t, len(obs.coreStats), 2)
	second := obs.coreStats[1]
	assert.Greater(t, second.TotalChecks, second.ActualChecks, "second core should reuse cached verdicts")
}

func TestPunch_ObserverEvents(t *testing.T) {
	obs := &recordingObserver{}
	punch := newPunch(containsAll(2), WithObserver[int](obs), WithClock[int](stepClock()))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	assert.Equal(t, 1, obs.began)
	assert.Equal(t, 1, obs.ended)
	assert.Equal(t, [][]int{{2}}, obs.cores)
	assert.Equal(t, [][]int{{2}}, obs.intersections)
	for i := 1; i < len(obs.elapsed); i++ {
		assert.Greater(t, obs.elapsed[i], obs.elapsed[i-1])
	}
	assert.Greater(t, obs.elapsed[0], time.Duration(0))
}

func TestPunch_UnsatisfiableUniverse(t *testing.T) {
	obs := &recordingObserver{}
	punch := newPunch(containsAll(9), WithObserver[int](obs))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	assert.Zero(t, punch.Registry().Len())
	assert.False(t, punch.Registry().HasIntersection())
	assert.Equal(t, 1, obs.began)
	assert.Equal(t, 1, obs.ended)
}

func TestPunch_EmptyCoreWhenPredicateAlwaysHolds(t *testing.T) {
	punch := newPunch(sizeAtLeast(0))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2}))

	cores := punch.Registry().Cores()
	require.Len(t, cores, 1)
	assert.Empty(t, cores[0])
}

// When several registered cores fit the candidates the newest one is reused.
func TestPunch_ReusesMostRecentCore(t *testing.T) {
	pred := &countingPredicate{check: func(s []int) bool {
		return containsAll(1)(s) || containsAll(2)(s)
	}}
	oracle := NewOracle[int](pred, intOrd)
	registry := NewRegistry(intOrd)
	registry.Add([]int{1})
	registry.Add([]int{2})

	punch := NewPunchEngine(oracle, NewDDMin(oracle), WithRegistry(registry))
	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	// the universe check, then the probe that punches 2 out of the reused core {2}
	require.GreaterOrEqual(t, len(pred.calls), 2)
	assert.Equal(t, []int{1, 2, 3}, pred.calls[0])
	assert.Equal(t, []int{1, 3}, pred.calls[1])
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_LatestContainedIn(t *testing.T) {
	registry := NewRegistry(intOrd)
	registry.Add([]int{2, 1})
	registry.Add([]int{3})
	registry.Add([]int{9})

	got, ok := registry.LatestContainedIn([]int{3, 2, 1})
	require.True(t, ok)
	assert.Equal(t, []int{3}, got)

	got, ok = registry.LatestContainedIn([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)

	_, ok = registry.LatestContainedIn([]int{4})
	assert.False(t, ok)
}

func TestRegistry_IntersectionIsWriteOnce(t *testing.T) {
	registry := NewRegistry(intOrd)

	assert.True(t, registry.SetIntersection([]int{2, 1}))
	assert.False(t, registry.SetIntersection([]int{5}))

	got, ok := registry.Intersection()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, got)
}

func TestRegistry_EmptyIntersectionIsNonNil(t *testing.T) {
	registry := NewRegistry(intOrd)
	require.True(t, registry.SetIntersection(nil))

	got, ok := registry.Intersection()
	require.True(t, ok)
	assert.Equal(t, []int{}, got)

	punch := newPunch(sizeAtLeast(2))
	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2, 3}))
	x := NewExhaustiveEngine(Infallible(sizeAtLeast(2)), intOrd)
	require.NoError(t, x.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	fromPunch, _ := punch.Registry().Intersection()
	fromExhaustive, _ := x.Registry().Intersection()
	assert.Equal(t, fromExhaustive, fromPunch)
	assert.Equal(t, []int{}, fromPunch)
}

func TestPunch_SoundMinimalAndComplete(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 60; round++ {
		n := 2 + r.Intn(6)
		family := randomFamily(r, n, 1+r.Intn(5))
		check := upwardClosure(family)
		punch := newPunch(check)

		require.NoError(t, punch.ComputeAllCores(context.Background(), universeOf(n)))

		cores := punch.Registry().Cores()
		assert.ElementsMatch(t, minimalMembers(family), cores, "round %d family %v", round, family)

		intersection, ok := punch.Registry().Intersection()
		require.True(t, ok)
		for _, c := range cores {
			require.True(t, check(c), "round %d: core %v does not hold", round, c)
			for _, e := range c {
				require.False(t, check(Without(intOrd, c, e)), "round %d: core %v not minimal", round, c)
			}
			assert.True(t, IsSubset(intOrd, intersection, c), "round %d: intersection %v not in %v", round, intersection, c)
		}
		stats := punch.Stats()
		assert.LessOrEqual(t, stats.ActualChecks, stats.TotalChecks)
	}
}

func TestPunch_SharedOracleAcrossEngines(t *testing.T) {
	pred := &countingPredicate{check: sizeAtLeast(2)}
	oracle := NewOracle[int](pred, intOrd)

	first := NewPunchEngine(oracle, NewDDMin(oracle))
	require.NoError(t, first.ComputeAllCores(context.Background(), []int{1, 2, 3}))
	calls := len(pred.calls)

	second := NewPunchEngine(oracle, NewDDMin(oracle))
	require.NoError(t, second.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	assert.Equal(t, calls, len(pred.calls), "second run should be answered from the shared cache")
	assert.ElementsMatch(t, first.Registry().Cores(), second.Registry().Cores())
}

func TestPunch_FindCore(t *testing.T) {
	obs := &recordingObserver{}
	punch := newPunch(containsAll(3, 4), WithObserver[int](obs))

	core, ok, err := punch.FindCore(context.Background(), []int{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []int{3, 4}, core)
	assert.Equal(t, 1, obs.began)
	assert.Equal(t, 1, obs.ended)
	assert.Equal(t, [][]int{{3, 4}}, obs.cores)
	assert.Empty(t, obs.intersections)

	_, ok, err = newPunch(containsAll(8)).FindCore(context.Background(), []int{1})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPunch_PredicateErrorAbortsRun(t *testing.T) {
	oracle := NewOracle(failingAfter(8, sizeAtLeast(2)), intOrd)
	punch := NewPunchEngine(oracle, NewDDMin(oracle))

	err := punch.ComputeAllCores(context.Background(), []int{1, 2, 3, 4})

	require.Error(t, err)
	assert.True(t, IsPredicate(err))
	assert.ErrorIs(t, err, errBroken)
	assert.LessOrEqual(t, punch.Registry().Len(), 6)
	assert.Equal(t, int64(9), punch.Stats().ActualChecks)
}

func TestPunch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	oracle := NewOracle(PredicateFunc[int](func(ctx context.Context, s []int) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return len(s) > 0, nil
	}), intOrd)

	err := NewPunchEngine(oracle, NewDDMin(oracle)).ComputeAllCores(ctx, []int{1, 2})

	require.Error(t, err)
	assert.True(t, IsCanceled(err))
	assert.ErrorIs(t, err, context.Canceled)
}

// A non-monotonic predicate breaks the contract; the run must still terminate.
func TestPunch_NonMonotonicPredicateTerminates(t *testing.T) {
	// holds on sets of exactly two elements only
	punch := newPunch(func(s []int) bool { return len(s) == 2 })

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2}))
	require.NoError(t, newPunch(func(s []int) bool { return len(s)%2 == 1 }).
		ComputeAllCores(context.Background(), []int{1, 2, 3, 4, 5}))
}
