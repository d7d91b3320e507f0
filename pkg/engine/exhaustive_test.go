package engine

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExhaustive_AllPairs(t *testing.T) {
	obs := &recordingObserver{}
	x := NewExhaustiveEngine(Infallible(sizeAtLeast(2)), intOrd, WithObserver[int](obs))

	require.NoError(t, x.ComputeAllCores(context.Background(), []int{3, 1, 2}))

	assert.Equal(t, [][]int{{2, 3}, {1, 3}, {1, 2}}, x.Registry().Cores())
	assert.Equal(t, Stats{TotalChecks: 10, ActualChecks: 7}, x.Stats())
	assert.Equal(t, int64(3), x.Stats().CacheHits())

	intersection, ok := x.Registry().Intersection()
	require.True(t, ok)
	assert.Empty(t, intersection)
	assert.Len(t, obs.cores, 3)
	assert.Len(t, obs.intersections, 1)
	assert.Equal(t, 1, obs.began)
	assert.Equal(t, 1, obs.ended)
}

func TestExhaustive_SingleCore(t *testing.T) {
	x := NewExhaustiveEngine(Infallible(containsAll(1, 2)), intOrd)

	require.NoError(t, x.ComputeAllCores(context.Background(), []int{1, 2, 3, 4}))

	assert.Equal(t, [][]int{{1, 2}}, x.Registry().Cores())
	intersection, ok := x.Registry().Intersection()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, intersection)
}

func TestExhaustive_UnsatisfiableUniverse(t *testing.T) {
	x := NewExhaustiveEngine(Infallible(containsAll(7)), intOrd)

	require.NoError(t, x.ComputeAllCores(context.Background(), []int{1, 2}))

	assert.Zero(t, x.Registry().Len())
	assert.False(t, x.Registry().HasIntersection())
	assert.Equal(t, Stats{TotalChecks: 1, ActualChecks: 1}, x.Stats())
}

func TestExhaustive_Lookup(t *testing.T) {
	x := NewExhaustiveEngine(Infallible(sizeAtLeast(2)), intOrd)
	assert.Equal(t, LookupUnknown, x.Lookup([]int{1, 2}))

	require.NoError(t, x.ComputeAllCores(context.Background(), []int{1, 2, 3}))

	tests := []struct {
		name   string
		subset []int
		want   Lookup
	}{
		{"inside a negative", []int{3}, LookupNegative},
		{"empty set", nil, LookupNegative},
		{"explored core", []int{2, 1}, LookupPositiveExact},
		{"explored universe", []int{1, 2, 3}, LookupPositiveExact},
		{"superset of a positive", []int{1, 2, 3, 4}, LookupPositiveUnexpanded},
		{"unrelated", []int{4, 5}, LookupUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, x.Lookup(tt.subset))
		})
	}
}

func TestLookup_String(t *testing.T) {
	assert.Equal(t, "unknown", LookupUnknown.String())
	assert.Equal(t, "negative", LookupNegative.String())
	assert.Equal(t, "positive-exact", LookupPositiveExact.String())
	assert.Equal(t, "positive-unexpanded", LookupPositiveUnexpanded.String())
}

func TestExhaustive_AgreesWithPunch(t *testing.T) {
	r := rand.New(rand.NewSource(99))

	for round := 0; round < 40; round++ {
		n := 2 + r.Intn(5)
		family := randomFamily(r, n, 1+r.Intn(4))
		check := upwardClosure(family)

		x := NewExhaustiveEngine(Infallible(check), intOrd)
		require.NoError(t, x.ComputeAllCores(context.Background(), universeOf(n)))
		punch := newPunch(check)
		require.NoError(t, punch.ComputeAllCores(context.Background(), universeOf(n)))

		assert.ElementsMatch(t, punch.Registry().Cores(), x.Registry().Cores(), "round %d family %v", round, family)

		want, _ := punch.Registry().Intersection()
		got, ok := x.Registry().Intersection()
		require.True(t, ok)
		assert.ElementsMatch(t, want, got, "round %d", round)
		assert.NotNil(t, got, "round %d", round)
	}
}

func TestExhaustive_PredicateError(t *testing.T) {
	x := NewExhaustiveEngine(failingAfter(3, sizeAtLeast(1)), intOrd)

	err := x.ComputeAllCores(context.Background(), []int{1, 2, 3})

	require.Error(t, err)
	assert.True(t, IsPredicate(err))
	assert.Equal(t, ErrorClassPredicate, ClassOf(err))
	assert.False(t, x.Registry().HasIntersection())
	// the failing call reached the predicate
	assert.Equal(t, int64(4), x.Stats().ActualChecks)
}

func TestNewEnumerator(t *testing.T) {
	oracle := NewOracle(Infallible(containsAll(1)), intOrd)

	punch, err := NewEnumerator[int](StrategyPunch, oracle, nil)
	require.NoError(t, err)
	assert.Equal(t, "punch", punch.Name())

	defaulted, err := NewEnumerator[int]("", oracle, nil)
	require.NoError(t, err)
	assert.Equal(t, "punch", defaulted.Name())

	x, err := NewEnumerator[int](StrategyExhaustive, oracle, nil)
	require.NoError(t, err)
	assert.Equal(t, "exhaustive", x.Name())
	require.NoError(t, x.ComputeAllCores(context.Background(), []int{1, 2}))
	assert.Equal(t, [][]int{{1}}, x.Registry().Cores())

	_, err = NewEnumerator[int]("random", oracle, nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
	assert.ErrorIs(t, err, &EngineError{Class: ErrorClassConfiguration, Code: ErrCodeUnknownStrategy})

	_, err = NewEnumerator[int](StrategyPunch, nil, nil)
	assert.True(t, IsConfiguration(err))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("exhaustive")
	require.NoError(t, err)
	assert.Equal(t, StrategyExhaustive, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyPunch, s)

	_, err = ParseStrategy("bottom-up")
	assert.True(t, IsConfiguration(err))
}

func TestLogObserver_WritesEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	punch := newPunch(containsAll(2), WithObserver[int](NewLogObserver[int](logger, nil)))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2}))

	out := buf.String()
	assert.Contains(t, out, "Core enumeration started")
	assert.Contains(t, out, `"core":"{2}"`)
	assert.Contains(t, out, "Cores intersection found")
	assert.Contains(t, out, "Core enumeration finished")
}

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	punch := newPunch(containsAll(1), WithObserver[int](MultiObserver[int]{a, b}))

	require.NoError(t, punch.ComputeAllCores(context.Background(), []int{1, 2}))

	assert.Equal(t, a.cores, b.cores)
	assert.Equal(t, 1, b.ended)
}

func TestErrors_Classification(t *testing.T) {
	err := NewPredicateError("check failed", context.DeadlineExceeded)
	assert.True(t, IsCanceled(err))
	assert.Equal(t, ErrCodeTimeout, err.Code)

	err = NewPredicateError("check failed", errBroken).WithStrategy("punch").WithDetail("subset", "{1}")
	assert.True(t, IsPredicate(err))
	assert.Contains(t, err.Error(), "solver crashed")
	assert.Equal(t, "{1}", err.Details["subset"])
	assert.Equal(t, ErrorClass(""), ClassOf(errBroken))
}
