package engine

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracle_PositiveAnswersSupersets(t *testing.T) {
	pred := &countingPredicate{check: containsAll(1, 2)}
	oracle := NewOracle[int](pred, intOrd)
	ctx := context.Background()

	ok, err := oracle.Check(ctx, []int{2, 1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = oracle.Check(ctx, []int{4, 1, 3, 2})
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, pred.calls, 1)
	assert.Equal(t, Stats{TotalChecks: 2, ActualChecks: 1}, oracle.Stats())
}

func TestOracle_NegativeAnswersSubsets(t *testing.T) {
	pred := &countingPredicate{check: containsAll(1, 2)}
	oracle := NewOracle[int](pred, intOrd)
	ctx := context.Background()

	ok, err := oracle.Check(ctx, []int{1, 3, 4})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = oracle.Check(ctx, []int{4, 1})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, pred.calls, 1)
	assert.Equal(t, int64(1), oracle.ActualChecks())
	assert.Equal(t, int64(2), oracle.TotalChecks())
}

func TestOracle_PredicateSeesCanonicalSubset(t *testing.T) {
	pred := &countingPredicate{check: sizeAtLeast(1)}
	oracle := NewOracle[int](pred, intOrd)

	input := []int{3, 1, 2}
	_, err := oracle.Check(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, [][]int{{1, 2, 3}}, pred.calls)
	assert.Equal(t, []int{3, 1, 2}, input)
}

func TestOracle_IdempotentAcrossInputOrder(t *testing.T) {
	pred := &countingPredicate{check: sizeAtLeast(3)}
	oracle := NewOracle[int](pred, intOrd)
	ctx := context.Background()

	first, err := oracle.Check(ctx, []int{5, 2, 9})
	require.NoError(t, err)
	actual := oracle.ActualChecks()

	second, err := oracle.Check(ctx, []int{9, 5, 2})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, actual, oracle.ActualChecks())
}

func TestOracle_RegisterIsIdempotent(t *testing.T) {
	oracle := NewOracle(Infallible(sizeAtLeast(1)), intOrd)

	oracle.Register(true, []int{2, 1})
	oracle.Register(true, []int{1, 2})
	oracle.Register(false, []int{3})
	oracle.Register(false, []int{3})

	assert.Equal(t, 1, oracle.PositiveEntries())
	assert.Equal(t, 1, oracle.NegativeEntries())
}

func TestOracle_RegisteredVerdictSkipsPredicate(t *testing.T) {
	pred := &countingPredicate{check: containsAll(7)}
	oracle := NewOracle[int](pred, intOrd)
	oracle.Register(true, []int{7})

	ok, err := oracle.Check(context.Background(), []int{1, 7})
	require.NoError(t, err)

	assert.True(t, ok)
	assert.Empty(t, pred.calls)
	assert.Equal(t, Stats{TotalChecks: 1, ActualChecks: 0}, oracle.Stats())
}

func TestOracle_ErrorsAreNotCached(t *testing.T) {
	calls := 0
	pred := PredicateFunc[int](func(_ context.Context, subset []int) (bool, error) {
		calls++
		if calls == 1 {
			return false, errBroken
		}
		return len(subset) > 0, nil
	})
	oracle := NewOracle[int](pred, intOrd)
	ctx := context.Background()

	_, err := oracle.Check(ctx, []int{1})
	require.ErrorIs(t, err, errBroken)
	assert.Equal(t, 0, oracle.PositiveEntries()+oracle.NegativeEntries())
	assert.Equal(t, Stats{TotalChecks: 1, ActualChecks: 1}, oracle.Stats())

	ok, err := oracle.Check(ctx, []int{1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), oracle.ActualChecks())
}

// Replacing direct calls with the oracle never changes an answer.
func TestOracle_CacheTransparency(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		n := 3 + r.Intn(5)
		check := upwardClosure(randomFamily(r, n, 1+r.Intn(4)))
		oracle := NewOracle(Infallible(check), intOrd)

		for q := 0; q < 60; q++ {
			var subset []int
			for e := 0; e < n; e++ {
				if r.Intn(2) == 0 {
					subset = append(subset, e)
				}
			}
			r.Shuffle(len(subset), func(i, j int) { subset[i], subset[j] = subset[j], subset[i] })

			got, err := oracle.Check(context.Background(), subset)
			require.NoError(t, err)
			require.Equal(t, check(subset), got, "round %d query %v", round, subset)
			require.LessOrEqual(t, oracle.ActualChecks(), oracle.TotalChecks())
		}
		assert.Less(t, oracle.ActualChecks(), oracle.TotalChecks())
	}
}
