package engine

import (
	"context"
	"errors"
	"math/rand"
	"slices"
	"time"
)

var intOrd = NaturalOrdering[int]()

// countingPredicate records every subset that reached it.
type countingPredicate struct {
	check func(subset []int) bool
	calls [][]int
}

func (c *countingPredicate) Check(_ context.Context, subset []int) (bool, error) {
	c.calls = append(c.calls, slices.Clone(subset))
	return c.check(subset), nil
}

// containsAll holds when subset includes every element of required.
func containsAll(required ...int) func([]int) bool {
	return func(subset []int) bool {
		for _, r := range required {
			if !slices.Contains(subset, r) {
				return false
			}
		}
		return true
	}
}

// sizeAtLeast holds when subset has at least n elements.
func sizeAtLeast(n int) func([]int) bool {
	return func(subset []int) bool {
		return len(subset) >= n
	}
}

// upwardClosure holds when subset includes at least one member of family.
// Its cores are exactly the inclusion-minimal members of family.
func upwardClosure(family [][]int) func([]int) bool {
	return func(subset []int) bool {
		for _, f := range family {
			if containsAll(f...)(subset) {
				return true
			}
		}
		return false
	}
}

// minimalMembers returns the inclusion-minimal members of family, canonicalized.
func minimalMembers(family [][]int) [][]int {
	var out [][]int
	for i, f := range family {
		fc := Canonicalize(intOrd, f)
		minimal := true
		for j, g := range family {
			gc := Canonicalize(intOrd, g)
			if i == j {
				continue
			}
			if IsSubset(intOrd, gc, fc) && (len(gc) < len(fc) || j < i) {
				minimal = false
				break
			}
		}
		if minimal {
			out = append(out, fc)
		}
	}
	return out
}

// randomFamily builds a family of non-empty subsets of {0..n-1}.
func randomFamily(r *rand.Rand, n, members int) [][]int {
	family := make([][]int, 0, members)
	for i := 0; i < members; i++ {
		var f []int
		for e := 0; e < n; e++ {
			if r.Intn(3) == 0 {
				f = append(f, e)
			}
		}
		if len(f) == 0 {
			f = []int{r.Intn(n)}
		}
		family = append(family, f)
	}
	return family
}

func universeOf(n int) []int {
	u := make([]int, n)
	for i := range u {
		u[i] = i
	}
	return u
}

var errBroken = errors.New("solver crashed")

// failingAfter fails every call after the first n.
func failingAfter(n int, check func([]int) bool) Predicate[int] {
	calls := 0
	return PredicateFunc[int](func(_ context.Context, subset []int) (bool, error) {
		calls++
		if calls > n {
			return false, errBroken
		}
		return check(subset), nil
	})
}

// recordingObserver keeps every event for inspection.
type recordingObserver struct {
	began         int
	ended         int
	cores         [][]int
	coreStats     []Stats
	intersections [][]int
	elapsed       []time.Duration
}

func (r *recordingObserver) Begin() { r.began++ }

func (r *recordingObserver) CoreFound(core []int, stats Stats, elapsed time.Duration) {
	r.cores = append(r.cores, slices.Clone(core))
	r.coreStats = append(r.coreStats, stats)
	r.elapsed = append(r.elapsed, elapsed)
}

func (r *recordingObserver) CoresIntersectionFound(intersection []int, _ Stats, elapsed time.Duration) {
	r.intersections = append(r.intersections, slices.Clone(intersection))
	r.elapsed = append(r.elapsed, elapsed)
}

func (r *recordingObserver) End(Stats, time.Duration) { r.ended++ }

// stepClock advances one second on every reading.
func stepClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}
