package engine

import "slices"

// Registry is the per-run record of discovered cores in discovery order,
// together with the write-once cores intersection.
//
// Registry is not safe for concurrent use.
type Registry[E any] struct {
	ord             Ordering[E]
	cores           [][]E
	intersection    []E
	hasIntersection bool
}

// NewRegistry creates an empty registry. Cores are stored canonicalized by ord.
func NewRegistry[E any](ord Ordering[E]) *Registry[E] {
	return &Registry[E]{ord: ord}
}

// Add appends a core and returns its canonical form.
func (r *Registry[E]) Add(core []E) []E {
	canon := Canonicalize(r.ord, core)
	r.cores = append(r.cores, canon)
	return canon
}

// Cores returns a copy of the discovered cores in discovery order.
func (r *Registry[E]) Cores() [][]E {
	out := make([][]E, len(r.cores))
	for i, c := range r.cores {
		out[i] = slices.Clone(c)
	}
	return out
}

// Len returns the number of discovered cores.
func (r *Registry[E]) Len() int {
	return len(r.cores)
}

// LatestContainedIn returns the most recently registered core that is a
// subset of candidates. When several cores qualify the newest one wins.
func (r *Registry[E]) LatestContainedIn(candidates []E) ([]E, bool) {
	canon := Canonicalize(r.ord, candidates)
	for i := len(r.cores) - 1; i >= 0; i-- {
		if IsSubset(r.ord, r.cores[i], canon) {
			return slices.Clone(r.cores[i]), true
		}
	}
	return nil, false
}

// SetIntersection records the cores intersection. Only the first call has an
// effect; it reports whether this call was the one that recorded it. An
// empty intersection is stored as a non-nil empty slice.
func (r *Registry[E]) SetIntersection(intersection []E) bool {
	if r.hasIntersection {
		return false
	}
	r.intersection = Canonicalize(r.ord, intersection)
	if r.intersection == nil {
		r.intersection = []E{}
	}
	r.hasIntersection = true
	return true
}

// Intersection returns the recorded cores intersection, if any.
func (r *Registry[E]) Intersection() ([]E, bool) {
	if !r.hasIntersection {
		return nil, false
	}
	return slices.Clone(r.intersection), true
}

// HasIntersection reports whether the intersection has been recorded.
func (r *Registry[E]) HasIntersection() bool {
	return r.hasIntersection
}
