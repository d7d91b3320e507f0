package engine

import (
	"cmp"
	"slices"
)

// Ordering is a total order over elements. Compare must return 0 only for
// the same element; subset comparison and cache deduplication rely on it.
type Ordering[E any] interface {
	Compare(a, b E) int
}

// OrderingFunc adapts a comparator to the Ordering interface.
type OrderingFunc[E any] func(a, b E) int

// Compare implements Ordering.
func (f OrderingFunc[E]) Compare(a, b E) int {
	return f(a, b)
}

// FuncOrdering orders elements with an explicit comparator.
func FuncOrdering[E any](compare func(a, b E) int) Ordering[E] {
	return OrderingFunc[E](compare)
}

// KeyOrdering orders elements by a canonical key. The key function must be
// injective: two distinct elements producing the same key are treated as one.
func KeyOrdering[E any](key func(E) string) Ordering[E] {
	return OrderingFunc[E](func(a, b E) int {
		return cmp.Compare(key(a), key(b))
	})
}

// NaturalOrdering orders values of an ordered type by their natural order.
func NaturalOrdering[E cmp.Ordered]() Ordering[E] {
	return OrderingFunc[E](cmp.Compare[E])
}

// Canonicalize returns a sorted copy of subset. The input is left untouched.
func Canonicalize[E any](ord Ordering[E], subset []E) []E {
	out := slices.Clone(subset)
	slices.SortFunc(out, ord.Compare)
	return out
}

// IsSubset reports whether small ⊆ large. Both slices must be sorted by ord.
func IsSubset[E any](ord Ordering[E], small, large []E) bool {
	if len(small) > len(large) {
		return false
	}
	j := 0
	for _, s := range small {
		for j < len(large) && ord.Compare(large[j], s) < 0 {
			j++
		}
		if j == len(large) || ord.Compare(large[j], s) != 0 {
			return false
		}
		j++
	}
	return true
}

// Equal reports whether two canonical subsets hold the same elements.
func Equal[E any](ord Ordering[E], a, b []E) bool {
	return slices.EqualFunc(a, b, func(x, y E) bool { return ord.Compare(x, y) == 0 })
}

// Contains reports whether e is a member of subset. subset need not be sorted.
func Contains[E any](ord Ordering[E], subset []E, e E) bool {
	return slices.ContainsFunc(subset, func(x E) bool { return ord.Compare(x, e) == 0 })
}

// Without returns subset with every member of removed dropped, preserving order.
func Without[E any](ord Ordering[E], subset []E, removed ...E) []E {
	out := make([]E, 0, len(subset))
	for _, e := range subset {
		if !Contains(ord, removed, e) {
			out = append(out, e)
		}
	}
	return out
}

// Union returns a ∪ b, keeping the order of a followed by the new members of b.
func Union[E any](ord Ordering[E], a, b []E) []E {
	out := slices.Clone(a)
	for _, e := range b {
		if !Contains(ord, out, e) {
			out = append(out, e)
		}
	}
	return out
}

// Intersect returns the members of a that also belong to b, in the order of a.
func Intersect[E any](ord Ordering[E], a, b []E) []E {
	out := make([]E, 0, min(len(a), len(b)))
	for _, e := range a {
		if Contains(ord, b, e) {
			out = append(out, e)
		}
	}
	return out
}
