package engine

import (
	"context"
	"sort"
)

// Oracle memoizes a monotonic predicate with a positive and a negative subset
// cache. A cached positive answers for every superset, a cached negative for
// every subset.
//
// Positive entries are kept in ascending size order and negative entries in
// descending size order so that both scans can stop early.
//
// Oracle is not safe for concurrent use. Several strategies may share one
// instance over the same universe as long as the caller serializes them.
type Oracle[E any] struct {
	pred      Predicate[E]
	ord       Ordering[E]
	positives [][]E
	negatives [][]E
	stats     Stats
}

// NewOracle wraps pred. Every subset is canonicalized with ord before it is
// compared or cached, so ord must stay the same for the lifetime of the oracle.
func NewOracle[E any](pred Predicate[E], ord Ordering[E]) *Oracle[E] {
	return &Oracle[E]{
		pred: pred,
		ord:  ord,
	}
}

// Ordering returns the canonical ordering of the oracle.
func (o *Oracle[E]) Ordering() Ordering[E] {
	return o.ord
}

// Predicate returns the wrapped predicate.
func (o *Oracle[E]) Predicate() Predicate[E] {
	return o.pred
}

// Check answers the predicate for subset, from cache when possible.
func (o *Oracle[E]) Check(ctx context.Context, subset []E) (bool, error) {
	canon := Canonicalize(o.ord, subset)
	o.stats.TotalChecks++

	if o.knownPositive(canon) {
		return true, nil
	}
	if o.knownNegative(canon) {
		return false, nil
	}

	verdict, err := o.pred.Check(ctx, canon)
	o.stats.ActualChecks++
	if err != nil {
		return false, err
	}
	o.insert(verdict, canon)
	return verdict, nil
}

// knownPositive scans the ascending positive cache for a subset of canon.
func (o *Oracle[E]) knownPositive(canon []E) bool {
	for _, p := range o.positives {
		if len(p) > len(canon) {
			return false
		}
		if IsSubset(o.ord, p, canon) {
			return true
		}
	}
	return false
}

// knownNegative scans the descending negative cache for a superset of canon.
func (o *Oracle[E]) knownNegative(canon []E) bool {
	for _, n := range o.negatives {
		if len(n) < len(canon) {
			return false
		}
		if IsSubset(o.ord, canon, n) {
			return true
		}
	}
	return false
}

// Register records a verdict for subset without calling the predicate.
// Registering a subset that is already cached with the same verdict is a no-op.
// Registering the same subset as both positive and negative is a caller error
// and is not detected.
func (o *Oracle[E]) Register(verdict bool, subset []E) {
	o.insert(verdict, Canonicalize(o.ord, subset))
}

func (o *Oracle[E]) insert(verdict bool, canon []E) {
	if verdict {
		// first index whose size exceeds len(canon); equal sizes stay in insertion order
		i := sort.Search(len(o.positives), func(i int) bool { return len(o.positives[i]) > len(canon) })
		if o.hasExact(o.positives, canon) {
			return
		}
		o.positives = insertAt(o.positives, i, canon)
		return
	}
	i := sort.Search(len(o.negatives), func(i int) bool { return len(o.negatives[i]) < len(canon) })
	if o.hasExact(o.negatives, canon) {
		return
	}
	o.negatives = insertAt(o.negatives, i, canon)
}

func (o *Oracle[E]) hasExact(entries [][]E, canon []E) bool {
	for _, entry := range entries {
		if len(entry) == len(canon) && Equal(o.ord, entry, canon) {
			return true
		}
	}
	return false
}

func insertAt[E any](entries [][]E, i int, entry []E) [][]E {
	entries = append(entries, nil)
	copy(entries[i+1:], entries[i:])
	entries[i] = entry
	return entries
}

// Stats returns the counters accumulated so far.
func (o *Oracle[E]) Stats() Stats {
	return o.stats
}

// TotalChecks returns the number of queries made through Check.
func (o *Oracle[E]) TotalChecks() int64 {
	return o.stats.TotalChecks
}

// ActualChecks returns the number of queries forwarded to the predicate.
func (o *Oracle[E]) ActualChecks() int64 {
	return o.stats.ActualChecks
}

// PositiveEntries returns the number of cached positive subsets.
func (o *Oracle[E]) PositiveEntries() int {
	return len(o.positives)
}

// NegativeEntries returns the number of cached negative subsets.
func (o *Oracle[E]) NegativeEntries() int {
	return len(o.negatives)
}
