package engine

import (
	"context"
	"slices"
)

// DDMin is the delta-debugging minimizer. It removes the largest chunks of the
// candidate set it can while the predicate still holds, refining the chunk
// granularity until no single element can be dropped.
type DDMin[E any] struct {
	oracle *Oracle[E]
}

// NewDDMin creates a ddmin minimizer that checks through oracle.
func NewDDMin[E any](oracle *Oracle[E]) *DDMin[E] {
	return &DDMin[E]{oracle: oracle}
}

// Minimize implements Minimizer. It assumes check(base ∪ candidates) holds.
func (d *DDMin[E]) Minimize(ctx context.Context, candidates, base []E) ([]E, error) {
	current := slices.Clone(candidates)
	n := 2

	for len(current) > 0 {
		n = min(n, len(current))
		chunks := split(current, n)

		// a lone chunk is current itself and is known to hold
		if n > 1 {
			chunk, ok, err := d.firstHolding(ctx, base, chunks)
			if err != nil {
				return nil, err
			}
			if ok {
				current = chunk
				n = 2
				continue
			}
		}

		complements := make([][]E, len(chunks))
		for i := range chunks {
			complements[i] = complement(chunks, i)
		}
		rest, ok, err := d.firstHolding(ctx, base, complements)
		if err != nil {
			return nil, err
		}
		if ok {
			current = rest
			n = max(n-1, 2)
			continue
		}

		if n >= len(current) {
			break
		}
		n = min(2*n, len(current))
	}

	return current, nil
}

func (d *DDMin[E]) firstHolding(ctx context.Context, base []E, subsets [][]E) ([]E, bool, error) {
	for _, s := range subsets {
		ok, err := d.oracle.Check(ctx, concat(base, s))
		if err != nil {
			return nil, false, err
		}
		if ok {
			return s, true, nil
		}
	}
	return nil, false, nil
}

// split partitions s into n contiguous chunks whose sizes differ by at most one.
func split[E any](s []E, n int) [][]E {
	chunks := make([][]E, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := len(s) / n
		if i < len(s)%n {
			size++
		}
		chunks = append(chunks, s[start:start+size])
		start += size
	}
	return chunks
}

// complement concatenates every chunk except chunks[skip].
func complement[E any](chunks [][]E, skip int) []E {
	var out []E
	for i, c := range chunks {
		if i != skip {
			out = append(out, c...)
		}
	}
	return out
}

func concat[E any](a, b []E) []E {
	out := make([]E, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
