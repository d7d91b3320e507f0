package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Partitioner splits a candidate set into groups that do not interact through
// the predicate. Every candidate must land in exactly one group.
type Partitioner[E any] interface {
	Partition(candidates []E) [][]E
}

// DependencyGraph records which elements interact. Its connected components
// restricted to a candidate set are the independent groups of that set.
type DependencyGraph[E any] struct {
	key func(E) string

	// adjacency maps element keys to the keys they interact with
	adjacency map[string][]string
}

// NewDependencyGraph creates an empty graph. key must be injective.
func NewDependencyGraph[E any](key func(E) string) *DependencyGraph[E] {
	return &DependencyGraph[E]{
		key:       key,
		adjacency: make(map[string][]string),
	}
}

// AddElement registers an element with no dependencies.
func (g *DependencyGraph[E]) AddElement(e E) {
	k := g.key(e)
	if _, exists := g.adjacency[k]; !exists {
		g.adjacency[k] = make([]string, 0)
	}
}

// Connect records that a and b interact. The relation is symmetric.
func (g *DependencyGraph[E]) Connect(a, b E) {
	ka, kb := g.key(a), g.key(b)
	g.AddElement(a)
	g.AddElement(b)
	if ka == kb {
		return
	}
	g.adjacency[ka] = append(g.adjacency[ka], kb)
	g.adjacency[kb] = append(g.adjacency[kb], ka)
}

// ConnectGroup records that every member of group interacts with the others.
func (g *DependencyGraph[E]) ConnectGroup(group []E) {
	for i := 1; i < len(group); i++ {
		g.Connect(group[0], group[i])
	}
	if len(group) == 1 {
		g.AddElement(group[0])
	}
}

// Partition implements Partitioner. Groups appear in the order of their first
// member in candidates and keep the candidate order inside. Edges through
// elements outside candidates are ignored.
func (g *DependencyGraph[E]) Partition(candidates []E) [][]E {
	inSet := make(map[string]int, len(candidates))
	for i, c := range candidates {
		inSet[g.key(c)] = i
	}

	component := make(map[string]int, len(candidates))
	next := 0
	for _, c := range candidates {
		start := g.key(c)
		if _, seen := component[start]; seen {
			continue
		}
		stack := []string{start}
		component[start] = next
		for len(stack) > 0 {
			k := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, nb := range g.adjacency[k] {
				if _, ok := inSet[nb]; !ok {
					continue
				}
				if _, seen := component[nb]; !seen {
					component[nb] = next
					stack = append(stack, nb)
				}
			}
		}
		next++
	}

	groups := make([][]E, next)
	for _, c := range candidates {
		id := component[g.key(c)]
		groups[id] = append(groups[id], c)
	}
	return groups
}

// ToDOT generates a DOT representation of the graph, one cluster per
// component of candidates. The output can be rendered with Graphviz tools.
func (g *DependencyGraph[E]) ToDOT(candidates []E) string {
	var sb strings.Builder

	sb.WriteString("graph Dependencies {\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for i, group := range g.Partition(candidates) {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_group_%d {\n", i))
		sb.WriteString(fmt.Sprintf("    label=\"Group %d\";\n", i))
		sb.WriteString("    style=dashed;\n")
		for _, e := range group {
			sb.WriteString(fmt.Sprintf("    %q;\n", g.key(e)))
		}
		sb.WriteString("  }\n\n")
	}

	keys := make([]string, 0, len(g.adjacency))
	for k := range g.adjacency {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, nb := range g.adjacency[k] {
			if k < nb {
				sb.WriteString(fmt.Sprintf("  %q -- %q;\n", k, nb))
			}
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// PartitionMinimizer minimizes each independent group of the candidates on
// its own while the other groups are held in full, then re-verifies the
// combined result against the predicate. If the groups were not actually
// independent and the combination fails, it falls back to minimizing all
// candidates at once with the inner minimizer.
type PartitionMinimizer[E any] struct {
	oracle      *Oracle[E]
	partitioner Partitioner[E]
	inner       Minimizer[E]
}

// NewPartitionMinimizer creates a partition minimizer. inner minimizes each
// group and serves as the fallback; it must check through the same oracle.
func NewPartitionMinimizer[E any](oracle *Oracle[E], partitioner Partitioner[E], inner Minimizer[E]) *PartitionMinimizer[E] {
	return &PartitionMinimizer[E]{
		oracle:      oracle,
		partitioner: partitioner,
		inner:       inner,
	}
}

// Minimize implements Minimizer.
func (p *PartitionMinimizer[E]) Minimize(ctx context.Context, candidates, base []E) ([]E, error) {
	groups := p.partitioner.Partition(candidates)
	if len(groups) <= 1 {
		return p.inner.Minimize(ctx, candidates, base)
	}

	var combined []E
	for i, group := range groups {
		fixed := concat(base, complement(groups, i))
		reduced, err := p.inner.Minimize(ctx, group, fixed)
		if err != nil {
			return nil, err
		}
		combined = append(combined, reduced...)
	}

	ok, err := p.oracle.Check(ctx, concat(base, combined))
	if err != nil {
		return nil, err
	}
	if ok {
		return combined, nil
	}
	return p.inner.Minimize(ctx, candidates, base)
}
