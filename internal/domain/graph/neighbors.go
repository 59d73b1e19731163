package graph

import "context"

// Pair is one (relation, neighbor) context entry of an entity.
type Pair struct {
	Relation int
	Entity   int
}

// NeighborSource yields the training-derived context pairs of an entity.
// Implementations must return a slice the caller may modify.
type NeighborSource interface {
	Pairs(h int) []Pair
	Degree(h int) int
}

// NeighborIndex is the in-memory NeighborSource built from training edges.
type NeighborIndex struct {
	pairs [][]Pair
}

// BuildNeighborIndex records (r, t) under h for every training triple, in
// input order.
func BuildNeighborIndex(triples []Triple, entityCount int) *NeighborIndex {
	idx := &NeighborIndex{pairs: make([][]Pair, entityCount)}
	for _, t := range triples {
		if t.Head < 0 || t.Head >= entityCount {
			continue
		}
		idx.pairs[t.Head] = append(idx.pairs[t.Head], Pair{Relation: t.Relation, Entity: t.Tail})
	}
	return idx
}

// Pairs returns a copy of h's pairs.  Unknown entities have none.
func (idx *NeighborIndex) Pairs(h int) []Pair {
	if h < 0 || h >= len(idx.pairs) {
		return nil
	}
	src := idx.pairs[h]
	out := make([]Pair, len(src), len(src)+1)
	copy(out, src)
	return out
}

// Degree is the number of pairs stored for h.
func (idx *NeighborIndex) Degree(h int) int {
	if h < 0 || h >= len(idx.pairs) {
		return 0
	}
	return len(idx.pairs[h])
}

// EdgeCount is the total number of stored pairs.
func (idx *NeighborIndex) EdgeCount() int {
	n := 0
	for _, p := range idx.pairs {
		n += len(p)
	}
	return n
}

// EdgeLoader fetches training edges from an external store.
type EdgeLoader interface {
	LoadEdges(ctx context.Context, entities, relations *Vocabulary) ([]Triple, error)
}
