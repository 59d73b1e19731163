// Package features builds the fixed-capacity context feature arrays fed to the
// head-vector function of a scoring model.
package features

import (
	"math/rand"
	"sync"

	"github.com/turtacn/kgeval/internal/domain/graph"
)

// Capacity is the number of context slots per entity.
const Capacity = 50

// Set holds the two parallel feature channels of one head entity.
type Set struct {
	Relations [Capacity]int
	Entities  [Capacity]int

	// Used is the number of occupied slots; the rest hold sentinels.
	Used int
}

// RelationSlice and EntitySlice return the channels as slices.
func (s *Set) RelationSlice() []int { return s.Relations[:] }

// EntitySlice returns the entity channel as a slice.
func (s *Set) EntitySlice() []int { return s.Entities[:] }

// RelationSentinel is the padding value of the relation channel.
func RelationSentinel(relationCount int) int {
	return relationCount * (relationCount + 1)
}

// EntitySentinel is the padding value of the entity channel.
func EntitySentinel(entityCount int) int {
	return entityCount
}

// Extractor turns an entity's neighbor pairs into a Set.  It is safe for
// concurrent use; the random source is guarded.
type Extractor struct {
	source        graph.NeighborSource
	entityCount   int
	relationCount int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewExtractor builds an Extractor.  rng drives truncation of entities with
// more than Capacity pairs.
func NewExtractor(source graph.NeighborSource, entityCount, relationCount int, rng *rand.Rand) *Extractor {
	return &Extractor{
		source:        source,
		entityCount:   entityCount,
		relationCount: relationCount,
		rng:           rng,
	}
}

// Extract builds the Set for head h under query relation r.
//
// The pairs of h are extended with the self pair (relationCount, h).  Each
// pair's relation is folded with r as rel*relationCount + r.  When more than
// Capacity pairs exist, Capacity of them are drawn uniformly without
// replacement; otherwise the remaining slots are padded with sentinels.
func (e *Extractor) Extract(h, r int) Set {
	pairs := e.source.Pairs(h)
	pairs = append(pairs, graph.Pair{Relation: e.relationCount, Entity: h})

	var s Set
	if len(pairs) > Capacity {
		for i, idx := range e.sample(len(pairs)) {
			s.Relations[i] = pairs[idx].Relation*e.relationCount + r
			s.Entities[i] = pairs[idx].Entity
		}
		s.Used = Capacity
		return s
	}

	for i, p := range pairs {
		s.Relations[i] = p.Relation*e.relationCount + r
		s.Entities[i] = p.Entity
	}
	s.Used = len(pairs)

	relPad, entPad := RelationSentinel(e.relationCount), EntitySentinel(e.entityCount)
	for i := s.Used; i < Capacity; i++ {
		s.Relations[i] = relPad
		s.Entities[i] = entPad
	}
	return s
}

// Sampled reports whether Extract draws a random subset of h's pairs, that
// is whether h has more than Capacity pairs once the self pair is added.
func Sampled(source graph.NeighborSource, h int) bool {
	return source.Degree(h)+1 > Capacity
}

// SampledHeads counts the distinct heads of tests that Extract samples.
func SampledHeads(source graph.NeighborSource, tests []graph.LabeledTriple) int {
	seen := make(map[int]bool)
	n := 0
	for _, t := range tests {
		if seen[t.Head] {
			continue
		}
		seen[t.Head] = true
		if Sampled(source, t.Head) {
			n++
		}
	}
	return n
}

// sample draws Capacity distinct indices from [0, n) in draw order, using a
// partial Fisher-Yates shuffle.
func (e *Extractor) sample(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	e.mu.Lock()
	for i := 0; i < Capacity; i++ {
		j := i + e.rng.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	e.mu.Unlock()
	return perm[:Capacity]
}
