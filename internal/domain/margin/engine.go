// Package margin finds, per relation, the integer distance threshold that
// best separates true triples (distance < margin) from corrupted ones
// (distance >= margin).
package margin

import (
	"github.com/turtacn/kgeval/internal/domain/graph"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Buckets groups raw distances by (relation, label).
type Buckets struct {
	pos map[int][]float64
	neg map[int][]float64
}

// NewBuckets returns empty Buckets.
func NewBuckets() *Buckets {
	return &Buckets{pos: make(map[int][]float64), neg: make(map[int][]float64)}
}

// Add records the distance of one labeled example.
func (b *Buckets) Add(rel int, label graph.Label, dist float64) {
	if label == graph.Positive {
		b.pos[rel] = append(b.pos[rel], dist)
		return
	}
	b.neg[rel] = append(b.neg[rel], dist)
}

// Positives returns the distances of true triples of rel.
func (b *Buckets) Positives(rel int) []float64 { return b.pos[rel] }

// Negatives returns the distances of corrupted triples of rel.
func (b *Buckets) Negatives(rel int) []float64 { return b.neg[rel] }

// Count is the number of examples recorded for rel.
func (b *Buckets) Count(rel int) int { return len(b.pos[rel]) + len(b.neg[rel]) }

// RelationResult is the outcome for one relation.
type RelationResult struct {
	Relation int   `json:"relation"`
	Counts   []int `json:"counts"` // Counts[i] = correct(start+i)

	BestMargin  int `json:"best_margin"`
	BestCorrect int `json:"best_correct"`
	Total       int `json:"total"`
}

// Accuracy is Counts[i]/Total for every candidate margin.
func (r *RelationResult) Accuracy() []float64 {
	out := make([]float64, len(r.Counts))
	for i, c := range r.Counts {
		out[i] = float64(c) / float64(r.Total)
	}
	return out
}

// BestAccuracy is BestCorrect/Total.
func (r *RelationResult) BestAccuracy() float64 {
	return float64(r.BestCorrect) / float64(r.Total)
}

// Result is the outcome of a whole search.
type Result struct {
	Start int `json:"start"`
	End   int `json:"end"`

	// Relations holds one entry per relation with examples, in id order.
	Relations []RelationResult `json:"relations"`

	// Skipped lists relation ids with no examples.
	Skipped []int `json:"skipped"`

	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"` // micro average
}

// CorrectCounts returns correct(m) = |{p in pos : p < m}| + |{n in neg : n >= m}|
// for m in [start, end).
func CorrectCounts(pos, neg []float64, start, end int) []int {
	if end <= start {
		return nil
	}
	counts := make([]int, end-start)
	for i := range counts {
		m := float64(start + i)
		c := 0
		for _, p := range pos {
			if p < m {
				c++
			}
		}
		for _, n := range neg {
			if n >= m {
				c++
			}
		}
		counts[i] = c
	}
	return counts
}

// BestMargin returns the first margin reaching the maximum count.
func BestMargin(counts []int, start int) (margin, correct int) {
	best := 0
	for i := 1; i < len(counts); i++ {
		if counts[i] > counts[best] {
			best = i
		}
	}
	if len(counts) == 0 {
		return start, 0
	}
	return start + best, counts[best]
}

// Search evaluates relations 0..relationCount-1 over [start, end).  Relations
// without examples are skipped and listed in Result.Skipped.
func Search(b *Buckets, relationCount, start, end int) (*Result, error) {
	if start >= end {
		return nil, errors.New(errors.ErrCodeInvalidMarginRange, "margin range is empty").
			WithDetailf("start=%d end=%d", start, end)
	}

	res := &Result{Start: start, End: end, Skipped: []int{}}
	for rel := 0; rel < relationCount; rel++ {
		total := b.Count(rel)
		if total == 0 {
			res.Skipped = append(res.Skipped, rel)
			continue
		}
		counts := CorrectCounts(b.Positives(rel), b.Negatives(rel), start, end)
		m, c := BestMargin(counts, start)
		res.Relations = append(res.Relations, RelationResult{
			Relation:    rel,
			Counts:      counts,
			BestMargin:  m,
			BestCorrect: c,
			Total:       total,
		})
		res.Correct += c
		res.Total += total
	}

	if res.Total == 0 {
		return res, errors.New(errors.ErrCodeNoExamples, "no relation has test examples")
	}
	res.Accuracy = float64(res.Correct) / float64(res.Total)
	return res, nil
}
