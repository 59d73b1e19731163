// Package scoring computes translational plausibility distances through a
// three-function model capability.
package scoring

import (
	"context"
	"math"

	"github.com/turtacn/kgeval/pkg/errors"
)

// Model is the capability a trained embedding model exposes for validation.
// Implementations must be pure: no parameter updates, no gradient state.
type Model interface {
	// HeadVector embeds a head entity from its context feature channels.
	HeadVector(ctx context.Context, relFeatures, entFeatures []int) ([]float64, error)

	// RelationVector embeds a relation id.
	RelationVector(ctx context.Context, rel int) ([]float64, error)

	// TailVector embeds a tail entity id.
	TailVector(ctx context.Context, tail int) ([]float64, error)
}

// Describer is implemented by models that can identify themselves; the id
// scopes cached distances.
type Describer interface {
	Describe() Descriptor
}

// Descriptor identifies a loaded model.
type Descriptor struct {
	ID        string `json:"id"`
	Backend   string `json:"backend"`
	Dim       int    `json:"dim"`
	Entities  int    `json:"entities"`
	Relations int    `json:"relations"`
}

// Distance is ‖(head + rel) − tail‖₂.
func Distance(head, rel, tail []float64) (float64, error) {
	if len(head) != len(rel) || len(head) != len(tail) {
		return 0, errors.New(errors.ErrCodeDimensionMismatch, "vector dimensions differ").
			WithDetailf("head=%d relation=%d tail=%d", len(head), len(rel), len(tail))
	}
	var sum float64
	for i := range head {
		d := head[i] + rel[i] - tail[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
