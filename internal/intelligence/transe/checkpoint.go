// Package transe loads exported embedding checkpoints and serves them through
// the scoring.Model capability.
//
// Checkpoint layout (JSON):
//
//	{
//	  "dim": D,
//	  "entities":  [[...], ...],   // entityCount+1 rows, last row is padding
//	  "relations": [[...], ...],   // relationCount rows
//	  "context":   [[...], ...],   // relationCount*(relationCount+1)+1 rows, last row is padding
//	  "tails":     [[...], ...]    // optional, defaults to "entities"
//	}
//
// The head vector averages context[rf]+entities[ef] over the occupied slots.
package transe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/kgeval/internal/domain/features"
	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Checkpoint is the serialised parameter snapshot.
type Checkpoint struct {
	Dim       int         `json:"dim"`
	Entities  [][]float64 `json:"entities"`
	Relations [][]float64 `json:"relations"`
	Context   [][]float64 `json:"context"`
	Tails     [][]float64 `json:"tails,omitempty"`
}

// Model is an in-memory checkpoint.  It is immutable after Load and safe for
// concurrent use.
type Model struct {
	ckpt          Checkpoint
	entityCount   int
	relationCount int
	id            string
}

var _ scoring.Model = (*Model)(nil)

// Open reads and validates a checkpoint file.
func Open(path string, entityCount, relationCount int) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeCheckpointNotFound, "checkpoint file not found").WithDetail(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeCheckpointNotFound, "open checkpoint").WithDetail(path)
	}
	defer f.Close()

	m, err := Load(f, entityCount, relationCount)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "load checkpoint").WithDetail(path)
	}
	m.id = fmt.Sprintf("%s-%016x", filepath.Base(path), m.digest())
	return m, nil
}

// Load decodes a checkpoint from r and checks its shape against the dataset.
func Load(r io.Reader, entityCount, relationCount int) (*Model, error) {
	var ckpt Checkpoint
	if err := json.NewDecoder(r).Decode(&ckpt); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCheckpointMalformed, "decode checkpoint")
	}
	if ckpt.Tails == nil {
		ckpt.Tails = ckpt.Entities
	}
	m := &Model{ckpt: ckpt, entityCount: entityCount, relationCount: relationCount}
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.id = fmt.Sprintf("ckpt-%016x", m.digest())
	return m, nil
}

func (m *Model) validate() error {
	c := &m.ckpt
	if c.Dim <= 0 {
		return errors.New(errors.ErrCodeCheckpointMalformed, "dim must be positive")
	}
	tables := []struct {
		name string
		rows [][]float64
		want int
	}{
		{"entities", c.Entities, m.entityCount + 1},
		{"relations", c.Relations, m.relationCount},
		{"context", c.Context, features.RelationSentinel(m.relationCount) + 1},
		{"tails", c.Tails, m.entityCount + 1},
	}
	for _, tbl := range tables {
		if len(tbl.rows) < tbl.want {
			return errors.New(errors.ErrCodeCheckpointMalformed, "table too small").
				WithDetailf("%s has %d rows, dataset needs %d", tbl.name, len(tbl.rows), tbl.want)
		}
		for i, row := range tbl.rows {
			if len(row) != c.Dim {
				return errors.New(errors.ErrCodeDimensionMismatch, "row width differs from dim").
					WithDetailf("%s[%d] has %d values, dim is %d", tbl.name, i, len(row), c.Dim)
			}
		}
	}
	return nil
}

func (m *Model) digest() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%d:%d:%d:%d", m.ckpt.Dim, len(m.ckpt.Entities), len(m.ckpt.Relations), len(m.ckpt.Context))
	for _, tbl := range [][][]float64{m.ckpt.Entities, m.ckpt.Relations, m.ckpt.Context, m.ckpt.Tails} {
		for _, row := range tbl {
			for _, v := range row {
				fmt.Fprintf(h, ",%g", v)
			}
		}
	}
	return h.Sum64()
}

// Describe identifies the checkpoint.
func (m *Model) Describe() scoring.Descriptor {
	return scoring.Descriptor{
		ID:        m.id,
		Backend:   "local",
		Dim:       m.ckpt.Dim,
		Entities:  m.entityCount,
		Relations: m.relationCount,
	}
}

// Dim is the embedding width.
func (m *Model) Dim() int { return m.ckpt.Dim }

// HeadVector averages context[rf]+entities[ef] over the non-padding slots.
func (m *Model) HeadVector(_ context.Context, relFeatures, entFeatures []int) ([]float64, error) {
	if len(relFeatures) != len(entFeatures) {
		return nil, errors.New(errors.ErrCodeDimensionMismatch, "feature channels differ in length").
			WithDetailf("relations=%d entities=%d", len(relFeatures), len(entFeatures))
	}
	relPad, entPad := features.RelationSentinel(m.relationCount), features.EntitySentinel(m.entityCount)

	out := make([]float64, m.ckpt.Dim)
	used := 0
	for i := range relFeatures {
		rf, ef := relFeatures[i], entFeatures[i]
		if rf == relPad && ef == entPad {
			continue
		}
		crow, err := row(m.ckpt.Context, rf, "context")
		if err != nil {
			return nil, err
		}
		erow, err := row(m.ckpt.Entities, ef, "entities")
		if err != nil {
			return nil, err
		}
		for k := range out {
			out[k] += crow[k] + erow[k]
		}
		used++
	}
	if used > 0 {
		inv := 1 / float64(used)
		for k := range out {
			out[k] *= inv
		}
	}
	return out, nil
}

// RelationVector returns relations[rel].
func (m *Model) RelationVector(_ context.Context, rel int) ([]float64, error) {
	return row(m.ckpt.Relations, rel, "relations")
}

// TailVector returns tails[tail].
func (m *Model) TailVector(_ context.Context, tail int) ([]float64, error) {
	return row(m.ckpt.Tails, tail, "tails")
}

func row(tbl [][]float64, id int, name string) ([]float64, error) {
	if id < 0 || id >= len(tbl) {
		return nil, errors.New(errors.ErrCodeIDOutOfRange, "embedding id out of range").
			WithDetailf("%s[%d] with %d rows", name, id, len(tbl))
	}
	return tbl[id], nil
}
