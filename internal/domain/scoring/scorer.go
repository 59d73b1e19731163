package scoring

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/kgeval/internal/domain/features"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Example is one scoring request.
type Example struct {
	Features features.Set
	Relation int
	Tail     int
}

// Fingerprint hashes the example's inputs.  Two examples with equal
// fingerprints yield the same distance under the same model.
func (e *Example) Fingerprint() uint64 {
	buf := make([]byte, 0, 8*(2*features.Capacity+2))
	for i := 0; i < features.Capacity; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Features.Relations[i]))
	}
	for i := 0; i < features.Capacity; i++ {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Features.Entities[i]))
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Relation))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Tail))
	return xxhash.Sum64(buf)
}

// DistanceCache stores computed distances by key.
type DistanceCache interface {
	GetDistance(ctx context.Context, key string) (float64, bool, error)
	SetDistance(ctx context.Context, key string, d float64) error
}

// Observer receives scoring telemetry.
type Observer interface {
	BatchScored(size int, elapsed time.Duration)
	CacheLookup(hit bool)
}

// Scorer evaluates batches of examples against a Model.
type Scorer struct {
	model    Model
	modelID  string
	cache    DistanceCache
	observer Observer
	logger   logging.Logger
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithCache routes distances through c.  Cache failures are logged and the
// distance is computed directly.
func WithCache(c DistanceCache) ScorerOption {
	return func(s *Scorer) { s.cache = c }
}

// WithObserver attaches telemetry.
func WithObserver(o Observer) ScorerOption {
	return func(s *Scorer) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) ScorerOption {
	return func(s *Scorer) { s.logger = l }
}

// NewScorer builds a Scorer over model.
func NewScorer(model Model, opts ...ScorerOption) *Scorer {
	s := &Scorer{model: model, logger: logging.NewNopLogger()}
	if d, ok := model.(Describer); ok {
		s.modelID = d.Describe().ID
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the distance of a single example.
func (s *Scorer) Score(ctx context.Context, ex *Example) (float64, error) {
	var key string
	if s.cache != nil && s.modelID != "" {
		key = s.cacheKey(ex)
		d, ok, err := s.cache.GetDistance(ctx, key)
		if err != nil {
			s.logger.Warn("distance cache lookup failed", logging.Err(err))
		} else {
			if s.observer != nil {
				s.observer.CacheLookup(ok)
			}
			if ok {
				return d, nil
			}
		}
	}

	head, err := s.model.HeadVector(ctx, ex.Features.RelationSlice(), ex.Features.EntitySlice())
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "head vector")
	}
	rel, err := s.model.RelationVector(ctx, ex.Relation)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "relation vector")
	}
	tail, err := s.model.TailVector(ctx, ex.Tail)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "tail vector")
	}
	d, err := Distance(head, rel, tail)
	if err != nil {
		return 0, err
	}

	if key != "" {
		if err := s.cache.SetDistance(ctx, key, d); err != nil {
			s.logger.Warn("distance cache store failed", logging.Err(err))
		}
	}
	return d, nil
}

// ScoreBatch returns one distance per example, in order.
func (s *Scorer) ScoreBatch(ctx context.Context, batch []Example) ([]float64, error) {
	start := time.Now()
	out := make([]float64, len(batch))
	for i := range batch {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "scoring cancelled")
		}
		d, err := s.Score(ctx, &batch[i])
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	if s.observer != nil {
		s.observer.BatchScored(len(batch), time.Since(start))
	}
	return out, nil
}

func (s *Scorer) cacheKey(ex *Example) string {
	return s.modelID + ":" + strconv.FormatUint(ex.Fingerprint(), 16)
}
