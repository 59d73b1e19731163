// Package validation runs the margin-search validation of trained
// checkpoints: it scores every labeled test triple, picks a margin per
// relation, writes the reports and announces the run.
package validation

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/kgeval/internal/application/reporting"
	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/features"
	"github.com/turtacn/kgeval/internal/domain/graph"
	"github.com/turtacn/kgeval/internal/domain/margin"
	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/kgeval/internal/intelligence/common"
	"github.com/turtacn/kgeval/pkg/errors"
)

// Outcome is what one evaluated epoch produced.
type Outcome struct {
	Result *margin.Result
	Record *run.Record
	Files  []string
}

// Service evaluates epochs of one trained net.
type Service struct {
	cfg       *config.Config
	models    ModelProvider
	edges     graph.EdgeLoader
	cache     scoring.DistanceCache
	metrics   *prometheus.EvalMetrics
	publisher run.Publisher
	repo      run.Repository
	uploader  reporting.Uploader
	logger    logging.Logger
	stdout    io.Writer
	now       func() time.Time

	mu      sync.Mutex
	dataset *graph.Dataset
}

// Option configures a Service.
type Option func(*Service)

// WithEdgeLoader supplies training edges from a graph database.
func WithEdgeLoader(l graph.EdgeLoader) Option { return func(s *Service) { s.edges = l } }

// WithDistanceCache shares distances across runs of the same checkpoint.
func WithDistanceCache(c scoring.DistanceCache) Option { return func(s *Service) { s.cache = c } }

// WithMetrics records evaluation telemetry.
func WithMetrics(m *prometheus.EvalMetrics) Option { return func(s *Service) { s.metrics = m } }

// WithPublisher announces completed runs.
func WithPublisher(p run.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithRepository stores completed runs.
func WithRepository(r run.Repository) Option { return func(s *Service) { s.repo = r } }

// WithUploader copies report files to object storage.
func WithUploader(u reporting.Uploader) Option { return func(s *Service) { s.uploader = u } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(s *Service) { s.logger = l } }

// WithStdout redirects the summary line.
func WithStdout(w io.Writer) Option { return func(s *Service) { s.stdout = w } }

// NewService builds a Service.
func NewService(cfg *config.Config, models ModelProvider, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		models: models,
		logger: logging.NewNopLogger(),
		stdout: os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dataset loads the dataset on first use and caches it for later epochs.
func (s *Service) Dataset(ctx context.Context) (*graph.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataset != nil {
		return s.dataset, nil
	}
	ds, err := LoadDataset(ctx, s.cfg, s.edges, s.logger)
	if err != nil {
		return nil, err
	}
	s.dataset = ds
	return ds, nil
}

// Validate evaluates one epoch.
func (s *Service) Validate(ctx context.Context, epoch int) (*Outcome, error) {
	if s.cfg.Eval.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Eval.Timeout)
		defer cancel()
	}
	started := s.now()

	ds, err := s.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if len(ds.Tests) == 0 {
		return nil, errors.New(errors.ErrCodeNoExamples, "test file has no examples").WithDetail(s.cfg.Eval.TestName)
	}

	lm, err := s.models.OpenModel(ctx, epoch, ds.Entities.Len(), ds.Relations.Len())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lm.Close(); err != nil {
			s.logger.Warn("failed to release model", logging.Err(err))
		}
	}()

	seed := s.cfg.Eval.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	log := s.logger.With(logging.Int("epoch", epoch), logging.String("model_id", lm.Descriptor.ID))
	log.Info("validation started",
		logging.Int64("seed", seed),
		logging.Int("tests", len(ds.Tests)),
		logging.Int("sampled_heads", features.SampledHeads(ds.Neighbors, ds.Tests)),
	)

	buckets, err := s.score(ctx, ds, lm.Model, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}

	res, err := margin.Search(buckets, ds.Relations.Len(), s.cfg.Eval.Start, s.cfg.Eval.End)
	if err != nil {
		return nil, err
	}

	writer, err := reporting.NewWriter(s.cfg.ReportDir(), ds.Relations, log)
	if err != nil {
		return nil, err
	}
	files, err := writer.WriteAll(epoch, res)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(s.stdout, reporting.FormatSummary(epoch, res.Accuracy))

	if len(res.Skipped) > 0 {
		log.Warn("relations without test examples were skipped",
			logging.Int("count", len(res.Skipped)),
			logging.Strings("relations", relationNames(ds.Relations, res.Skipped)),
		)
	}
	log.Info("validation finished",
		logging.Int("correct", res.Correct),
		logging.Int("total", res.Total),
		logging.Float64("accuracy", res.Accuracy),
	)

	rec := s.record(epoch, lm.Descriptor, ds, res, writer.Dir(), started)
	s.observe(ds, rec, res)
	s.announce(ctx, log, rec, files)

	return &Outcome{Result: res, Record: rec, Files: files}, nil
}

// relationNames resolves ids through vocab, falling back to the numeric id.
func relationNames(vocab *graph.Vocabulary, ids []int) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		name, ok := vocab.Name(id)
		if !ok {
			name = strconv.Itoa(id)
		}
		names[i] = name
	}
	return names
}

// Sweep evaluates from, from+step, ... up to and including to.  It stops at
// the first failing epoch.
func (s *Service) Sweep(ctx context.Context, from, to, step int) ([]*Outcome, error) {
	if step <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "sweep step must be positive").WithDetailf("step=%d", step)
	}
	if from > to {
		return nil, errors.New(errors.ErrCodeValidation, "sweep range is empty").WithDetailf("from=%d to=%d", from, to)
	}
	if from != to && s.cfg.PinnedCheckpoint() {
		return nil, errors.New(errors.ErrCodeValidation, "checkpoint.path names one file for every epoch").
			WithDetailf("add %s to the path to sweep %d..%d", config.EpochPlaceholder, from, to)
	}
	var out []*Outcome
	for epoch := from; epoch <= to; epoch += step {
		o, err := s.Validate(ctx, epoch)
		if err != nil {
			return out, errors.Wrap(err, errors.GetCode(err), "sweep aborted").WithDetailf("epoch %d", epoch)
		}
		out = append(out, o)
	}
	return out, nil
}

// score extracts features on a background worker while the previous batch
// is scored, and buckets every distance by relation and label.
func (s *Service) score(ctx context.Context, ds *graph.Dataset, model scoring.Model, rng *rand.Rand) (*margin.Buckets, error) {
	extractor := features.NewExtractor(ds.Neighbors, ds.Entities.Len(), ds.Relations.Len(), rng)
	opts := []scoring.ScorerOption{scoring.WithLogger(s.logger)}
	if s.cache != nil {
		opts = append(opts, scoring.WithCache(s.cache))
	}
	if s.metrics != nil {
		opts = append(opts, scoring.WithObserver(s.metrics))
	}
	scorer := scoring.NewScorer(model, opts...)
	buckets := margin.NewBuckets()

	build := func(ctx context.Context, lo, hi int) ([]scoring.Example, error) {
		batch := make([]scoring.Example, 0, hi-lo)
		for _, t := range ds.Tests[lo:hi] {
			batch = append(batch, scoring.Example{
				Features: extractor.Extract(t.Head, t.Relation),
				Relation: t.Relation,
				Tail:     t.Tail,
			})
		}
		return batch, nil
	}
	consume := func(ctx context.Context, b common.Batch[scoring.Example]) error {
		dists, err := scorer.ScoreBatch(ctx, b.Items)
		if err != nil {
			return err
		}
		for i, d := range dists {
			t := ds.Tests[b.Offset+i]
			buckets.Add(t.Relation, t.Label, d)
		}
		s.logger.Debug("batch scored", logging.Int("batch", b.Index), logging.Int("size", len(b.Items)))
		return nil
	}

	if err := common.RunPrefetched(ctx, len(ds.Tests), s.cfg.Eval.BatchSize, build, consume); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (s *Service) record(epoch int, desc scoring.Descriptor, ds *graph.Dataset, res *margin.Result, dir string, started time.Time) *run.Record {
	rec := &run.Record{
		ID:         uuid.NewString(),
		Dataset:    s.cfg.Dataset.Name,
		NetName:    s.cfg.Eval.NetName(),
		Epoch:      epoch,
		ModelID:    desc.ID,
		Backend:    desc.Backend,
		Start:      res.Start,
		End:        res.End,
		Correct:    res.Correct,
		Total:      res.Total,
		Accuracy:   res.Accuracy,
		Relations:  make([]run.RelationOutcome, 0, len(res.Relations)),
		Skipped:    append([]int{}, res.Skipped...),
		ReportDir:  dir,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	for i := range res.Relations {
		rr := &res.Relations[i]
		name, _ := ds.Relations.Name(rr.Relation)
		rec.Relations = append(rec.Relations, run.RelationOutcome{
			Relation: rr.Relation,
			Name:     name,
			Margin:   rr.BestMargin,
			Correct:  rr.BestCorrect,
			Total:    rr.Total,
			Accuracy: rr.BestAccuracy(),
		})
	}
	return rec
}

func (s *Service) observe(ds *graph.Dataset, rec *run.Record, res *margin.Result) {
	if s.metrics == nil {
		return
	}
	pos := 0
	for _, t := range ds.Tests {
		if t.Label == graph.Positive {
			pos++
		}
	}
	s.metrics.ExamplesLoaded(pos, len(ds.Tests)-pos)
	s.metrics.ResetRelations()
	for _, ro := range rec.Relations {
		s.metrics.RelationResult(ro.Name, ro.Margin, ro.Accuracy)
	}
	s.metrics.RunResult(rec.Dataset, rec.NetName, res.Accuracy, len(res.Skipped))
}

// announce hands the run to the optional sinks.  The report files are
// already on disk, so sink failures are logged and do not fail the run.
func (s *Service) announce(ctx context.Context, log logging.Logger, rec *run.Record, files []string) {
	if s.uploader != nil {
		prefix := filepath.ToSlash(filepath.Join(rec.Dataset, rec.NetName))
		if err := reporting.Publish(ctx, s.uploader, prefix, files); err != nil {
			log.Warn("report upload failed", logging.Err(err))
		}
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, rec); err != nil {
			log.Warn("failed to store run", logging.String("run_id", rec.ID), logging.Err(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRunCompleted(ctx, rec); err != nil {
			log.Warn("failed to publish run", logging.String("run_id", rec.ID), logging.Err(err))
		}
	}
}
