package validation

import (
	"context"
	"strings"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/internal/intelligence/remote"
	"github.com/turtacn/kgeval/internal/intelligence/transe"
	"github.com/turtacn/kgeval/pkg/errors"
)

// LoadedModel is a model plus its release hook.
type LoadedModel struct {
	Model      scoring.Model
	Descriptor scoring.Descriptor
	Close      func() error
}

// ModelProvider opens the model of one epoch.
type ModelProvider interface {
	OpenModel(ctx context.Context, epoch, entityCount, relationCount int) (*LoadedModel, error)
}

// CheckpointFetcher materialises an object-store checkpoint on local disk.
type CheckpointFetcher interface {
	FetchCheckpoint(ctx context.Context, uri string) (string, error)
}

const objectURIScheme = "s3://"

// CheckpointProvider loads JSON checkpoints from disk or, through fetcher,
// from s3:// URIs.
type CheckpointProvider struct {
	cfg     *config.Config
	fetcher CheckpointFetcher
	logger  logging.Logger
}

// NewCheckpointProvider builds a provider.  fetcher may be nil when no
// object storage is configured.
func NewCheckpointProvider(cfg *config.Config, fetcher CheckpointFetcher, log logging.Logger) *CheckpointProvider {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &CheckpointProvider{cfg: cfg, fetcher: fetcher, logger: log}
}

func (p *CheckpointProvider) OpenModel(ctx context.Context, epoch, entityCount, relationCount int) (*LoadedModel, error) {
	path := p.cfg.CheckpointPathForEpoch(epoch)
	if strings.HasPrefix(path, objectURIScheme) {
		if p.fetcher == nil {
			return nil, errors.New(errors.ErrCodeValidation, "checkpoint is an object URI but object storage is disabled").WithDetail(path)
		}
		local, err := p.fetcher.FetchCheckpoint(ctx, path)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("checkpoint fetched", logging.String("uri", path), logging.String("local", local))
		path = local
	}

	m, err := transe.Open(path, entityCount, relationCount)
	if err != nil {
		return nil, err
	}
	desc := m.Describe()
	p.logger.Info("checkpoint loaded",
		logging.String("path", path),
		logging.String("model_id", desc.ID),
		logging.Int("dim", desc.Dim),
	)
	return &LoadedModel{Model: m, Descriptor: desc, Close: func() error { return nil }}, nil
}

// RemoteProvider dials a remote EmbeddingService.  The served model is the
// same for every epoch.
type RemoteProvider struct {
	target string
	opts   []remote.Option
	logger logging.Logger
}

// NewRemoteProvider builds a provider for cfg.GRPC.Target.
func NewRemoteProvider(cfg config.GRPCConfig, log logging.Logger) *RemoteProvider {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RemoteProvider{
		target: cfg.Target,
		opts:   []remote.Option{remote.WithCallTimeout(cfg.CallTimeout), remote.WithLogger(log)},
		logger: log,
	}
}

func (p *RemoteProvider) OpenModel(ctx context.Context, epoch, entityCount, relationCount int) (*LoadedModel, error) {
	c, err := remote.Dial(ctx, p.target, p.opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Handshake(ctx, entityCount, relationCount); err != nil {
		c.Close()
		return nil, err
	}
	desc := c.Describe()
	p.logger.Info("remote model connected",
		logging.String("target", p.target),
		logging.String("model_id", desc.ID),
		logging.Int("epoch", epoch),
	)
	return &LoadedModel{Model: c, Descriptor: desc, Close: c.Close}, nil
}

// NewModelProvider picks the provider for cfg.Checkpoint.Backend.
func NewModelProvider(cfg *config.Config, fetcher CheckpointFetcher, log logging.Logger) (ModelProvider, error) {
	switch cfg.Checkpoint.Backend {
	case config.BackendLocal, "":
		return NewCheckpointProvider(cfg, fetcher, log), nil
	case config.BackendGRPC:
		return NewRemoteProvider(cfg.GRPC, log), nil
	}
	return nil, errors.New(errors.ErrCodeValidation, "unknown checkpoint backend").WithDetail(cfg.Checkpoint.Backend)
}
