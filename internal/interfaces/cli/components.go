package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/turtacn/kgeval/internal/application/validation"
	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/database/neo4j"
	"github.com/turtacn/kgeval/internal/infrastructure/database/postgres"
	"github.com/turtacn/kgeval/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/kgeval/internal/infrastructure/database/redis"
	"github.com/turtacn/kgeval/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/kgeval/internal/infrastructure/storage/minio"
)

// components holds the optional backends a command runs with.  A nil field
// means the backend is disabled in config.
type components struct {
	cfg    *config.Config
	logger logging.Logger

	storage   *minio.Client
	redis     *redis.Client
	cache     *redis.DistanceCache
	graph     *neo4j.Driver
	edges     *neo4j.EdgeRepository
	db        *postgres.Connection
	runs      run.Repository
	producer  *kafka.Producer
	collector prometheus.MetricsCollector
	metrics   *prometheus.EvalMetrics

	closers []func() error
}

// openComponents connects every enabled backend.  On error the ones already
// opened are closed.
func openComponents(ctx context.Context, cfg *config.Config, log logging.Logger) (_ *components, err error) {
	c := &components{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            prometheus.Namespace,
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, log)
	if err != nil {
		return nil, err
	}
	c.metrics = prometheus.NewEvalMetrics(c.collector)

	if cfg.MinIO.Enabled {
		if c.storage, err = minio.NewClient(ctx, cfg.MinIO, log); err != nil {
			return nil, err
		}
		if err = c.storage.EnsureReportBucket(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Enabled {
		if c.redis, err = redis.NewClient(ctx, cfg.Redis, log); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.redis.Close)
		c.cache = newDistanceCache(c.redis, cfg.Redis, log)
	}

	if cfg.Dataset.NeighborSource == config.NeighborSourceNeo4j {
		if err = c.openGraph(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Database.Enabled {
		if err = c.openDatabase(ctx); err != nil {
			return nil, err
		}
	}

	if cfg.Kafka.Enabled {
		if c.producer, err = kafka.NewProducer(cfg.Kafka, log); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, c.producer.Close)
	}
	return c, nil
}

func (c *components) openGraph(ctx context.Context) error {
	d, err := neo4j.NewDriver(ctx, c.cfg.Neo4j, c.logger)
	if err != nil {
		return err
	}
	c.graph = d
	c.edges = neo4j.NewEdgeRepository(d, c.logger)
	c.closers = append(c.closers, func() error { return d.Close(context.Background()) })
	return nil
}

func (c *components) openDatabase(ctx context.Context) error {
	conn, err := postgres.NewConnection(ctx, c.cfg.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = conn
	c.closers = append(c.closers, conn.Close)

	if c.cfg.Database.AutoMigrate {
		mg, err := postgres.NewMigrator(conn, c.logger)
		if err != nil {
			return err
		}
		defer mg.Close()
		if err := mg.Up(); err != nil {
			return err
		}
	}
	c.runs = repositories.NewPostgresRunRepo(conn, c.logger)
	return nil
}

// fetcher is the checkpoint fetcher, or nil without object storage.
func (c *components) fetcher() validation.CheckpointFetcher {
	if c.storage == nil {
		return nil
	}
	return c.storage
}

// serviceOptions wires the opened backends into a validation.Service.
func (c *components) serviceOptions(stdout io.Writer) []validation.Option {
	opts := []validation.Option{
		validation.WithLogger(c.logger),
		validation.WithMetrics(c.metrics),
		validation.WithStdout(stdout),
	}
	if c.storage != nil {
		opts = append(opts, validation.WithUploader(c.storage))
	}
	if c.cache != nil {
		opts = append(opts, validation.WithDistanceCache(c.cache))
	}
	if c.edges != nil {
		opts = append(opts, validation.WithEdgeLoader(c.edges))
	}
	if c.runs != nil {
		opts = append(opts, validation.WithRepository(c.runs))
	}
	if c.producer != nil {
		opts = append(opts, validation.WithPublisher(c.producer))
	}
	return opts
}

// newService builds the validation service for the configured backend.
func (c *components) newService(stdout io.Writer) (*validation.Service, error) {
	models, err := validation.NewModelProvider(c.cfg, c.fetcher(), c.logger)
	if err != nil {
		return nil, err
	}
	return validation.NewService(c.cfg, models, c.serviceOptions(stdout)...), nil
}

// flushMetrics writes the registry to metrics.textfile_path when set.
func (c *components) flushMetrics() error {
	path := c.cfg.Metrics.TextfilePath
	if path == "" || c.collector == nil {
		return nil
	}
	if err := c.collector.WriteToTextfile(path); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	c.logger.Debug("metrics textfile written", logging.String("path", path))
	return nil
}

// Close releases backends in reverse order of opening.
func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("failed to close component", logging.Err(err))
		}
	}
	c.closers = nil
}
