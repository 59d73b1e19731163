package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/kgeval/internal/application/validation"
	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	kggrpc "github.com/turtacn/kgeval/internal/interfaces/grpc"
	"github.com/turtacn/kgeval/internal/interfaces/grpc/services"
	kghttp "github.com/turtacn/kgeval/internal/interfaces/http"
	"github.com/turtacn/kgeval/internal/interfaces/http/handlers"
)

type serveOptions struct {
	embeddings bool
	history    bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the run-history API, metrics endpoint and embedding server",
		Long: "serve exposes /healthz, /readyz, /metrics and /api/v1/runs over HTTP.\n" +
			"With --embeddings it also serves the configured checkpoint epoch as a\n" +
			"gRPC EmbeddingService, and with --history it consumes run.completed\n" +
			"events from Kafka into PostgreSQL.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.Int("port", 0, "HTTP port")
	f.Int("grpc-port", 0, "gRPC embedding server port")
	f.Int("epoch", 0, "checkpoint epoch served by --embeddings")
	f.String("data", "", "dataset name under dataset.root")
	f.String("out-root", "", "trainer output root")
	f.BoolVar(&opts.embeddings, "embeddings", false, "serve the checkpoint over gRPC")
	f.BoolVar(&opts.history, "history", true, "consume run events into the database when kafka and database are enabled")
	bindKey(f, "port", "server.port")
	bindKey(f, "grpc-port", "grpc.port")
	bindKey(f, "epoch", "eval.epoch")
	bindKey(f, "data", "dataset.name")
	bindKey(f, "out-root", "checkpoint.out_root")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg, log := cliCtx.Config, cliCtx.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.Watch(cliCtx.Viper, cliCtx.ConfigPath, func(next *config.Config) {
		if cliCtx.Verbose {
			return
		}
		lvl := logging.ParseLevel(next.Log.Level)
		if lvl != cliCtx.Level.Level() {
			cliCtx.Level.SetLevel(lvl)
			log.Info("log level changed", logging.String("level", lvl.String()))
		}
	})

	comps, err := openComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer comps.Close()

	var grpcSrv *kggrpc.Server
	if opts.embeddings {
		srv, closeModel, err := newEmbeddingServer(ctx, comps)
		if err != nil {
			return err
		}
		defer closeModel()
		grpcSrv = srv
	}

	var consumer *kafka.Consumer
	if opts.history && cfg.Kafka.Enabled && comps.runs != nil {
		if consumer, err = kafka.NewConsumer(cfg.Kafka, log); err != nil {
			return err
		}
		defer consumer.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	httpSrv := kghttp.NewServer(cfg.Server, newHTTPHandler(comps), log)
	g.Go(httpSrv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpSrv.Stop(context.Background())
	})

	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return grpcSrv.Stop(context.Background())
		})
	}

	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx, kafka.RecordRuns(comps.runs)) })
	}

	log.Info("kgeval serve started",
		logging.Int("http_port", cfg.Server.Port),
		logging.Bool("embeddings", grpcSrv != nil),
		logging.Bool("history", consumer != nil),
	)
	return g.Wait()
}

// newHTTPHandler assembles the gin router over whatever backends are open.
func newHTTPHandler(c *components) http.Handler {
	var checkers []handlers.HealthChecker
	if c.db != nil {
		checkers = append(checkers, handlers.CheckerFunc("postgres", c.db.HealthCheck))
	}
	if c.redis != nil {
		checkers = append(checkers, handlers.CheckerFunc("redis", c.redis.Ping))
	}
	if c.graph != nil {
		checkers = append(checkers, handlers.CheckerFunc("neo4j", c.graph.HealthCheck))
	}
	if c.storage != nil {
		checkers = append(checkers, handlers.CheckerFunc("minio", func(ctx context.Context) error {
			_, err := c.storage.HealthCheck(ctx)
			return err
		}))
	}

	var runs *handlers.RunHandler
	if c.runs != nil {
		runs = handlers.NewRunHandler(c.runs, c.logger)
	}

	return kghttp.NewRouter(kghttp.RouterConfig{
		Mode:             c.cfg.Server.Mode,
		HealthHandler:    handlers.NewHealthHandler(Version, checkers...),
		RunHandler:       runs,
		Logger:           c.logger,
		Metrics:          c.metrics,
		MetricsCollector: c.collector,
	})
}

// newEmbeddingServer loads the configured epoch and wraps it in a gRPC
// EmbeddingService.  Only a local checkpoint can be served.
func newEmbeddingServer(ctx context.Context, c *components) (*kggrpc.Server, func() error, error) {
	if c.cfg.Checkpoint.Backend != config.BackendLocal {
		return nil, nil, fmt.Errorf("serve --embeddings requires checkpoint.backend %q", config.BackendLocal)
	}
	svc, err := c.newService(io.Discard)
	if err != nil {
		return nil, nil, err
	}
	ds, err := svc.Dataset(ctx)
	if err != nil {
		return nil, nil, err
	}
	lm, err := validation.NewCheckpointProvider(c.cfg, c.fetcher(), c.logger).
		OpenModel(ctx, c.cfg.Eval.Epoch, ds.Entities.Len(), ds.Relations.Len())
	if err != nil {
		return nil, nil, err
	}

	srv, err := kggrpc.NewServer(fmt.Sprintf(":%d", c.cfg.GRPC.Port),
		kggrpc.WithLogger(c.logger),
		kggrpc.WithRPCRecorder(c.metrics),
		kggrpc.WithGracefulTimeout(c.cfg.Server.ShutdownTimeout))
	if err != nil {
		lm.Close()
		return nil, nil, err
	}
	srv.RegisterService(&services.EmbeddingServiceDesc, services.NewEmbeddingService(lm.Model, lm.Descriptor))
	return srv, lm.Close, nil
}
