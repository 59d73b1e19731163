// Package grpc hosts the gRPC transport: server lifecycle, interceptors and
// health reporting.  Services live in the services subpackage.
package grpc

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
)

const (
	defaultMaxMsgSize      = 16 * 1024 * 1024
	defaultGracefulTimeout = 10 * time.Second
)

var defaultKeepaliveParams = keepalive.ServerParameters{
	MaxConnectionIdle: 15 * time.Minute,
	Time:              5 * time.Minute,
	Timeout:           1 * time.Second,
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	logger          logging.Logger
	recorder        RPCRecorder
	maxMsgSize      int
	gracefulTimeout time.Duration
}

// RPCRecorder receives the outcome of every served call.
type RPCRecorder interface {
	RecordRPC(method, code string, elapsed time.Duration)
}

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithRPCRecorder records method, status code and latency of every
// non-health call.
func WithRPCRecorder(r RPCRecorder) Option {
	return func(o *serverOptions) { o.recorder = r }
}

// WithMaxMsgSize sets both receive and send limits in bytes.
func WithMaxMsgSize(size int) Option {
	return func(o *serverOptions) {
		if size > 0 {
			o.maxMsgSize = size
		}
	}
}

// WithGracefulTimeout bounds GracefulStop before a forced stop.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *serverOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// Server wraps grpc.Server with health reporting and graceful shutdown.
type Server struct {
	grpcServer   *grpc.Server
	listener     net.Listener
	opts         *serverOptions
	healthServer *health.Server
	mu           sync.Mutex
	started      bool
}

// NewServer listens on addr ("host:port"; port 0 picks a free port).
func NewServer(addr string, opts ...Option) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return NewServerWithListener(lis, opts...), nil
}

// NewServerWithListener serves on an existing listener (tests use bufconn).
func NewServerWithListener(lis net.Listener, opts ...Option) *Server {
	sopts := &serverOptions{maxMsgSize: defaultMaxMsgSize, gracefulTimeout: defaultGracefulTimeout}
	for _, o := range opts {
		o(sopts)
	}
	if sopts.logger == nil {
		sopts.logger = logging.NewNopLogger()
	}

	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(sopts.maxMsgSize),
		grpc.MaxSendMsgSize(sopts.maxMsgSize),
		grpc.KeepaliveParams(defaultKeepaliveParams),
		grpc.ChainUnaryInterceptor(
			recoveryUnaryInterceptor(sopts.logger),
			observeUnaryInterceptor(sopts.logger, sopts.recorder),
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{grpcServer: gs, listener: lis, opts: sopts, healthServer: hs}
}

// RegisterService registers impl under desc.  Call before Start.
func (s *Server) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	s.grpcServer.RegisterService(desc, impl)
	s.healthServer.SetServingStatus(desc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.opts.logger.Info("grpc service registered", logging.String("service", desc.ServiceName))
}

// Start serves until Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.opts.logger.Info("grpc server starting", logging.String("address", s.Addr()))
	return s.grpcServer.Serve(s.listener)
}

// Stop drains in-flight calls, forcing a stop after the graceful timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}

	s.healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	gracefulCtx, cancel := context.WithTimeout(ctx, s.opts.gracefulTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.opts.logger.Info("grpc server stopped gracefully")
	case <-gracefulCtx.Done():
		s.opts.logger.Warn("grpc graceful stop timed out, forcing stop")
		s.grpcServer.Stop()
	}
	return nil
}

// Addr is the listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func recoveryUnaryInterceptor(logger logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					logging.String("method", info.FullMethod),
					logging.String("panic", fmt.Sprintf("%v", r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func isHealthCheck(method string) bool {
	return strings.HasPrefix(method, "/grpc.health.v1.Health/")
}

// observeUnaryInterceptor logs each call at debug level and hands it to
// recorder when one is set.
func observeUnaryInterceptor(logger logging.Logger, recorder RPCRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)
		code := status.Code(err).String()
		if recorder != nil {
			recorder.RecordRPC(info.FullMethod, code, elapsed)
		}
		logger.Debug("grpc request",
			logging.String("method", info.FullMethod),
			logging.Duration("duration", elapsed),
			logging.String("code", code),
		)
		return resp, err
	}
}
