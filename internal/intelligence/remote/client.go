package remote

import (
	"context"
	"math"
	"math/rand"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/kgeval/internal/domain/scoring"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

// RetryPolicy governs retries of Unavailable / DeadlineExceeded calls.
type RetryPolicy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy retries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 2 * time.Second, BackoffMultiplier: 2}
}

// backoff returns the delay before retry attempt, with ±25% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	base := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt))
	if p.MaxBackoff > 0 && base > float64(p.MaxBackoff) {
		base = float64(p.MaxBackoff)
	}
	d := time.Duration(base + base*0.25*(rand.Float64()*2-1))
	if d < 0 {
		return 0
	}
	return d
}

// Invoker is the subset of *grpc.ClientConn the client uses.
type Invoker interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
}

// Client is a scoring.Model backed by a remote EmbeddingService.
type Client struct {
	conn        Invoker
	closer      func() error
	callTimeout time.Duration
	retry       RetryPolicy
	logger      logging.Logger
	desc        scoring.Descriptor
}

var _ scoring.Model = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithCallTimeout bounds each RPC.
func WithCallTimeout(d time.Duration) Option { return func(c *Client) { c.callTimeout = d } }

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option { return func(c *Client) { c.retry = p } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(c *Client) { c.logger = l } }

// Dial connects to target without TLS.
func Dial(ctx context.Context, target string, opts ...Option) (*Client, error) {
	conn, err := grpc.DialContext(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeModelUnavailable, "dial model server").WithDetail(target)
	}
	c := NewClient(conn, opts...)
	c.closer = conn.Close
	c.desc.ID = "grpc-" + target
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(conn Invoker, opts ...Option) *Client {
	c := &Client{
		conn:        conn,
		callTimeout: 30 * time.Second,
		retry:       DefaultRetryPolicy(),
		logger:      logging.NewNopLogger(),
		desc:        scoring.Descriptor{Backend: "grpc"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Describe returns the descriptor fetched by Handshake, or the dial target
// based id when Handshake was not called.
func (c *Client) Describe() scoring.Descriptor { return c.desc }

// Handshake asks the server to describe its model and checks the vocabulary
// sizes against the dataset.
func (c *Client) Handshake(ctx context.Context, entityCount, relationCount int) error {
	var resp structpb.Struct
	if err := c.call(ctx, MethodDescribe, &structpb.Struct{}, &resp); err != nil {
		return err
	}
	fields := resp.GetFields()
	if id := fields["id"].GetStringValue(); id != "" {
		c.desc.ID = id
	}
	c.desc.Dim = int(fields["dim"].GetNumberValue())
	c.desc.Entities = int(fields["entities"].GetNumberValue())
	c.desc.Relations = int(fields["relations"].GetNumberValue())

	if c.desc.Entities != entityCount || c.desc.Relations != relationCount {
		return errors.New(errors.ErrCodeCheckpointMalformed, "remote model vocabulary differs from dataset").
			WithDetailf("model %d/%d, dataset %d/%d", c.desc.Entities, c.desc.Relations, entityCount, relationCount)
	}
	return nil
}

// HeadVector implements scoring.Model.
func (c *Client) HeadVector(ctx context.Context, relFeatures, entFeatures []int) ([]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldRelationFeatures: EncodeInts(relFeatures),
		FieldEntityFeatures:   EncodeInts(entFeatures),
	}}
	return c.vector(ctx, MethodHeadVector, req)
}

// RelationVector implements scoring.Model.
func (c *Client) RelationVector(ctx context.Context, rel int) ([]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{FieldRelation: structpb.NewNumberValue(float64(rel))}}
	return c.vector(ctx, MethodRelationVector, req)
}

// TailVector implements scoring.Model.
func (c *Client) TailVector(ctx context.Context, tail int) ([]float64, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{FieldTail: structpb.NewNumberValue(float64(tail))}}
	return c.vector(ctx, MethodTailVector, req)
}

// Close releases the connection when the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) vector(ctx context.Context, method string, req *structpb.Struct) ([]float64, error) {
	var resp structpb.Struct
	if err := c.call(ctx, method, req, &resp); err != nil {
		return nil, err
	}
	return DecodeVector(&resp)
}

func (c *Client) call(ctx context.Context, method string, req, resp *structpb.Struct) error {
	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retry.backoff(attempt - 1)
			c.logger.Debug("retrying model call", logging.String("method", method), logging.Int("attempt", attempt), logging.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrCodeTimeout, "model call cancelled").WithDetail(method)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		err := c.conn.Invoke(callCtx, method, req, resp)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return mapStatus(lastErr, method)
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}

func mapStatus(err error, method string) error {
	code := errors.ErrCodeExternalService
	switch status.Code(err) {
	case codes.Unavailable:
		code = errors.ErrCodeModelUnavailable
	case codes.DeadlineExceeded:
		code = errors.ErrCodeTimeout
	case codes.OutOfRange:
		code = errors.ErrCodeIDOutOfRange
	case codes.InvalidArgument:
		code = errors.ErrCodeBadRequest
	}
	return errors.Wrap(err, code, "model call failed").WithDetail(method)
}
