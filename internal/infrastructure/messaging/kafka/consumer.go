package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// ReaderInterface abstracts kafka.Reader for testing.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one decoded envelope.
type Handler func(ctx context.Context, env *EventEnvelope) error

// ConsumerMetrics counts consumer activity.
type ConsumerMetrics struct {
	MessagesConsumed  atomic.Int64
	MessagesProcessed atomic.Int64
	MessagesFailed    atomic.Int64
	MessagesRetried   atomic.Int64
}

// Consumer reads envelopes from the run topic in a consumer group.
type Consumer struct {
	reader       ReaderInterface
	logger       logging.Logger
	maxRetries   int
	retryBackoff time.Duration
	running      atomic.Bool
	metrics      *ConsumerMetrics
}

// NewConsumer joins cfg.GroupID on cfg.Topic.
func NewConsumer(cfg config.KafkaConfig, log logging.Logger) (*Consumer, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10 * 1024 * 1024,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		SessionTimeout: 30 * time.Second,
	})
	return NewConsumerWithReader(r, log), nil
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(r ReaderInterface, log logging.Logger) *Consumer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Consumer{
		reader:       r,
		logger:       log,
		maxRetries:   3,
		retryBackoff: 200 * time.Millisecond,
		metrics:      &ConsumerMetrics{},
	}
}

// Run fetches until ctx is done.  A message is committed after handle succeeds
// or after its retries are exhausted; undecodable messages are committed and
// logged.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("FetchMessage error", logging.Err(err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		c.metrics.MessagesConsumed.Add(1)

		if err := c.process(ctx, m, handle); err != nil {
			c.metrics.MessagesFailed.Add(1)
			c.logger.Error("dropping message after retries",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset),
				logging.Err(err),
			)
		} else {
			c.metrics.MessagesProcessed.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.logger.Error("CommitMessages failed", logging.Err(err))
		}
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message, handle Handler) error {
	env, err := DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	backoff := c.retryBackoff
	for attempt := 0; ; attempt++ {
		err = handle(ctx, env)
		if err == nil || attempt >= c.maxRetries {
			return err
		}
		c.metrics.MessagesRetried.Add(1)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// Metrics returns the live counters.
func (c *Consumer) Metrics() *ConsumerMetrics { return c.metrics }

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// RecordRuns returns a Handler that saves run.completed payloads into repo.
// Other event types are ignored.
func RecordRuns(repo run.Repository) Handler {
	return func(ctx context.Context, env *EventEnvelope) error {
		if env.EventType != EventTypeRunCompleted {
			return nil
		}
		var rec run.Record
		if err := env.DecodePayload(&rec); err != nil {
			return err
		}
		return repo.Save(ctx, &rec)
	}
}
