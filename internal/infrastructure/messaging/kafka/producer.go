// Package kafka publishes run events and consumes them into run history.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/run"
	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")

const maxMessageBytes = 1024 * 1024

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerMetrics counts producer activity.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
}

// Producer publishes event envelopes to one topic.
type Producer struct {
	writer  WriterInterface
	topic   string
	logger  logging.Logger
	closed  atomic.Bool
	metrics *ProducerMetrics
}

var _ run.Publisher = (*Producer)(nil)

// NewProducer builds a kafka.Writer from cfg.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	var acks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case 0:
		acks = kafka.RequireOne
	case -1:
		acks = kafka.RequireAll
	default:
		acks = kafka.RequiredAcks(cfg.RequiredAcks)
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  4,
		BatchSize:    1,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: acks,
		Compression:  compression(cfg.Compression),
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}
	return NewProducerWithWriter(w, cfg.Topic, log), nil
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(w WriterInterface, topic string, log logging.Logger) *Producer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Producer{writer: w, topic: topic, logger: log, metrics: &ProducerMetrics{}}
}

func compression(codec string) kafka.Compression {
	switch codec {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Publish writes env keyed by key.
func (p *Producer) Publish(ctx context.Context, key string, env *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	if len(value) > maxMessageBytes {
		return errors.New(errors.ErrCodeValidation, "message too large").WithDetailf("%d bytes", len(value))
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.MessagesFailed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish failed").WithDetail(p.topic)
	}
	p.metrics.MessagesSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(value)))
	p.logger.Debug("event published",
		logging.String("topic", p.topic),
		logging.String("event_type", env.EventType),
		logging.String("event_id", env.EventID),
	)
	return nil
}

// PublishRunCompleted implements run.Publisher.  Events are keyed by net name
// so one network's epochs stay ordered within a partition.
func (p *Producer) PublishRunCompleted(ctx context.Context, rec *run.Record) error {
	env, err := NewRunCompletedEvent(rec)
	if err != nil {
		return err
	}
	return p.Publish(ctx, rec.Dataset+"/"+rec.NetName, env)
}

// Metrics returns the live counters.
func (p *Producer) Metrics() *ProducerMetrics { return p.metrics }

// Close flushes and closes the writer.  Closing twice is a no-op.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

func validate(cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "kafka topic required")
	}
	return nil
}
