package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/kgeval/internal/config"
	"github.com/turtacn/kgeval/internal/domain/run"
	apperrors "github.com/turtacn/kgeval/pkg/errors"
)

type mockKafkaWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   int
}

func (m *mockKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed++
	return nil
}

// mockKafkaReader replays messages and then blocks until ctx is done.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.committed = append(m.committed, msg.Offset)
	}
	return nil
}

func (m *mockKafkaReader) Close() error { return nil }

func (m *mockKafkaReader) commits() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.committed...)
}

type memRepo struct {
	mu    sync.Mutex
	saved []*run.Record
	err   error
}

func (r *memRepo) Save(_ context.Context, rec *run.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, rec)
	return nil
}

func (r *memRepo) Get(context.Context, string) (*run.Record, error)             { return nil, nil }
func (r *memRepo) List(context.Context, run.ListFilter) ([]*run.Record, error) { return nil, nil }

func sampleRecord() *run.Record {
	return &run.Record{
		ID:       "7d3c1c9e-5b0f-4b8e-9d6a-0c1f2e3d4a5b",
		Dataset:  "FB13",
		NetName:  "50-1-100(0.0001-1000)-bern",
		Epoch:    300,
		Correct:  4,
		Total:    4,
		Accuracy: 1,
		Relations: []run.RelationOutcome{
			{Relation: 0, Name: "gender", Margin: 3, Correct: 2, Total: 2, Accuracy: 1},
		},
	}
}

func TestValidate(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Topic: "t"}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	p, err := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "zstd"}, nil)
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestPublishRunCompleted(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, "kgeval.runs", nil)

	require.NoError(t, p.PublishRunCompleted(context.Background(), sampleRecord()))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "kgeval.runs", msg.Topic)
	assert.Equal(t, "FB13/50-1-100(0.0001-1000)-bern", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventTypeRunCompleted, string(msg.Headers[0].Value))

	env, err := DecodeEnvelope(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "kgeval", env.Source)
	assert.Equal(t, "FB13", env.Metadata["dataset"])

	var got run.Record
	require.NoError(t, env.DecodePayload(&got))
	assert.Equal(t, *sampleRecord(), got)

	assert.Equal(t, int64(1), p.Metrics().MessagesSent.Load())
}

func TestPublish_Failures(t *testing.T) {
	w := &mockKafkaWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "t", nil)

	err := p.PublishRunCompleted(context.Background(), sampleRecord())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagingError))
	assert.Equal(t, int64(1), p.Metrics().MessagesFailed.Load())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, w.closed)
	assert.ErrorIs(t, p.PublishRunCompleted(context.Background(), sampleRecord()), ErrProducerClosed)
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	_, err := DecodeEnvelope(nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidation))

	_, err = DecodeEnvelope([]byte("{"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))

	env := &EventEnvelope{EventID: "x"}
	assert.True(t, apperrors.IsCode(env.DecodePayload(&run.Record{}), apperrors.ErrCodeSerialization))
}

func encodedRun(t *testing.T, offset int64, eventType string) kafka.Message {
	t.Helper()
	env, err := NewEventEnvelope(eventType, sampleRecord())
	require.NoError(t, err)
	val, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: "kgeval.runs", Offset: offset, Value: val}
}

func TestConsumer_RecordsRunsAndCommits(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{
		encodedRun(t, 1, EventTypeRunCompleted),
		{Topic: "kgeval.runs", Offset: 2, Value: []byte("garbage")},
		encodedRun(t, 3, "something.else"),
	}}
	repo := &memRepo{}
	c := NewConsumerWithReader(r, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, RecordRuns(repo)) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 3 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	require.Len(t, repo.saved, 1)
	assert.Equal(t, 300, repo.saved[0].Epoch)
	assert.Equal(t, int64(3), c.Metrics().MessagesConsumed.Load())
	assert.Equal(t, int64(1), c.Metrics().MessagesFailed.Load())
}

func TestConsumer_RetriesThenDrops(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{encodedRun(t, 9, EventTypeRunCompleted)}}
	repo := &memRepo{err: errors.New("db down")}
	c := NewConsumerWithReader(r, nil)
	c.retryBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, RecordRuns(repo)) }()

	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int64(3), c.Metrics().MessagesRetried.Load())
	assert.Equal(t, int64(1), c.Metrics().MessagesFailed.Load())
}

func TestConsumer_AlreadyRunning(t *testing.T) {
	c := NewConsumerWithReader(&mockKafkaReader{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, func(context.Context, *EventEnvelope) error { return nil }) }()

	require.Eventually(t, func() bool { return c.running.Load() }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, c.Run(ctx, nil), ErrAlreadyRunning)
	cancel()
	<-done
}
