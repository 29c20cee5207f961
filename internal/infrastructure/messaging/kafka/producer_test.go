package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/PriorArt-Intelligence/pkg/errors"
	"github.com/turtacn/PriorArt-Intelligence/pkg/types/common"
)

type mockKafkaWriter struct {
	mu        sync.Mutex
	written   []kafka.Message
	writeFunc func(ctx context.Context, msgs ...kafka.Message) error
	closed    bool
}

func (m *mockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeFunc != nil {
		if err := m.writeFunc(ctx, msgs...); err != nil {
			return err
		}
	}
	m.written = append(m.written, msgs...)
	return nil
}

func (m *mockKafkaWriter) Close() error {
	m.closed = true
	return nil
}

func (m *mockKafkaWriter) Stats() kafka.WriterStats { return kafka.WriterStats{} }

func newTestProducer(w WriterInterface) *Producer {
	return newProducerWithWriter(w, ProducerConfig{Brokers: []string{"localhost:9092"}}, logging.NewNopLogger(), nil)
}

func msg(topic, key, value string) *common.ProducerMessage {
	return &common.ProducerMessage{Topic: topic, Key: []byte(key), Value: []byte(value)}
}

func TestValidateProducerConfig(t *testing.T) {
	assert.NoError(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{}))
	assert.Error(t, ValidateProducerConfig(ProducerConfig{Brokers: []string{"b:9092"}, RequiredAcks: 2}))
}

func TestPublish_Success(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)

	require.NoError(t, p.Publish(context.Background(), msg("alert.notification", "a-1", `{"x":1}`)))

	require.Len(t, w.written, 1)
	assert.Equal(t, "alert.notification", w.written[0].Topic)
	assert.Equal(t, "a-1", string(w.written[0].Key))
	assert.False(t, w.written[0].Time.IsZero())
	assert.Equal(t, int64(1), p.Stats().Sent)
}

func TestPublish_RejectsInvalidMessages(t *testing.T) {
	p := newTestProducer(&mockKafkaWriter{})
	ctx := context.Background()

	assert.True(t, apperrors.IsValidation(p.Publish(ctx, msg("", "k", "v"))))
	assert.True(t, apperrors.IsValidation(p.Publish(ctx, msg("t", "k", ""))))

	big := make([]byte, 1024*1024+1)
	err := p.Publish(ctx, &common.ProducerMessage{Topic: "t", Value: big})
	assert.True(t, apperrors.IsValidation(err))
}

func TestPublish_Failure(t *testing.T) {
	w := &mockKafkaWriter{writeFunc: func(context.Context, ...kafka.Message) error { return errors.New("broker down") }}
	p := newTestProducer(w)

	err := p.Publish(context.Background(), msg("t", "k", "v"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeMessagingError))
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestProducer_CloseIsIdempotent(t *testing.T) {
	w := &mockKafkaWriter{}
	p := newTestProducer(w)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), msg("t", "k", "v")), ErrProducerClosed)
}
