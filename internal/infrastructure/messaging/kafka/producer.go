package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
	"github.com/turtacn/PriorArt-Intelligence/pkg/types/common"
)

var (
	ErrProducerClosed = errors.New(errors.ErrCodeMessagingError, "producer closed")
)

// ProducerConfig holds configuration for the Producer.
type ProducerConfig struct {
	Brokers         []string
	ClientID        string
	RequiredAcks    int
	MaxAttempts     int
	BatchSize       int
	BatchTimeout    time.Duration
	MaxMessageBytes int
	Compression     string
	WriteTimeout    time.Duration
}

// ProducerStats is a point-in-time view of producer counters.
type ProducerStats struct {
	Sent   int64
	Failed int64
	Bytes  int64
}

// WriterInterface abstracts kafka.Writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
	Stats() kafka.WriterStats
}

// Producer writes records to Kafka. It is safe for concurrent use.
type Producer struct {
	writer  WriterInterface
	config  ProducerConfig
	logger  logging.Logger
	metrics *prometheus.AppMetrics
	closed  atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
	bytes  atomic.Int64
}

// NewProducer creates a producer. No connection is made until the first write.
func NewProducer(cfg ProducerConfig, logger logging.Logger, metrics *prometheus.AppMetrics) (*Producer, error) {
	if err := ValidateProducerConfig(cfg); err != nil {
		return nil, err
	}
	applyProducerDefaults(&cfg)

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodec(cfg.Compression),
		Transport:    &kafka.Transport{ClientID: cfg.ClientID, DialTimeout: 10 * time.Second},
	}

	return newProducerWithWriter(writer, cfg, logger, metrics), nil
}

func newProducerWithWriter(w WriterInterface, cfg ProducerConfig, logger logging.Logger, metrics *prometheus.AppMetrics) *Producer {
	applyProducerDefaults(&cfg)
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Producer{writer: w, config: cfg, logger: logger, metrics: metrics}
}

func applyProducerDefaults(cfg *ProducerConfig) {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 1024 * 1024
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireAll)
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
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

// Publish writes one record synchronously.
func (p *Producer) Publish(ctx context.Context, msg *common.ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}
	if len(msg.Value) == 0 {
		return errors.New(errors.ErrCodeValidation, "value required")
	}
	if len(msg.Value) > p.config.MaxMessageBytes {
		return errors.New(errors.ErrCodeValidation, "message too large").WithDetail(msg.Topic)
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg))
	p.metrics.RecordPublish(msg.Topic, err)
	if err != nil {
		p.failed.Add(1)
		return errors.Wrap(err, errors.ErrCodeMessagingError, "publish failed").WithDetail(msg.Topic)
	}
	p.sent.Add(1)
	p.bytes.Add(int64(len(msg.Value)))

	p.logger.Debug("message published",
		logging.String("topic", msg.Topic),
		logging.Duration("latency", time.Since(start)))
	return nil
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{Sent: p.sent.Load(), Failed: p.failed.Load(), Bytes: p.bytes.Load()}
}

// Close flushes pending writes. It is idempotent.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

func toKafkaMessage(msg *common.ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

func ValidateProducerConfig(cfg ProducerConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.MaxAttempts < 0 {
		return errors.New(errors.ErrCodeValidation, "kafka max attempts must be >= 0")
	}
	switch cfg.RequiredAcks {
	case 0, -1, 1:
	default:
		return errors.New(errors.ErrCodeValidation, "kafka required acks must be -1, 0 or 1")
	}
	return nil
}
