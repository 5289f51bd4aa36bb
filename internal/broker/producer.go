package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/heinthant2k4/sports-arena-booking/internal/config"
	"github.com/heinthant2k4/sports-arena-booking/internal/models"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
)

const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderOriginalTopic = "original-topic"
	HeaderDLQError      = "dlq-error"
	HeaderDLQTimestamp  = "dlq-timestamp"
)

var ErrProducerClosed = errors.New("producer is closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes reservation events to Kafka. Messages are keyed by
// reservation id so every change to one reservation lands on one partition.
type Producer struct {
	writer    messageWriter
	dlqWriter messageWriter
	topic     string
	dlqTopic  string
	logger    *zerolog.Logger
	closed    bool
	mu        sync.RWMutex
}

func compression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	case "none":
		return 0
	default:
		return compress.Snappy
	}
}

func requiredAcks(n int) kafka.RequiredAcks {
	switch n {
	case 0:
		return kafka.RequireNone
	case 1:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func NewProducer(cfg config.KafkaConfig, logger *zerolog.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	errorLogger := kafka.LoggerFunc(func(msg string, args ...any) {
		logger.Error().Str("component", "kafka").Msgf(msg, args...)
	})
	silent := kafka.LoggerFunc(func(string, ...any) {})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Compression:  compression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		BatchTimeout: cfg.BatchTimeout,
		Logger:       silent,
		ErrorLogger:  errorLogger,
	}

	p := &Producer{writer: writer, topic: cfg.Topic, dlqTopic: cfg.DLQTopic, logger: logger}

	if cfg.DLQTopic != "" {
		p.dlqWriter = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.DLQTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  compression(cfg.Compression),
			MaxAttempts:  3,
			Logger:       silent,
			ErrorLogger:  errorLogger,
		}
	}

	return p, nil
}

func buildMessage(task models.OutboxTask) kafka.Message {
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(task.ReservationID, 10)),
		Value: []byte(task.Payload),
		Time:  task.CreatedAt,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(task.EventID)},
			{Key: HeaderEventType, Value: []byte(task.EventType)},
		},
	}
}

func (p *Producer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Deliver writes one outbox event to the main topic.
func (p *Producer) Deliver(ctx context.Context, task models.OutboxTask) error {
	if p.isClosed() {
		return ErrProducerClosed
	}
	if err := p.writer.WriteMessages(ctx, buildMessage(task)); err != nil {
		return fmt.Errorf("write %s to %s: %w", task.EventID, p.topic, err)
	}
	return nil
}

// DeadLetter writes an undeliverable event to the DLQ topic, if configured.
func (p *Producer) DeadLetter(ctx context.Context, task models.OutboxTask, cause error) error {
	if p.dlqWriter == nil {
		return nil
	}
	if p.isClosed() {
		return ErrProducerClosed
	}

	msg := buildMessage(task)
	msg.Time = time.Now()
	msg.Headers = append(msg.Headers,
		kafka.Header{Key: HeaderOriginalTopic, Value: []byte(p.topic)},
		kafka.Header{Key: HeaderDLQError, Value: []byte(cause.Error())},
		kafka.Header{Key: HeaderDLQTimestamp, Value: []byte(msg.Time.UTC().Format(time.RFC3339))},
	)
	if err := p.dlqWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to %s: %w", task.EventID, p.dlqTopic, err)
	}
	return nil
}

// Close closes the producer and releases resources
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var err error
	if p.writer != nil {
		err = p.writer.Close()
	}
	if p.dlqWriter != nil {
		if dlqErr := p.dlqWriter.Close(); err == nil {
			err = dlqErr
		}
	}
	return err
}
