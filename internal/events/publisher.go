// Package events publishes audit events about stored article batches and
// finished scrape sessions to a Kafka topic. Publishing is best effort: the
// pipeline never blocks on a broker outage beyond the writer's own timeout,
// and callers treat publish errors as log-worthy, not fatal.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/foodmine/literature-mining-service/internal/domain"
	"github.com/foodmine/literature-mining-service/internal/observability"
)

const (
	// DefaultTopic is the Kafka topic for audit events.
	DefaultTopic = "events.literature_mining_service"

	// DefaultBatchSize is the maximum number of messages buffered before a send.
	DefaultBatchSize = 100

	// DefaultBatchTimeout is how long the writer waits for a batch to fill.
	DefaultBatchTimeout = 10 * time.Millisecond

	// headerEventType carries the event type on each message.
	headerEventType = "event_type"
)

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string
	// Topic is the topic events are published to.
	Topic string
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
}

// messageWriter is the subset of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON-encoded audit events to a single topic, keyed
// by session ID so one session's events stay on one partition.
type KafkaPublisher struct {
	writer  messageWriter
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *KafkaPublisher {
	cfg.applyDefaults()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	return &KafkaPublisher{
		writer:  writer,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
		metrics: metrics,
	}
}

// PublishBatchStored publishes one article_batch.stored event.
func (p *KafkaPublisher) PublishBatchStored(ctx context.Context, event domain.BatchStoredEvent) error {
	return p.publish(ctx, event.SessionID, domain.EventTypeBatchStored, event)
}

// PublishScrapeFinished publishes one scrape.finished event.
func (p *KafkaPublisher) PublishScrapeFinished(ctx context.Context, event domain.ScrapeFinishedEvent) error {
	return p.publish(ctx, event.SessionID, domain.EventTypeScrapeFinished, event)
}

func (p *KafkaPublisher) publish(ctx context.Context, key, eventType string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if p.metrics != nil {
			p.metrics.RecordEventPublishFailed()
		}
		return fmt.Errorf("publishing %s event: %w", eventType, err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished()
	}
	p.logger.Debug().
		Str("event_type", eventType).
		Str("key", key).
		Msg("published audit event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
