// Package events publishes resolution events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/core/ports"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
)

// SchemaVersion is sent as a header on every message.
const SchemaVersion = "1.0"

// Event types.
const (
	TypeReviewQueued = "review.queued"
	TypeRunFinished  = "run.finished"
)

const (
	headerEventType     = "event_type"
	headerSupplierID    = "supplier_id"
	headerSchemaVersion = "schema_version"

	statusOK    = "ok"
	statusError = "error"

	defaultBatchTimeout = 50 * time.Millisecond
)

// Writer is the subset of *kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration.
type ProducerConfig struct {
	Brokers      []string
	ReviewTopic  string
	RunTopic     string
	BatchTimeout time.Duration
}

// Producer implements ports.EventPublisher on top of a Kafka writer.
type Producer struct {
	writer      Writer
	reviewTopic string
	runTopic    string
	logger      *zerolog.Logger
	now         func() time.Time
}

var _ ports.EventPublisher = (*Producer)(nil)

// NewProducer dials nothing up front; kafka-go connects on first write.
func NewProducer(cfg ProducerConfig, logger *zerolog.Logger) *Producer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg, logger)
}

func newProducer(w Writer, cfg ProducerConfig, logger *zerolog.Logger) *Producer {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	return &Producer{
		writer:      w,
		reviewTopic: cfg.ReviewTopic,
		runTopic:    cfg.RunTopic,
		logger:      logger,
		now:         time.Now,
	}
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ReviewQueuedEvent announces a label waiting for a human decision.
type ReviewQueuedEvent struct {
	EventType       string                  `json:"event_type"`
	ReviewID        string                  `json:"review_id"`
	SupplierID      int64                   `json:"supplier_id"`
	ListingID       int64                   `json:"listing_id"`
	SourceLabel     string                  `json:"source_label"`
	NormalizedLabel string                  `json:"normalized_label"`
	Attributes      domain.Attributes       `json:"attributes"`
	Candidates      []domain.MatchCandidate `json:"candidates"`
	Timestamp       time.Time               `json:"timestamp"`
}

// RunFinishedEvent carries the report of a completed run.
type RunFinishedEvent struct {
	EventType string           `json:"event_type"`
	Report    domain.RunReport `json:"report"`
	Timestamp time.Time        `json:"timestamp"`
}

// PublishReviewQueued publishes one review.queued event keyed by label.
func (p *Producer) PublishReviewQueued(ctx context.Context, entry domain.ReviewEntry) error {
	event := ReviewQueuedEvent{
		EventType:       TypeReviewQueued,
		ReviewID:        entry.ID,
		SupplierID:      entry.SupplierID,
		ListingID:       entry.ListingID,
		SourceLabel:     entry.SourceLabel,
		NormalizedLabel: entry.NormalizedLabel,
		Attributes:      entry.Attributes,
		Candidates:      entry.Candidates,
		Timestamp:       p.now().UTC(),
	}

	key := strconv.FormatInt(entry.SupplierID, 10) + ":" + entry.NormalizedLabel

	return p.publish(ctx, p.reviewTopic, TypeReviewQueued, key, strconv.FormatInt(entry.SupplierID, 10), event)
}

// PublishRunFinished publishes one run.finished event keyed by run id.
func (p *Producer) PublishRunFinished(ctx context.Context, report domain.RunReport) error {
	if p.runTopic == "" {
		return nil
	}

	supplier := ""
	if report.SupplierID != nil {
		supplier = strconv.FormatInt(*report.SupplierID, 10)
	}

	event := RunFinishedEvent{
		EventType: TypeRunFinished,
		Report:    report,
		Timestamp: p.now().UTC(),
	}

	return p.publish(ctx, p.runTopic, TypeRunFinished, report.RunID, supplier, event)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, key, supplier string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(eventType)},
			{Key: headerSupplierID, Value: []byte(supplier)},
			{Key: headerSchemaVersion, Value: []byte(SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		observability.EventsPublished.WithLabelValues(eventType, statusError).Inc()
		p.logger.Error().Err(err).Str("event_type", eventType).Str("topic", topic).Msg("failed to publish event")

		return fmt.Errorf("publish %s: %w", eventType, err)
	}

	observability.EventsPublished.WithLabelValues(eventType, statusOK).Inc()
	p.logger.Debug().Str("event_type", eventType).Str("key", key).Msg("published event")

	return nil
}

// Noop discards every event.
type Noop struct{}

var _ ports.EventPublisher = Noop{}

func (Noop) PublishReviewQueued(context.Context, domain.ReviewEntry) error { return nil }

func (Noop) PublishRunFinished(context.Context, domain.RunReport) error { return nil }
