// Package events publishes pipeline lifecycle events to Kafka. Publication is
// best-effort: a broker outage is logged and counted, never surfaced to the
// pipeline.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/citetrack/citation-service/internal/domain"
	"github.com/citetrack/citation-service/internal/observability"
)

// Event types emitted by the pipeline.
const (
	TypePairDiscovered       = "citation.pair_discovered"
	TypeDispositionFinalized = "citation.disposition_finalized"
	TypeRecordExhausted      = "citation.record_exhausted"
)

const publishTimeout = 5 * time.Second

// Envelope is the wire format for pipeline events.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	TrackedPaperID string          `json:"tracked_paper_id"`
	CitingPaperID  string          `json:"citing_paper_id"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// PairDiscoveredPayload describes a new (tracked, citing) pair.
type PairDiscoveredPayload struct {
	CitingTitle string `json:"citing_title"`
	Year        int    `json:"year,omitempty"`
	URL         string `json:"url,omitempty"`
}

// DispositionFinalizedPayload carries the write-once classification verdict.
type DispositionFinalizedPayload struct {
	Disposition string `json:"disposition"`
}

// RecordExhaustedPayload describes a record that hit the retry ceiling.
type RecordExhaustedPayload struct {
	LastError string `json:"last_error"`
}

// MessageWriter is the subset of kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds Kafka publisher settings.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
}

// KafkaPublisher emits pipeline events to a Kafka topic, keyed by the pair so
// one pair's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  MessageWriter
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher with a real kafka-go writer.
func NewKafkaPublisher(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return NewKafkaPublisherWithWriter(writer, metrics, logger)
}

// NewKafkaPublisherWithWriter creates a publisher around an existing writer.
func NewKafkaPublisherWithWriter(writer MessageWriter, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:  writer,
		metrics: metrics,
		logger:  logger,
	}
}

// PairDiscovered publishes a pair-discovered event.
func (p *KafkaPublisher) PairDiscovered(ctx context.Context, key domain.RecordKey, candidate domain.CitingPaperCandidate) {
	p.publish(ctx, TypePairDiscovered, key, PairDiscoveredPayload{
		CitingTitle: candidate.Title,
		Year:        candidate.Year,
		URL:         candidate.URL,
	})
}

// DispositionFinalized publishes a disposition-finalized event.
func (p *KafkaPublisher) DispositionFinalized(ctx context.Context, key domain.RecordKey, disposition domain.Disposition) {
	p.publish(ctx, TypeDispositionFinalized, key, DispositionFinalizedPayload{
		Disposition: string(disposition),
	})
}

// RecordExhausted publishes a record-exhausted event.
func (p *KafkaPublisher) RecordExhausted(ctx context.Context, key domain.RecordKey, lastError string) {
	p.publish(ctx, TypeRecordExhausted, key, RecordExhaustedPayload{
		LastError: lastError,
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// publish serializes and writes one event. Failures are counted and logged;
// the pipeline never blocks on the broker.
func (p *KafkaPublisher) publish(ctx context.Context, eventType string, key domain.RecordKey, payload any) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		p.metrics.RecordEventFailed(eventType)
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}

	envelope := Envelope{
		EventID:        uuid.New().String(),
		EventType:      eventType,
		TrackedPaperID: key.TrackedPaperID,
		CitingPaperID:  key.CitingPaperID,
		OccurredAt:     time.Now().UTC(),
		Payload:        payloadBytes,
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		p.metrics.RecordEventFailed(eventType)
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event envelope")
		return
	}

	// Detach from the pipeline's deadline; a slow broker must not fail the
	// record being processed.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key.TrackedPaperID + ":" + key.CitingPaperID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.metrics.RecordEventFailed(eventType)
		p.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("tracked_paper_id", key.TrackedPaperID).
			Str("citing_paper_id", key.CitingPaperID).
			Msg("failed to publish pipeline event")
		return
	}

	p.metrics.RecordEventPublished(eventType)
}
