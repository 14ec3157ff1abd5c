package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skypro1111/audio-ingest-service/internal/ingest"
	"github.com/skypro1111/audio-ingest-service/internal/metrics"
)

// BatchEvent announces an accepted batch to downstream consumers
type BatchEvent struct {
	RequestID   string                 `json:"request_id"`
	SessionID   string                 `json:"session_id"`
	Timestamp   string                 `json:"timestamp"`
	Processed   int                    `json:"processed"`
	Skipped     int                    `json:"skipped"`
	Files       []ingest.ProcessedFile `json:"files"`
	PublishedAt time.Time              `json:"published_at"`
}

// NewBatchEvent builds the event for an accepted batch
func NewBatchEvent(requestID string, batch ingest.Batch, result *ingest.Result) BatchEvent {
	return BatchEvent{
		RequestID: requestID,
		SessionID: batch.SessionID,
		Timestamp: batch.Timestamp,
		Processed: len(result.ProcessedFiles),
		Skipped:   len(result.SkippedFiles),
		Files:     result.ProcessedFiles,
	}
}

// Publisher hands batch events to a transport without blocking the caller
type Publisher interface {
	Publish(ev BatchEvent)
}

// NoopPublisher discards events; used when events are disabled
type NoopPublisher struct{}

// Publish does nothing
func (NoopPublisher) Publish(BatchEvent) {}

// PublisherConfig holds configuration for the MQTT publisher
type PublisherConfig struct {
	Topic      string // e.g. "audio/sessions/{session_id}/ingested"
	BufferSize int
}

// MQTTPublisher publishes batch events from a buffered channel
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	events  chan BatchEvent
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewMQTTPublisher creates a publisher; call Start to begin draining events
func NewMQTTPublisher(client mqtt.Client, cfg PublisherConfig, logger *slog.Logger, m *metrics.Metrics) *MQTTPublisher {
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}

	return &MQTTPublisher{
		client:  client,
		topic:   cfg.Topic,
		events:  make(chan BatchEvent, size),
		logger:  logger,
		metrics: m,
	}
}

// Publish enqueues ev, dropping it when the buffer is full
func (p *MQTTPublisher) Publish(ev BatchEvent) {
	select {
	case p.events <- ev:
	default:
		p.metrics.RecordEventDropped()
		p.logger.Warn("Event buffer full, dropping batch event",
			slog.String("session_id", ev.SessionID),
			slog.String("request_id", ev.RequestID),
		)
	}
}

// Start publishes queued events until ctx is cancelled
func (p *MQTTPublisher) Start(ctx context.Context) {
	p.logger.Info("Event publisher started", slog.String("topic", p.topic))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Event publisher stopped")
			return

		case ev := <-p.events:
			if err := p.publish(ev); err != nil {
				p.metrics.RecordEventDropped()
				p.logger.Error("Failed to publish batch event",
					slog.String("session_id", ev.SessionID),
					slog.String("error", err.Error()),
				)
				continue
			}
			p.metrics.RecordEventPublished()
		}
	}
}

func (p *MQTTPublisher) publish(ev BatchEvent) error {
	if ev.PublishedAt.IsZero() {
		ev.PublishedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal batch event: %w", err)
	}

	topic := FormatTopic(p.topic, ev.SessionID)

	token := p.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	p.logger.Debug("Published batch event", slog.String("topic", topic))
	return nil
}

// FormatTopic replaces the {session_id} placeholder
func FormatTopic(pattern, sessionID string) string {
	return strings.ReplaceAll(pattern, "{session_id}", sessionID)
}
