// Package events publishes sync lifecycle events to Kafka
package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/yourorg/exchange-aggregator/internal/model"
)

// Producer publishes sync events. A nil *Producer is a no-op so callers
// never need to branch on whether Kafka is enabled.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewProducer creates a Kafka producer for the given topic
func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{
		writer: writer,
		logger: logger,
	}
}

// PublishSyncCompleted sends a sync-completed event keyed by exchanger
// ID. Publish failures are logged, never propagated: events are
// best-effort observability, not part of the sync transaction.
func (p *Producer) PublishSyncCompleted(ctx context.Context, event model.SyncCompletedEvent) {
	if p == nil {
		return
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal sync event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(event.ExchangerID)),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish sync event",
			zap.Error(err),
			zap.Int("exchanger_id", event.ExchangerID))
	}
}

// Close flushes and closes the underlying writer
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
