package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/updater"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// PublishSnapshot publishes the period and totals of a valuation run.
func (p *Producer) PublishSnapshot(ctx context.Context, runID string, snap *ledger.Snapshot) error {
	period, totals := snap.Period, snap.Totals
	event := Event{
		EventType: SnapshotComputed,
		RunID:     runID,
		Period:    &period,
		Totals:    &totals,
		Timestamp: p.now(),
	}
	return p.publish(ctx, SnapshotComputed, event)
}

// PublishPricesUpdated publishes the changes of a price update run.
func (p *Producer) PublishPricesUpdated(ctx context.Context, res *updater.Result) error {
	event := Event{
		EventType: PricesUpdated,
		Update:    res,
		Timestamp: p.now(),
	}
	return p.publish(ctx, PricesUpdated, event)
}

func (p *Producer) publish(ctx context.Context, key string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
