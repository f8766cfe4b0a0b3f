// Package events publishes portfolio events to Kafka.
package events

import (
	"context"
	"time"

	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/updater"
)

const (
	SnapshotComputed = "SNAPSHOT_COMPUTED"
	PricesUpdated    = "PRICES_UPDATED"
)

// Event is the JSON envelope of every message.
type Event struct {
	EventType string          `json:"event_type"`
	RunID     string          `json:"run_id,omitempty"`
	Period    *ledger.Period  `json:"period,omitempty"`
	Totals    *ledger.Totals  `json:"totals,omitempty"`
	Update    *updater.Result `json:"update,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher emits portfolio events.
type Publisher interface {
	PublishSnapshot(ctx context.Context, runID string, snap *ledger.Snapshot) error
	PublishPricesUpdated(ctx context.Context, res *updater.Result) error
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishSnapshot(context.Context, string, *ledger.Snapshot) error { return nil }
func (NoopPublisher) PublishPricesUpdated(context.Context, *updater.Result) error     { return nil }
func (NoopPublisher) Close() error                                                    { return nil }
