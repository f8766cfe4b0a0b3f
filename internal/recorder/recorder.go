package recorder

import (
	"context"
	"time"

	"PortfolioTracker/internal/ledger"
)

// SnapshotRecord is one stored valuation run.
type SnapshotRecord struct {
	RunID           string        `json:"run_id"`
	RecordedAt      time.Time     `json:"recorded_at"`
	Period          string        `json:"period"`
	BuyValue        ledger.Amount `json:"buy_value"`
	CurrentValue    ledger.Amount `json:"current_value"`
	Unrealized      ledger.Amount `json:"unrealized_pnl"`
	Realized        ledger.Amount `json:"realized_pnl"`
	Total           ledger.Amount `json:"total_pnl"`
	OpenPositions   int           `json:"open_positions"`
	ClosedPositions int           `json:"closed_positions"`
}

// Recorder persists valuation history for later analysis.
type Recorder interface {
	// RecordSnapshot stores snap under runID as taken at the given time.
	RecordSnapshot(ctx context.Context, snap *ledger.Snapshot, runID string, at time.Time) error
	// History returns the latest runs, newest first.
	History(ctx context.Context, limit int) ([]SnapshotRecord, error)
	Close() error
}
