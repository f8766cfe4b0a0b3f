package recorder

import (
	"context"
	"time"

	"PortfolioTracker/internal/ledger"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(_ context.Context, _ *ledger.Snapshot, _ string, _ time.Time) error {
	return nil
}

func (n *NoopRecorder) History(_ context.Context, _ int) ([]SnapshotRecord, error) {
	return nil, nil
}

func (n *NoopRecorder) Close() error { return nil }
