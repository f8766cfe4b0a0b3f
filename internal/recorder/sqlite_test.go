package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"PortfolioTracker/internal/ledger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordedAt = time.Date(2026, time.March, 14, 18, 30, 0, 0, time.UTC)

func testSnapshot(t *testing.T) *ledger.Snapshot {
	t.Helper()
	open := ledger.Position{
		Ticker:     "AAPL",
		Shares:     decimal.NewFromInt(100),
		BuyPrice:   ledger.AmountFromFloat(150),
		TargetLow:  ledger.AmountFromFloat(130),
		TargetHigh: ledger.AmountFromFloat(200),
		State:      ledger.Open{},
	}
	closed := open
	closed.Ticker = "NVDA"
	closed.State = ledger.Closed{SellPrice: ledger.AmountFromFloat(180.25)}

	snap, err := ledger.Valuate([]ledger.Position{open, closed},
		ledger.Prices{"AAPL": ledger.AmountFromFloat(175.5)},
		time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return snap
}

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	snap := testSnapshot(t)
	require.NoError(t, r.RecordSnapshot(ctx, snap, "run-1", recordedAt))
	require.NoError(t, r.RecordSnapshot(ctx, snap, "run-2", recordedAt))

	history, err := r.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "run-2", history[0].RunID, "newest first")
	assert.Equal(t, "2026-03", history[0].Period)
	assert.Equal(t, "2550", history[0].Unrealized.String())
	assert.Equal(t, "3025", history[0].Realized.String())
	assert.Equal(t, "5575", history[0].Total.String())
	assert.Equal(t, 1, history[0].OpenPositions)
	assert.Equal(t, 1, history[0].ClosedPositions)
	assert.True(t, recordedAt.Equal(history[0].RecordedAt), "got %s", history[0].RecordedAt)

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM position_snapshots WHERE run_id = ?`, "run-1").Scan(&n))
	assert.Equal(t, 2, n)

	var price string
	require.NoError(t, r.db.QueryRow(`SELECT price FROM position_snapshots WHERE run_id = ? AND status = 'closed'`, "run-1").Scan(&price))
	assert.Equal(t, "180.25", price)

	assert.Error(t, r.RecordSnapshot(ctx, snap, "run-1", recordedAt), "run ids are unique")
}

func TestSQLiteRecorder_ReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	r, err := NewSQLiteRecorder(path)
	require.NoError(t, err)
	require.NoError(t, r.RecordSnapshot(context.Background(), testSnapshot(t), "run-1", recordedAt))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRecorder(path)
	require.NoError(t, err)
	defer r.Close()
	history, err := r.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSQLiteRecorder_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := &SQLiteRecorder{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO snapshots").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO position_snapshots").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = r.RecordSnapshot(context.Background(), testSnapshot(t), "run-1", recordedAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert position AAPL")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRecorder_BeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := &SQLiteRecorder{db: db}
	mock.ExpectBegin().WillReturnError(errors.New("locked"))

	err = r.RecordSnapshot(context.Background(), testSnapshot(t), "run-1", recordedAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin snapshot tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRecorder_HistoryQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := &SQLiteRecorder{db: db}
	mock.ExpectQuery("SELECT run_id").WithArgs(5).WillReturnError(errors.New("no such table"))

	_, err = r.History(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query history")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	assert.NoError(t, r.RecordSnapshot(context.Background(), testSnapshot(t), "x", recordedAt))
	h, err := r.History(context.Background(), 1)
	assert.NoError(t, err)
	assert.Empty(t, h)
	assert.NoError(t, r.Close())
}
