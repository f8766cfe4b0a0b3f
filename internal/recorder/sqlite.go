package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"PortfolioTracker/internal/ledger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists snapshot history to a SQLite database. Amounts
// are stored as decimal text so no precision is lost.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the API read history while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id           TEXT NOT NULL UNIQUE,
			timestamp        INTEGER NOT NULL,
			period           TEXT NOT NULL,
			buy_value        TEXT,
			current_value    TEXT,
			best_value       TEXT,
			worst_value      TEXT,
			unrealized_pnl   TEXT,
			realized_pnl     TEXT,
			total_pnl        TEXT,
			open_positions   INTEGER,
			closed_positions INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_ts ON snapshots(timestamp)`,

		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL,
			ticker    TEXT NOT NULL,
			status    TEXT NOT NULL,
			shares    TEXT,
			buy_price TEXT,
			price     TEXT,
			value     TEXT,
			pnl       TEXT,
			pnl_pct   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_snapshots_run ON position_snapshots(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSnapshot stores the totals and every position of snap under runID
// in one transaction, stamped with at.
func (r *SQLiteRecorder) RecordSnapshot(ctx context.Context, snap *ledger.Snapshot, runID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	t := snap.Totals
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots
		(run_id, timestamp, period, buy_value, current_value, best_value, worst_value,
		 unrealized_pnl, realized_pnl, total_pnl, open_positions, closed_positions)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		runID, at.Unix(), snap.Period.String(),
		t.BuyValue.String(), t.CurrentValue.String(), t.BestValue.String(), t.WorstValue.String(),
		t.Unrealized.String(), t.Realized.String(), t.Total.String(),
		t.OpenPositions, t.ClosedPositions,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	const insertPosition = `INSERT INTO position_snapshots
		(run_id, ticker, status, shares, buy_price, price, value, pnl, pnl_pct)
		VALUES (?,?,?,?,?,?,?,?,?)`
	for _, v := range snap.Open {
		if _, err := tx.ExecContext(ctx, insertPosition,
			runID, v.Position.Ticker, v.Position.Status(), v.Position.Shares.String(),
			v.Position.BuyPrice.String(), v.CurrentPrice.String(), v.CurrentValue.String(),
			v.Unrealized.String(), v.UnrealizedPct.String(),
		); err != nil {
			return fmt.Errorf("insert position %s: %w", v.Position.Ticker, err)
		}
	}
	for _, v := range snap.Closed {
		if _, err := tx.ExecContext(ctx, insertPosition,
			runID, v.Position.Ticker, v.Position.Status(), v.Position.Shares.String(),
			v.Position.BuyPrice.String(), v.SellPrice.String(), v.SellValue.String(),
			v.Realized.String(), v.RealizedPct.String(),
		); err != nil {
			return fmt.Errorf("insert position %s: %w", v.Position.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) History(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, timestamp, period, buy_value, current_value,
		unrealized_pnl, realized_pnl, total_pnl, open_positions, closed_positions
		FROM snapshots ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		var (
			rec                                       SnapshotRecord
			ts                                        int64
			buy, current, unrealized, realized, total string
		)
		if err := rows.Scan(&rec.RunID, &ts, &rec.Period, &buy, &current,
			&unrealized, &realized, &total, &rec.OpenPositions, &rec.ClosedPositions); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.RecordedAt = time.Unix(ts, 0)
		rec.BuyValue = amount(buy)
		rec.CurrentValue = amount(current)
		rec.Unrealized = amount(unrealized)
		rec.Realized = amount(realized)
		rec.Total = amount(total)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func amount(s string) ledger.Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ledger.Amount{}
	}
	return ledger.NewAmount(d)
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
