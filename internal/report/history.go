package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"PortfolioTracker/internal/ledger"

	"github.com/shopspring/decimal"
)

var historyColumns = []string{
	"date", "total_buy_value", "total_current_value", "total_unrealized_pnl",
	"total_realized_pnl", "total_pnl", "total_best_value", "total_worst_value",
	"open_positions", "closed_positions",
}

// HistoryRow flattens a snapshot into one history line keyed by column.
// Every open position adds <TICKER>_price and <TICKER>_value columns.
func HistoryRow(snap *ledger.Snapshot, date string) (map[string]string, []string) {
	t := snap.Totals
	row := map[string]string{
		"date":                 date,
		"total_buy_value":      t.BuyValue.String(),
		"total_current_value":  t.CurrentValue.String(),
		"total_unrealized_pnl": t.Unrealized.String(),
		"total_realized_pnl":   t.Realized.String(),
		"total_pnl":            t.Total.String(),
		"total_best_value":     t.BestValue.String(),
		"total_worst_value":    t.WorstValue.String(),
		"open_positions":       fmt.Sprint(t.OpenPositions),
		"closed_positions":     fmt.Sprint(t.ClosedPositions),
	}
	columns := append([]string(nil), historyColumns...)
	for _, v := range snap.Open {
		price, value := v.Position.Ticker+"_price", v.Position.Ticker+"_value"
		if _, dup := row[price]; !dup {
			columns = append(columns, price, value)
			row[price] = v.CurrentPrice.String()
			row[value] = v.CurrentValue.String()
			continue
		}
		// Several lots of one ticker share a price; their values add up.
		prev, _ := decimal.NewFromString(row[value])
		row[value] = ledger.NewAmount(prev).Add(v.CurrentValue).String()
	}
	return row, columns
}

// UpsertHistory adds the snapshot to the history CSV at path, replacing an
// existing row of the same date. Columns are the union of the existing
// header and the new row, in first-seen order.
func UpsertHistory(path string, snap *ledger.Snapshot, date string) error {
	header, rows, err := readHistory(path)
	if err != nil {
		return err
	}

	row, columns := HistoryRow(snap, date)
	known := make(map[string]bool, len(header))
	for _, c := range header {
		known[c] = true
	}
	for _, c := range columns {
		if !known[c] {
			header = append(header, c)
			known[c] = true
		}
	}

	kept := rows[:0]
	for _, r := range rows {
		if r["date"] != date {
			kept = append(kept, r)
		}
	}
	kept = append(kept, row)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for _, r := range kept {
		line := make([]string, len(header))
		for i, c := range header {
			line[i] = r[c]
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write history row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}
	return f.Close()
}

func readHistory(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read history: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		r := make(map[string]string, len(header))
		for i, c := range header {
			if i < len(rec) {
				r[c] = rec[i]
			}
		}
		rows = append(rows, r)
	}
	return header, rows, nil
}
