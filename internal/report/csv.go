package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"PortfolioTracker/internal/ledger"
)

var openColumns = []string{
	"ticker", "shares", "buy_price", "current_price", "target_low", "target_high",
	"buy_value", "current_value", "best_value", "worst_value",
	"unrealized_pnl", "unrealized_pnl_pct", "best_pnl", "best_pnl_pct",
	"worst_pnl", "worst_pnl_pct", "notes",
}

var closedColumns = []string{
	"ticker", "shares", "buy_price", "sell_price", "buy_value", "sell_value",
	"realized_pnl", "realized_pnl_pct", "notes",
}

// WriteOpenCSV writes one row per open position.
func WriteOpenCSV(w io.Writer, open []ledger.OpenValuation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(openColumns); err != nil {
		return fmt.Errorf("write open header: %w", err)
	}
	for _, v := range open {
		p := v.Position
		row := []string{
			p.Ticker, p.Shares.String(), p.BuyPrice.String(), v.CurrentPrice.String(),
			p.TargetLow.String(), p.TargetHigh.String(),
			v.BuyValue.String(), v.CurrentValue.String(), v.BestValue.String(), v.WorstValue.String(),
			v.Unrealized.String(), v.UnrealizedPct.String(),
			v.Scenario.Best.String(), v.Scenario.BestPct.String(),
			v.Scenario.Worst.String(), v.Scenario.WorstPct.String(),
			p.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write open row %s: %w", p.Ticker, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteClosedCSV writes one row per closed position.
func WriteClosedCSV(w io.Writer, closed []ledger.ClosedValuation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(closedColumns); err != nil {
		return fmt.Errorf("write closed header: %w", err)
	}
	for _, v := range closed {
		p := v.Position
		row := []string{
			p.Ticker, p.Shares.String(), p.BuyPrice.String(), v.SellPrice.String(),
			v.BuyValue.String(), v.SellValue.String(),
			v.Realized.String(), v.RealizedPct.String(),
			p.Notes,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write closed row %s: %w", p.Ticker, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
