package report

import (
	"fmt"
	"io"
	"strings"

	"PortfolioTracker/internal/ledger"

	"github.com/shopspring/decimal"
)

const ruleWidth = 80

// WriteSummary prints the console summary of a snapshot: open and closed
// tables, the P&L total and the scenario projections for year.
func WriteSummary(w io.Writer, snap *ledger.Snapshot, year int, currency string) error {
	var b strings.Builder
	rule := strings.Repeat("=", ruleWidth)
	dash := strings.Repeat("-", ruleWidth)
	money := func(a ledger.Amount) string { return ledger.Format(a, currency) }
	signed := func(a ledger.Amount) string { return ledger.FormatSigned(a, currency) }
	t := snap.Totals

	fmt.Fprintf(&b, "\n%s\nPORTFOLIO SUMMARY - %d (%s)\n%s\n", rule, year, snap.Period, rule)

	if len(snap.Open) > 0 {
		fmt.Fprintf(&b, "\nOPEN POSITIONS (%d)\n", len(snap.Open))
		fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s %9s\n", "Position", "Shares", "Buy", "Current", "P&L", "P&L%")
		b.WriteString(dash + "\n")
		for _, v := range snap.Open {
			fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s %9s\n", v.Position.Ticker, v.Position.Shares,
				money(v.Position.BuyPrice), money(v.CurrentPrice), signed(v.Unrealized), Pct(v.UnrealizedPct))
		}
		b.WriteString(dash + "\n")
		fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s %9s\n", "SUBTOTAL", "",
			money(t.BuyValue), money(t.CurrentValue), signed(t.Unrealized), Pct(t.UnrealizedPct()))
	}

	if len(snap.Closed) > 0 {
		fmt.Fprintf(&b, "\nCLOSED POSITIONS (%d) - Realized P&L\n", len(snap.Closed))
		fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s %9s\n", "Position", "Shares", "Buy", "Sell", "P&L", "P&L%")
		b.WriteString(dash + "\n")
		for _, v := range snap.Closed {
			fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s %9s\n", v.Position.Ticker, v.Position.Shares,
				money(v.Position.BuyPrice), money(v.SellPrice), signed(v.Realized), Pct(v.RealizedPct))
		}
		b.WriteString(dash + "\n")
		fmt.Fprintf(&b, "%-12s %8s %14s %14s %14s\n", "REALIZED", "", "", "", signed(t.Realized))
	}

	fmt.Fprintf(&b, "\n%s\nTOTAL P&L: %s\n", rule, signed(t.Total))
	if len(snap.Open) > 0 && len(snap.Closed) > 0 {
		fmt.Fprintf(&b, "  Unrealized: %s\n", signed(t.Unrealized))
		fmt.Fprintf(&b, "  Realized:   %s\n", signed(t.Realized))
	}
	b.WriteString(rule + "\n")

	if len(snap.Open) > 0 {
		b.WriteString("\nSCENARIO PROJECTIONS (Open Positions)\n")
		b.WriteString(dash + "\n")
		fmt.Fprintf(&b, "  %-18s %16s  (%s from buy)\n", "Current Value:", money(t.CurrentValue), Pct(t.UnrealizedPct()))
		fmt.Fprintf(&b, "  %-18s %16s  (%s from buy)\n", fmt.Sprintf("Best Case %d:", year), money(t.BestValue), Pct(t.BestPct()))
		fmt.Fprintf(&b, "  %-18s %16s  (%s from buy)\n", fmt.Sprintf("Worst Case %d:", year), money(t.WorstValue), Pct(t.WorstPct()))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Pct renders a percentage with a sign and one decimal, e.g. "+16.7%".
func Pct(d decimal.Decimal) string {
	s := d.StringFixed(1)
	if !d.IsNegative() {
		s = "+" + s
	}
	return s + "%"
}
