package notifier

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/report"
	"PortfolioTracker/internal/updater"
)

// FormatSnapshot renders the console summary as a Telegram message. The
// table is kept monospaced in a <pre> block.
func FormatSnapshot(snap *ledger.Snapshot, year int, currency string) string {
	var summary bytes.Buffer
	if err := report.WriteSummary(&summary, snap, year, currency); err != nil {
		return fmt.Sprintf("❌ render summary: %v", err)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Portfolio</b> | %s\n", snap.Period))
	b.WriteString(fmt.Sprintf("Total P&amp;L: <b>%s</b>\n\n",
		html.EscapeString(ledger.FormatSigned(snap.Totals.Total, currency))))
	b.WriteString("<pre>")
	b.WriteString(html.EscapeString(strings.TrimSpace(summary.String())))
	b.WriteString("</pre>")
	return b.String()
}

// FormatUpdate summarizes a price update run.
func FormatUpdate(res *updater.Result) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔄 <b>Price update</b> | %s\n\n", res.Date))
	lines := res.Lines()
	if len(lines) == 0 {
		b.WriteString("No significant changes.\n")
	}
	for _, l := range lines {
		b.WriteString("• " + html.EscapeString(l) + "\n")
	}
	if len(res.Warnings) > 0 {
		b.WriteString("\n⚠️ <b>Warnings</b>\n")
		for _, w := range res.Warnings {
			b.WriteString("• " + html.EscapeString(w) + "\n")
		}
	}
	if !res.Written {
		b.WriteString("\n(nothing written)")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatError reports a failed run, naming the tickers involved.
func FormatError(op string, err error) string {
	msg := fmt.Sprintf("❌ %s failed: %s", op, html.EscapeString(err.Error()))
	if tickers := ledger.Tickers(err); len(tickers) > 0 {
		msg += "\nTickers: " + html.EscapeString(strings.Join(tickers, ", "))
	}
	return msg
}

// HelpText lists the chat commands.
const HelpText = "Available commands:\n• /summary - current valuation\n• /report - write the period reports\n• /update - refresh prices\n• /help - this message"
