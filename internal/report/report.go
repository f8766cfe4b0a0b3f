// Package report writes valuation snapshots to disk: per-month position
// CSVs, the cross-run history CSV and the console summary.
package report

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"PortfolioTracker/internal/ledger"
)

const (
	OpenFile   = "open_positions.csv"
	ClosedFile = "closed_positions.csv"
)

// Writer files snapshots under OutputDir/YYYY-MM.
type Writer struct {
	OutputDir   string
	HistoryFile string
	SaveHistory bool
}

// Dir is the directory of a period's reports.
func (w *Writer) Dir(p ledger.Period) string {
	return filepath.Join(w.OutputDir, p.String())
}

// Write stores the position CSVs of snap and upserts the history row of
// the run date. A CSV is only written when its set is non-empty. It returns
// the paths written.
func (w *Writer) Write(snap *ledger.Snapshot, at time.Time) ([]string, error) {
	dir := w.Dir(snap.Period)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string
	if len(snap.Open) > 0 {
		var buf bytes.Buffer
		if err := WriteOpenCSV(&buf, snap.Open); err != nil {
			return written, err
		}
		path := filepath.Join(dir, OpenFile)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write open positions: %w", err)
		}
		written = append(written, path)
	}
	if len(snap.Closed) > 0 {
		var buf bytes.Buffer
		if err := WriteClosedCSV(&buf, snap.Closed); err != nil {
			return written, err
		}
		path := filepath.Join(dir, ClosedFile)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write closed positions: %w", err)
		}
		written = append(written, path)
	}
	if w.SaveHistory && w.HistoryFile != "" {
		path := filepath.Join(dir, w.HistoryFile)
		if err := UpsertHistory(path, snap, at.Format("2006-01-02")); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	for _, p := range written {
		log.Printf("[INFO] saved: %s", p)
	}
	return written, nil
}
