// Package tracker wires the position file, the valuation engine and the
// side channels (reports, history, events) into the operations shared by
// the CLI, the scheduler, the HTTP API and chat commands.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"PortfolioTracker/internal/collector"
	"PortfolioTracker/internal/events"
	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/portfolio"
	"PortfolioTracker/internal/recorder"
	"PortfolioTracker/internal/report"
	"PortfolioTracker/internal/updater"

	"github.com/google/uuid"
)

// View is a computed snapshot together with the settings needed to render it.
type View struct {
	Snapshot   *ledger.Snapshot `json:"snapshot"`
	Currency   string           `json:"base_currency"`
	Year       int              `json:"analysis_year"`
	LastUpdate string           `json:"last_update"`
}

// Analysis is the outcome of a full analysis run.
type Analysis struct {
	View
	RunID string   `json:"run_id"`
	Files []string `json:"files"`
}

// Service runs tracker operations against one position file. Reads run
// concurrently; price updates hold the file exclusively.
type Service struct {
	PortfolioPath string
	// OutputDir overrides output.output_dir of the position file when set.
	OutputDir string
	Fetcher   collector.Fetcher
	Recorder  recorder.Recorder
	Publisher events.Publisher
	Now       func() time.Time
	NewRunID  func() string

	mu sync.RWMutex
}

// New creates a Service. A nil recorder or publisher disables that channel.
func New(path string, fetcher collector.Fetcher, rec recorder.Recorder, pub events.Publisher) *Service {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &Service{
		PortfolioPath: path,
		Fetcher:       fetcher,
		Recorder:      rec,
		Publisher:     pub,
		Now:           time.Now,
		NewRunID:      uuid.NewString,
	}
}

type loaded struct {
	file      *portfolio.File
	positions []ledger.Position
	prices    ledger.Prices
}

func (s *Service) load() (*loaded, error) {
	file, err := portfolio.Load(s.PortfolioPath)
	if err != nil {
		return nil, err
	}
	positions, err := file.Positions()
	if err != nil {
		return nil, err
	}
	prices, err := file.Prices()
	if err != nil {
		return nil, err
	}
	return &loaded{file: file, positions: positions, prices: prices}, nil
}

// Validate loads the position file and checks every record without valuing
// anything. It returns the decoded positions.
func (s *Service) Validate(_ context.Context) ([]ledger.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, err := s.load()
	if err != nil {
		return nil, err
	}
	return l.positions, nil
}

// Snapshot values the portfolio at the current time.
func (s *Service) Snapshot(_ context.Context) (*View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, _, err := s.snapshot()
	return v, err
}

func (s *Service) snapshot() (*View, *loaded, error) {
	l, err := s.load()
	if err != nil {
		return nil, nil, err
	}
	at := s.Now()
	snap, err := ledger.Valuate(l.positions, l.prices, at)
	if err != nil {
		return nil, nil, err
	}
	year := l.file.Settings.AnalysisYear
	if year == 0 {
		year = at.Year()
	}
	return &View{
		Snapshot:   snap,
		Currency:   l.file.Settings.BaseCurrency,
		Year:       year,
		LastUpdate: l.file.Monitoring.LastUpdate,
	}, l, nil
}

// Analyze values the portfolio, writes the period reports and history, then
// records and publishes the run. Recording and publishing failures are
// logged; they never fail the analysis.
func (s *Service) Analyze(ctx context.Context) (*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, l, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	a := &Analysis{View: *view, RunID: s.NewRunID()}

	w := &report.Writer{
		OutputDir:   l.file.Output.OutputDir,
		HistoryFile: l.file.Monitoring.HistoryFile,
		SaveHistory: l.file.Monitoring.SaveHistory,
	}
	if s.OutputDir != "" {
		w.OutputDir = s.OutputDir
	}
	at := s.Now()
	a.Files, err = w.Write(view.Snapshot, at)
	if err != nil {
		return nil, fmt.Errorf("write reports: %w", err)
	}

	if err := s.Recorder.RecordSnapshot(ctx, view.Snapshot, a.RunID, at); err != nil {
		log.Printf("[ERROR] record snapshot %s: %v", a.RunID, err)
	}
	if err := s.Publisher.PublishSnapshot(ctx, a.RunID, view.Snapshot); err != nil {
		log.Printf("[ERROR] publish snapshot %s: %v", a.RunID, err)
	}
	log.Printf("[INFO] analysis %s done: %d open, %d closed, total %s",
		a.RunID, view.Snapshot.Totals.OpenPositions, view.Snapshot.Totals.ClosedPositions, view.Snapshot.Totals.Total)
	return a, nil
}

// UpdatePrices refreshes market data in the position file and publishes
// the changes when something was written.
func (s *Service) UpdatePrices(ctx context.Context, opts updater.Options) (*updater.Result, error) {
	if s.Fetcher == nil {
		return nil, fmt.Errorf("update prices: no price source configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.Now == nil {
		opts.Now = s.Now
	}
	res, err := updater.New(s.Fetcher).Run(ctx, s.PortfolioPath, opts)
	if err != nil {
		return nil, err
	}
	if res.Written && res.Changed() {
		if err := s.Publisher.PublishPricesUpdated(ctx, res); err != nil {
			log.Printf("[ERROR] publish price update: %v", err)
		}
	}
	return res, nil
}

// History returns the latest recorded runs.
func (s *Service) History(ctx context.Context, limit int) ([]recorder.SnapshotRecord, error) {
	return s.Recorder.History(ctx, limit)
}
