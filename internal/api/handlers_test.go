package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PortfolioTracker/internal/collector"
	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/recorder"
	"PortfolioTracker/internal/tracker"
	"PortfolioTracker/internal/updater"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	positions []ledger.Position
	prices    ledger.Prices
	updateErr error
	opts      updater.Options
	limit     int
}

func (f *fakeService) Snapshot(_ context.Context) (*tracker.View, error) {
	snap, err := ledger.Valuate(f.positions, f.prices, time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	return &tracker.View{Snapshot: snap, Currency: "EUR", Year: 2026}, nil
}

func (f *fakeService) Analyze(ctx context.Context) (*tracker.Analysis, error) {
	v, err := f.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &tracker.Analysis{View: *v, RunID: "run-1"}, nil
}

func (f *fakeService) UpdatePrices(_ context.Context, opts updater.Options) (*updater.Result, error) {
	f.opts = opts
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &updater.Result{Base: "EUR", Date: "2026-03-14", Written: !opts.DryRun}, nil
}

func (f *fakeService) History(_ context.Context, limit int) ([]recorder.SnapshotRecord, error) {
	f.limit = limit
	return nil, nil
}

func position(ticker string, shares, buy float64, sell *float64) ledger.Position {
	p := ledger.Position{
		Ticker:     ticker,
		Shares:     decimal.NewFromFloat(shares),
		BuyPrice:   ledger.AmountFromFloat(buy),
		TargetLow:  ledger.AmountFromFloat(buy * 0.8),
		TargetHigh: ledger.AmountFromFloat(buy * 1.5),
		State:      ledger.Open{},
	}
	if sell != nil {
		p.State = ledger.Closed{SellPrice: ledger.AmountFromFloat(*sell)}
	}
	return p
}

func newFake() *fakeService {
	sell := 500.0
	return &fakeService{
		positions: []ledger.Position{
			position("AAPL", 100, 150, nil),
			position("NVDA", 10, 400, &sell),
			position("AAPL", 10, 160, nil),
		},
		prices: ledger.Prices{"AAPL": ledger.AmountFromFloat(175)},
	}
}

func do(t *testing.T, svc Service, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	SetupRoutes(NewHandler(svc)).ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthCheck(t *testing.T) {
	rec, body := do(t, newFake(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestGetSnapshot(t *testing.T) {
	rec, body := do(t, newFake(), http.MethodGet, "/api/v1/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "EUR", body["base_currency"])

	snap := body["snapshot"].(map[string]any)
	assert.Equal(t, "2026-03", snap["period"])
	totals := snap["totals"].(map[string]any)
	// (175-150)*100 + (175-160)*10
	assert.Equal(t, float64(2650), totals["unrealized_pnl"])
	assert.Equal(t, float64(1000), totals["realized_pnl"])
}

func TestGetPositions(t *testing.T) {
	rec, _ := do(t, newFake(), http.MethodGet, "/api/v1/positions/open")
	require.Equal(t, http.StatusOK, rec.Code)
	var open []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &open))
	assert.Len(t, open, 2)

	rec, _ = do(t, newFake(), http.MethodGet, "/api/v1/positions/closed")
	require.Equal(t, http.StatusOK, rec.Code)
	var closed []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &closed))
	require.Len(t, closed, 1)
	assert.Equal(t, float64(1000), closed[0]["realized_pnl"])
	assert.IsType(t, float64(0), closed[0]["realized_pnl_pct"])
}

func TestGetPosition(t *testing.T) {
	rec, body := do(t, newFake(), http.MethodGet, "/api/v1/positions/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", body["ticker"])
	assert.Len(t, body["open"], 2)
	assert.Empty(t, body["closed"])

	rec, _ = do(t, newFake(), http.MethodGet, "/api/v1/positions/MSFT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEngineErrorsAreUnprocessable(t *testing.T) {
	svc := newFake()
	svc.prices = ledger.Prices{}

	rec, body := do(t, svc, http.MethodGet, "/api/v1/snapshot")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["error"], "missing current price")
	assert.Equal(t, []any{"AAPL"}, body["tickers"])

	svc = newFake()
	svc.positions = append(svc.positions, position("BAD", 0, 1, nil))
	rec, body = do(t, svc, http.MethodPost, "/api/v1/analyze")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []any{"BAD"}, body["tickers"])
}

func TestAnalyze(t *testing.T) {
	rec, body := do(t, newFake(), http.MethodPost, "/api/v1/analyze")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "run-1", body["run_id"])

	rec, _ = do(t, newFake(), http.MethodGet, "/api/v1/analyze")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRefreshPrices(t *testing.T) {
	svc := newFake()
	rec, body := do(t, svc, http.MethodPost, "/api/v1/prices/refresh?dry_run=true&no_targets=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.opts.DryRun)
	assert.True(t, svc.opts.NoTargets)
	assert.Equal(t, false, body["written"])

	rec, _ = do(t, svc, http.MethodPost, "/api/v1/prices/refresh?dry_run=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.updateErr = updater.ErrNoPrices
	rec, _ = do(t, svc, http.MethodPost, "/api/v1/prices/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	svc.updateErr = fmt.Errorf("fetch fx rate USD/EUR: %w", fmt.Errorf("yahoo: status 503: %w", collector.ErrUpstream))
	rec, body = do(t, svc, http.MethodPost, "/api/v1/prices/refresh")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "status 503")

	svc.updateErr = errors.New("boom")
	rec, _ = do(t, svc, http.MethodPost, "/api/v1/prices/refresh")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetHistory(t *testing.T) {
	svc := newFake()
	rec, _ := do(t, svc, http.MethodGet, "/api/v1/history?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.limit)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec, _ = do(t, svc, http.MethodGet, "/api/v1/history?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
