// Package api exposes the tracker over a small read-mostly JSON API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"PortfolioTracker/internal/collector"
	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/recorder"
	"PortfolioTracker/internal/tracker"
	"PortfolioTracker/internal/updater"

	"github.com/gorilla/mux"
)

// Service is the part of the tracker the handlers need.
type Service interface {
	Snapshot(ctx context.Context) (*tracker.View, error)
	Analyze(ctx context.Context) (*tracker.Analysis, error)
	UpdatePrices(ctx context.Context, opts updater.Options) (*updater.Result, error)
	History(ctx context.Context, limit int) ([]recorder.SnapshotRecord, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

type errorResponse struct {
	Error   string   `json:"error"`
	Tickers []string `json:"tickers,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetSnapshot handles GET /snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Snapshot(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetOpenPositions handles GET /positions/open
func (h *Handler) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Snapshot(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view.Snapshot.Open)
}

// GetClosedPositions handles GET /positions/closed
func (h *Handler) GetClosedPositions(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Snapshot(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view.Snapshot.Closed)
}

// GetPosition handles GET /positions/{ticker}. A ticker may have several
// lots in either state.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])

	view, err := h.svc.Snapshot(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	resp := struct {
		Ticker string                   `json:"ticker"`
		Open   []ledger.OpenValuation   `json:"open"`
		Closed []ledger.ClosedValuation `json:"closed"`
	}{Ticker: ticker, Open: []ledger.OpenValuation{}, Closed: []ledger.ClosedValuation{}}
	for _, v := range view.Snapshot.Open {
		if v.Position.Ticker == ticker {
			resp.Open = append(resp.Open, v)
		}
	}
	for _, v := range view.Snapshot.Closed {
		if v.Position.Ticker == ticker {
			resp.Closed = append(resp.Closed, v)
		}
	}
	if len(resp.Open)+len(resp.Closed) == 0 {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "no position for " + ticker})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Analyze handles POST /analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Analyze(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// RefreshPrices handles POST /prices/refresh?dry_run=&no_targets=
func (h *Handler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts updater.Options
	var err error
	if opts.DryRun, err = boolParam(q.Get("dry_run")); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid dry_run"})
		return
	}
	if opts.NoTargets, err = boolParam(q.Get("no_targets")); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid no_targets"})
		return
	}

	res, err := h.svc.UpdatePrices(r.Context(), opts)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetHistory handles GET /history?limit=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	records, err := h.svc.History(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if records == nil {
		records = []recorder.SnapshotRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

func boolParam(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}

// respondError maps engine errors to 422 with the offending tickers and
// market data failures to 502.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrMalformedPosition),
		errors.Is(err, ledger.ErrMissingPrice),
		errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrInvalidPrice):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, updater.ErrNoPrices),
		errors.Is(err, collector.ErrNoData),
		errors.Is(err, collector.ErrUpstream):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] api: %v", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error(), Tickers: ledger.Tickers(err)})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
