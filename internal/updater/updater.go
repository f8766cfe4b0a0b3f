// Package updater refreshes the market data stored in the position file:
// FX rates, current prices and analyst targets of open positions.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"PortfolioTracker/internal/collector"
	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/portfolio"

	"github.com/shopspring/decimal"
)

var (
	// fxThreshold is the smallest FX move worth writing.
	fxThreshold = decimal.RequireFromString("0.001")
	// priceThreshold applies to prices and targets, in the reporting currency.
	priceThreshold = decimal.RequireFromString("0.01")
)

// priceDigits is the precision prices are stored with.
const priceDigits = 5

// ErrNoPrices is returned when not a single open position could be priced.
var ErrNoPrices = errors.New("no prices fetched")

// Options control one update run.
type Options struct {
	DryRun    bool
	NoTargets bool
	Now       func() time.Time
}

// FXChange is a conversion rate that moved past the threshold.
type FXChange struct {
	Currency string          `json:"currency"`
	Old      decimal.Decimal `json:"old"`
	New      decimal.Decimal `json:"new"`
}

// PriceChange is a current price that moved past the threshold. Old is nil
// when the position had no price yet.
type PriceChange struct {
	Ticker   string           `json:"ticker"`
	Currency string           `json:"currency"`
	Native   decimal.Decimal  `json:"native"`
	Old      *decimal.Decimal `json:"old"`
	New      decimal.Decimal  `json:"new"`
}

// Pct is the move relative to the old price, zero without one.
func (c PriceChange) Pct() decimal.Decimal {
	if c.Old == nil || c.Old.IsZero() {
		return decimal.Zero
	}
	return c.New.Sub(*c.Old).Div(*c.Old).Mul(decimal.NewFromInt(100)).Round(1)
}

// TargetChange is an analyst bound that moved past the threshold.
type TargetChange struct {
	Ticker string          `json:"ticker"`
	Field  string          `json:"field"`
	Old    decimal.Decimal `json:"old"`
	New    decimal.Decimal `json:"new"`
}

// Result describes what a run changed, or would have changed on a dry run.
type Result struct {
	Base     string         `json:"base_currency"`
	Date     string         `json:"date"`
	FX       []FXChange     `json:"fx"`
	Prices   []PriceChange  `json:"prices"`
	Targets  []TargetChange `json:"targets"`
	Warnings []string       `json:"warnings"`
	Written  bool           `json:"written"`
}

// Changed reports whether any rate, price or target moved.
func (r *Result) Changed() bool {
	return len(r.FX) > 0 || len(r.Prices) > 0 || len(r.Targets) > 0
}

// Lines renders the changes one per line for logs and messages.
func (r *Result) Lines() []string {
	var lines []string
	for _, c := range r.FX {
		lines = append(lines, fmt.Sprintf("%s/%s: %s -> %s", c.Currency, r.Base, c.Old.StringFixed(4), c.New.StringFixed(4)))
	}
	for _, c := range r.Prices {
		newPrice := ledger.Format(ledger.NewAmount(c.New), r.Base)
		if c.Old == nil {
			lines = append(lines, fmt.Sprintf("%s: %s (new)", c.Ticker, newPrice))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s -> %s (%s%%)", c.Ticker,
			ledger.Format(ledger.NewAmount(*c.Old), r.Base), newPrice, signed(c.Pct())))
	}
	for _, c := range r.Targets {
		lines = append(lines, fmt.Sprintf("%s %s: %s -> %s", c.Ticker, c.Field,
			ledger.Format(ledger.NewAmount(c.Old), r.Base), ledger.Format(ledger.NewAmount(c.New), r.Base)))
	}
	return lines
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(1)
	}
	return "+" + d.StringFixed(1)
}

// Updater refreshes a position file from a Fetcher.
type Updater struct {
	Fetcher collector.Fetcher
}

// New creates an Updater.
func New(f collector.Fetcher) *Updater {
	return &Updater{Fetcher: f}
}

// Run refreshes the file at path. Closed positions are never touched. A
// rate that cannot be fetched aborts the run since every converted price
// would be wrong; a price or target that cannot be fetched is a warning.
func (u *Updater) Run(ctx context.Context, path string, opts Options) (*Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	file, err := portfolio.Load(path)
	if err != nil {
		return nil, err
	}
	doc, err := portfolio.OpenDocument(path)
	if err != nil {
		return nil, err
	}

	conv := file.Converter()
	res := &Result{Base: conv.Base, Date: now().Format("2006-01-02")}
	holdings := file.OpenHoldings()
	if len(holdings) == 0 {
		res.Warnings = append(res.Warnings, "no open positions")
		return res, nil
	}

	if err := u.refreshRates(ctx, doc, &conv, holdings, res); err != nil {
		return nil, err
	}

	priced := 0
	for _, h := range holdings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok := u.refreshPrice(ctx, doc, conv, h, res)
		if ok {
			priced++
		}
		if !opts.NoTargets {
			u.refreshTargets(ctx, doc, conv, h, res)
		}
	}
	if priced == 0 {
		return nil, fmt.Errorf("update prices: %w (%s)", ErrNoPrices, strings.Join(res.Warnings, "; "))
	}

	doc.SetLastUpdate(res.Date)
	if opts.DryRun {
		log.Printf("[INFO] dry run: %d price, %d target, %d fx change(s) not written",
			len(res.Prices), len(res.Targets), len(res.FX))
		return res, nil
	}
	if err := doc.Save(); err != nil {
		return nil, fmt.Errorf("save portfolio: %w", err)
	}
	res.Written = true
	log.Printf("[INFO] portfolio updated: %d price, %d target, %d fx change(s)",
		len(res.Prices), len(res.Targets), len(res.FX))
	return res, nil
}

func (u *Updater) refreshRates(ctx context.Context, doc *portfolio.Document, conv *ledger.Converter, holdings []portfolio.Holding, res *Result) error {
	rates := make(map[string]decimal.Decimal, len(conv.Rates))
	for k, v := range conv.Rates {
		rates[k] = v
	}
	done := map[string]bool{}
	for _, h := range holdings {
		cur := h.Currency
		if cur == conv.Base || done[cur] {
			continue
		}
		done[cur] = true
		rate, err := u.Fetcher.FetchFXRate(ctx, cur, conv.Base)
		if err != nil {
			return fmt.Errorf("fetch fx rate %s/%s: %w", cur, conv.Base, err)
		}
		rate = rate.Round(4)
		old, known := rates[cur]
		if !known || rate.Sub(old).Abs().GreaterThan(fxThreshold) {
			res.FX = append(res.FX, FXChange{Currency: cur, Old: old, New: rate})
			doc.SetFXRate(conv.Base, cur, rate)
			rates[cur] = rate
		}
	}
	conv.Rates = rates
	return nil
}

func (u *Updater) refreshPrice(ctx context.Context, doc *portfolio.Document, conv ledger.Converter, h portfolio.Holding, res *Result) bool {
	native, err := u.Fetcher.FetchCurrentPrice(ctx, h.Ticker)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: price unavailable: %v", h.Ticker, err))
		log.Printf("[WARN] fetch price %s: %v", h.Ticker, err)
		return false
	}
	price, err := u.convert(conv, native, h.Currency)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", h.Ticker, err))
		return false
	}
	if h.CurrentPrice == nil || price.Sub(*h.CurrentPrice).Abs().GreaterThan(priceThreshold) {
		res.Prices = append(res.Prices, PriceChange{
			Ticker:   h.Ticker,
			Currency: h.Currency,
			Native:   native,
			Old:      h.CurrentPrice,
			New:      price,
		})
		doc.SetCurrentPrice(h.Ticker, price)
	}
	return true
}

func (u *Updater) refreshTargets(ctx context.Context, doc *portfolio.Document, conv ledger.Converter, h portfolio.Holding, res *Result) {
	t, err := u.Fetcher.FetchTargets(ctx, h.Ticker)
	if err != nil {
		if errors.Is(err, collector.ErrNoData) {
			log.Printf("[INFO] %s: no analyst targets", h.Ticker)
		} else {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: targets unavailable: %v", h.Ticker, err))
			log.Printf("[WARN] fetch targets %s: %v", h.Ticker, err)
		}
		return
	}

	low, high := h.TargetLow, h.TargetHigh
	var newLow, newHigh *decimal.Decimal
	if t.Low != nil {
		if v, err := u.convert(conv, *t.Low, h.Currency); err == nil && v.Sub(low).Abs().GreaterThan(priceThreshold) {
			newLow, low = &v, v
		}
	}
	if t.High != nil {
		if v, err := u.convert(conv, *t.High, h.Currency); err == nil && v.Sub(high).Abs().GreaterThan(priceThreshold) {
			newHigh, high = &v, v
		}
	}
	if newLow == nil && newHigh == nil {
		return
	}
	if low.GreaterThan(high) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: targets skipped, low %s above high %s", h.Ticker, low, high))
		return
	}
	if newLow != nil {
		res.Targets = append(res.Targets, TargetChange{Ticker: h.Ticker, Field: "target_low", Old: h.TargetLow, New: *newLow})
	}
	if newHigh != nil {
		res.Targets = append(res.Targets, TargetChange{Ticker: h.Ticker, Field: "target_high", Old: h.TargetHigh, New: *newHigh})
	}
	doc.SetTargets(h.Ticker, newLow, newHigh)
}

func (u *Updater) convert(conv ledger.Converter, native decimal.Decimal, currency string) (decimal.Decimal, error) {
	a, err := conv.Convert(native, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Decimal().Round(priceDigits), nil
}
