// Package ledger holds the position lifecycle and the valuation engine:
// realized and unrealized P&L, scenario projections from analyst targets,
// open/closed classification and monthly period tagging.
//
// Every function in this package is pure. Inputs are never mutated, so a
// snapshot of positions and a price map may be valued from several
// goroutines at once.
package ledger

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a position: Open or Closed.
type State interface {
	status() string
}

// Open marks a held position. Its current price is not part of the
// position; it is supplied through Prices at valuation time.
type Open struct{}

// Closed marks a fully exited position and carries its sell price.
type Closed struct {
	SellPrice Amount
}

func (Open) status() string   { return "open" }
func (Closed) status() string { return "closed" }

// Prices maps a ticker to its current price in the reporting currency.
type Prices map[string]Amount

// Position is one tracked holding. All monetary fields are in the
// reporting currency; SourceCurrency is kept for traceability only.
type Position struct {
	Ticker         string
	Shares         decimal.Decimal
	BuyPrice       Amount
	TargetLow      Amount
	TargetHigh     Amount
	SourceCurrency string
	Notes          string
	State          State
}

// IsOpen reports whether the position is still held.
func (p Position) IsOpen() bool {
	_, ok := p.State.(Open)
	return ok
}

// Status returns "open", "closed" or "unknown" for a position without state.
func (p Position) Status() string {
	if p.State == nil {
		return "unknown"
	}
	return p.State.status()
}

// SellPrice returns the sell price of a closed position.
func (p Position) SellPrice() (Amount, bool) {
	c, ok := p.State.(Closed)
	return c.SellPrice, ok
}

// CostBasis is buy price times shares.
func (p Position) CostBasis() Amount {
	return p.BuyPrice.Mul(p.Shares)
}

// Close returns a closed copy of p sold at sellPrice. Closing is the only
// lifecycle transition; a closed position cannot be closed or reopened.
func (p Position) Close(sellPrice Amount) (Position, error) {
	if !p.IsOpen() {
		return Position{}, &InvalidStateError{Ticker: p.Ticker, Op: "close", State: p.Status()}
	}
	if sellPrice.IsNegative() {
		return Position{}, &InvalidPriceError{Ticker: p.Ticker, Price: sellPrice}
	}
	p.State = Closed{SellPrice: sellPrice}
	return p, nil
}

// Validate checks the position invariants.
func (p Position) Validate() error {
	return p.validate(-1)
}

func (p Position) validate(index int) error {
	bad := func(reason string) error {
		return &MalformedPositionError{Index: index, Ticker: p.Ticker, Reason: reason}
	}
	switch {
	case p.Ticker == "":
		return bad("ticker is empty")
	case !p.Shares.IsPositive():
		return bad("shares must be positive")
	case !p.BuyPrice.IsPositive():
		return bad("buy_price must be positive")
	case p.TargetLow.IsNegative() || p.TargetHigh.IsNegative():
		return bad("targets must be non-negative")
	case p.TargetLow.GreaterThan(p.TargetHigh):
		return bad("target_low is greater than target_high")
	}
	switch s := p.State.(type) {
	case Open:
	case Closed:
		if s.SellPrice.IsNegative() {
			return bad("sell_price must be non-negative")
		}
	default:
		return bad("lifecycle state is missing")
	}
	return nil
}

type positionJSON struct {
	Ticker         string          `json:"ticker"`
	Shares         decimal.Decimal `json:"shares"`
	BuyPrice       Amount          `json:"buy_price"`
	TargetLow      Amount          `json:"target_low"`
	TargetHigh     Amount          `json:"target_high"`
	SourceCurrency string          `json:"source_currency,omitempty"`
	IsOpen         bool            `json:"is_open"`
	SellPrice      *Amount         `json:"sell_price"`
	Notes          string          `json:"notes,omitempty"`
}

// MarshalJSON flattens the lifecycle state into is_open/sell_price, the
// record shape used by the data file.
func (p Position) MarshalJSON() ([]byte, error) {
	out := positionJSON{
		Ticker:         p.Ticker,
		Shares:         p.Shares,
		BuyPrice:       p.BuyPrice,
		TargetLow:      p.TargetLow,
		TargetHigh:     p.TargetHigh,
		SourceCurrency: p.SourceCurrency,
		IsOpen:         p.IsOpen(),
		Notes:          p.Notes,
	}
	if sell, ok := p.SellPrice(); ok {
		out.SellPrice = &sell
	}
	return json.Marshal(out)
}
