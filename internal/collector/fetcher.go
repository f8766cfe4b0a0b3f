package collector

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoData is returned when the source answers but has nothing for the
// requested symbol.
var ErrNoData = errors.New("no data")

// ErrUpstream is returned when the source cannot be reached or fails to
// answer.
var ErrUpstream = errors.New("price source unavailable")

// Targets are analyst price targets in the instrument's trading currency.
// A nil bound means the source did not publish it.
type Targets struct {
	Low      *decimal.Decimal `json:"low,omitempty"`
	High     *decimal.Decimal `json:"high,omitempty"`
	Mean     *decimal.Decimal `json:"mean,omitempty"`
	Analysts int              `json:"analysts,omitempty"`
}

// Empty reports whether no bound was published.
func (t Targets) Empty() bool { return t.Low == nil && t.High == nil && t.Mean == nil }

// Fetcher defines the interface for fetching market data.
type Fetcher interface {
	// FetchCurrentPrice returns the latest close in the trading currency.
	FetchCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// FetchFXRate returns how many units of to one unit of from buys.
	FetchFXRate(ctx context.Context, from, to string) (decimal.Decimal, error)
	FetchTargets(ctx context.Context, symbol string) (Targets, error)
	Name() string
}
