package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Scenario is the forward P&L range of an open position between its
// analyst low and high targets.
type Scenario struct {
	Worst    Amount          `json:"worst_pnl"`
	Best     Amount          `json:"best_pnl"`
	WorstPct decimal.Decimal `json:"worst_pnl_pct"`
	BestPct  decimal.Decimal `json:"best_pnl_pct"`
}

// UnrealizedPnL is the mark-to-market P&L of an open position at price.
// A zero price is valid and yields minus the cost basis.
func UnrealizedPnL(p Position, price Amount) (Amount, error) {
	if !p.IsOpen() {
		return Amount{}, &InvalidStateError{Ticker: p.Ticker, Op: "unrealized P&L", State: p.Status()}
	}
	if price.IsNegative() {
		return Amount{}, &InvalidPriceError{Ticker: p.Ticker, Price: price}
	}
	return unrealized(p, price), nil
}

// RealizedPnL is the P&L locked in by a closed position.
func RealizedPnL(p Position) (Amount, error) {
	sell, ok := p.SellPrice()
	if !ok {
		return Amount{}, &InvalidStateError{Ticker: p.Ticker, Op: "realized P&L", State: p.Status()}
	}
	return sell.Sub(p.BuyPrice).Mul(p.Shares), nil
}

// ComputeScenario projects worst and best P&L from the position targets.
// Closed positions have no forward scenario.
func ComputeScenario(p Position) (Scenario, error) {
	if !p.IsOpen() {
		return Scenario{}, &InvalidStateError{Ticker: p.Ticker, Op: "scenario", State: p.Status()}
	}
	return scenario(p), nil
}

// Classify partitions positions into open and closed, keeping input order.
func Classify(positions []Position) (open, closed []Position) {
	open = make([]Position, 0, len(positions))
	closed = make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOpen() {
			open = append(open, p)
		} else {
			closed = append(closed, p)
		}
	}
	return open, closed
}

// Validate checks every position and returns all malformed ones joined,
// so one bad record fails the whole batch.
func Validate(positions []Position) error {
	var errs []error
	for i, p := range positions {
		if err := p.validate(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkInputs is the boundary check run before any arithmetic.
func checkInputs(positions []Position, prices Prices) error {
	if err := Validate(positions); err != nil {
		return err
	}
	var missing []string
	var errs []error
	seen := map[string]bool{}
	for _, p := range positions {
		if !p.IsOpen() || seen[p.Ticker] {
			continue
		}
		seen[p.Ticker] = true
		price, ok := prices[p.Ticker]
		if !ok {
			missing = append(missing, p.Ticker)
			continue
		}
		if price.IsNegative() {
			errs = append(errs, &InvalidPriceError{Ticker: p.Ticker, Price: price})
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		errs = append([]error{&MissingPriceError{Tickers: missing}}, errs...)
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// Totals aggregates a set of positions. Value sums cover open positions.
type Totals struct {
	Unrealized      Amount `json:"unrealized_pnl"`
	Realized        Amount `json:"realized_pnl"`
	Total           Amount `json:"total_pnl"`
	BuyValue        Amount `json:"buy_value"`
	CurrentValue    Amount `json:"current_value"`
	BestValue       Amount `json:"best_value"`
	WorstValue      Amount `json:"worst_value"`
	OpenPositions   int    `json:"open_positions"`
	ClosedPositions int    `json:"closed_positions"`
}

// UnrealizedPct is the unrealized P&L relative to the open buy value.
func (t Totals) UnrealizedPct() decimal.Decimal { return percentOf(t.Unrealized, t.BuyValue) }

// BestPct is the best-case P&L relative to the open buy value.
func (t Totals) BestPct() decimal.Decimal { return percentOf(t.BestValue.Sub(t.BuyValue), t.BuyValue) }

// WorstPct is the worst-case P&L relative to the open buy value.
func (t Totals) WorstPct() decimal.Decimal {
	return percentOf(t.WorstValue.Sub(t.BuyValue), t.BuyValue)
}

// Aggregate sums unrealized P&L over open positions at prices and realized
// P&L over closed ones. Every open ticker needs a price; otherwise it fails
// with a MissingPriceError naming all of them and returns no partial sum.
func Aggregate(positions []Position, prices Prices) (Totals, error) {
	snap, err := Valuate(positions, prices, time.Time{})
	if err != nil {
		return Totals{}, err
	}
	return snap.Totals, nil
}

// Period is the (year, month) bucket a valuation run is filed under.
type Period struct {
	Year  int
	Month time.Month
}

// AssignPeriod maps a run timestamp to its period, in the timestamp's own
// location.
func AssignPeriod(at time.Time) Period {
	return Period{Year: at.Year(), Month: at.Month()}
}

// ParsePeriod parses the "2006-01" form returned by Period.String.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, err
	}
	return AssignPeriod(t), nil
}

func (p Period) String() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (p Period) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

func (p *Period) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("period must be a string: %w", err)
	}
	v, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// OpenValuation is an open position enriched with its valuation.
type OpenValuation struct {
	Position      Position        `json:"position"`
	CurrentPrice  Amount          `json:"current_price"`
	BuyValue      Amount          `json:"buy_value"`
	CurrentValue  Amount          `json:"current_value"`
	BestValue     Amount          `json:"best_value"`
	WorstValue    Amount          `json:"worst_value"`
	Unrealized    Amount          `json:"unrealized_pnl"`
	UnrealizedPct decimal.Decimal `json:"unrealized_pnl_pct"`
	// TargetRange is RangePosition of the current price in the targets.
	TargetRange decimal.Decimal `json:"target_range_position"`
	Scenario    Scenario        `json:"scenario"`
}

// ClosedValuation is a closed position enriched with its realized result.
type ClosedValuation struct {
	Position    Position        `json:"position"`
	SellPrice   Amount          `json:"sell_price"`
	BuyValue    Amount          `json:"buy_value"`
	SellValue   Amount          `json:"sell_value"`
	Realized    Amount          `json:"realized_pnl"`
	RealizedPct decimal.Decimal `json:"realized_pnl_pct"`
}

// Snapshot is the derived, read-only view of a portfolio at one run.
type Snapshot struct {
	Period Period            `json:"period"`
	Open   []OpenValuation   `json:"open"`
	Closed []ClosedValuation `json:"closed"`
	Totals Totals            `json:"totals"`
}

// Valuate validates the inputs and computes the full snapshot. It fails
// atomically: either every position is valued or an error is returned.
func Valuate(positions []Position, prices Prices, at time.Time) (*Snapshot, error) {
	if err := checkInputs(positions, prices); err != nil {
		return nil, err
	}
	open, closed := Classify(positions)
	snap := &Snapshot{
		Period: AssignPeriod(at),
		Open:   make([]OpenValuation, 0, len(open)),
		Closed: make([]ClosedValuation, 0, len(closed)),
	}
	t := &snap.Totals
	for _, p := range open {
		price := prices[p.Ticker]
		v := OpenValuation{
			Position:     p,
			CurrentPrice: price,
			BuyValue:     p.CostBasis(),
			CurrentValue: price.Mul(p.Shares),
			BestValue:    p.TargetHigh.Mul(p.Shares),
			WorstValue:   p.TargetLow.Mul(p.Shares),
			Unrealized:   unrealized(p, price),
			Scenario:     scenario(p),
		}
		v.UnrealizedPct = percentOf(v.Unrealized, v.BuyValue)
		v.TargetRange = RangePosition(price, p.TargetLow, p.TargetHigh)
		snap.Open = append(snap.Open, v)

		t.Unrealized = t.Unrealized.Add(v.Unrealized)
		t.BuyValue = t.BuyValue.Add(v.BuyValue)
		t.CurrentValue = t.CurrentValue.Add(v.CurrentValue)
		t.BestValue = t.BestValue.Add(v.BestValue)
		t.WorstValue = t.WorstValue.Add(v.WorstValue)
	}
	for _, p := range closed {
		sell, _ := p.SellPrice()
		v := ClosedValuation{
			Position:  p,
			SellPrice: sell,
			BuyValue:  p.CostBasis(),
			SellValue: sell.Mul(p.Shares),
		}
		v.Realized = v.SellValue.Sub(v.BuyValue)
		v.RealizedPct = percentOf(v.Realized, v.BuyValue)
		snap.Closed = append(snap.Closed, v)

		t.Realized = t.Realized.Add(v.Realized)
	}
	t.Total = t.Unrealized.Add(t.Realized)
	t.OpenPositions = len(snap.Open)
	t.ClosedPositions = len(snap.Closed)
	return snap, nil
}

func unrealized(p Position, price Amount) Amount {
	return price.Sub(p.BuyPrice).Mul(p.Shares)
}

// RangePosition returns where price sits between low and high, from 0 at
// low to 1 at high, clamped. A collapsed range is 0.5.
func RangePosition(price, low, high Amount) decimal.Decimal {
	width := high.Sub(low)
	if !width.IsPositive() {
		return decimal.NewFromFloat(0.5)
	}
	pos := price.Sub(low).d.Div(width.d)
	switch {
	case pos.IsNegative():
		return decimal.Zero
	case pos.GreaterThan(decimal.NewFromInt(1)):
		return decimal.NewFromInt(1)
	}
	return pos.Round(4)
}

func scenario(p Position) Scenario {
	s := Scenario{
		Worst: p.TargetLow.Sub(p.BuyPrice).Mul(p.Shares),
		Best:  p.TargetHigh.Sub(p.BuyPrice).Mul(p.Shares),
	}
	basis := p.CostBasis()
	s.WorstPct = percentOf(s.Worst, basis)
	s.BestPct = percentOf(s.Best, basis)
	return s
}
