package ledger

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPos(ticker string, shares, buy, low, high float64) Position {
	return Position{
		Ticker:     ticker,
		Shares:     decimal.NewFromFloat(shares),
		BuyPrice:   AmountFromFloat(buy),
		TargetLow:  AmountFromFloat(low),
		TargetHigh: AmountFromFloat(high),
		State:      Open{},
	}
}

func closedPos(ticker string, shares, buy, sell float64) Position {
	p := openPos(ticker, shares, buy, 0, 0)
	p.State = Closed{SellPrice: AmountFromFloat(sell)}
	return p
}

func TestUnrealizedPnL(t *testing.T) {
	p := openPos("AAPL", 100, 150, 130, 200)

	t.Run("gain at current price", func(t *testing.T) {
		pnl, err := UnrealizedPnL(p, AmountFromFloat(175))
		require.NoError(t, err)
		assert.Equal(t, "2500", pnl.String())
	})

	t.Run("zero price is minus the cost basis", func(t *testing.T) {
		pnl, err := UnrealizedPnL(p, Amount{})
		require.NoError(t, err)
		assert.True(t, pnl.Equal(p.CostBasis().Neg()), "got %s", pnl)
	})

	t.Run("negative price is rejected", func(t *testing.T) {
		_, err := UnrealizedPnL(p, AmountFromFloat(-1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("closed position is an invalid state", func(t *testing.T) {
		_, err := UnrealizedPnL(closedPos("AAPL", 100, 150, 180), AmountFromFloat(175))
		var stateErr *InvalidStateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, "AAPL", stateErr.Ticker)
		assert.Equal(t, "closed", stateErr.State)
	})
}

func TestRealizedPnL(t *testing.T) {
	pnl, err := RealizedPnL(closedPos("AAPL", 100, 150, 180))
	require.NoError(t, err)
	assert.Equal(t, "3000", pnl.String())

	_, err = RealizedPnL(openPos("MSFT", 10, 300, 250, 400))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRealizedPnL_IgnoresPrices(t *testing.T) {
	positions := []Position{closedPos("AAPL", 100, 150, 180)}

	a, err := Aggregate(positions, Prices{})
	require.NoError(t, err)
	b, err := Aggregate(positions, Prices{"AAPL": AmountFromFloat(1)})
	require.NoError(t, err)

	assert.Equal(t, "3000", a.Realized.String())
	assert.True(t, a.Realized.Equal(b.Realized))
}

func TestComputeScenario(t *testing.T) {
	tests := []struct {
		name      string
		pos       Position
		wantWorst string
		wantBest  string
	}{
		{"analyst range", openPos("AAPL", 100, 150, 130, 200), "-2000", "5000"},
		{"degenerate single point", openPos("SAP", 10, 100, 120, 120), "200", "200"},
		{"zero targets", openPos("XYZ", 5, 10, 0, 0), "-50", "-50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := ComputeScenario(tt.pos)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWorst, sc.Worst.String())
			assert.Equal(t, tt.wantBest, sc.Best.String())
		})
	}

	_, err := ComputeScenario(closedPos("AAPL", 100, 150, 180))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestComputeScenario_EqualTargets(t *testing.T) {
	for _, target := range []float64{0, 50, 150, 175.25, 1000} {
		sc, err := ComputeScenario(openPos("T", 7, 150, target, target))
		require.NoError(t, err)
		assert.True(t, sc.Worst.Equal(sc.Best), "target %v: worst %s best %s", target, sc.Worst, sc.Best)
	}
}

func TestClassify_IsAStablePartition(t *testing.T) {
	positions := []Position{
		openPos("A", 1, 1, 1, 1),
		closedPos("B", 1, 1, 2),
		openPos("C", 1, 1, 1, 1),
		closedPos("D", 1, 1, 2),
		openPos("E", 1, 1, 1, 1),
	}
	open, closed := Classify(positions)

	assert.Len(t, positions, len(open)+len(closed))
	assert.Equal(t, []string{"A", "C", "E"}, tickers(open))
	assert.Equal(t, []string{"B", "D"}, tickers(closed))

	open, closed = Classify(nil)
	assert.Empty(t, open)
	assert.Empty(t, closed)
}

func TestAggregate(t *testing.T) {
	positions := []Position{
		openPos("AAPL", 100, 150, 130, 200),
		closedPos("NVDA", 10, 400, 500),
		openPos("MSFT", 10, 300, 250, 400),
	}
	prices := Prices{"AAPL": AmountFromFloat(175), "MSFT": AmountFromFloat(280)}

	totals, err := Aggregate(positions, prices)
	require.NoError(t, err)
	assert.Equal(t, "2300", totals.Unrealized.String())
	assert.Equal(t, "1000", totals.Realized.String())
	assert.Equal(t, "3300", totals.Total.String())
	assert.Equal(t, "18000", totals.BuyValue.String())
	assert.Equal(t, "20300", totals.CurrentValue.String())
	assert.Equal(t, 2, totals.OpenPositions)
	assert.Equal(t, 1, totals.ClosedPositions)
}

func TestAggregate_MissingPriceNamesEveryTicker(t *testing.T) {
	positions := []Position{
		openPos("MSFT", 10, 300, 250, 400),
		openPos("AAPL", 100, 150, 130, 200),
		openPos("SAP", 5, 100, 90, 150),
		closedPos("NVDA", 10, 400, 500),
	}

	totals, err := Aggregate(positions, Prices{"SAP": AmountFromFloat(110)})
	require.Error(t, err)
	assert.Equal(t, Totals{}, totals)

	var missing *MissingPriceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"AAPL", "MSFT"}, missing.Tickers)
	assert.ErrorIs(t, err, ErrMissingPrice)
	assert.Contains(t, err.Error(), "AAPL")
}

func TestAggregate_MalformedFailsBeforeArithmetic(t *testing.T) {
	bad := openPos("BAD", 0, 150, 130, 200)
	inverted := openPos("INV", 1, 150, 200, 130)
	positions := []Position{openPos("AAPL", 1, 1, 1, 1), bad, inverted}

	_, err := Aggregate(positions, Prices{"AAPL": AmountFromFloat(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedPosition)
	assert.Equal(t, []string{"BAD", "INV"}, Tickers(err))
}

func TestAggregate_IsIdempotent(t *testing.T) {
	positions := []Position{
		openPos("AAPL", 3, 150.1, 130, 200),
		openPos("MSFT", 7, 300.33, 250, 400),
		closedPos("NVDA", 11, 400.07, 500.01),
	}
	prices := Prices{"AAPL": AmountFromFloat(175.17), "MSFT": AmountFromFloat(280.9)}

	first, err := Aggregate(positions, prices)
	require.NoError(t, err)
	second, err := Aggregate(positions, prices)
	require.NoError(t, err)
	assert.Equal(t, first.Total.String(), second.Total.String())
	assert.Equal(t, first.Unrealized.String(), second.Unrealized.String())
	assert.Equal(t, first.Realized.String(), second.Realized.String())
}

func TestValuate(t *testing.T) {
	at := time.Date(2026, time.March, 14, 18, 0, 0, 0, time.UTC)
	positions := []Position{
		openPos("AAPL", 100, 150, 130, 200),
		closedPos("NVDA", 100, 150, 180),
	}
	snap, err := Valuate(positions, Prices{"AAPL": AmountFromFloat(175)}, at)
	require.NoError(t, err)

	assert.Equal(t, Period{Year: 2026, Month: time.March}, snap.Period)
	require.Len(t, snap.Open, 1)
	require.Len(t, snap.Closed, 1)

	o := snap.Open[0]
	assert.Equal(t, "15000", o.BuyValue.String())
	assert.Equal(t, "17500", o.CurrentValue.String())
	assert.Equal(t, "20000", o.BestValue.String())
	assert.Equal(t, "13000", o.WorstValue.String())
	assert.Equal(t, "2500", o.Unrealized.String())
	assert.True(t, decimal.RequireFromString("16.6667").Equal(o.UnrealizedPct), "got %s", o.UnrealizedPct)
	assert.Equal(t, "0.6429", o.TargetRange.String())

	c := snap.Closed[0]
	assert.Equal(t, "3000", c.Realized.String())
	assert.True(t, decimal.NewFromInt(20).Equal(c.RealizedPct))

	assert.Equal(t, "5500", snap.Totals.Total.String())
}

func TestValuate_DoesNotMutateInputs(t *testing.T) {
	positions := []Position{openPos("AAPL", 100, 150, 130, 200), closedPos("NVDA", 1, 1, 2)}
	prices := Prices{"AAPL": AmountFromFloat(175)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Valuate(positions, prices, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.True(t, positions[0].IsOpen())
	assert.Len(t, prices, 1)
}

func TestValuate_NegativePrice(t *testing.T) {
	_, err := Valuate([]Position{openPos("AAPL", 1, 1, 1, 1)}, Prices{"AAPL": AmountFromFloat(-3)}, time.Now())
	var priceErr *InvalidPriceError
	require.True(t, errors.As(err, &priceErr))
	assert.Equal(t, "AAPL", priceErr.Ticker)
}

func TestValuate_ReportsAllPriceProblems(t *testing.T) {
	positions := []Position{
		openPos("AAPL", 1, 1, 1, 1),
		openPos("MSFT", 1, 1, 1, 1),
		openPos("NVDA", 1, 1, 1, 1),
		openPos("SAP", 1, 1, 1, 1),
	}
	prices := Prices{"AAPL": AmountFromFloat(-3), "SAP": AmountFromFloat(-1)}
	_, err := Valuate(positions, prices, time.Now())
	require.Error(t, err)

	var missing *MissingPriceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"MSFT", "NVDA"}, missing.Tickers)

	var priceErr *InvalidPriceError
	require.ErrorAs(t, err, &priceErr)
	assert.Equal(t, "AAPL", priceErr.Ticker)

	assert.ErrorIs(t, err, ErrMissingPrice)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.ElementsMatch(t, []string{"MSFT", "NVDA", "AAPL", "SAP"}, Tickers(err))
}

func TestAssignPeriod(t *testing.T) {
	cet := time.FixedZone("CET", 3600)

	// 23:30 UTC on Jan 31 is already February in CET.
	utc := time.Date(2026, time.January, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, Period{2026, time.January}, AssignPeriod(utc))
	assert.Equal(t, Period{2026, time.February}, AssignPeriod(utc.In(cet)))
	assert.Equal(t, "2026-01", AssignPeriod(utc).String())

	p, err := ParsePeriod("2025-12")
	require.NoError(t, err)
	assert.Equal(t, Period{2025, time.December}, p)
}

func tickers(ps []Position) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Ticker)
	}
	return out
}

func TestPeriod_JSON(t *testing.T) {
	b, err := json.Marshal(Period{2026, time.March})
	require.NoError(t, err)
	assert.Equal(t, `"2026-03"`, string(b))

	var p Period
	require.NoError(t, json.Unmarshal(b, &p))
	assert.Equal(t, Period{2026, time.March}, p)
	assert.Error(t, json.Unmarshal([]byte(`202603`), &p))
}

func TestRangePosition(t *testing.T) {
	low, high := AmountFromFloat(130), AmountFromFloat(200)
	tests := []struct {
		price float64
		want  string
	}{
		{130, "0"},
		{165, "0.5"},
		{200, "1"},
		{100, "0"},
		{250, "1"},
	}
	for _, tt := range tests {
		got := RangePosition(AmountFromFloat(tt.price), low, high)
		assert.Equal(t, tt.want, got.String(), "price %v", tt.price)
	}
	assert.Equal(t, "0.5", RangePosition(AmountFromFloat(10), Amount{}, Amount{}).String())
}
