package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols absent from the maps fail with ErrNoData.
type MockFetcher struct {
	Prices  map[string]decimal.Decimal
	FX      map[string]decimal.Decimal // keyed "FROM/TO"
	Targets map[string]Targets

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchCurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.count("price:" + symbol)
	if p, ok := m.Prices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("mock price %s: %w", symbol, ErrNoData)
}

func (m *MockFetcher) FetchFXRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	m.count("fx:" + from + "/" + to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := m.FX[from+"/"+to]; ok {
		return r, nil
	}
	return decimal.Zero, fmt.Errorf("mock fx %s/%s: %w", from, to, ErrNoData)
}

func (m *MockFetcher) FetchTargets(_ context.Context, symbol string) (Targets, error) {
	m.count("targets:" + symbol)
	if t, ok := m.Targets[symbol]; ok {
		return t, nil
	}
	return Targets{}, fmt.Errorf("mock targets %s: %w", symbol, ErrNoData)
}

// Calls reports how often a key such as "price:AAPL" was requested.
func (m *MockFetcher) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *MockFetcher) count(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[key]++
}
