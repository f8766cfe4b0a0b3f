package portfolio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"PortfolioTracker/internal/ledger"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Settings holds the reporting currency and conversion rates.
type Settings struct {
	BaseCurrency string `yaml:"base_currency"`
	// USDToEUR is kept under its historical key; it is the USD rate when
	// the base currency is EUR.
	USDToEUR     float64            `yaml:"usd_to_eur"`
	FXRates      map[string]float64 `yaml:"fx_rates,omitempty"`
	AnalysisYear int                `yaml:"analysis_year"`
}

// Monitoring controls the history kept across runs.
type Monitoring struct {
	LastUpdate  string `yaml:"last_update"`
	SaveHistory bool   `yaml:"save_history"`
	HistoryFile string `yaml:"history_file"`
}

// Output controls where reports are written.
type Output struct {
	OutputDir string `yaml:"output_dir"`
	Verbose   bool   `yaml:"verbose"`
}

// Record is one position as written in the data file. Prices are in the
// reporting currency.
type Record struct {
	Ticker         string   `yaml:"ticker"`
	Shares         float64  `yaml:"shares"`
	BuyPrice       float64  `yaml:"buy_price"`
	CurrentPrice   *float64 `yaml:"current_price"`
	TargetLow      float64  `yaml:"target_low"`
	TargetHigh     float64  `yaml:"target_high"`
	SourceCurrency string   `yaml:"source_currency"`
	IsOpen         *bool    `yaml:"is_open"`
	SellPrice      *float64 `yaml:"sell_price"`
	Notes          string   `yaml:"notes"`
}

func (r Record) open() bool { return r.IsOpen == nil || *r.IsOpen }

func (r Record) ticker() string { return strings.ToUpper(strings.TrimSpace(r.Ticker)) }

// File is the decoded position data file, the source of truth of the
// portfolio.
type File struct {
	Settings   Settings   `yaml:"settings"`
	Monitoring Monitoring `yaml:"monitoring"`
	Output     Output     `yaml:"output"`
	Records    []Record   `yaml:"positions"`

	path string
}

func defaults() *File {
	return &File{
		Settings:   Settings{BaseCurrency: "EUR", USDToEUR: 0.85},
		Monitoring: Monitoring{SaveHistory: true, HistoryFile: "portfolio_history.csv"},
		Output:     Output{OutputDir: "results", Verbose: true},
	}
}

// Load reads and decodes the data file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read portfolio: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.path = path
	return f, nil
}

// Parse decodes a data file, applying defaults for absent settings.
func Parse(data []byte) (*File, error) {
	f := defaults()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse portfolio: %w", err)
	}
	f.Settings.BaseCurrency = strings.ToUpper(f.Settings.BaseCurrency)
	return f, nil
}

// Path is the file the data was loaded from, empty for parsed bytes.
func (f *File) Path() string { return f.path }

// Positions decodes every record into a ledger position. All malformed
// records are reported together; one bad record fails the batch.
func (f *File) Positions() ([]ledger.Position, error) {
	positions := make([]ledger.Position, 0, len(f.Records))
	var errs []error
	for i, r := range f.Records {
		p, err := f.decode(r)
		if err == nil {
			err = p.Validate()
		}
		if err != nil {
			var malformed *ledger.MalformedPositionError
			if errors.As(err, &malformed) {
				malformed.Index = i
			}
			errs = append(errs, err)
			continue
		}
		positions = append(positions, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return positions, nil
}

func (f *File) decode(r Record) (ledger.Position, error) {
	ticker := r.ticker()
	bad := func(reason string) error {
		return &ledger.MalformedPositionError{Index: -1, Ticker: ticker, Reason: reason}
	}
	p := ledger.Position{
		Ticker:         ticker,
		Shares:         decimal.NewFromFloat(r.Shares),
		BuyPrice:       ledger.AmountFromFloat(r.BuyPrice),
		TargetLow:      ledger.AmountFromFloat(r.TargetLow),
		TargetHigh:     ledger.AmountFromFloat(r.TargetHigh),
		SourceCurrency: strings.ToUpper(r.SourceCurrency),
		Notes:          r.Notes,
	}
	if p.SourceCurrency == "" {
		p.SourceCurrency = f.Settings.BaseCurrency
	}
	if r.CurrentPrice != nil && *r.CurrentPrice < 0 {
		return ledger.Position{}, bad("current_price must be non-negative")
	}
	if r.open() {
		if r.SellPrice != nil {
			return ledger.Position{}, bad("open position has a sell_price")
		}
		p.State = ledger.Open{}
		return p, nil
	}
	if r.SellPrice == nil {
		return ledger.Position{}, bad("closed position has no sell_price")
	}
	p.State = ledger.Closed{SellPrice: ledger.AmountFromFloat(*r.SellPrice)}
	return p, nil
}

// Prices builds the price map from the current_price of open records.
// Open records without a price are left out so valuation reports them.
func (f *File) Prices() (ledger.Prices, error) {
	prices := ledger.Prices{}
	for i, r := range f.Records {
		if !r.open() || r.CurrentPrice == nil {
			continue
		}
		ticker := r.ticker()
		price := ledger.AmountFromFloat(*r.CurrentPrice)
		if prev, ok := prices[ticker]; ok && !prev.Equal(price) {
			return nil, &ledger.MalformedPositionError{
				Index:  i,
				Ticker: ticker,
				Reason: fmt.Sprintf("current_price %s conflicts with %s on another open position", price, prev),
			}
		}
		prices[ticker] = price
	}
	return prices, nil
}

// Converter returns the normalization rates declared in settings.
func (f *File) Converter() ledger.Converter {
	rates := map[string]decimal.Decimal{}
	for cur, rate := range f.Settings.FXRates {
		rates[strings.ToUpper(cur)] = decimal.NewFromFloat(rate)
	}
	if _, ok := rates["USD"]; !ok && f.Settings.BaseCurrency == "EUR" && f.Settings.USDToEUR > 0 {
		rates["USD"] = decimal.NewFromFloat(f.Settings.USDToEUR)
	}
	return ledger.Converter{Base: f.Settings.BaseCurrency, Rates: rates}
}

// OpenHoldings returns each open ticker once, in file order, with the
// values of its first open record.
func (f *File) OpenHoldings() []Holding {
	var out []Holding
	seen := map[string]bool{}
	for _, r := range f.Records {
		t := r.ticker()
		if !r.open() || t == "" || seen[t] {
			continue
		}
		seen[t] = true
		h := Holding{
			Ticker:     t,
			Currency:   strings.ToUpper(r.SourceCurrency),
			TargetLow:  decimal.NewFromFloat(r.TargetLow),
			TargetHigh: decimal.NewFromFloat(r.TargetHigh),
		}
		if h.Currency == "" {
			h.Currency = f.Settings.BaseCurrency
		}
		if r.CurrentPrice != nil {
			p := decimal.NewFromFloat(*r.CurrentPrice)
			h.CurrentPrice = &p
		}
		out = append(out, h)
	}
	return out
}

// Holding is an open ticker as last written to the data file. Prices are
// in the reporting currency; Currency is the one it trades in.
type Holding struct {
	Ticker       string
	Currency     string
	CurrentPrice *decimal.Decimal
	TargetLow    decimal.Decimal
	TargetHigh   decimal.Decimal
}
