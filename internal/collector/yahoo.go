package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements Fetcher using Yahoo Finance public API.
type YahooFetcher struct {
	Client    *http.Client
	BaseURL   string
	SymbolMap map[string]string // maps portfolio ticker to Yahoo ticker
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(proxyURL string, symbolMap map[string]string) *YahooFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	m := make(map[string]string, len(symbolMap))
	for k, v := range symbolMap {
		m[strings.ToUpper(k)] = v
	}
	return &YahooFetcher{
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		BaseURL:   yahooBaseURL,
		SymbolMap: m,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[strings.ToUpper(symbol)]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (f *YahooFetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w: %w", ErrUpstream, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("yahoo: status %d, body: %s: %w", resp.StatusCode, string(body), ErrNoData)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("yahoo: status %d, body: %s: %w", resp.StatusCode, string(body), ErrUpstream)
	}
	return body, nil
}

// lastClose returns the most recent non-null close of a Yahoo symbol.
func (f *YahooFetcher) lastClose(ctx context.Context, yahooSymbol string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", f.BaseURL, url.PathEscape(yahooSymbol))
	body, err := f.get(ctx, u)
	if err != nil {
		return decimal.Zero, err
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return decimal.Zero, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return decimal.Zero, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return decimal.Zero, fmt.Errorf("yahoo %s: %w", yahooSymbol, ErrNoData)
	}

	closes := chart.Chart.Result[0].Indicators.Quote[0].Close
	for i := len(closes) - 1; i >= 0; i-- {
		if c := toFloat(closes[i]); c > 0 {
			return decimal.NewFromFloat(c), nil
		}
	}
	return decimal.Zero, fmt.Errorf("yahoo %s: %w", yahooSymbol, ErrNoData)
}

func (f *YahooFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.lastClose(ctx, f.yahooSymbol(symbol))
}

// FetchFXRate reads the TOFROM=X pair and inverts it, so a USD to EUR rate
// comes from EURUSD=X.
func (f *YahooFetcher) FetchFXRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	quote, err := f.lastClose(ctx, to+from+"=X")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch fx %s/%s: %w", from, to, err)
	}
	return decimal.NewFromInt(1).DivRound(quote, 8), nil
}

// FetchTargets reads analyst targets from the quoteSummary financialData
// module.
func (f *YahooFetcher) FetchTargets(ctx context.Context, symbol string) (Targets, error) {
	ys := f.yahooSymbol(symbol)
	u := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=financialData", f.BaseURL, url.PathEscape(ys))
	body, err := f.get(ctx, u)
	if err != nil {
		return Targets{}, err
	}

	var jobj any
	if err := json.Unmarshal(body, &jobj); err != nil {
		return Targets{}, fmt.Errorf("yahoo decode: %w", err)
	}
	if desc, ok := jsonString(jobj, "$.quoteSummary.error.description"); ok {
		return Targets{}, fmt.Errorf("yahoo api error: %s", desc)
	}

	const data = "$.quoteSummary.result[0].financialData."
	var t Targets
	t.Low = jsonDecimal(jobj, data+"targetLowPrice.raw")
	t.High = jsonDecimal(jobj, data+"targetHighPrice.raw")
	t.Mean = jsonDecimal(jobj, data+"targetMeanPrice.raw")
	if n := jsonDecimal(jobj, data+"numberOfAnalystOpinions.raw"); n != nil {
		t.Analysts = int(n.IntPart())
	}
	if t.Empty() {
		return Targets{}, fmt.Errorf("yahoo targets %s: %w", ys, ErrNoData)
	}
	return t, nil
}

// jsonDecimal returns the positive number at path, or nil when it is
// absent, null or zero.
func jsonDecimal(jobj any, path string) *decimal.Decimal {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return nil
	}
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	val, ok := jval.(float64)
	if !ok || val <= 0 {
		return nil
	}
	d := decimal.NewFromFloat(val)
	return &d
}

func jsonString(jobj any, path string) (string, bool) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return "", false
	}
	s, ok := jval.(string)
	return s, ok && s != ""
}
