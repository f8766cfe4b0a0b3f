package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/updater"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	require.NoError(t, tn.Send(context.Background(), "<b>hi</b>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>hi</b>", got["text"])
}

func TestTelegramNotifier_SendSplitsLongText(t *testing.T) {
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		texts = append(texts, body["text"])
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	long := "<pre>" + strings.Repeat("AAPL  100  150.00  175.00\n", 300) + "</pre>"
	require.NoError(t, tn.Send(context.Background(), long))

	require.Greater(t, len(texts), 1)
	for _, text := range texts {
		assert.LessOrEqual(t, len(text), maxMessageLen)
		assert.True(t, strings.HasPrefix(text, "<pre>"))
		assert.True(t, strings.HasSuffix(text, "</pre>"))
	}
}

func TestTelegramNotifier_SendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	err := tn.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

type flaky struct {
	fails int32
	calls int32
}

func (f *flaky) Send(_ context.Context, _ string) error {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.fails {
		return errors.New("timeout")
	}
	return nil
}

func TestSendWithRetry(t *testing.T) {
	f := &flaky{fails: 2}
	require.NoError(t, sendWithRetry(context.Background(), f, "x", 3, time.Millisecond))
	assert.Equal(t, int32(3), f.calls)

	f = &flaky{fails: 10}
	err := sendWithRetry(context.Background(), f, "x", 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 retries exhausted")
	assert.Equal(t, int32(3), f.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sendWithRetry(ctx, &flaky{fails: 10}, "x", 3, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartPolling(t *testing.T) {
	replies := make(chan string, 4)
	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if atomic.AddInt32(&served, 1) == 1 {
				w.Write([]byte(`{"ok":true,"result":[
					{"update_id":7,"message":{"text":"/summary","chat":{"id":42}}},
					{"update_id":8,"message":{"text":"/summary","chat":{"id":99}}}]}`))
				return
			}
			assert.Equal(t, "9", r.URL.Query().Get("offset"))
			w.Write([]byte(`{"ok":true,"result":[]}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			replies <- body["text"]
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var handled int32
	go func() {
		tn.StartPolling(ctx, func(_ context.Context, cmd string) string {
			atomic.AddInt32(&handled, 1)
			return "reply to " + cmd
		})
		close(done)
	}()

	select {
	case r := <-replies:
		assert.Equal(t, "reply to /summary", r)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled), "other chats are ignored")
}

func TestFormatSnapshot(t *testing.T) {
	p := ledger.Position{
		Ticker:     "AAPL",
		Shares:     decimal.NewFromInt(100),
		BuyPrice:   ledger.AmountFromFloat(150),
		TargetLow:  ledger.AmountFromFloat(130),
		TargetHigh: ledger.AmountFromFloat(200),
		State:      ledger.Open{},
	}
	snap, err := ledger.Valuate([]ledger.Position{p}, ledger.Prices{"AAPL": ledger.AmountFromFloat(175)},
		time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	msg := FormatSnapshot(snap, 2026, "USD")
	assert.Contains(t, msg, "2026-03")
	assert.Contains(t, msg, "Total P&amp;L: <b>+$2,500.00</b>")
	assert.Contains(t, msg, "<pre>")
	assert.Contains(t, msg, "TOTAL P&amp;L", "the table is escaped")
	assert.NotContains(t, msg, "P&L")
}

func TestFormatUpdate(t *testing.T) {
	old := decimal.NewFromInt(100)
	res := &updater.Result{
		Base: "EUR",
		Date: "2026-03-14",
		Prices: []updater.PriceChange{
			{Ticker: "SAP", Old: &old, New: decimal.NewFromInt(110)},
		},
		Warnings: []string{"MSFT: price unavailable"},
		Written:  true,
	}
	msg := FormatUpdate(res)
	assert.Contains(t, msg, "Price update</b> | 2026-03-14")
	assert.Contains(t, msg, "SAP: ")
	assert.Contains(t, msg, "(+10.0%)")
	assert.Contains(t, msg, "MSFT: price unavailable")
	assert.NotContains(t, msg, "nothing written")

	assert.Contains(t, FormatUpdate(&updater.Result{Date: "2026-03-14"}), "No significant changes.")
}

func TestFormatError(t *testing.T) {
	err := &ledger.MissingPriceError{Tickers: []string{"AAPL", "MSFT"}}
	msg := FormatError("analysis", err)
	assert.Contains(t, msg, "analysis failed")
	assert.Contains(t, msg, "Tickers: AAPL, MSFT")
}
