package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/retry"
	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

const appleQuote = `{
  "Global Quote": {
    "01. symbol": "AAPL",
    "02. open": "188.0000",
    "05. price": "189.8400",
    "06. volume": "52164535",
    "07. latest trading day": "2026-10-16",
    "09. change": "-1.2600",
    "10. change percent": "-0.6593%"
  }
}`

func quoteServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "av-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testDeps(t *testing.T) (shared.Deps, string) {
	t.Helper()
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	logDir := t.TempDir()
	return shared.Deps{
		Cache: store,
		Retry: retry.New(retry.Config{MaxRetries: -1}),
		Usage: shared.NewUsageLog(logDir, nil),
		Log:   logger.Nop(),
	}, logDir
}

func TestStockQuoteTool(t *testing.T) {
	srv, hits := quoteServer(t, appleQuote)
	deps, logDir := testDeps(t)
	run := stockQuote(NewAlphaVantageClient("av-key", srv.URL, deps), time.Hour, deps).Handler()

	out, err := run(context.Background(), QuoteArgs{Symbol: "aapl"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "AAPL", got["symbol"])
	assert.Equal(t, "189.84", got["price"])
	assert.Equal(t, "-1.26", got["change"])
	assert.Equal(t, "-0.6593%", got["change_percent"])
	assert.Equal(t, "52,164,535", got["volume"])
	assert.Equal(t, "2026-10-16", got["latest_trading_day"])
	assert.NotEmpty(t, got["volume_readable"])

	_, err = run(context.Background(), QuoteArgs{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "symbol keys are case-insensitive")

	usage, err := os.ReadFile(filepath.Join(logDir, "alphavantage_usage.log"))
	require.NoError(t, err)
	assert.Contains(t, string(usage), ",quote,AAPL")
}

func TestStockQuoteTool_UnknownSymbol(t *testing.T) {
	srv, hits := quoteServer(t, `{"Global Quote": {}}`)
	deps, _ := testDeps(t)
	run := stockQuote(NewAlphaVantageClient("av-key", srv.URL, deps), time.Hour, deps).Handler()

	for i := 0; i < 2; i++ {
		out, err := run(context.Background(), QuoteArgs{Symbol: "ZZZZ"})
		require.NoError(t, err)
		assert.Equal(t, "Error retrieving stock quote: could not retrieve quote data for ZZZZ", out)
	}
	assert.Equal(t, int32(2), hits.Load(), "failures are never cached")
}

func TestAlphaVantageClient_Throttled(t *testing.T) {
	srv, _ := quoteServer(t, `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`)
	deps, _ := testDeps(t)

	_, err := NewAlphaVantageClient("av-key", srv.URL, deps).GlobalQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
}

func TestAlphaVantageClient_MissingKey(t *testing.T) {
	deps, _ := testDeps(t)
	_, err := NewAlphaVantageClient("", "http://unused.invalid", deps).GlobalQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, errors.ErrNotConfigured)
}

func TestParseGlobalQuote_InvalidPrice(t *testing.T) {
	_, err := parseGlobalQuote(map[string]string{"01. symbol": "AAPL", "05. price": "n/a"})
	assert.ErrorIs(t, err, errors.ErrExternal)
}

func TestStockQuoteTool_RejectsNonSymbol(t *testing.T) {
	deps, _ := testDeps(t)
	run := stockQuote(NewAlphaVantageClient("av-key", "http://unused.invalid", deps), time.Hour, deps).Handler()

	out, err := run(context.Background(), QuoteArgs{Symbol: "$$$"})
	require.NoError(t, err)
	assert.Contains(t, out, "Error retrieving stock quote: validation error")
}

func TestNewStockQuoteTool(t *testing.T) {
	deps, _ := testDeps(t)
	tool, err := NewStockQuoteTool(NewAlphaVantageClient("av-key", "http://unused.invalid", deps), time.Hour, deps)
	require.NoError(t, err)
	assert.Equal(t, StockQuote, tool.Name())
	assert.Contains(t, tool.Description(), "ticker symbol")
}
