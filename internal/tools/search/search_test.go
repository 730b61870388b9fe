package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/retry"
	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

const serperBody = `{
  "answerBox": {"answer": "Rates held steady"},
  "organic": [
    {"title": "Fed holds rates", "link": "https://example.com/fed", "snippet": "The Fed kept rates unchanged.", "date": "2 hours ago"},
    {"title": "No snippet", "link": "https://example.com/empty"}
  ]
}`

type fakeSerper struct {
	*httptest.Server
	hits    atomic.Int32
	queries chan string
}

func newFakeSerper(t *testing.T, status int, body string) *fakeSerper {
	t.Helper()
	f := &fakeSerper{queries: make(chan string, 10)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))

		var req struct {
			Q string `json:"q"`
		}
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &req))
		f.queries <- req.Q

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.Close)
	return f
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

func TestFinancialNewsTool(t *testing.T) {
	srv := newFakeSerper(t, http.StatusOK, serperBody)
	deps, logDir := testDeps(t)
	run := financialNews(NewSerperClient("test-key", srv.URL, deps), deps).Handler()
	ctx := context.Background()

	out, err := run(ctx, NewsSearchArgs{Query: "Fed rates"})
	require.NoError(t, err)
	assert.Equal(t, "financial news Fed rates", <-srv.queries)
	assert.Contains(t, out, "Answer: Rates held steady")
	assert.Contains(t, out, "- Fed holds rates (2 hours ago): The Fed kept rates unchanged. [https://example.com/fed]")
	assert.NotContains(t, out, "No snippet")

	again, err := run(ctx, NewsSearchArgs{Query: "Fed rates"})
	require.NoError(t, err)
	assert.Equal(t, out, again)
	assert.Equal(t, int32(1), srv.hits.Load(), "second call is served from cache")

	usage, err := os.ReadFile(filepath.Join(logDir, "serper_usage.log"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(usage)), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], ",query,Fed rates"))
}

func TestFinancialNewsTool_ErrorsAreTextAndNotCached(t *testing.T) {
	srv := newFakeSerper(t, http.StatusForbidden, `{"message":"bad key"}`)
	deps, _ := testDeps(t)
	run := financialNews(NewSerperClient("test-key", srv.URL, deps), deps).Handler()

	for i := 0; i < 2; i++ {
		out, err := run(context.Background(), NewsSearchArgs{Query: "apple"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "Error performing search: "), out)
		assert.Contains(t, out, "403")
	}
	assert.Equal(t, int32(2), srv.hits.Load())
}

func TestFinancialNewsTool_MissingKey(t *testing.T) {
	deps, _ := testDeps(t)
	run := financialNews(NewSerperClient("", "http://unused.invalid", deps), deps).Handler()

	out, err := run(context.Background(), NewsSearchArgs{Query: "apple"})
	require.NoError(t, err)
	assert.Contains(t, out, "SERPER_API_KEY is not set")
}

func TestFinancialNewsTool_BlankQuery(t *testing.T) {
	deps, _ := testDeps(t)
	run := financialNews(NewSerperClient("test-key", "http://unused.invalid", deps), deps).Handler()

	out, err := run(context.Background(), NewsSearchArgs{Query: "  "})
	require.NoError(t, err)
	assert.Contains(t, out, "Error performing search: validation error")
}

func TestInfluencerMonitorTool(t *testing.T) {
	srv := newFakeSerper(t, http.StatusOK, serperBody)
	deps, logDir := testDeps(t)
	run := influencerMonitor(NewSerperClient("test-key", srv.URL, deps), 4*time.Hour, deps).Handler()

	_, err := run(context.Background(), InfluencerArgs{Person: "Jerome Powell"})
	require.NoError(t, err)

	q := <-srv.queries
	assert.True(t, strings.HasPrefix(q, "Jerome Powell recent statement market finance economy"))
	for _, site := range []string{"cnbc.com", "bloomberg.com", "reuters.com", "ft.com", "wsj.com"} {
		assert.Contains(t, q, "site:"+site)
	}

	usage, err := os.ReadFile(filepath.Join(logDir, "serper_usage.log"))
	require.NoError(t, err)
	assert.Contains(t, string(usage), ",influencer,Jerome Powell")
}

func TestSerperNoResults(t *testing.T) {
	srv := newFakeSerper(t, http.StatusOK, `{"organic":[]}`)
	deps, _ := testDeps(t)

	out, err := NewSerperClient("test-key", srv.URL, deps).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, "No good Google Search Result was found", out)
}

func TestMarketSearchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "bing-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "best crm software", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("count"))
		_, _ = w.Write([]byte(`{"webPages":{"value":[
			{"name":"Top CRM tools","url":"https://example.com/crm","snippet":"Salesforce leads the list."}
		]}}`))
	}))
	defer srv.Close()

	deps, logDir := testDeps(t)
	run := marketSearch(NewBingClient("bing-key", srv.URL, deps), deps).Handler()

	out, err := run(context.Background(), MarketSearchArgs{Query: "best crm software"})
	require.NoError(t, err)
	assert.Equal(t, "- Top CRM tools: Salesforce leads the list. [https://example.com/crm]", out)

	usage, err := os.ReadFile(filepath.Join(logDir, "bing_usage.log"))
	require.NoError(t, err)
	assert.Contains(t, string(usage), ",query,best crm software")
}

func TestMarketSearchTool_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	deps, _ := testDeps(t)
	run := marketSearch(NewBingClient("bing-key", srv.URL, deps), deps).Handler()

	out, err := run(context.Background(), MarketSearchArgs{Query: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error performing search: "), out)
}

func TestToolsBuild(t *testing.T) {
	deps, _ := testDeps(t)
	serper := NewSerperClient("test-key", "http://unused.invalid", deps)

	news, err := NewFinancialNewsTool(serper, deps)
	require.NoError(t, err)
	assert.Equal(t, FinancialNewsSearch, news.Name())

	influencer, err := NewInfluencerMonitorTool(serper, time.Hour, deps)
	require.NoError(t, err)
	assert.Equal(t, InfluencerMonitor, influencer.Name())

	market, err := NewMarketSearchTool(NewBingClient("bing-key", "http://unused.invalid", deps), deps)
	require.NoError(t, err)
	assert.Equal(t, MarketSearch, market.Name())
}
