package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/internal/api/health"
	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// stageRecorder answers every stage with a small JSON object and keeps the
// inputs each run was started with.
type stageRecorder struct {
	mu     sync.Mutex
	inputs []map[string]any
	fail   string
}

func (s *stageRecorder) Run(ctx context.Context, stage pipeline.Stage, sc pipeline.StageContext) (string, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, sc.Inputs)
	s.mu.Unlock()

	if stage.ID == s.fail {
		return "", errors.New("model unavailable")
	}
	return "Here you go:\n```json\n{\"stage\": \"" + stage.ID + "\"}\n```", nil
}

func newTestHandler(t *testing.T, runner pipeline.StageRunner, checks map[string]health.Checker) http.Handler {
	t.Helper()
	return newTestHandlerWithLogger(t, runner, checks, logger.Nop())
}

func newTestHandlerWithLogger(t *testing.T, runner pipeline.StageRunner, checks map[string]health.Checker, log *logger.Logger) http.Handler {
	t.Helper()
	orch := pipeline.NewOrchestrator(runner, pipeline.WithLogger(log))
	cfg := ServerConfig{
		ServiceName: "marketpulse",
		Version:     "test",
		CORSOrigins: []string{"http://localhost:3000"},
	}
	return NewHandler(cfg, orch, nil, health.New(log, "marketpulse", "test", checks), log)
}

func readEvents(t *testing.T, body []byte, format events.Format) []events.Event {
	t.Helper()
	evs, err := events.NewDecoder(bytes.NewReader(body), format).ReadAll()
	require.NoError(t, err)
	return evs
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, &stageRecorder{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Run("ready without checks", func(t *testing.T) {
		h := newTestHandler(t, &stageRecorder{}, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing dependency", func(t *testing.T) {
		checks := map[string]health.Checker{
			"redis": health.CheckerFunc(func(context.Context) error { return errors.New("connection refused") }),
		}
		h := newTestHandler(t, &stageRecorder{}, checks)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var status health.ReadinessStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unready", status.Status)
		assert.Equal(t, "connection refused", status.Checks["redis"].Error)
	})
}

func TestInfo(t *testing.T) {
	h := newTestHandler(t, &stageRecorder{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "marketpulse", info.Service)
	assert.Equal(t, []string{pipeline.MarketPipeline, pipeline.BrandPipeline}, info.Pipelines)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchRankStream(t *testing.T) {
	runner := &stageRecorder{}
	h := newTestHandler(t, runner, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search-rank/stream?query=Acme+Widgets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	evs := readEvents(t, rec.Body.Bytes(), events.FormatSSE)
	require.Len(t, evs, 7)
	assert.Equal(t, events.TypeStatus, evs[0].Type)
	assert.Equal(t, "keywords", evs[1].Task)
	assert.Equal(t, "keywords", evs[1].Data["stage"])
	assert.Equal(t, events.TypeComplete, evs[6].Type)

	require.NotEmpty(t, runner.inputs)
	assert.Equal(t, "Acme Widgets", runner.inputs[0]["query"])
}

func TestSearchRankNDJSON(t *testing.T) {
	h := newTestHandler(t, &stageRecorder{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search-rank/stream?query=acme&format=ndjson", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 7)
}

func TestSearchRankValidation(t *testing.T) {
	runner := &stageRecorder{}
	h := newTestHandler(t, runner, nil)

	tests := []struct {
		name string
		url  string
		loc  []interface{}
		typ  string
	}{
		{"missing query", "/api/search-rank/stream", []interface{}{"query", "query"}, "missing"},
		{"blank query", "/api/search-rank/stream?query=%20%20", []interface{}{"query", "query"}, "missing"},
		{"bad format", "/api/search-rank/stream?query=acme&format=xml", []interface{}{"query", "format"}, "value_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			var resp ValidationResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Detail, 1)
			assert.Equal(t, tt.loc, resp.Detail[0].Loc)
			assert.Equal(t, tt.typ, resp.Detail[0].Type)
		})
	}
	assert.Empty(t, runner.inputs)
}

func TestAnalyzeStream(t *testing.T) {
	runner := &stageRecorder{}
	h := newTestHandler(t, runner, nil)

	body := `{
		"portfolio": {"holdings": [{"ticker": "aapl", "company": "Apple Inc.", "allocation": 20, "sector": "Technology"}]},
		"preferences": {"risk_tolerance": "moderate", "investment_horizon": "long-term"}
	}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sentiment/analyze", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	evs := readEvents(t, rec.Body.Bytes(), events.FormatSSE)
	require.Len(t, evs, 11)
	assert.Equal(t, "recommendations", evs[9].Task)
	assert.Equal(t, events.TypeComplete, evs[10].Type)

	p, ok := runner.inputs[0]["portfolio"].(*portfolio.Portfolio)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL"}, p.Tickers())
	assert.Equal(t, pipeline.KeyInfluencers, runner.inputs[0]["influencers"])
}

func TestAnalyzeValidation(t *testing.T) {
	runner := &stageRecorder{}
	h := newTestHandler(t, runner, nil)

	t.Run("invalid json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sentiment/analyze", strings.NewReader("{")))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp ValidationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Detail, 1)
		assert.Equal(t, []interface{}{"body"}, resp.Detail[0].Loc)
		assert.Equal(t, "json_invalid", resp.Detail[0].Type)
	})

	t.Run("field problems", func(t *testing.T) {
		body := `{"portfolio": {"holdings": [{"ticker": "", "allocation": 10}]}}`
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sentiment/analyze", strings.NewReader(body)))

		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp ValidationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Detail, 2)
		// JSON numbers decode as float64.
		assert.Equal(t, []interface{}{"body", "portfolio", "holdings", float64(0), "ticker"}, resp.Detail[0].Loc)
		assert.Equal(t, []interface{}{"body", "preferences"}, resp.Detail[1].Loc)
		assert.Equal(t, "missing", resp.Detail[1].Type)
	})

	assert.Empty(t, runner.inputs)
}

func TestDemoStream(t *testing.T) {
	runner := &stageRecorder{}
	h := newTestHandler(t, runner, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment/demo?format=ndjson", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	evs := readEvents(t, rec.Body.Bytes(), events.FormatNDJSON)
	assert.Len(t, evs, 11)

	p, ok := runner.inputs[0]["portfolio"].(*portfolio.Portfolio)
	require.True(t, ok)
	assert.Equal(t, []string{"AAPL", "MSFT", "AMZN", "GOOGL", "TSLA"}, p.Tickers())
	prefs, ok := runner.inputs[0]["preferences"].(*portfolio.Preferences)
	require.True(t, ok)
	assert.Equal(t, portfolio.RiskModerate, prefs.RiskTolerance)
}

func TestStageFailureEndsStreamWithError(t *testing.T) {
	h := newTestHandler(t, &stageRecorder{fail: "queries"}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search-rank/stream?query=acme", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	evs := readEvents(t, rec.Body.Bytes(), events.FormatSSE)
	require.Len(t, evs, 4)
	last := evs[len(evs)-1]
	assert.Equal(t, events.TypeError, last.Type)
	assert.Equal(t, "Failed to process queries data", last.Message)
}

// disconnectingRecorder cancels the request once the first task_complete
// frame has been written, like a client closing the stream.
type disconnectingRecorder struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
}

func (d *disconnectingRecorder) Write(p []byte) (int, error) {
	n, err := d.ResponseRecorder.Write(p)
	if bytes.Contains(p, []byte(events.TypeTaskComplete)) {
		d.cancel()
	}
	return n, err
}

func TestClientDisconnectStopsRun(t *testing.T) {
	runner := &stageRecorder{}
	tracker := &countingTracker{}
	h := newTestHandlerWithLogger(t, runner, nil, logger.Nop().WithErrorTracker(tracker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &disconnectingRecorder{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}
	req := httptest.NewRequest(http.MethodGet, "/api/search-rank/stream?query=acme", nil).WithContext(ctx)
	h.ServeHTTP(rec, req)

	runner.mu.Lock()
	calls := len(runner.inputs)
	runner.mu.Unlock()
	assert.Equal(t, 1, calls, "no stage runs after the client left")

	evs := readEvents(t, rec.Body.Bytes(), events.FormatSSE)
	require.NotEmpty(t, evs)
	var completed int
	for _, ev := range evs {
		assert.NotEqual(t, events.TypeError, ev.Type)
		assert.NotEqual(t, events.TypeComplete, ev.Type)
		if ev.Type == events.TypeTaskComplete {
			completed++
		}
	}
	assert.Equal(t, 1, completed)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.captured, "a disconnect is not an error")
}

// countingTracker counts captured errors.
type countingTracker struct {
	mu       sync.Mutex
	captured []error
	tags     []map[string]string
}

func (c *countingTracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.captured = append(c.captured, err)
	c.tags = append(c.tags, tags)
	return nil
}

func (c *countingTracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	return nil
}

func (c *countingTracker) AddBreadcrumb(ctx context.Context, message, category string, level errors.Level, data map[string]interface{}) {
}

func (c *countingTracker) Flush(ctx context.Context) error { return nil }

func TestStageFailureIsReportedOnce(t *testing.T) {
	tracker := &countingTracker{}
	h := newTestHandlerWithLogger(t, &stageRecorder{fail: "queries"}, nil, logger.Nop().WithErrorTracker(tracker))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search-rank/stream?query=acme", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	require.Len(t, tracker.captured, 2, "one capture per failed run")
	for i, err := range tracker.captured {
		assert.ErrorIs(t, err, errors.ErrStageInvocation)
		assert.Equal(t, "queries", tracker.tags[i]["stage"])
	}
}

func TestCORS(t *testing.T) {
	h := newTestHandler(t, &stageRecorder{}, nil)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/sentiment/analyze", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "content-type")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "content-type", rec.Header().Get("Access-Control-Allow-Headers"))
	})

	t.Run("simple request exposes content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Expose-Headers"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
