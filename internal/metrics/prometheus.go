package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_pipeline_runs_total",
			Help: "Total number of pipeline runs by final state",
		},
		[]string{"pipeline", "state"}, // state: completed|failed|canceled
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_pipeline_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"pipeline"},
	)

	PipelinesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketpulse_pipelines_active",
			Help: "Pipeline runs currently streaming",
		},
		[]string{"pipeline"},
	)

	StageExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_stage_executions_total",
			Help: "Total number of stage executions",
		},
		[]string{"pipeline", "stage", "status"}, // status: success|invocation_error|recovery_error
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"pipeline", "stage"},
	)

	RecoveryOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_recovery_outcomes_total",
			Help: "JSON recovery outcomes by strategy",
		},
		[]string{"strategy"}, // strategy: direct|extracted|salvaged|no_json|malformed
	)

	// Agent metrics
	AgentCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_agent_calls_total",
			Help: "Total number of LLM calls made by agents",
		},
		[]string{"agent", "model", "status"}, // status: success|error|rate_limited
	)

	AgentCost = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_agent_cost_usd",
			Help: "Total AI cost in USD",
		},
		[]string{"agent", "model"},
	)

	AgentLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_agent_latency_seconds",
			Help:    "LLM call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"agent", "model"},
	)

	AgentTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_agent_tokens_total",
			Help: "Total tokens used by agents",
		},
		[]string{"agent", "model", "type"}, // type: input|output
	)

	// Tool metrics
	ToolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"}, // status: success|error
	)

	ToolLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_tool_latency_seconds",
			Help:    "Tool execution latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_cache_lookups_total",
			Help: "Tool cache lookups by result",
		},
		[]string{"namespace", "result"}, // result: hit|miss|error
	)

	// External API metrics
	ExternalAPICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_external_api_calls_total",
			Help: "Total number of external API calls",
		},
		[]string{"api", "status"},
	)

	ExternalAPILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketpulse_external_api_latency_seconds",
			Help:    "External API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"api"},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketpulse_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	StreamsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketpulse_streams_active",
			Help: "Number of open event streams",
		},
		[]string{"pipeline"},
	)
)

var registerOnce sync.Once

// Init registers all metrics with Prometheus. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		// Pipeline metrics
		prometheus.MustRegister(PipelineRuns)
		prometheus.MustRegister(PipelineDuration)
		prometheus.MustRegister(PipelinesActive)
		prometheus.MustRegister(StageExecutions)
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(RecoveryOutcomes)

		// Agent metrics
		prometheus.MustRegister(AgentCalls)
		prometheus.MustRegister(AgentCost)
		prometheus.MustRegister(AgentLatency)
		prometheus.MustRegister(AgentTokens)

		// Tool metrics
		prometheus.MustRegister(ToolExecutions)
		prometheus.MustRegister(ToolLatency)
		prometheus.MustRegister(CacheLookups)

		// External API metrics
		prometheus.MustRegister(ExternalAPICalls)
		prometheus.MustRegister(ExternalAPILatency)

		// HTTP metrics
		prometheus.MustRegister(HTTPRequests)
		prometheus.MustRegister(StreamsActive)
	})
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPipelineRun records the end of a pipeline run
func RecordPipelineRun(pipeline, state string, duration time.Duration) {
	PipelineRuns.WithLabelValues(pipeline, state).Inc()
	PipelineDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// RecordStage records one stage execution
func RecordStage(pipeline, stage, status string, duration time.Duration) {
	StageExecutions.WithLabelValues(pipeline, stage, status).Inc()
	StageDuration.WithLabelValues(pipeline, stage).Observe(duration.Seconds())
}

// RecordRecovery records which recovery strategy handled a stage output
func RecordRecovery(strategy string) {
	RecoveryOutcomes.WithLabelValues(strategy).Inc()
}

// RecordAgentCall records an LLM call made on behalf of an agent
func RecordAgentCall(agent, model string, latency time.Duration, cost float64, inputTokens, outputTokens int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	AgentCalls.WithLabelValues(agent, model, status).Inc()
	AgentLatency.WithLabelValues(agent, model).Observe(latency.Seconds())

	if cost > 0 {
		AgentCost.WithLabelValues(agent, model).Add(cost)
	}

	if inputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		AgentTokens.WithLabelValues(agent, model, "output").Add(float64(outputTokens))
	}
}

// RecordRateLimited records an LLM call that never happened because the limiter refused it
func RecordRateLimited(agent, model string) {
	AgentCalls.WithLabelValues(agent, model, "rate_limited").Inc()
}

// RecordToolExecution records a tool execution
func RecordToolExecution(tool string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ToolExecutions.WithLabelValues(tool, status).Inc()
	ToolLatency.WithLabelValues(tool).Observe(latency.Seconds())
}

// RecordCacheLookup records a tool cache lookup
func RecordCacheLookup(namespace string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	CacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordExternalAPICall records a call to a search, news or quote API
func RecordExternalAPICall(api string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	ExternalAPICalls.WithLabelValues(api, status).Inc()
	ExternalAPILatency.WithLabelValues(api).Observe(latency.Seconds())
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(route string, code int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
