package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/api/health"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/tools"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// ServerConfig contains configuration for HTTP server
type ServerConfig struct {
	Addr        string
	ServiceName string
	Version     string
	CORSOrigins []string

	ReadTimeout time.Duration
	IdleTimeout time.Duration

	// MaxStreamDuration bounds each pipeline stream.
	MaxStreamDuration time.Duration

	// Tools and Unconfigured describe the tool catalog on the info route.
	Tools        []tools.Definition
	Unconfigured []string
}

// Info is the body of the root route.
type Info struct {
	Service      string             `json:"service"`
	Version      string             `json:"version"`
	Status       string             `json:"status"`
	Pipelines    []string           `json:"pipelines"`
	Tools        []tools.Definition `json:"tools"`
	Unconfigured []string           `json:"unconfigured_tools"`
}

// Server wraps HTTP server with lifecycle management
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewHandler builds the routed, CORS-wrapped handler of the API.
func NewHandler(cfg ServerConfig, runner PipelineRunner, definitions map[string]pipeline.Definition, healthHandler *health.Handler, log *logger.Logger) http.Handler {
	if definitions == nil {
		definitions = pipeline.Definitions()
	}
	maxDuration := cfg.MaxStreamDuration
	if maxDuration <= 0 {
		maxDuration = 10 * time.Minute
	}

	streams := &streamHandler{
		runner:      runner,
		definitions: definitions,
		maxDuration: maxDuration,
		log:         log.With("component", "stream"),
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(name, log, h))
	}

	// Health check endpoints (Kubernetes probes)
	route("GET /health", "health", healthHandler.HandleHealth)
	route("GET /ready", "ready", healthHandler.HandleReadiness)
	route("GET /live", "live", healthHandler.HandleLiveness)

	// Prometheus metrics endpoint
	mux.Handle("GET /metrics", metrics.Handler())

	// Pipeline streams
	route("GET /api/search-rank/stream", "search_rank", streams.searchRank)
	route("POST /api/sentiment/analyze", "sentiment_analyze", streams.analyze)
	route("GET /api/sentiment/demo", "sentiment_demo", streams.demo)

	info := Info{
		Service:      cfg.ServiceName,
		Version:      cfg.Version,
		Status:       "running",
		Pipelines:    pipelineNames(definitions),
		Tools:        cfg.Tools,
		Unconfigured: cfg.Unconfigured,
	}
	if info.Unconfigured == nil {
		info.Unconfigured = []string{}
	}
	route("GET /{$}", "info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, info)
	})

	return CORS(cfg.CORSOrigins, mux)
}

// NewServer wraps handler in an http.Server. Streams can run for minutes,
// so there is no write timeout; MaxStreamDuration bounds them instead.
func NewServer(cfg ServerConfig, handler http.Handler, log *logger.Logger) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8000"
	}

	log.Infof("HTTP server configured on %s", addr)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	return &Server{
		httpServer: httpServer,
		log:        log,
	}
}

// Start begins listening for HTTP requests
// Blocks until server is stopped or encounters an error
func (s *Server) Start() error {
	s.log.Infof("Starting HTTP server on %s", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
// Waits for active connections to complete within timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping HTTP server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}

	s.log.Info("HTTP server stopped")
	return nil
}

func pipelineNames(defs map[string]pipeline.Definition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
