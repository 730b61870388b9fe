package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

const maxBodyBytes = 1 << 20

// PipelineRunner executes a pipeline definition, sending every event to sink.
type PipelineRunner interface {
	Run(ctx context.Context, def pipeline.Definition, inputs map[string]any, sink pipeline.Sink) (*pipeline.Run, error)
}

type streamHandler struct {
	runner      PipelineRunner
	definitions map[string]pipeline.Definition
	maxDuration time.Duration
	log         *logger.Logger
}

// searchRank streams the brand pipeline for ?query=.
func (h *streamHandler) searchRank(w http.ResponseWriter, r *http.Request) {
	format, err := events.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidation(w, locQuery, err)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeValidation(w, locQuery, errors.NewValidationError("query", msgRequired, nil))
		return
	}

	h.stream(w, r, pipeline.BrandPipeline, pipeline.BrandInputs(query), format)
}

// analyze streams the market pipeline for the posted portfolio.
func (h *streamHandler) analyze(w http.ResponseWriter, r *http.Request) {
	format, err := events.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidation(w, locQuery, err)
		return
	}

	var req portfolio.AnalysisRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = msgRequired
		}
		writeValidation(w, locBody, errors.NewValidationError("", msg, err.Error()))
		return
	}
	if err := req.Prepare(); err != nil {
		writeValidation(w, locBody, err)
		return
	}

	h.stream(w, r, pipeline.MarketPipeline, pipeline.MarketInputs(req.Portfolio, req.Preferences), format)
}

// demo streams the market pipeline for the sample portfolio.
func (h *streamHandler) demo(w http.ResponseWriter, r *http.Request) {
	format, err := events.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidation(w, locQuery, err)
		return
	}

	p := portfolio.DemoPortfolio()
	prefs := portfolio.DemoPreferences()
	h.stream(w, r, pipeline.MarketPipeline, pipeline.MarketInputs(&p, &prefs), format)
}

func (h *streamHandler) stream(w http.ResponseWriter, r *http.Request, name string, inputs map[string]any, format events.Format) {
	def, ok := h.definitions[name]
	if !ok {
		h.log.Errorw("Pipeline is not registered", "pipeline", name)
		http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.maxDuration)
	defer cancel()

	metrics.StreamsActive.WithLabelValues(name).Inc()
	defer metrics.StreamsActive.WithLabelValues(name).Dec()

	events.PrepareHeaders(w, format)
	writer := events.NewWriter(w, format)

	run, err := h.runner.Run(ctx, def, inputs, writer)
	log := h.log.With("pipeline", name, "format", format.String(), "frames", writer.Frames())
	if run != nil {
		log = log.With("run_id", run.ID.String())
	}

	switch {
	case err == nil:
		log.Infow("Stream finished")
	case r.Context().Err() != nil:
		log.Infow("Client disconnected", "error", err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warnw("Stream exceeded maximum duration", "max_duration", h.maxDuration.String())
	default:
		// The orchestrator already reported the stage failure.
		stage := ""
		if run != nil {
			stage = run.FailedStage
		}
		log.Warnw("Stream ended with a failed run", "stage", stage, "error", err)
	}
}
