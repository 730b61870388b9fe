package mcptools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/shopspring/decimal"

	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// BrandInput is the argument of the brand_analysis tool.
type BrandInput struct {
	Query string `json:"query" jsonschema:"the brand or company name to analyze"`
}

// HoldingInput is one portfolio position of the market_analysis tool.
type HoldingInput struct {
	Ticker     string  `json:"ticker" jsonschema:"stock ticker symbol, e.g. AAPL"`
	Company    string  `json:"company,omitempty" jsonschema:"company name"`
	Allocation float64 `json:"allocation" jsonschema:"share of the portfolio in percent"`
	Sector     string  `json:"sector,omitempty" jsonschema:"industry sector"`
}

// MarketInput is the argument of the market_analysis tool.
type MarketInput struct {
	Holdings          []HoldingInput `json:"holdings,omitempty" jsonschema:"portfolio holdings; the sample portfolio is used when empty"`
	RiskTolerance     string         `json:"risk_tolerance,omitempty" jsonschema:"conservative, moderate or aggressive"`
	PreferredSectors  []string       `json:"preferred_sectors,omitempty" jsonschema:"sectors to favor"`
	PreferredRegions  []string       `json:"preferred_regions,omitempty" jsonschema:"regions to favor"`
	InvestmentHorizon string         `json:"investment_horizon,omitempty" jsonschema:"short-term, medium-term or long-term"`
}

// AnalysisOutput is the result of both tools.
type AnalysisOutput struct {
	Pipeline  string                      `json:"pipeline"`
	RunID     string                      `json:"run_id"`
	Succeeded bool                        `json:"succeeded"`
	Results   map[string]recovery.Payload `json:"results"`
	Error     string                      `json:"error,omitempty"`
}

// Service holds the collaborators of the MCP tool handlers.
type Service struct {
	runner      PipelineRunner
	definitions map[string]pipeline.Definition
	log         *logger.Logger
}

// BrandAnalysis runs the brand pipeline for input.Query.
func (s *Service) BrandAnalysis(ctx context.Context, _ *mcp.CallToolRequest, input BrandInput) (*mcp.CallToolResult, AnalysisOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, AnalysisOutput{}, errors.NewValidationError("query", "query is required", input.Query)
	}
	out, err := s.run(ctx, pipeline.BrandPipeline, pipeline.BrandInputs(query))
	return nil, out, err
}

// MarketAnalysis runs the market pipeline for the given or the sample portfolio.
func (s *Service) MarketAnalysis(ctx context.Context, _ *mcp.CallToolRequest, input MarketInput) (*mcp.CallToolResult, AnalysisOutput, error) {
	req := input.request()
	if err := req.Prepare(); err != nil {
		return nil, AnalysisOutput{}, err
	}
	out, err := s.run(ctx, pipeline.MarketPipeline, pipeline.MarketInputs(req.Portfolio, req.Preferences))
	return nil, out, err
}

func (in MarketInput) request() portfolio.AnalysisRequest {
	p := portfolio.DemoPortfolio()
	if len(in.Holdings) > 0 {
		p = portfolio.Portfolio{Holdings: make([]portfolio.Holding, len(in.Holdings))}
		for i, h := range in.Holdings {
			p.Holdings[i] = portfolio.Holding{
				Ticker:     h.Ticker,
				Company:    h.Company,
				Allocation: decimal.NewFromFloat(h.Allocation),
				Sector:     h.Sector,
			}
		}
	}

	prefs := portfolio.DemoPreferences()
	if in.RiskTolerance != "" {
		prefs.RiskTolerance = in.RiskTolerance
	}
	if in.InvestmentHorizon != "" {
		prefs.InvestmentHorizon = in.InvestmentHorizon
	}
	if in.PreferredSectors != nil {
		prefs.PreferredSectors = in.PreferredSectors
	}
	if in.PreferredRegions != nil {
		prefs.PreferredRegions = in.PreferredRegions
	}

	return portfolio.AnalysisRequest{Portfolio: &p, Preferences: &prefs}
}

// run executes a pipeline to the end. A failed run is reported in the
// output; only cancellation and broken definitions return an error.
func (s *Service) run(ctx context.Context, name string, inputs map[string]any) (AnalysisOutput, error) {
	def, ok := s.definitions[name]
	if !ok {
		return AnalysisOutput{}, errors.Wrapf(errors.ErrNotFound, "pipeline %s", name)
	}

	var rec pipeline.Recorder
	run, err := s.runner.Run(ctx, def, inputs, &rec)
	if run == nil {
		return AnalysisOutput{}, err
	}

	out := AnalysisOutput{
		Pipeline:  name,
		RunID:     run.ID.String(),
		Succeeded: run.Success(),
		Results:   run.Payloads(),
	}
	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		out.Error = lastError(rec.Events())
		s.log.Warnw("MCP pipeline run failed", "pipeline", name, "run_id", out.RunID, "error", err)
	}
	return out, nil
}

func lastError(evs []events.Event) string {
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == events.TypeError {
			return evs[i].Message
		}
	}
	return "analysis failed"
}
