// Package mcptools exposes the analysis pipelines as Model Context
// Protocol tools.
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

// Tool names.
const (
	BrandAnalysis  = "brand_analysis"
	MarketAnalysis = "market_analysis"
)

// PipelineRunner executes a pipeline definition, sending every event to sink.
type PipelineRunner interface {
	Run(ctx context.Context, def pipeline.Definition, inputs map[string]any, sink pipeline.Sink) (*pipeline.Run, error)
}

// NewServer registers both pipeline tools on a fresh MCP server.
func NewServer(runner PipelineRunner, definitions map[string]pipeline.Definition, version string, log *logger.Logger) *mcp.Server {
	svc := &Service{
		runner:      runner,
		definitions: definitions,
		log:         log,
	}
	if svc.definitions == nil {
		svc.definitions = pipeline.Definitions()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "marketpulse",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        BrandAnalysis,
		Description: "Analyze how a brand or company is found online: generates keywords, runs search queries and estimates the brand's ranking against competitors.",
	}, svc.BrandAnalysis)

	mcp.AddTool(server, &mcp.Tool{
		Name:        MarketAnalysis,
		Description: "Analyze market sentiment for a stock portfolio from global news, holding-specific news and statements of key influencers, and produce trading recommendations. Omit the portfolio to analyze the sample portfolio.",
	}, svc.MarketAnalysis)

	return server
}

// Run serves the tools over stdin/stdout until ctx is done or the client
// disconnects.
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
