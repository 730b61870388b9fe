package main

import (
	"github.com/spf13/cobra"

	"github.com/kiiskristo/marketpulse-backend/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the analysis pipelines as MCP tools over stdio",
	Long: `Serve brand_analysis and market_analysis as Model Context Protocol tools
on stdin/stdout, for use by MCP-capable assistants. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := openContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		server := mcptools.NewServer(c.Orchestrator, c.Definitions, c.Config.App.Version, c.Log.With("component", "mcp"))
		c.Log.Infow("MCP server ready on stdio", "tools", []string{mcptools.BrandAnalysis, mcptools.MarketAnalysis})
		return mcptools.Run(cmd.Context(), server)
	},
}
