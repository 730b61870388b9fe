package main

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

var searchRankFormat string

var searchRankCmd = &cobra.Command{
	Use:   "search-rank QUERY",
	Short: "Run the brand pipeline locally and write the raw event stream",
	Long: `Run the search-rank pipeline for a brand and write every event frame to
stdout exactly as the server would stream it.

Examples:
  marketpulse search-rank "Acme Widgets"
  marketpulse search-rank --format ndjson "Acme Widgets" | jq .
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearchRank,
}

func init() {
	searchRankCmd.Flags().StringVar(&searchRankFormat, "format", "sse", "Frame format: sse or ndjson")
}

func runSearchRank(cmd *cobra.Command, args []string) error {
	format, err := events.ParseFormat(searchRankFormat)
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return errors.NewValidationError("query", "query is required", query)
	}

	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	buf := bufio.NewWriter(cmd.OutOrStdout())
	writer := events.NewWriter(buf, format)
	_, err = c.Orchestrator.Run(cmd.Context(), c.Definitions[pipeline.BrandPipeline], pipeline.BrandInputs(query), writer)
	if flushErr := buf.Flush(); err == nil {
		err = flushErr
	}
	return err
}
