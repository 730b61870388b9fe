package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kiiskristo/marketpulse-backend/internal/bootstrap"
	"github.com/kiiskristo/marketpulse-backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "marketpulse",
	Short: "Run brand and market sentiment analyses from the terminal",
	Long: `marketpulse runs the multi-agent analysis pipelines locally, streams them
from a running server, or serves them as MCP tools.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(searchRankCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openContainer loads configuration and wires the pipelines. The caller
// closes the container.
func openContainer(ctx context.Context) (*bootstrap.Container, error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Get()
	tracker := bootstrap.NewErrorTracker(cfg, log)
	logger.SetErrorTracker(tracker)

	return bootstrap.New(ctx, cfg, tracker, log)
}
