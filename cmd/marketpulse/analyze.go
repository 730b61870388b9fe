package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiiskristo/marketpulse-backend/internal/domain/portfolio"
	"github.com/kiiskristo/marketpulse-backend/internal/pipeline"
)

var (
	portfolioFile   string
	preferencesFile string
	outputFile      string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a market sentiment analysis for a portfolio",
	Long: `Run the market sentiment pipeline for a portfolio and investment
preferences read from JSON or YAML files, print progress as it happens,
save every stage result and print the trading recommendations.

Examples:
  marketpulse analyze -p portfolio.yaml --preferences prefs.yaml
  marketpulse analyze -p portfolio.json --preferences prefs.json -o out.json
`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&portfolioFile, "portfolio", "p", "", "Path to portfolio JSON or YAML file")
	analyzeCmd.Flags().StringVar(&preferencesFile, "preferences", "", "Path to preferences JSON or YAML file")
	analyzeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file path (default market_analysis_YYYY-MM-DD.json)")
	_ = analyzeCmd.MarkFlagRequired("portfolio")
	_ = analyzeCmd.MarkFlagRequired("preferences")
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Loading portfolio and preferences...")
	p, err := portfolio.LoadPortfolio(portfolioFile)
	if err != nil {
		return err
	}
	prefs, err := portfolio.LoadPreferences(preferencesFile)
	if err != nil {
		return err
	}
	req := portfolio.AnalysisRequest{Portfolio: p, Preferences: prefs}
	if err := req.Prepare(); err != nil {
		return err
	}

	c, err := openContainer(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Fprintln(out, "Starting market sentiment analysis...")
	progress := newProgressPrinter(out)
	_, runErr := c.Orchestrator.Run(cmd.Context(), c.Definitions[pipeline.MarketPipeline],
		pipeline.MarketInputs(req.Portfolio, req.Preferences), progress)

	results := progress.Results()
	if len(results) > 0 {
		path := outputFile
		if path == "" {
			path = defaultOutputName(time.Now())
		}
		if err := saveResults(path, results); err != nil {
			return err
		}
		fmt.Fprintf(out, "Analysis saved to %s\n", path)
	}

	printRecommendations(out, results)
	return runErr
}
