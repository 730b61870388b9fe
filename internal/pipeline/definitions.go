package pipeline

// Pipeline names, used in routes, logs and metrics.
const (
	BrandPipeline  = "search-rank"
	MarketPipeline = "market-sentiment"
)

// KeyInfluencers are the people the influencer stage monitors.
var KeyInfluencers = []string{
	"Jerome Powell",
	"Janet Yellen",
	"Elon Musk",
	"Warren Buffett",
	"Jamie Dimon",
}

// Brand analyses how a brand is found online: keywords, then search
// queries built from them, then a ranking built from the queries.
func Brand() Definition {
	return Definition{
		Name:            BrandPipeline,
		StartMessage:    "Starting analysis...",
		CompleteMessage: "Analysis complete",
		Stages: []Stage{
			{
				ID:          "keywords",
				Context:     ContextOriginal,
				Agent:       "keyword_agent",
				Temperature: 0.7,
			},
			{
				ID:          "queries",
				Status:      "Analyzing queries...",
				Context:     ContextPrevious,
				Agent:       "query_builder_agent",
				Temperature: 0.7,
			},
			{
				ID:          "ranking",
				Status:      "Determining ranking...",
				Context:     ContextPrevious,
				Agent:       "ranking_agent",
				Temperature: 0.0,
			},
		},
	}
}

// Market produces trading recommendations for a portfolio from global
// news, holding-specific news, influencer statements and overall sentiment.
func Market() Definition {
	return Definition{
		Name:            MarketPipeline,
		StartMessage:    "Starting market sentiment analysis...",
		CompleteMessage: "Market sentiment analysis complete",
		Stages: []Stage{
			{
				ID:             "global_news",
				FailureMessage: "Failed to collect global news",
				Context:        ContextOriginal,
				Agent:          "global_news_agent",
				Temperature:    0.3,
			},
			{
				ID:             "portfolio_news",
				Status:         "Analyzing portfolio-specific news...",
				FailureMessage: "Failed to analyze portfolio news",
				Context:        ContextOriginal,
				Agent:          "portfolio_news_agent",
				Temperature:    0.3,
			},
			{
				ID:             "influencer_data",
				Status:         "Monitoring key market influencers...",
				FailureMessage: "Failed to monitor key influencers",
				Context:        ContextOriginal,
				Agent:          "influencer_monitor_agent",
				Temperature:    0.3,
			},
			{
				ID:             "sentiment_analysis",
				Status:         "Analyzing market sentiment...",
				FailureMessage: "Failed to analyze market sentiment",
				Context:        ContextAccumulated,
				Agent:          "sentiment_analysis_agent",
				Temperature:    0.0,
			},
			{
				ID:             "recommendations",
				Status:         "Generating trading recommendations...",
				FailureMessage: "Failed to generate recommendations",
				Context:        ContextPrevious,
				Agent:          "portfolio_strategy_agent",
				Temperature:    0.2,
			},
		},
	}
}

// Definitions returns every built-in pipeline keyed by name.
func Definitions() map[string]Definition {
	return map[string]Definition{
		BrandPipeline:  Brand(),
		MarketPipeline: Market(),
	}
}

// BrandInputs builds the request inputs of the brand pipeline.
func BrandInputs(query string) map[string]any {
	return map[string]any{"query": query}
}

// MarketInputs builds the request inputs of the market pipeline. Portfolio
// and preferences are passed through untouched to the stage runner.
func MarketInputs(portfolio, preferences any) map[string]any {
	influencers := make([]string, len(KeyInfluencers))
	copy(influencers, KeyInfluencers)
	return map[string]any{
		"portfolio":   portfolio,
		"preferences": preferences,
		"influencers": influencers,
	}
}
