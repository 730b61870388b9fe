package tools

import (
	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/quotes"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/search"
)

// Definition describes a tool's metadata for registration and documentation.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	// KeyEnv is the environment variable holding the API key it needs.
	KeyEnv string `json:"key_env"`
}

var toolDefinitions = []Definition{
	{Name: search.MarketSearch, Description: "Bing web search for market and ranking data", Category: "search", KeyEnv: "BING_API_KEY"},
	{Name: search.FinancialNewsSearch, Description: "Serper search for financial news", Category: "news", KeyEnv: "SERPER_API_KEY"},
	{Name: search.InfluencerMonitor, Description: "Recent statements of market influencers", Category: "news", KeyEnv: "SERPER_API_KEY"},
	{Name: quotes.StockQuote, Description: "Alpha Vantage global quote", Category: "market_data", KeyEnv: "ALPHA_VANTAGE_API_KEY"},
}

// Definitions exposes a copy of all tool definitions.
func Definitions() []Definition {
	defs := make([]Definition, len(toolDefinitions))
	copy(defs, toolDefinitions)
	return defs
}

// Unconfigured lists the tools whose API key is missing from cfg.
func Unconfigured(cfg config.Config) []string {
	keys := map[string]string{
		"BING_API_KEY":          cfg.Search.BingKey,
		"SERPER_API_KEY":        cfg.Search.SerperKey,
		"ALPHA_VANTAGE_API_KEY": cfg.Quotes.AlphaVantageKey,
	}

	var missing []string
	for _, def := range toolDefinitions {
		if keys[def.KeyEnv] == "" {
			missing = append(missing, def.Name)
		}
	}
	return missing
}
