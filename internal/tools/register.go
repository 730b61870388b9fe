package tools

import (
	"net/http"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/config"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/quotes"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/search"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// RegisterAllTools registers every tool configured by cfg in the registry.
// Tools without an API key are still registered and answer with an error
// text, so a stage degrades instead of failing.
func RegisterAllTools(registry *Registry, cfg config.Config, deps shared.Deps) error {
	deps = deps.WithDefaults()
	log := deps.Log.With("component", "tool_registration")

	searchDeps := deps
	searchDeps.HTTP = &http.Client{Timeout: cfg.Search.Timeout, Transport: deps.HTTP.Transport}
	quoteDeps := deps
	quoteDeps.HTTP = &http.Client{Timeout: cfg.Quotes.Timeout, Transport: deps.HTTP.Transport}

	bing := search.NewBingClient(cfg.Search.BingKey, cfg.Search.BingURL, searchDeps)
	serper := search.NewSerperClient(cfg.Search.SerperKey, cfg.Search.SerperURL, searchDeps)
	alpha := quotes.NewAlphaVantageClient(cfg.Quotes.AlphaVantageKey, cfg.Quotes.AlphaVantageURL, quoteDeps)

	builders := []func() (Tool, error){
		func() (Tool, error) { return search.NewMarketSearchTool(bing, searchDeps) },
		func() (Tool, error) { return search.NewFinancialNewsTool(serper, searchDeps) },
		func() (Tool, error) {
			return search.NewInfluencerMonitorTool(serper, cfg.Cache.InfluencerTTL, searchDeps)
		},
		func() (Tool, error) { return quotes.NewStockQuoteTool(alpha, cfg.Cache.QuoteTTL, quoteDeps) },
	}
	for _, build := range builders {
		t, err := build()
		if err != nil {
			return errors.Wrap(err, "register tools")
		}
		registry.Register(t)
	}

	if missing := Unconfigured(cfg); len(missing) > 0 {
		log.Warnw("Tools registered without API keys", "tools", missing)
	}
	log.Debugw("Registered tools", "tools", registry.List())
	return nil
}
