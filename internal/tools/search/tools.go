package search

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/adk/tool"

	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
)

// Tool names.
const (
	MarketSearch        = "market_search"
	FinancialNewsSearch = "financial_news_search"
	InfluencerMonitor   = "influencer_monitor"
)

// Cache namespaces.
const (
	newsNamespace       = "news"
	influencerNamespace = "influencers"
)

const toolTimeout = 45 * time.Second

// influencerSites restricts influencer searches to major financial outlets.
const influencerSites = "(site:cnbc.com OR site:bloomberg.com OR site:reuters.com OR site:ft.com OR site:wsj.com)"

// MarketSearchArgs are the arguments of market_search.
type MarketSearchArgs struct {
	Query string `json:"query" jsonschema:"Search query to find market information, rankings, or company details."`
}

// NewsSearchArgs are the arguments of financial_news_search.
type NewsSearchArgs struct {
	Query string `json:"query" jsonschema:"Search query to find financial news."`
}

// InfluencerArgs are the arguments of influencer_monitor.
type InfluencerArgs struct {
	Person string `json:"person" jsonschema:"Name of the key market influencer to monitor (e.g., 'Elon Musk', 'Jerome Powell')."`
}

// NewMarketSearchTool returns the brand pipeline's web search tool.
func NewMarketSearchTool(client *BingClient, deps shared.Deps) (tool.Tool, error) {
	return marketSearch(client, deps).Build()
}

func marketSearch(client *BingClient, deps shared.Deps) *shared.ToolBuilder[MarketSearchArgs] {
	deps = deps.WithDefaults()
	return shared.NewToolBuilder(
		MarketSearch,
		"Use this tool to search for market information, company rankings, and competitive analysis data. "+
			"It performs web searches focused on business and market intelligence.",
		func(ctx context.Context, args MarketSearchArgs) (string, error) {
			query, err := shared.Required("query", args.Query)
			if err != nil {
				return "", err
			}
			out, err := client.Search(ctx, query)
			if err != nil {
				return "", err
			}
			if err := deps.Usage.Record(ctx, bingAPI, "query", query); err != nil {
				deps.Log.Warnw("Usage log write failed", "api", bingAPI, "error", err)
			}
			return out, nil
		},
		deps,
	).WithTimeout(toolTimeout).WithStats().WithErrorText("Error performing search")
}

// NewFinancialNewsTool returns a news search cached until the end of the day.
func NewFinancialNewsTool(client *SerperClient, deps shared.Deps) (tool.Tool, error) {
	return financialNews(client, deps).Build()
}

func financialNews(client *SerperClient, deps shared.Deps) *shared.ToolBuilder[NewsSearchArgs] {
	deps = deps.WithDefaults()
	return shared.NewToolBuilder(
		FinancialNewsSearch,
		"Use this tool to search for financial and economic news. It can find articles about companies, "+
			"sectors, economic indicators, and market trends from financial news sources.",
		func(ctx context.Context, args NewsSearchArgs) (string, error) {
			query, err := shared.Required("query", args.Query)
			if err != nil {
				return "", err
			}
			return shared.Cached(ctx, deps, newsNamespace, cache.SanitizeKey(query), cache.UntilMidnight(),
				func(ctx context.Context) (string, error) {
					out, err := client.Search(ctx, "financial news "+query)
					if err != nil {
						return "", err
					}
					if err := deps.Usage.Record(ctx, serperAPI, "query", query); err != nil {
						deps.Log.Warnw("Usage log write failed", "api", serperAPI, "error", err)
					}
					return out, nil
				})
		},
		deps,
	).WithTimeout(toolTimeout).WithStats().WithErrorText("Error performing search")
}

// NewInfluencerMonitorTool returns a search for recent statements of a
// market influencer, cached for ttl.
func NewInfluencerMonitorTool(client *SerperClient, ttl time.Duration, deps shared.Deps) (tool.Tool, error) {
	return influencerMonitor(client, ttl, deps).Build()
}

func influencerMonitor(client *SerperClient, ttl time.Duration, deps shared.Deps) *shared.ToolBuilder[InfluencerArgs] {
	deps = deps.WithDefaults()
	return shared.NewToolBuilder(
		InfluencerMonitor,
		"Use this tool to monitor recent statements or actions from key market influencers "+
			"like Elon Musk, Jerome Powell, business leaders, or government officials.",
		func(ctx context.Context, args InfluencerArgs) (string, error) {
			person, err := shared.Required("person", args.Person)
			if err != nil {
				return "", err
			}
			return shared.Cached(ctx, deps, influencerNamespace, cache.SanitizeKey(person), cache.For(ttl),
				func(ctx context.Context) (string, error) {
					q := fmt.Sprintf("%s recent statement market finance economy %s", person, influencerSites)
					out, err := client.Search(ctx, q)
					if err != nil {
						return "", err
					}
					if err := deps.Usage.Record(ctx, serperAPI, "influencer", person); err != nil {
						deps.Log.Warnw("Usage log write failed", "api", serperAPI, "error", err)
					}
					return out, nil
				})
		},
		deps,
	).WithTimeout(toolTimeout).WithStats().WithErrorText("Error monitoring influencer")
}
