package agents

import "time"

// AgentConfig captures runtime settings for an agent.
type AgentConfig struct {
	Type                 AgentType
	Name                 string
	Tools                []string
	SystemPromptTemplate string

	// MaxToolCalls caps tool calls across the whole stage. Zero means no cap
	// besides the runner's iteration limit.
	MaxToolCalls int
	// TotalTimeout bounds one stage. Zero leaves it to the caller's context.
	TotalTimeout time.Duration
}

// DefaultAgentConfigs holds the built-in agents of both pipelines.
var DefaultAgentConfigs = map[AgentType]AgentConfig{
	AgentKeyword: {
		Type:                 AgentKeyword,
		Name:                 "Keyword Specialist",
		Tools:                AgentToolMap[AgentKeyword],
		SystemPromptTemplate: "agents/keyword_agent",
		TotalTimeout:         2 * time.Minute,
	},
	AgentQueryBuilder: {
		Type:                 AgentQueryBuilder,
		Name:                 "Search Query Strategist",
		Tools:                AgentToolMap[AgentQueryBuilder],
		SystemPromptTemplate: "agents/query_builder_agent",
		MaxToolCalls:         10,
		TotalTimeout:         3 * time.Minute,
	},
	AgentRanking: {
		Type:                 AgentRanking,
		Name:                 "Market Position Analyst",
		Tools:                AgentToolMap[AgentRanking],
		SystemPromptTemplate: "agents/ranking_agent",
		TotalTimeout:         2 * time.Minute,
	},
	AgentGlobalNews: {
		Type:                 AgentGlobalNews,
		Name:                 "Global Financial News Analyst",
		Tools:                AgentToolMap[AgentGlobalNews],
		SystemPromptTemplate: "agents/global_news_agent",
		MaxToolCalls:         8,
		TotalTimeout:         3 * time.Minute,
	},
	AgentPortfolioNews: {
		Type:                 AgentPortfolioNews,
		Name:                 "Portfolio News Researcher",
		Tools:                AgentToolMap[AgentPortfolioNews],
		SystemPromptTemplate: "agents/portfolio_news_agent",
		MaxToolCalls:         25,
		TotalTimeout:         4 * time.Minute,
	},
	AgentInfluencerMonitor: {
		Type:                 AgentInfluencerMonitor,
		Name:                 "Market Influencer Monitor",
		Tools:                AgentToolMap[AgentInfluencerMonitor],
		SystemPromptTemplate: "agents/influencer_monitor_agent",
		MaxToolCalls:         10,
		TotalTimeout:         3 * time.Minute,
	},
	AgentSentimentAnalysis: {
		Type:                 AgentSentimentAnalysis,
		Name:                 "Market Sentiment Strategist",
		Tools:                AgentToolMap[AgentSentimentAnalysis],
		SystemPromptTemplate: "agents/sentiment_analysis_agent",
		TotalTimeout:         2 * time.Minute,
	},
	AgentPortfolioStrategy: {
		Type:                 AgentPortfolioStrategy,
		Name:                 "Portfolio Strategy Advisor",
		Tools:                AgentToolMap[AgentPortfolioStrategy],
		SystemPromptTemplate: "agents/portfolio_strategy_agent",
		MaxToolCalls:         15,
		TotalTimeout:         3 * time.Minute,
	},
}

// Lookup returns the config of an agent by name.
func Lookup(name string) (AgentConfig, bool) {
	cfg, ok := DefaultAgentConfigs[AgentType(name)]
	return cfg, ok
}
