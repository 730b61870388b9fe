// Package agents runs pipeline stages as LLM agents with tools.
package agents

import "github.com/kiiskristo/marketpulse-backend/internal/pipeline"

// AgentType enumerates supported agent specializations.
type AgentType string

const (
	AgentKeyword      AgentType = "keyword_agent"
	AgentQueryBuilder AgentType = "query_builder_agent"
	AgentRanking      AgentType = "ranking_agent"

	AgentGlobalNews        AgentType = "global_news_agent"
	AgentPortfolioNews     AgentType = "portfolio_news_agent"
	AgentInfluencerMonitor AgentType = "influencer_monitor_agent"
	AgentSentimentAnalysis AgentType = "sentiment_analysis_agent"
	AgentPortfolioStrategy AgentType = "portfolio_strategy_agent"
)

// PromptData is the value prompt templates are rendered with.
type PromptData struct {
	Stage    string
	Today    string
	Inputs   map[string]any
	Previous *pipeline.StageResult
	Prior    []pipeline.StageResult
}
