package agents

import (
	"github.com/kiiskristo/marketpulse-backend/internal/tools/quotes"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/search"
)

// AgentToolMap lists the tools each agent may call, in the order they are
// offered to the model.
var AgentToolMap = map[AgentType][]string{
	AgentKeyword:      nil,
	AgentQueryBuilder: {search.MarketSearch},
	AgentRanking:      nil,

	AgentGlobalNews:        {search.FinancialNewsSearch},
	AgentPortfolioNews:     {search.FinancialNewsSearch, quotes.StockQuote},
	AgentInfluencerMonitor: {search.InfluencerMonitor},
	AgentSentimentAnalysis: nil,
	AgentPortfolioStrategy: {quotes.StockQuote},
}
