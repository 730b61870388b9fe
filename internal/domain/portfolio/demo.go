package portfolio

import "github.com/shopspring/decimal"

// DemoPortfolio is the sample portfolio served by the demo endpoint.
func DemoPortfolio() Portfolio {
	return Portfolio{Holdings: []Holding{
		{Ticker: "AAPL", Company: "Apple Inc.", Allocation: decimal.NewFromInt(15), Sector: "Technology"},
		{Ticker: "MSFT", Company: "Microsoft Corp.", Allocation: decimal.NewFromInt(12), Sector: "Technology"},
		{Ticker: "AMZN", Company: "Amazon.com Inc.", Allocation: decimal.NewFromInt(10), Sector: "Consumer Discretionary"},
		{Ticker: "GOOGL", Company: "Alphabet Inc.", Allocation: decimal.NewFromInt(8), Sector: "Communication Services"},
		{Ticker: "TSLA", Company: "Tesla Inc.", Allocation: decimal.NewFromInt(5), Sector: "Consumer Discretionary"},
	}}
}

// DemoPreferences pairs with DemoPortfolio.
func DemoPreferences() Preferences {
	return Preferences{
		RiskTolerance:     RiskModerate,
		PreferredSectors:  []string{"Technology", "Healthcare"},
		PreferredRegions:  []string{"US", "Europe"},
		InvestmentHorizon: HorizonMedium,
	}
}
