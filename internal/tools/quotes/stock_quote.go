package quotes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dustin/go-humanize"
	"google.golang.org/adk/tool"

	"github.com/kiiskristo/marketpulse-backend/internal/cache"
	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// StockQuote is the tool name.
const StockQuote = "stock_quote"

const (
	quoteNamespace = "quotes"
	toolTimeout    = 30 * time.Second
)

// quoteOutput is the JSON the model receives.
type quoteOutput struct {
	Symbol           string `json:"symbol"`
	Price            string `json:"price"`
	Change           string `json:"change"`
	ChangePercent    string `json:"change_percent"`
	Volume           string `json:"volume"`
	VolumeReadable   string `json:"volume_readable"`
	LatestTradingDay string `json:"latest_trading_day"`
}

// QuoteArgs are the arguments of stock_quote.
type QuoteArgs struct {
	Symbol string `json:"symbol" jsonschema:"Stock ticker symbol to get quote data for."`
}

// NewStockQuoteTool returns the stock quote tool, cached for ttl per symbol.
func NewStockQuoteTool(client *AlphaVantageClient, ttl time.Duration, deps shared.Deps) (tool.Tool, error) {
	return stockQuote(client, ttl, deps).Build()
}

func stockQuote(client *AlphaVantageClient, ttl time.Duration, deps shared.Deps) *shared.ToolBuilder[QuoteArgs] {
	deps = deps.WithDefaults()
	return shared.NewToolBuilder(
		StockQuote,
		"Use this tool to get current stock price data and basic information. "+
			"Provide a ticker symbol to get current price, change, volume, and other basic data.",
		func(ctx context.Context, args QuoteArgs) (string, error) {
			raw, err := shared.Required("symbol", args.Symbol)
			if err != nil {
				return "", err
			}
			symbol := cache.SymbolKey(raw)
			if symbol == "" {
				return "", errors.NewValidationError("symbol", "not a ticker symbol", raw)
			}

			return shared.Cached(ctx, deps, quoteNamespace, symbol, cache.For(ttl),
				func(ctx context.Context) (string, error) {
					quote, err := client.GlobalQuote(ctx, symbol)
					if err == nil || errors.Is(err, ErrNoQuote) {
						if uerr := deps.Usage.Record(ctx, alphaVantageAPI, "quote", symbol); uerr != nil {
							deps.Log.Warnw("Usage log write failed", "api", alphaVantageAPI, "error", uerr)
						}
					}
					if errors.Is(err, ErrNoQuote) {
						return "", errors.Newf("could not retrieve quote data for %s", symbol)
					}
					if err != nil {
						return "", err
					}
					return formatQuote(quote)
				})
		},
		deps,
	).WithTimeout(toolTimeout).WithStats().WithErrorText("Error retrieving stock quote")
}

func formatQuote(q *Quote) (string, error) {
	out := quoteOutput{
		Symbol:           q.Symbol,
		Price:            q.Price.StringFixed(2),
		Change:           q.Change.StringFixed(2),
		ChangePercent:    q.ChangePercent,
		Volume:           humanize.Comma(q.Volume),
		VolumeReadable:   humanize.SIWithDigits(float64(q.Volume), 1, ""),
		LatestTradingDay: q.LatestTradingDay,
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encode quote")
	}
	return string(b), nil
}
