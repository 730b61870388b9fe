// Package quotes provides the stock quote tool.
package quotes

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const alphaVantageAPI = "alphavantage"

// ErrNoQuote means the API answered without quote data for the symbol.
var ErrNoQuote = errors.New("no quote data")

// Quote is a normalized GLOBAL_QUOTE answer.
type Quote struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change           decimal.Decimal `json:"change"`
	ChangePercent    string          `json:"change_percent"`
	Volume           int64           `json:"volume"`
	LatestTradingDay string          `json:"latest_trading_day"`
}

// AlphaVantageClient fetches quotes from Alpha Vantage.
type AlphaVantageClient struct {
	apiKey string
	url    string
	deps   shared.Deps
}

// NewAlphaVantageClient creates a client. An empty key is reported on first use.
func NewAlphaVantageClient(apiKey, url string, deps shared.Deps) *AlphaVantageClient {
	return &AlphaVantageClient{apiKey: apiKey, url: url, deps: deps.WithDefaults()}
}

type globalQuoteResponse struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	ErrorMsg    string            `json:"Error Message"`
}

// GlobalQuote returns the latest quote of symbol.
func (c *AlphaVantageClient) GlobalQuote(ctx context.Context, symbol string) (*Quote, error) {
	if c.apiKey == "" {
		return nil, errors.Wrap(errors.ErrNotConfigured, "ALPHA_VANTAGE_API_KEY is not set")
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return nil, errors.Wrap(err, "parse alpha vantage url")
	}
	q := u.Query()
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	u.RawQuery = q.Encode()

	var resp globalQuoteResponse
	err = shared.FetchJSON(ctx, c.deps, alphaVantageAPI, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}, &resp)
	if err != nil {
		return nil, err
	}

	// Alpha Vantage reports throttling with a 200 and a Note or Information field.
	switch {
	case resp.Note != "":
		return nil, errors.Wrap(errors.ErrRateLimitExceeded, resp.Note)
	case resp.Information != "":
		return nil, errors.Wrap(errors.ErrRateLimitExceeded, resp.Information)
	case resp.ErrorMsg != "":
		return nil, errors.Wrapf(ErrNoQuote, "%s: %s", symbol, resp.ErrorMsg)
	case len(resp.GlobalQuote) == 0:
		return nil, errors.Wrap(ErrNoQuote, symbol)
	}

	return parseGlobalQuote(resp.GlobalQuote)
}

func parseGlobalQuote(raw map[string]string) (*Quote, error) {
	quote := &Quote{
		Symbol:           raw["01. symbol"],
		ChangePercent:    raw["10. change percent"],
		LatestTradingDay: raw["07. latest trading day"],
	}

	var err error
	if quote.Price, err = decimal.NewFromString(raw["05. price"]); err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "invalid price %q", raw["05. price"])
	}
	if v := raw["09. change"]; v != "" {
		if quote.Change, err = decimal.NewFromString(v); err != nil {
			return nil, errors.Wrapf(errors.ErrExternal, "invalid change %q", v)
		}
	}
	if v := raw["06. volume"]; v != "" {
		volume, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrExternal, "invalid volume %q", v)
		}
		quote.Volume = volume.IntPart()
	}
	return quote, nil
}
