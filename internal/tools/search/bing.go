package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const (
	bingAPI     = "bing"
	bingResults = 10
)

// BingClient queries the Bing Web Search v7 API.
type BingClient struct {
	apiKey string
	url    string
	deps   shared.Deps
}

// NewBingClient creates a client. An empty key is reported on first use.
func NewBingClient(apiKey, url string, deps shared.Deps) *BingClient {
	return &BingClient{apiKey: apiKey, url: url, deps: deps.WithDefaults()}
}

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

// Search runs q and renders the web page snippets as plain text.
func (c *BingClient) Search(ctx context.Context, q string) (string, error) {
	if c.apiKey == "" {
		return "", errors.Wrap(errors.ErrNotConfigured, "BING_API_KEY is not set")
	}

	u, err := url.Parse(c.url)
	if err != nil {
		return "", errors.Wrap(err, "parse bing url")
	}
	query := u.Query()
	query.Set("q", q)
	query.Set("count", fmt.Sprint(bingResults))
	query.Set("textDecorations", "false")
	u.RawQuery = query.Encode()

	var resp bingResponse
	err = shared.FetchJSON(ctx, c.deps, bingAPI, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, v := range resp.WebPages.Value {
		lines = append(lines, fmt.Sprintf("- %s: %s [%s]", v.Name, v.Snippet, v.URL))
	}
	if len(lines) == 0 {
		return "No good Bing Search Result was found", nil
	}
	return strings.Join(lines, "\n"), nil
}
