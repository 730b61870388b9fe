// Package search holds the web and news search tools agents call.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiiskristo/marketpulse-backend/internal/tools/shared"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const serperAPI = "serper"

// SerperClient queries the Serper Google search API.
type SerperClient struct {
	apiKey string
	url    string
	deps   shared.Deps
}

// NewSerperClient creates a client. An empty key is reported on first use.
func NewSerperClient(apiKey, url string, deps shared.Deps) *SerperClient {
	return &SerperClient{apiKey: apiKey, url: url, deps: deps.WithDefaults()}
}

type serperResponse struct {
	AnswerBox *struct {
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
		Date    string `json:"date"`
	} `json:"organic"`
}

// Search runs q and renders the results as plain text.
func (c *SerperClient) Search(ctx context.Context, q string) (string, error) {
	if c.apiKey == "" {
		return "", errors.Wrap(errors.ErrNotConfigured, "SERPER_API_KEY is not set")
	}

	payload, err := json.Marshal(map[string]string{"q": q})
	if err != nil {
		return "", errors.Wrap(err, "encode serper query")
	}

	var resp serperResponse
	err = shared.FetchJSON(ctx, c.deps, serperAPI, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &resp)
	if err != nil {
		return "", err
	}

	return resp.render(), nil
}

func (r serperResponse) render() string {
	var lines []string
	if r.AnswerBox != nil {
		if a := strings.TrimSpace(r.AnswerBox.Answer); a != "" {
			lines = append(lines, "Answer: "+a)
		} else if s := strings.TrimSpace(r.AnswerBox.Snippet); s != "" {
			lines = append(lines, "Answer: "+s)
		}
	}
	if r.KnowledgeGraph != nil && r.KnowledgeGraph.Description != "" {
		lines = append(lines, fmt.Sprintf("%s: %s", r.KnowledgeGraph.Title, r.KnowledgeGraph.Description))
	}
	for _, o := range r.Organic {
		if o.Snippet == "" {
			continue
		}
		title := o.Title
		if o.Date != "" {
			title += " (" + o.Date + ")"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s [%s]", title, o.Snippet, o.Link))
	}

	if len(lines) == 0 {
		return "No good Google Search Result was found"
	}
	return strings.Join(lines, "\n")
}
