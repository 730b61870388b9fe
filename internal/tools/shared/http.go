package shared

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/retry"
	"github.com/kiiskristo/marketpulse-backend/internal/metrics"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const maxErrorBody = 512

// RequestFunc builds a fresh request for every attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// FetchJSON sends the request built by newReq, retrying transient failures,
// and decodes a 2xx JSON body into out.
func FetchJSON(ctx context.Context, deps Deps, api string, newReq RequestFunc, out interface{}) error {
	body, err := retry.DoWithResult(ctx, deps.Retry, func(ctx context.Context) ([]byte, error) {
		return fetchOnce(ctx, deps.HTTP, api, newReq)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(errors.ErrExternal, "%s returned invalid JSON: %v", api, err)
	}
	return nil
}

func fetchOnce(ctx context.Context, client *http.Client, api string, newReq RequestFunc) (body []byte, err error) {
	start := time.Now()
	defer func() { metrics.RecordExternalAPICall(api, time.Since(start), err) }()

	req, err := newReq(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", api)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt := string(body)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return nil, &retry.HTTPError{API: api, Status: resp.StatusCode, Body: excerpt}
	}
	return body, nil
}
