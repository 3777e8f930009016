// Package httpx provides a simpler http.Client abstraction plus the retry/backoff and
// status classification every registry client and prebuilt provider shares: a BasicClient
// interface and wrapper structs that each add one concern.
package httpx

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// BasicClient is the minimal http.Client surface every wrapper composes over.
type BasicClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ BasicClient = http.DefaultClient

// WithUserAgent adds a fixed User-Agent header to every request.
type WithUserAgent struct {
	BasicClient
	UserAgent string
}

func (c *WithUserAgent) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.UserAgent)
	return c.BasicClient.Do(req)
}

var _ BasicClient = (*WithUserAgent)(nil)

// Outcome classifies a completed HTTP attempt.
type Outcome int

const (
	OutcomeSuccess    Outcome = iota // 2xx
	OutcomeNotFound                  // 404: resource does not exist, not an error
	OutcomeRetryable                 // 429 or 5xx
	OutcomeOtherError                // other 4xx
)

// Classify maps a status code to its Outcome.
func Classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusNotFound:
		return OutcomeNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeOtherError
	}
}

// ErrRetryBudgetExhausted is surfaced when a retryable status persists past MaxRetries.
var ErrRetryBudgetExhausted = errors.New("retryable HTTP status persisted past retry budget")

// RetryingClient retries OutcomeRetryable responses with exponential backoff and jitter,
// up to a bounded budget.
type RetryingClient struct {
	BasicClient
	MaxRetries int
	BaseDelay  time.Duration // defaults to 200ms
}

func (c *RetryingClient) delay(attempt int) time.Duration {
	base := c.BaseDelay
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	d := base * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(d) / 2+1))
	return d + jitter
}

// Do sends req, retrying on OutcomeRetryable responses. On success or a non-retryable
// outcome the response is returned as-is (including 404s, which callers map to "not
// found" semantics themselves). If the retry budget is exhausted while the status is
// still retryable, the last response is returned alongside ErrRetryBudgetExhausted.
func (c *RetryingClient) Do(req *http.Request) (*http.Response, error) {
	var lastResp *http.Response
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(c.delay(attempt - 1)):
			}
		}
		resp, err := c.BasicClient.Do(req)
		if err != nil {
			return nil, err
		}
		if Classify(resp.StatusCode) != OutcomeRetryable {
			return resp, nil
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp
	}
	return lastResp, ErrRetryBudgetExhausted
}

var _ BasicClient = (*RetryingClient)(nil)

// TimeoutClient bounds each request with a per-call context timeout.
type TimeoutClient struct {
	BasicClient
	Timeout time.Duration
}

func (c *TimeoutClient) Do(req *http.Request) (*http.Response, error) {
	if c.Timeout <= 0 {
		return c.BasicClient.Do(req)
	}
	// cancel is intentionally not deferred here: the response body must remain
	// readable after Do returns, and the context's own deadline timer reclaims it.
	ctx, cancel := context.WithTimeout(req.Context(), c.Timeout)
	_ = cancel
	req = req.WithContext(ctx)
	return c.BasicClient.Do(req)
}

var _ BasicClient = (*TimeoutClient)(nil)
