// Package sources contains the clients for the external weather and snow
// data providers: the Open-Meteo grid model, the NWS gridpoint snowfall
// overlay, and the Synoptic and SNOTEL station networks.
//
// Every client goes through the shared retrying Client below, so transient
// failures (timeouts, 5xx, rate limits) are retried with exponential backoff
// and a repeatedly failing provider trips its circuit breaker instead of
// stalling a pipeline run.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsTransient reports whether an error is worth retrying: timeouts and
// network errors, HTTP 5xx, and HTTP 429 rate limits.
func IsTransient(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	// Anything that is not an HTTP status error is a transport-level failure.
	return true
}

// Client is a retrying HTTP client shared by all source integrations.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	retries int
	base    time.Duration
	headers map[string]string
	logger  *zap.SugaredLogger
}

// NewClient creates a named source client. retries is the total number of
// attempts per request; base is the initial backoff interval, doubling on
// each retry.
func NewClient(name string, timeout time.Duration, retries int, base time.Duration, logger *zap.SugaredLogger) *Client {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		retries: retries,
		base:    base,
		headers: make(map[string]string),
		logger:  logger,
	}
}

// SetHeader sets a header sent with every request (e.g. the NWS User-Agent).
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// GetJSON performs a GET request with retry and decodes the JSON response
// into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out interface{}) error {
	body, err := c.getWithRetry(ctx, rawURL, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: error decoding response: %w", c.name, err)
	}
	return nil
}

func (c *Client) getWithRetry(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.base
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.get(ctx, rawURL, params)
		})
		if err == nil {
			body = result.([]byte)
			return nil
		}
		if !IsTransient(err) || errors.Is(err, gobreaker.ErrOpenState) {
			return backoff.Permanent(err)
		}
		c.logger.Warnf("%s fetch attempt %d/%d failed: %v", c.name, attempt, c.retries, err)
		return err
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries-1)), ctx)
	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return nil, fmt.Errorf("%s: all %d fetch attempts failed: %w", c.name, c.retries, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u := rawURL
	if len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	return io.ReadAll(resp.Body)
}
