package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"equity-price-pipeline/internal/domain"
	"equity-price-pipeline/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://query1.finance.yahoo.com"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 5 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultBackoffMult = 2.0
)

// Client implements HistoryProvider against the provider's chart
// endpoint (daily interval).
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	metrics     *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL sets the provider base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithMetrics enables request instrumentation.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a new quotes-provider client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ HistoryProvider = (*Client)(nil)

// DownloadHistory fetches daily bars for ticker. With since set, the
// query starts one day earlier so the caller's upsert sees an overlap;
// without it, the maximum available range is requested. A ticker the
// provider does not know yields an empty result, not an error.
func (c *Client) DownloadHistory(ctx context.Context, ticker string, since *time.Time) ([]domain.PriceBar, error) {
	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("events", "div,split")
	if since != nil {
		start := domain.Day(*since).AddDate(0, 0, -1)
		q.Set("period1", fmt.Sprintf("%d", start.Unix()))
		q.Set("period2", fmt.Sprintf("%d", time.Now().Unix()))
	} else {
		q.Set("range", "max")
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if body == nil {
		// Provider answered "no such symbol / no data".
		return nil, nil
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chart response: %w", err)
	}
	if resp.Chart.Error != nil {
		// Delisted or unknown symbols come back as a chart error.
		return nil, nil
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	return resp.Chart.Result[0].bars(), nil
}

// get performs the request with retries and multiplicative backoff.
// Rate limits (429) and server errors are retried; a 404 is a definitive
// "no data" answer and returns a nil body with nil error.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "equity-price-pipeline/1.0")

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			c.observe("network_error", start)
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			c.observe("read_error", start)
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			c.observe("ok", start)
			return respBody, nil
		case resp.StatusCode == http.StatusNotFound:
			c.observe("not_found", start)
			return nil, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			c.observe("rate_limited", start)
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		default:
			c.observe("http_error", start)
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) observe(outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProviderRequests.WithLabelValues(outcome).Inc()
	c.metrics.ProviderLatency.Observe(time.Since(start).Seconds())
}
