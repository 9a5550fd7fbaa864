// Package pumpapi is the REST client for the pump.fun data API used by
// the polling ingestion path. Responses are loosely shaped, so the
// client hands back raw JSON objects for the normalizer to interpret.
package pumpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://pumpportal.fun"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultPageSize   = 50
)

// Client talks to the coin and trade endpoints with retry and
// exponential backoff.
type Client struct {
	baseURL      string
	client       *http.Client
	maxRetries   int
	retryDelay   time.Duration
	maxDelay     time.Duration
	pageSize     int
	requestDelay time.Duration
}

// ClientOption configures Client.
type ClientOption func(*Client)

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

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithPageSize sets the per-request page size for coin listing.
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRequestDelay sets the pacing delay between listing pages.
func WithRequestDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestDelay = d
	}
}

// NewClient creates a pump.fun API client. An empty baseURL uses the
// default endpoint.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatus mirrors the upstream API's transient failure modes,
// including the Cloudflare 52x family it sits behind.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		520, 522, 525, 530:
		return true
	}
	return false
}

// get performs a GET with retries and exponential backoff and decodes
// the body as loosely typed JSON.
func (c *Client) get(ctx context.Context, path string, query url.Values) (any, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			if retryableStatus(resp.StatusCode) {
				continue
			}
			return nil, lastErr
		}

		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}
		return payload, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// coinListKeys are the wrappers the coin endpoint has been observed to
// use around its result list.
var coinListKeys = []string{"coins", "data", "items", "result", "results"}

// tradeListKeys are the wrappers used by the trade endpoint.
var tradeListKeys = []string{"trades", "data", "items", "results"}

// unwrapList digs the object list out of a loosely shaped payload: a
// bare array, a wrapper object keyed by one of keys, or one level of
// items/data nesting below that.
func unwrapList(payload any, keys []string) []map[string]any {
	switch v := payload.(type) {
	case []any:
		return onlyObjects(v)
	case map[string]any:
		for _, key := range keys {
			switch inner := v[key].(type) {
			case []any:
				return onlyObjects(inner)
			case map[string]any:
				if nested, ok := inner["items"].([]any); ok {
					return onlyObjects(nested)
				}
				if nested, ok := inner["data"].([]any); ok {
					return onlyObjects(nested)
				}
			}
		}
		// A single coin object served without a wrapper.
		if _, hasName := v["name"]; hasName {
			if _, hasMint := v["mint"]; hasMint {
				return []map[string]any{v}
			}
		}
	}
	return nil
}

func onlyObjects(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// ListOptions controls coin listing.
type ListOptions struct {
	Offset int
	Limit  int // total coins wanted across pages; 0 means one page
}

// ListCoins pages through the coin endpoint newest-first and returns
// the raw coin objects, deduplicated by mint. Paging stops when the
// API runs dry or the requested limit is reached.
func (c *Client) ListCoins(ctx context.Context, opts ListOptions) ([]map[string]any, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = c.pageSize
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	seen := make(map[string]bool)
	var coins []map[string]any

	for len(coins) < limit {
		pageLimit := c.pageSize
		if remaining := limit - len(coins); remaining < pageLimit {
			pageLimit = remaining
		}
		query := url.Values{
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(pageLimit)},
			"sort":   {"created_timestamp"},
			"order":  {"DESC"},
		}

		payload, err := c.get(ctx, "/coins", query)
		if err != nil {
			if len(coins) > 0 {
				return coins, nil
			}
			return nil, err
		}

		page := unwrapList(payload, coinListKeys)
		if len(page) == 0 {
			break
		}

		added := 0
		for _, coin := range page {
			key := mintOf(coin)
			if key == "" {
				key = fmt.Sprintf("anon:%d", len(coins))
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			coins = append(coins, coin)
			added++
		}
		offset += pageLimit

		// A short page with nothing new means the API is exhausted.
		if len(page) < pageLimit && added == 0 {
			break
		}

		if c.requestDelay > 0 && len(coins) < limit {
			select {
			case <-ctx.Done():
				return coins, ctx.Err()
			case <-time.After(c.requestDelay):
			}
		}
	}

	if len(coins) > limit {
		coins = coins[:limit]
	}
	return coins, nil
}

// Trades fetches the recent trades for one mint as raw objects.
func (c *Client) Trades(ctx context.Context, mint string, limit int) ([]map[string]any, error) {
	if mint == "" {
		return nil, fmt.Errorf("pumpapi: empty mint")
	}
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	payload, err := c.get(ctx, "/trades/"+url.PathEscape(mint), query)
	if err != nil {
		return nil, err
	}
	return unwrapList(payload, tradeListKeys), nil
}

func mintOf(coin map[string]any) string {
	for _, key := range []string{"mint", "mint_address", "address"} {
		if s, ok := coin[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
