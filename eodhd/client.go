/*
client.go - EODHD fundamentals fetcher

PURPOSE:
  Implements fundamentals.Fetcher over the EODHD fundamentals endpoint:

    GET {base}/{SYMBOL}?api_token=...&fmt=json

  Every failure (rate limiter cancelled, transport, non-200, decode) comes
  back as a *fundamentals.FetchError, so callers can test for
  fundamentals.ErrSourceUnavailable.

SEE ALSO:
  - store/sqlite/cache.go: TTL cache in front of this client
*/
package eodhd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warp/fundamentals-engine/fundamentals"
)

const (
	// DefaultBaseURL is the fundamentals endpoint.
	DefaultBaseURL = "https://eodhd.com/api/fundamentals"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second.
	DefaultRateLimit = 5

	maxErrorBody = 512
)

// Client fetches fundamentals payloads.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("client", "eodhd").Logger()
	}
}

// WithRateLimit sets requests per second. Zero or less disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a client authenticated with apiToken.
func NewClient(apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves and decodes the fundamentals document of symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (*fundamentals.Payload, error) {
	body, err := c.FetchRaw(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p, err := fundamentals.DecodePayload(body)
	if err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("decode response: %w", err)}
	}
	return p, nil
}

// FetchRaw returns the undecoded response body.
func (c *Client) FetchRaw(ctx context.Context, symbol string) ([]byte, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("empty symbol")}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	params := url.Values{}
	params.Set("api_token", c.apiToken)
	params.Set("fmt", "json")
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("create request: %w", err)}
	}

	start := time.Now()
	c.log.Debug().Str("symbol", symbol).Msg("fetching fundamentals")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fundamentals.FetchError{Symbol: symbol, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &fundamentals.FetchError{
			Symbol: symbol,
			Err:    &APIError{StatusCode: resp.StatusCode, Message: msg},
		}
	}

	c.log.Info().
		Str("symbol", symbol).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("fundamentals fetched")
	return body, nil
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eodhd: status %d: %s", e.StatusCode, e.Message)
}
