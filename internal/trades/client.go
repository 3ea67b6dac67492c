package trades

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/polysweep/internal/model"
)

// DefaultBaseURL is the public Polymarket Data API.
const DefaultBaseURL = "https://data-api.polymarket.com"

const (
	// DefaultPageLimit is the page size for /trades pagination.
	DefaultPageLimit = 500

	// DefaultPageDelay spaces paginated requests to stay under rate limits.
	DefaultPageDelay = 500 * time.Millisecond
)

// Client provides access to the Data API trade history endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
	pageLimit    int
	pageDelay    time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new Data API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
		pageLimit:    DefaultPageLimit,
		pageDelay:    DefaultPageDelay,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPageLimit sets the page size for pagination.
func WithPageLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithPageDelay sets the pause between paginated requests.
func WithPageDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.pageDelay = d
	}
}

// PageOptions bounds a UserTrades fetch.
type PageOptions struct {
	// MaxTrades stops pagination once this many trades have been collected.
	// Zero means no cap.
	MaxTrades int
}

// UserTrades fetches the full trade history for a wallet, paginating through
// /trades until the API returns a short page. Trades with no usable timestamp
// are skipped with a warning rather than failing the whole fetch.
func (c *Client) UserTrades(ctx context.Context, wallet string, opts PageOptions) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	offset := 0

	for page := 0; ; page++ {
		if page > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.pageDelay):
			}
		}

		query := url.Values{}
		query.Set("user", wallet)
		query.Set("limit", strconv.Itoa(c.pageLimit))
		query.Set("offset", strconv.Itoa(offset))

		var wire []wireTrade
		if err := c.get(ctx, "/trades", query, &wire); err != nil {
			return nil, fmt.Errorf("fetch trades at offset %d: %w", offset, err)
		}

		c.logger.Debug("trade page received",
			"offset", offset,
			"count", len(wire),
		)

		for i := range wire {
			rec, err := wire[i].record(wallet)
			if err != nil {
				c.logger.Warn("skipping trade",
					"offset", offset,
					"index", i,
					"error", err,
				)
				continue
			}
			out = append(out, rec)
			if opts.MaxTrades > 0 && len(out) >= opts.MaxTrades {
				return out, nil
			}
		}

		if len(wire) < c.pageLimit {
			break
		}
		offset += c.pageLimit
	}

	c.logger.Info("trade history fetched",
		"wallet", wallet,
		"trades", len(out),
	)
	return out, nil
}
