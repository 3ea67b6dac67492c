package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// Sentinel errors for structurally empty catalog responses.
var (
	ErrNoMarkets = errors.New("event has no markets")
	ErrNoTokens  = errors.New("market has no token ids")
)

// EventBySlug fetches an event and its markets by slug.
func (c *Client) EventBySlug(ctx context.Context, slug string) (*Event, error) {
	var ev Event
	if err := c.get(ctx, "/events/slug/"+url.PathEscape(slug), nil, &ev); err != nil {
		return nil, fmt.Errorf("get event %s: %w", slug, err)
	}
	return &ev, nil
}

// MarketBySlug fetches a single market by slug.
func (c *Client) MarketBySlug(ctx context.Context, slug string) (*Market, error) {
	var m Market
	if err := c.get(ctx, "/markets/slug/"+url.PathEscape(slug), nil, &m); err != nil {
		return nil, fmt.Errorf("get market %s: %w", slug, err)
	}
	return &m, nil
}
