// Package valuation looks up USD prices for assets.
package valuation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
)

// Oracle returns the USD price of one unit of an asset.
type Oracle interface {
	USDPrice(ctx context.Context, asset assets.Asset) (decimal.Decimal, error)
}

// Static serves prices from a fixed table keyed by asset symbol. USD is always 1.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic builds a Static oracle.
func NewStatic(prices map[string]decimal.Decimal) *Static {
	normalized := make(map[string]decimal.Decimal, len(prices)+1)
	for sym, price := range prices {
		normalized[strings.ToUpper(strings.TrimSpace(sym))] = price
	}
	if _, ok := normalized["USD"]; !ok {
		normalized["USD"] = decimal.NewFromInt(1)
	}
	return &Static{prices: normalized}
}

func (s *Static) USDPrice(_ context.Context, asset assets.Asset) (decimal.Decimal, error) {
	price, ok := s.prices[strings.ToUpper(asset.Symbol)]
	if !ok {
		return decimal.Zero, errs.New("prices", errs.CodeRemote,
			errs.WithAsset(asset.Symbol),
			errs.WithMessage("no usd price available"))
	}
	return price, nil
}

// Cached memoizes another oracle's successful lookups for a TTL.
type Cached struct {
	next  Oracle
	cache *cache.Cache
}

// NewCached wraps next with a go-cache backed memo.
func NewCached(next Oracle, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) USDPrice(ctx context.Context, asset assets.Asset) (decimal.Decimal, error) {
	if v, ok := c.cache.Get(asset.Identifier); ok {
		return v.(decimal.Decimal), nil
	}
	price, err := c.next.USDPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, fmt.Errorf("usd price %s: %w", asset.Symbol, err)
	}
	c.cache.SetDefault(asset.Identifier, price)
	return price, nil
}
