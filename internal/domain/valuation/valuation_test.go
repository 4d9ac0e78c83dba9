package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
)

type countingOracle struct {
	calls int
	price decimal.Decimal
}

func (c *countingOracle) USDPrice(context.Context, assets.Asset) (decimal.Decimal, error) {
	c.calls++
	return c.price, nil
}

func TestStaticPrices(t *testing.T) {
	oracle := NewStatic(map[string]decimal.Decimal{"eth": decimal.NewFromInt(2000)})
	price, err := oracle.USDPrice(context.Background(), assets.Asset{Identifier: "ETH", Symbol: "ETH"})
	if err != nil || !price.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected eth price %s %v", price, err)
	}
	usd, err := oracle.USDPrice(context.Background(), assets.Asset{Identifier: "USD", Symbol: "USD"})
	if err != nil || !usd.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected usd to be 1, got %s %v", usd, err)
	}
	if _, err := oracle.USDPrice(context.Background(), assets.Asset{Symbol: "DOGE"}); !errs.IsRemote(err) {
		t.Fatalf("expected remote error for missing price, got %v", err)
	}
}

func TestCachedOracleMemoizes(t *testing.T) {
	next := &countingOracle{price: decimal.NewFromInt(3)}
	oracle := NewCached(next, time.Minute)
	btc := assets.Asset{Identifier: "BTC", Symbol: "BTC"}
	for i := 0; i < 3; i++ {
		if _, err := oracle.USDPrice(context.Background(), btc); err != nil {
			t.Fatalf("lookup: %v", err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", next.calls)
	}
}
