package coinbasepro

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/valuation"
)

func TestAggregateBalances(t *testing.T) {
	resolver := assets.NewRegistry([]assets.Asset{testETH, testBTC, {Identifier: "LTC", Symbol: "LTC"}}, "CGLD")
	oracle := valuation.NewStatic(map[string]decimal.Decimal{
		"ETH": decimal.NewFromInt(2000),
		"BTC": decimal.NewFromInt(30000),
	})
	raw := raws(
		`{"id":"1","currency":"ETH","balance":"1.5"}`,
		`{"id":"2","currency":"ETH","balance":"0.5"}`,
		`{"id":"3","currency":"BTC","balance":"0.0000000000"}`,
		`{"id":"4","currency":"DOGE","balance":"10"}`,
		`{"id":"5","currency":"CGLD","balance":"10"}`,
		`{"id":"6","currency":"LTC","balance":"3"}`,
		`{"id":"7","currency":"BTC","balance":"lots"}`,
		`{"id":"8","currency":"BTC"}`,
	)

	balances, diags := AggregateBalances(context.Background(), raw, resolver, oracle)
	if len(balances) != 1 {
		t.Fatalf("expected only eth to survive, got %v", balances)
	}
	eth := balances[testETH]
	if !eth.Amount.Equal(decimal.NewFromInt(2)) || !eth.USDValue.Equal(decimal.NewFromInt(4000)) {
		t.Fatalf("expected accumulated eth balance, got %+v", eth)
	}

	var warnings, errors int
	for _, d := range diags {
		if d.Severity == ledger.SeverityWarning {
			warnings++
		} else {
			errors++
		}
	}
	// unknown + unsupported are warnings; missing price, malformed and missing balance are errors
	if warnings != 2 || errors != 3 {
		t.Fatalf("expected 2 warnings and 3 errors, got %d and %d: %+v", warnings, errors, diags)
	}
}
