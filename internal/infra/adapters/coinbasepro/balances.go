package coinbasepro

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/valuation"
)

const balanceFailure = "Error processing a coinbase pro account balance. Check logs for details. Ignoring it."

// AggregateBalances sums raw account balances per asset with their USD value. Bad entries become
// diagnostics and never fail the whole set.
func AggregateBalances(ctx context.Context, raw []json.RawMessage, resolver assets.Resolver, oracle valuation.Oracle) (ledger.BalanceMap, []ledger.Diagnostic) {
	balances := make(ledger.BalanceMap)
	var diags []ledger.Diagnostic
	for _, item := range raw {
		var account accountRecord
		if err := json.Unmarshal(item, &account); err != nil {
			diags = append(diags, ledger.Failure(balanceFailure, string(item),
				errs.Deserialization(coinbaseproMetadata.identifier, "decode account", err)))
			continue
		}
		if account.Balance == "" {
			diags = append(diags, ledger.Failure(balanceFailure, string(item), errs.MissingKey(coinbaseproMetadata.identifier, "balance")))
			continue
		}
		amount, err := decimal.NewFromString(account.Balance)
		if err != nil {
			diags = append(diags, ledger.Failure(balanceFailure, string(item),
				errs.Deserialization(coinbaseproMetadata.identifier, "invalid balance "+account.Balance, err)))
			continue
		}
		// the exchange lists a zero balance for every currency it supports
		if amount.IsZero() {
			continue
		}
		if account.Currency == "" {
			diags = append(diags, ledger.Failure(balanceFailure, string(item), errs.MissingKey(coinbaseproMetadata.identifier, "currency")))
			continue
		}
		asset, err := resolver.FromCoinbase(account.Currency)
		if err != nil {
			kind := "unknown"
			if errs.CodeOf(err) == errs.CodeUnsupportedAsset {
				kind = "unsupported"
			}
			diags = append(diags, ledger.Warning(
				fmt.Sprintf("Found coinbase pro balance result with %s asset %s. Ignoring it.", kind, account.Currency),
				string(item)))
			continue
		}
		price, err := oracle.USDPrice(ctx, asset)
		if err != nil {
			diags = append(diags, ledger.Failure(
				fmt.Sprintf("Error processing coinbasepro balance result due to inability to query USD price: %v. Skipping balance entry", err),
				string(item), err))
			continue
		}
		balances.Accumulate(asset, ledger.Balance{Amount: amount, USDValue: amount.Mul(price)})
	}
	return balances, diags
}
