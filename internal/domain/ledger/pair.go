package ledger

import (
	"strings"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
)

// TradePair is a BASE_QUOTE pair of asset identifiers.
type TradePair string

// NewTradePair joins the identifiers of base and quote.
func NewTradePair(base, quote assets.Asset) TradePair {
	return TradePair(base.Identifier + "_" + quote.Identifier)
}

// Split returns the base and quote identifiers.
func (p TradePair) Split() (string, string) {
	base, quote, _ := strings.Cut(string(p), "_")
	return base, quote
}

// ToWorldPair converts an exchange product code such as BTC-USD into a pair of resolved
// asset identifiers. Resolver errors are returned unchanged.
func ToWorldPair(location Location, product string, resolver assets.Resolver) (TradePair, error) {
	parts := strings.Split(product, "-")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", errs.UnprocessablePair(string(location), product)
	}
	base, err := resolver.FromCoinbase(parts[0])
	if err != nil {
		return "", err
	}
	quote, err := resolver.FromCoinbase(parts[1])
	if err != nil {
		return "", err
	}
	return NewTradePair(base, quote), nil
}
