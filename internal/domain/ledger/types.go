// Package ledger defines the canonical records produced by exchange ingestion.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
)

// TimestampMS is a UTC instant at millisecond resolution.
type TimestampMS int64

// FromTime converts t to milliseconds since the Unix epoch.
func FromTime(t time.Time) TimestampMS { return TimestampMS(t.UnixMilli()) }

// Time returns the instant as a UTC time.
func (ts TimestampMS) Time() time.Time { return time.UnixMilli(int64(ts)).UTC() }

// Location identifies the exchange a record came from.
type Location string

const LocationCoinbasePro Location = "COINBASEPRO"

// DisplayName returns the human readable exchange name used in notes.
func (l Location) DisplayName() string {
	switch l {
	case LocationCoinbasePro:
		return "Coinbase Pro"
	default:
		return string(l)
	}
}

// EventType is the direction of a movement.
type EventType string

const (
	EventTypeDeposit    EventType = "DEPOSIT"
	EventTypeWithdrawal EventType = "WITHDRAWAL"
)

// Lower returns the lowercase form used in notes.
func (t EventType) Lower() string { return strings.ToLower(string(t)) }

// EventSubtype refines an EventType.
type EventSubtype string

const (
	EventSubtypeDepositAsset EventSubtype = "DEPOSIT_ASSET"
	EventSubtypeRemoveAsset  EventSubtype = "REMOVE_ASSET"
	EventSubtypeFee          EventSubtype = "FEE"
)

// Balance pairs an amount with its USD value.
type Balance struct {
	Amount   decimal.Decimal
	USDValue decimal.Decimal
}

// Add returns the component-wise sum.
func (b Balance) Add(other Balance) Balance {
	return Balance{
		Amount:   b.Amount.Add(other.Amount),
		USDValue: b.USDValue.Add(other.USDValue),
	}
}

// BalanceMap holds per-asset totals.
type BalanceMap map[assets.Asset]Balance

// Accumulate adds b to the asset total.
func (m BalanceMap) Accumulate(asset assets.Asset, b Balance) {
	m[asset] = m[asset].Add(b)
}

// TradeSide is the taker direction of a trade.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// ParseTradeSide decodes an exchange side string.
func ParseTradeSide(raw string) (TradeSide, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy":
		return TradeSideBuy, true
	case "sell":
		return TradeSideSell, true
	default:
		return "", false
	}
}

// Trade is a canonical executed fill.
type Trade struct {
	Timestamp   TimestampMS
	Location    Location
	Pair        TradePair
	Side        TradeSide
	Amount      decimal.Decimal
	Rate        decimal.Decimal
	Fee         decimal.Decimal
	FeeCurrency assets.Asset
	Link        string
	Notes       string
}

// Severity ranks a diagnostic.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic records why a raw record was dropped.
type Diagnostic struct {
	Severity Severity
	Message  string
	Raw      string
	Err      error
}

// Warning builds a warning diagnostic.
func Warning(message string, raw string) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: message, Raw: raw}
}

// Failure builds an error diagnostic wrapping err.
func Failure(message string, raw string, err error) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: message, Raw: raw, Err: err}
}
