// Package persistence holds the row codec shared by the SQL ledger stores.
package persistence

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
)

// DefaultListLimit caps list queries that set no limit.
const DefaultListLimit = 1000

// EventRow is the column form of a ledger event.
type EventRow struct {
	ID              int64
	RunID           string
	EventIdentifier string
	SequenceIndex   int
	TimestampMS     int64
	Location        string
	EventType       string
	EventSubtype    string
	Asset           string
	AssetSymbol     string
	AssetType       string
	Amount          string
	USDValue        string
	Notes           string
	ExtraData       []byte
}

// TradeRow is the column form of a trade.
type TradeRow struct {
	RunID             string
	TimestampMS       int64
	Location          string
	Pair              string
	Side              string
	Amount            string
	Rate              string
	Fee               string
	FeeCurrency       string
	FeeCurrencySymbol string
	FeeCurrencyType   string
	Link              string
	Notes             string
}

// EncodeEvent flattens ev for insertion under runID.
func EncodeEvent(runID string, ev ledger.Event) (EventRow, error) {
	if strings.TrimSpace(ev.EventIdentifier) == "" {
		return EventRow{}, fmt.Errorf("event identifier required")
	}
	var extra []byte
	if len(ev.ExtraData) > 0 {
		data, err := json.Marshal(ev.ExtraData)
		if err != nil {
			return EventRow{}, fmt.Errorf("marshal extra data: %w", err)
		}
		extra = data
	}
	return EventRow{
		RunID:           runID,
		EventIdentifier: ev.EventIdentifier,
		SequenceIndex:   ev.SequenceIndex,
		TimestampMS:     int64(ev.Timestamp),
		Location:        string(ev.Location),
		EventType:       string(ev.EventType),
		EventSubtype:    string(ev.EventSubtype),
		Asset:           ev.Asset.Identifier,
		AssetSymbol:     ev.Asset.Symbol,
		AssetType:       string(ev.Asset.Type),
		Amount:          ev.Balance.Amount.String(),
		USDValue:        ev.Balance.USDValue.String(),
		Notes:           ev.Notes,
		ExtraData:       extra,
	}, nil
}

// DecodeEvent rebuilds the event stored in row, including its Identifier.
func DecodeEvent(row EventRow) (ledger.Event, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event %d amount: %w", row.ID, err)
	}
	usd, err := decimal.NewFromString(orZero(row.USDValue))
	if err != nil {
		return ledger.Event{}, fmt.Errorf("event %d usd value: %w", row.ID, err)
	}
	var extra map[string]any
	if len(row.ExtraData) > 0 && string(row.ExtraData) != "null" {
		if err := json.Unmarshal(row.ExtraData, &extra); err != nil {
			return ledger.Event{}, fmt.Errorf("event %d extra data: %w", row.ID, err)
		}
	}
	ev := ledger.Event{
		EventIdentifier: row.EventIdentifier,
		SequenceIndex:   row.SequenceIndex,
		Timestamp:       ledger.TimestampMS(row.TimestampMS),
		Location:        ledger.Location(row.Location),
		EventType:       ledger.EventType(row.EventType),
		EventSubtype:    ledger.EventSubtype(row.EventSubtype),
		Asset:           assets.Asset{Identifier: row.Asset, Symbol: row.AssetSymbol, Type: assets.Type(row.AssetType)},
		Balance:         ledger.Balance{Amount: amount, USDValue: usd},
		Notes:           row.Notes,
		ExtraData:       extra,
	}
	return ev.WithIdentifier(row.ID), nil
}

// EncodeTrade flattens t for insertion under runID.
func EncodeTrade(runID string, t ledger.Trade) (TradeRow, error) {
	if strings.TrimSpace(t.Link) == "" {
		return TradeRow{}, fmt.Errorf("trade link required")
	}
	return TradeRow{
		RunID:             runID,
		TimestampMS:       int64(t.Timestamp),
		Location:          string(t.Location),
		Pair:              string(t.Pair),
		Side:              string(t.Side),
		Amount:            t.Amount.String(),
		Rate:              t.Rate.String(),
		Fee:               t.Fee.String(),
		FeeCurrency:       t.FeeCurrency.Identifier,
		FeeCurrencySymbol: t.FeeCurrency.Symbol,
		FeeCurrencyType:   string(t.FeeCurrency.Type),
		Link:              t.Link,
		Notes:             t.Notes,
	}, nil
}

// DecodeTrade rebuilds the trade stored in row.
func DecodeTrade(row TradeRow) (ledger.Trade, error) {
	values := make([]decimal.Decimal, 3)
	for i, raw := range []string{row.Amount, row.Rate, orZero(row.Fee)} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return ledger.Trade{}, fmt.Errorf("trade %s: decode %q: %w", row.Link, raw, err)
		}
		values[i] = d
	}
	return ledger.Trade{
		Timestamp: ledger.TimestampMS(row.TimestampMS),
		Location:  ledger.Location(row.Location),
		Pair:      ledger.TradePair(row.Pair),
		Side:      ledger.TradeSide(row.Side),
		Amount:    values[0],
		Rate:      values[1],
		Fee:       values[2],
		FeeCurrency: assets.Asset{
			Identifier: row.FeeCurrency,
			Symbol:     row.FeeCurrencySymbol,
			Type:       assets.Type(row.FeeCurrencyType),
		},
		Link:  row.Link,
		Notes: row.Notes,
	}, nil
}

// Limit returns the effective list limit.
func Limit(requested int) int {
	if requested <= 0 {
		return DefaultListLimit
	}
	return requested
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}
