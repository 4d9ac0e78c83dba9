package httpserver

import (
	"github.com/coachpo/tally/internal/domain/ledger"
)

type assetView struct {
	Identifier string `json:"identifier"`
	Symbol     string `json:"symbol"`
	Type       string `json:"type,omitempty"`
}

// Decimal values are rendered as strings to keep full precision.
type eventView struct {
	Identifier      *int64         `json:"identifier,omitempty"`
	EventIdentifier string         `json:"event_identifier"`
	SequenceIndex   int            `json:"sequence_index"`
	Timestamp       int64          `json:"timestamp"`
	Location        string         `json:"location"`
	EventType       string         `json:"event_type"`
	EventSubtype    string         `json:"event_subtype"`
	Asset           assetView      `json:"asset"`
	Amount          string         `json:"amount"`
	USDValue        string         `json:"usd_value"`
	Notes           string         `json:"notes,omitempty"`
	ExtraData       map[string]any `json:"extra_data,omitempty"`
}

func newEventView(ev ledger.Event) eventView {
	return eventView{
		Identifier:      ev.Identifier,
		EventIdentifier: ev.EventIdentifier,
		SequenceIndex:   ev.SequenceIndex,
		Timestamp:       int64(ev.Timestamp),
		Location:        string(ev.Location),
		EventType:       string(ev.EventType),
		EventSubtype:    string(ev.EventSubtype),
		Asset:           assetView{Identifier: ev.Asset.Identifier, Symbol: ev.Asset.Symbol, Type: string(ev.Asset.Type)},
		Amount:          ev.Balance.Amount.String(),
		USDValue:        ev.Balance.USDValue.String(),
		Notes:           ev.Notes,
		ExtraData:       ev.ExtraData,
	}
}

type tradeView struct {
	Timestamp   int64     `json:"timestamp"`
	Location    string    `json:"location"`
	Pair        string    `json:"pair"`
	Side        string    `json:"side"`
	Amount      string    `json:"amount"`
	Rate        string    `json:"rate"`
	Fee         string    `json:"fee"`
	FeeCurrency assetView `json:"fee_currency"`
	Link        string    `json:"link"`
	Notes       string    `json:"notes,omitempty"`
}

func newTradeView(t ledger.Trade) tradeView {
	return tradeView{
		Timestamp:   int64(t.Timestamp),
		Location:    string(t.Location),
		Pair:        string(t.Pair),
		Side:        string(t.Side),
		Amount:      t.Amount.String(),
		Rate:        t.Rate.String(),
		Fee:         t.Fee.String(),
		FeeCurrency: assetView{Identifier: t.FeeCurrency.Identifier, Symbol: t.FeeCurrency.Symbol, Type: string(t.FeeCurrency.Type)},
		Link:        t.Link,
		Notes:       t.Notes,
	}
}
