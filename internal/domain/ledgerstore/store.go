// Package ledgerstore defines persistence contracts for canonical ledger records.
package ledgerstore

import (
	"context"
	"errors"
	"time"

	"github.com/coachpo/tally/internal/domain/ledger"
)

// ErrInvalidRun is returned when a run has no identifier.
var ErrInvalidRun = errors.New("ledger store: run id required")

// Run describes one ingestion pass over a window.
type Run struct {
	ID        string
	StartedAt time.Time
	From      ledger.TimestampMS
	To        ledger.TimestampMS
}

// EventQuery scopes event lookups.
type EventQuery struct {
	Location        ledger.Location
	EventIdentifier string
	From            ledger.TimestampMS
	To              ledger.TimestampMS
	Limit           int
}

// TradeQuery scopes trade lookups.
type TradeQuery struct {
	Location ledger.Location
	From     ledger.TimestampMS
	To       ledger.TimestampMS
	Limit    int
}

// Store persists ledger events and trades.
//
// AddEvents skips events whose (event identifier, sequence index) is already stored and
// returns only the newly inserted events, each carrying its assigned Identifier.
// AddTrades skips trades whose (location, link) is already stored and returns the number inserted.
type Store interface {
	StartRun(ctx context.Context, run Run) error
	AddEvents(ctx context.Context, runID string, events []ledger.Event) ([]ledger.Event, error)
	AddTrades(ctx context.Context, runID string, trades []ledger.Trade) (int, error)
	ListEvents(ctx context.Context, query EventQuery) ([]ledger.Event, error)
	ListTrades(ctx context.Context, query TradeQuery) ([]ledger.Trade, error)
	Close()
}
