// Package memory provides an in-process ledger store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/infra/persistence"
)

type eventKey struct {
	identifier string
	sequence   int
}

type tradeKey struct {
	location ledger.Location
	link     string
}

// Store keeps ledger records in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	runs   map[string]ledgerstore.Run
	events map[eventKey]ledger.Event
	trades map[tradeKey]ledger.Trade
}

var _ ledgerstore.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		runs:   make(map[string]ledgerstore.Run),
		events: make(map[eventKey]ledger.Event),
		trades: make(map[tradeKey]ledger.Trade),
	}
}

func checkContext(ctx context.Context, op string) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("memory store %s context: %w", op, ctx.Err())
	default:
		return nil
	}
}

// StartRun records an ingestion run.
func (s *Store) StartRun(ctx context.Context, run ledgerstore.Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return ledgerstore.ErrInvalidRun
	}
	if err := checkContext(ctx, "start run"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		s.runs[run.ID] = run
	}
	return nil
}

// AddEvents stores unseen events and returns them with identifiers assigned.
func (s *Store) AddEvents(ctx context.Context, runID string, events []ledger.Event) ([]ledger.Event, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ledgerstore.ErrInvalidRun
	}
	if err := checkContext(ctx, "add events"); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.EventIdentifier == "" {
			return nil, fmt.Errorf("ledger store: event identifier required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []ledger.Event
	for _, ev := range events {
		key := eventKey{identifier: ev.EventIdentifier, sequence: ev.SequenceIndex}
		if _, exists := s.events[key]; exists {
			continue
		}
		s.nextID++
		stored := ev.WithIdentifier(s.nextID)
		stored.ExtraData = cloneExtra(ev.ExtraData)
		s.events[key] = stored
		inserted = append(inserted, stored)
	}
	return inserted, nil
}

// AddTrades stores unseen trades and returns how many were new.
func (s *Store) AddTrades(ctx context.Context, runID string, trades []ledger.Trade) (int, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, ledgerstore.ErrInvalidRun
	}
	if err := checkContext(ctx, "add trades"); err != nil {
		return 0, err
	}
	for _, trade := range trades {
		if trade.Link == "" {
			return 0, fmt.Errorf("ledger store: trade link required")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, trade := range trades {
		key := tradeKey{location: trade.Location, link: trade.Link}
		if _, exists := s.trades[key]; exists {
			continue
		}
		s.trades[key] = trade
		count++
	}
	return count, nil
}

// ListEvents returns events ordered by timestamp, identifier and sequence index.
func (s *Store) ListEvents(ctx context.Context, query ledgerstore.EventQuery) ([]ledger.Event, error) {
	if err := checkContext(ctx, "list events"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]ledger.Event, 0, len(s.events))
	for _, ev := range s.events {
		if query.Location != "" && ev.Location != query.Location {
			continue
		}
		if query.EventIdentifier != "" && ev.EventIdentifier != query.EventIdentifier {
			continue
		}
		if !inRange(ev.Timestamp, query.From, query.To) {
			continue
		}
		ev.ExtraData = cloneExtra(ev.ExtraData)
		out = append(out, ev)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.EventIdentifier != b.EventIdentifier {
			return a.EventIdentifier < b.EventIdentifier
		}
		return a.SequenceIndex < b.SequenceIndex
	})
	if limit := persistence.Limit(query.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListTrades returns trades ordered by timestamp and link.
func (s *Store) ListTrades(ctx context.Context, query ledgerstore.TradeQuery) ([]ledger.Trade, error) {
	if err := checkContext(ctx, "list trades"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]ledger.Trade, 0, len(s.trades))
	for _, trade := range s.trades {
		if query.Location != "" && trade.Location != query.Location {
			continue
		}
		if !inRange(trade.Timestamp, query.From, query.To) {
			continue
		}
		out = append(out, trade)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Link < out[j].Link
	})
	if limit := persistence.Limit(query.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Runs returns the recorded runs.
func (s *Store) Runs() []ledgerstore.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledgerstore.Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Close is a no-op.
func (s *Store) Close() {}

func inRange(ts, from, to ledger.TimestampMS) bool {
	if from > 0 && ts < from {
		return false
	}
	if to > 0 && ts > to {
		return false
	}
	return true
}

func cloneExtra(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
