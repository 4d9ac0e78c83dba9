package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/infra/persistence"
)

// LedgerStore persists ledger events and trades in PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ ledgerstore.Store = (*LedgerStore)(nil)

// NewLedgerStore constructs a LedgerStore backed by pool. The store takes ownership of the pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const (
	runInsertSQL = `
INSERT INTO ingest_runs (id, started_at, window_start_ms, window_end_ms)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING;
`
	eventInsertSQL = `
INSERT INTO history_events (
    run_id,
    event_identifier,
    sequence_index,
    timestamp_ms,
    location,
    event_type,
    event_subtype,
    asset,
    asset_symbol,
    asset_type,
    amount,
    usd_value,
    notes,
    extra_data
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb)
ON CONFLICT (event_identifier, sequence_index) DO NOTHING
RETURNING id;
`
	tradeInsertSQL = `
INSERT INTO trades (
    run_id,
    timestamp_ms,
    location,
    pair,
    side,
    amount,
    rate,
    fee,
    fee_currency,
    fee_currency_symbol,
    fee_currency_type,
    link,
    notes
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (location, link) DO NOTHING;
`
	eventSelectSQL = `
SELECT id, run_id, event_identifier, sequence_index, timestamp_ms, location, event_type,
       event_subtype, asset, asset_symbol, asset_type, amount::text, usd_value::text, notes, extra_data
FROM history_events`
	tradeSelectSQL = `
SELECT run_id, timestamp_ms, location, pair, side, amount::text, rate::text, fee::text,
       fee_currency, fee_currency_symbol, fee_currency_type, link, notes
FROM trades`
)

// StartRun records an ingestion run.
func (s *LedgerStore) StartRun(ctx context.Context, run ledgerstore.Run) error {
	if s.pool == nil {
		return fmt.Errorf("ledger store: nil pool")
	}
	if strings.TrimSpace(run.ID) == "" {
		return ledgerstore.ErrInvalidRun
	}
	if _, err := s.pool.Exec(ctx, runInsertSQL, run.ID, run.StartedAt.UTC(), int64(run.From), int64(run.To)); err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// AddEvents inserts events in one transaction and returns those that were new.
func (s *LedgerStore) AddEvents(ctx context.Context, runID string, events []ledger.Event) ([]ledger.Event, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("ledger store: nil pool")
	}
	if strings.TrimSpace(runID) == "" {
		return nil, ledgerstore.ErrInvalidRun
	}
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted []ledger.Event
	for _, ev := range events {
		row, err := persistence.EncodeEvent(runID, ev)
		if err != nil {
			return nil, fmt.Errorf("ledger store: %w", err)
		}
		amounts, err := numerics(row.Amount, row.USDValue)
		if err != nil {
			return nil, fmt.Errorf("ledger store: event %s: %w", row.EventIdentifier, err)
		}
		var extra any
		if row.ExtraData != nil {
			extra = string(row.ExtraData)
		}
		var id int64
		err = tx.QueryRow(ctx, eventInsertSQL,
			row.RunID, row.EventIdentifier, row.SequenceIndex, row.TimestampMS, row.Location,
			row.EventType, row.EventSubtype, row.Asset, row.AssetSymbol, row.AssetType,
			amounts[0], amounts[1], row.Notes, extra,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert event %s/%d: %w", row.EventIdentifier, row.SequenceIndex, err)
		}
		inserted = append(inserted, ev.WithIdentifier(id))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit event tx: %w", err)
	}
	return inserted, nil
}

// AddTrades inserts trades in one transaction and returns how many were new.
func (s *LedgerStore) AddTrades(ctx context.Context, runID string, trades []ledger.Trade) (int, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("ledger store: nil pool")
	}
	if strings.TrimSpace(runID) == "" {
		return 0, ledgerstore.ErrInvalidRun
	}
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return 0, fmt.Errorf("begin trade tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	count := 0
	for _, trade := range trades {
		row, err := persistence.EncodeTrade(runID, trade)
		if err != nil {
			return 0, fmt.Errorf("ledger store: %w", err)
		}
		values, err := numerics(row.Amount, row.Rate, row.Fee)
		if err != nil {
			return 0, fmt.Errorf("ledger store: trade %s: %w", row.Link, err)
		}
		tag, err := tx.Exec(ctx, tradeInsertSQL,
			row.RunID, row.TimestampMS, row.Location, row.Pair, row.Side,
			values[0], values[1], values[2],
			row.FeeCurrency, row.FeeCurrencySymbol, row.FeeCurrencyType, row.Link, row.Notes,
		)
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", row.Link, err)
		}
		count += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit trade tx: %w", err)
	}
	return count, nil
}

// ListEvents returns stored events ordered by timestamp, identifier and sequence index.
func (s *LedgerStore) ListEvents(ctx context.Context, query ledgerstore.EventQuery) ([]ledger.Event, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("ledger store: nil pool")
	}
	where := newFilter()
	where.add("location = $%d", string(query.Location), query.Location != "")
	where.add("event_identifier = $%d", query.EventIdentifier, query.EventIdentifier != "")
	where.add("timestamp_ms >= $%d", int64(query.From), query.From > 0)
	where.add("timestamp_ms <= $%d", int64(query.To), query.To > 0)
	sql, args := where.build(eventSelectSQL, "timestamp_ms, event_identifier, sequence_index", persistence.Limit(query.Limit))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var row persistence.EventRow
		if err := rows.Scan(&row.ID, &row.RunID, &row.EventIdentifier, &row.SequenceIndex, &row.TimestampMS,
			&row.Location, &row.EventType, &row.EventSubtype, &row.Asset, &row.AssetSymbol, &row.AssetType,
			&row.Amount, &row.USDValue, &row.Notes, &row.ExtraData); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev, err := persistence.DecodeEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListTrades returns stored trades ordered by timestamp and link.
func (s *LedgerStore) ListTrades(ctx context.Context, query ledgerstore.TradeQuery) ([]ledger.Trade, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("ledger store: nil pool")
	}
	where := newFilter()
	where.add("location = $%d", string(query.Location), query.Location != "")
	where.add("timestamp_ms >= $%d", int64(query.From), query.From > 0)
	where.add("timestamp_ms <= $%d", int64(query.To), query.To > 0)
	sql, args := where.build(tradeSelectSQL, "timestamp_ms, link", persistence.Limit(query.Limit))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var trades []ledger.Trade
	for rows.Next() {
		var row persistence.TradeRow
		if err := rows.Scan(&row.RunID, &row.TimestampMS, &row.Location, &row.Pair, &row.Side,
			&row.Amount, &row.Rate, &row.Fee, &row.FeeCurrency, &row.FeeCurrencySymbol, &row.FeeCurrencyType,
			&row.Link, &row.Notes); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trade, err := persistence.DecodeTrade(row)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}

// Close releases the pool.
func (s *LedgerStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type filter struct {
	clauses []string
	args    []any
}

func newFilter() *filter { return &filter{} }

func (f *filter) add(format string, arg any, enabled bool) {
	if !enabled {
		return
	}
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(format, len(f.args)))
}

func (f *filter) build(base, orderBy string, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(f.clauses) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(f.clauses, " AND "))
	}
	f.args = append(f.args, limit)
	fmt.Fprintf(&b, "\nORDER BY %s\nLIMIT $%d;", orderBy, len(f.args))
	return b.String(), f.args
}
