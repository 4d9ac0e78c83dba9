// Package sqlite implements the ledger store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/infra/persistence"
	"github.com/coachpo/tally/internal/observability"
)

//go:embed schema.sql
var schema string

const (
	runInsertSQL = `INSERT INTO ingest_runs (id, started_at, window_start_ms, window_end_ms)
VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`
	eventInsertSQL = `INSERT INTO history_events (
    run_id, event_identifier, sequence_index, timestamp_ms, location, event_type, event_subtype,
    asset, asset_symbol, asset_type, amount, usd_value, notes, extra_data
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_identifier, sequence_index) DO NOTHING
RETURNING id`
	tradeInsertSQL = `INSERT INTO trades (
    run_id, timestamp_ms, location, pair, side, amount, rate, fee,
    fee_currency, fee_currency_symbol, fee_currency_type, link, notes
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (location, link) DO NOTHING`
	eventSelectSQL = `SELECT id, run_id, event_identifier, sequence_index, timestamp_ms, location, event_type,
    event_subtype, asset, asset_symbol, asset_type, amount, usd_value, notes, extra_data
FROM history_events`
	tradeSelectSQL = `SELECT run_id, timestamp_ms, location, pair, side, amount, rate, fee,
    fee_currency, fee_currency_symbol, fee_currency_type, link, notes
FROM trades`
)

// Store is a SQLite-backed ledger store.
type Store struct {
	db *sql.DB
}

var _ ledgerstore.Store = (*Store)(nil)

// Open opens (creating when needed) the database at path and applies the schema.
// Use ":memory:" for a private in-process database.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// StartRun records an ingestion run.
func (s *Store) StartRun(ctx context.Context, run ledgerstore.Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return ledgerstore.ErrInvalidRun
	}
	if _, err := s.db.ExecContext(ctx, runInsertSQL, run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), int64(run.From), int64(run.To)); err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

// AddEvents inserts events in one transaction and returns those that were new.
func (s *Store) AddEvents(ctx context.Context, runID string, events []ledger.Event) ([]ledger.Event, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, ledgerstore.ErrInvalidRun
	}
	if len(events) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted []ledger.Event
	for _, ev := range events {
		row, err := persistence.EncodeEvent(runID, ev)
		if err != nil {
			return nil, fmt.Errorf("ledger store: %w", err)
		}
		var extra any
		if row.ExtraData != nil {
			extra = string(row.ExtraData)
		}
		var id int64
		err = tx.QueryRowContext(ctx, eventInsertSQL,
			row.RunID, row.EventIdentifier, row.SequenceIndex, row.TimestampMS, row.Location,
			row.EventType, row.EventSubtype, row.Asset, row.AssetSymbol, row.AssetType,
			row.Amount, row.USDValue, row.Notes, extra,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			observability.Log().Debug("skipping stored event",
				observability.F("event_identifier", row.EventIdentifier),
				observability.F("sequence_index", row.SequenceIndex))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert event %s/%d: %w", row.EventIdentifier, row.SequenceIndex, err)
		}
		inserted = append(inserted, ev.WithIdentifier(id))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit event tx: %w", err)
	}
	return inserted, nil
}

// AddTrades inserts trades in one transaction and returns how many were new.
func (s *Store) AddTrades(ctx context.Context, runID string, trades []ledger.Trade) (int, error) {
	if strings.TrimSpace(runID) == "" {
		return 0, ledgerstore.ErrInvalidRun
	}
	if len(trades) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin trade tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	count := 0
	for _, trade := range trades {
		row, err := persistence.EncodeTrade(runID, trade)
		if err != nil {
			return 0, fmt.Errorf("ledger store: %w", err)
		}
		res, err := tx.ExecContext(ctx, tradeInsertSQL,
			row.RunID, row.TimestampMS, row.Location, row.Pair, row.Side, row.Amount, row.Rate, row.Fee,
			row.FeeCurrency, row.FeeCurrencySymbol, row.FeeCurrencyType, row.Link, row.Notes)
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", row.Link, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", row.Link, err)
		}
		count += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit trade tx: %w", err)
	}
	return count, nil
}

// ListEvents returns stored events ordered by timestamp, identifier and sequence index.
func (s *Store) ListEvents(ctx context.Context, query ledgerstore.EventQuery) ([]ledger.Event, error) {
	var where filter
	where.add("location = ?", string(query.Location), query.Location != "")
	where.add("event_identifier = ?", query.EventIdentifier, query.EventIdentifier != "")
	where.add("timestamp_ms >= ?", int64(query.From), query.From > 0)
	where.add("timestamp_ms <= ?", int64(query.To), query.To > 0)
	stmt, args := where.build(eventSelectSQL, "timestamp_ms, event_identifier, sequence_index", persistence.Limit(query.Limit))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []ledger.Event
	for rows.Next() {
		var (
			row   persistence.EventRow
			extra sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.RunID, &row.EventIdentifier, &row.SequenceIndex, &row.TimestampMS,
			&row.Location, &row.EventType, &row.EventSubtype, &row.Asset, &row.AssetSymbol, &row.AssetType,
			&row.Amount, &row.USDValue, &row.Notes, &extra); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if extra.Valid {
			row.ExtraData = []byte(extra.String)
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
func (s *Store) ListTrades(ctx context.Context, query ledgerstore.TradeQuery) ([]ledger.Trade, error) {
	var where filter
	where.add("location = ?", string(query.Location), query.Location != "")
	where.add("timestamp_ms >= ?", int64(query.From), query.From > 0)
	where.add("timestamp_ms <= ?", int64(query.To), query.To > 0)
	stmt, args := where.build(tradeSelectSQL, "timestamp_ms, link", persistence.Limit(query.Limit))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// Close closes the database.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		observability.Log().Warn("close sqlite ledger store", observability.F("error", err))
	}
}

type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any, enabled bool) {
	if enabled {
		f.clauses = append(f.clauses, clause)
		f.args = append(f.args, arg)
	}
}

func (f *filter) build(base, orderBy string, limit int) (string, []any) {
	stmt := base
	if len(f.clauses) > 0 {
		stmt += "\nWHERE " + strings.Join(f.clauses, " AND ")
	}
	return stmt + "\nORDER BY " + orderBy + "\nLIMIT ?", append(f.args, limit)
}
