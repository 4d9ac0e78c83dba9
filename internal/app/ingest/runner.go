// Package ingest runs exchange accounts through normalization into the ledger store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

// Source is the exchange session surface the runner drives.
type Source interface {
	Name() string
	Location() ledger.Location
	QueryBalances(ctx context.Context) (ledger.BalanceMap, error)
	QueryDepositsWithdrawals(ctx context.Context, start, end time.Time) ([]ledger.Event, error)
	QueryTradeHistory(ctx context.Context, start, end time.Time) ([]ledger.Trade, error)
}

// Drainer yields the messages a source accumulated.
type Drainer interface {
	ConsumeWarnings() []string
	ConsumeErrors() []string
}

// Account pairs a source with the sink its diagnostics go to.
type Account struct {
	Source   Source
	Messages Drainer
}

// Options configures a Runner.
type Options struct {
	Store        ledgerstore.Store
	Concurrency  int
	SkipBalances bool
	Metrics      *telemetry.IngestMetrics
	NewRunID     func() string
	Now          func() time.Time
}

// Runner ingests accounts concurrently.
type Runner struct {
	opts Options
}

// AccountReport summarises one account's ingestion.
type AccountReport struct {
	Name          string
	Balances      ledger.BalanceMap
	EventsFetched int
	EventsStored  int
	TradesFetched int
	TradesStored  int
	Warnings      []string
	Errors        []string
	// Failures holds the query and store errors; record-level problems only appear in Errors.
	Failures []error
	Elapsed  time.Duration
}

// Report is the outcome of one Run.
type Report struct {
	RunID    string
	Start    time.Time
	End      time.Time
	Accounts []AccountReport
}

// NewRunner validates opts and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("ingest: ledger store required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}, nil
}

// Run ingests [start, end] for every account. Accounts run concurrently up to the configured
// limit. The returned error joins per-account failures; the report is complete either way.
func (r *Runner) Run(ctx context.Context, accounts []Account, start, end time.Time) (Report, error) {
	if end.Before(start) {
		return Report{}, fmt.Errorf("ingest: window end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	report := Report{RunID: r.opts.NewRunID(), Start: start.UTC(), End: end.UTC()}
	if err := r.opts.Store.StartRun(ctx, ledgerstore.Run{
		ID:        report.RunID,
		StartedAt: r.opts.Now().UTC(),
		From:      ledger.FromTime(start),
		To:        ledger.FromTime(end),
	}); err != nil {
		return report, fmt.Errorf("ingest: start run: %w", err)
	}

	observability.Log().Info("ingest run started",
		observability.F("run_id", report.RunID),
		observability.F("accounts", len(accounts)),
		observability.F("start", report.Start.Format(time.RFC3339)),
		observability.F("end", report.End.Format(time.RFC3339)))

	report.Accounts = make([]AccountReport, len(accounts))
	var (
		mu       sync.Mutex
		failures []error
	)
	p := pool.New().WithMaxGoroutines(r.opts.Concurrency)
	for idx, account := range accounts {
		i, acc := idx, account
		p.Go(func() {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("account %s panic: %v", acc.Source.Name(), rec)
					report.Accounts[i] = AccountReport{Name: acc.Source.Name(), Failures: []error{err}}
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
			}()
			result := r.runAccount(ctx, report.RunID, acc, start, end)
			report.Accounts[i] = result
			if len(result.Failures) > 0 {
				mu.Lock()
				failures = append(failures, fmt.Errorf("account %s: %w", result.Name, errors.Join(result.Failures...)))
				mu.Unlock()
			}
		})
	}
	p.Wait()

	return report, observability.AggregateErrors("ingest", failures, observability.F("run_id", report.RunID))
}

func (r *Runner) runAccount(ctx context.Context, runID string, acc Account, start, end time.Time) AccountReport {
	began := time.Now()
	out := AccountReport{Name: acc.Source.Name()}
	fail := func(stage string, err error) {
		out.Failures = append(out.Failures, fmt.Errorf("%s: %w", stage, err))
	}

	if !r.opts.SkipBalances {
		balances, err := acc.Source.QueryBalances(ctx)
		if err != nil {
			fail("balances", err)
		} else {
			out.Balances = balances
		}
	}

	events, err := acc.Source.QueryDepositsWithdrawals(ctx, start, end)
	if err != nil {
		fail("deposits/withdrawals", err)
	}
	out.EventsFetched = len(events)
	if len(events) > 0 {
		stored, err := r.opts.Store.AddEvents(ctx, runID, events)
		if err != nil {
			fail("store events", err)
		}
		out.EventsStored = len(stored)
		r.opts.Metrics.RecordStored(ctx, out.Name, "event", len(stored))
	}

	trades, err := acc.Source.QueryTradeHistory(ctx, start, end)
	if err != nil {
		fail("trades", err)
	}
	out.TradesFetched = len(trades)
	if len(trades) > 0 {
		stored, err := r.opts.Store.AddTrades(ctx, runID, trades)
		if err != nil {
			fail("store trades", err)
		}
		out.TradesStored = stored
		r.opts.Metrics.RecordStored(ctx, out.Name, "trade", stored)
	}

	if acc.Messages != nil {
		out.Warnings = acc.Messages.ConsumeWarnings()
		out.Errors = acc.Messages.ConsumeErrors()
	}
	out.Elapsed = time.Since(began)

	result := telemetry.ResultSuccess
	if len(out.Failures) > 0 || len(out.Errors) > 0 {
		result = telemetry.ResultError
	}
	r.opts.Metrics.RecordAccount(ctx, out.Name, result, out.Elapsed)
	observability.Log().Info("ingested account",
		observability.F("run_id", runID),
		observability.F("account", out.Name),
		observability.F("events_fetched", out.EventsFetched),
		observability.F("events_stored", out.EventsStored),
		observability.F("trades_fetched", out.TradesFetched),
		observability.F("trades_stored", out.TradesStored),
		observability.F("warnings", len(out.Warnings)),
		observability.F("errors", len(out.Errors)),
		observability.F("result", result))
	return out
}

// Window resolves an ingest window. A zero end means now; a zero start means end minus lookback.
func Window(start, end time.Time, lookback time.Duration, now time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = now
	}
	if start.IsZero() {
		start = end.Add(-lookback)
	}
	return start.UTC(), end.UTC()
}
