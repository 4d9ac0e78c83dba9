// Package coinbasepro ingests balances, transfers and fills from the Coinbase Pro REST API.
package coinbasepro

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/patrickmn/go-cache"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/valuation"
	"github.com/coachpo/tally/internal/observability"
)

const balancesCacheKey = "balances"

// Exchange is one authenticated Coinbase Pro session. Queries on a session are serialized.
type Exchange struct {
	opts      Options
	client    *Client
	directory *Directory
	balances  *cache.Cache

	mu sync.Mutex
}

// New constructs a session. Credentials are not checked until the first query.
func New(opts Options) (*Exchange, error) {
	opts = withDefaults(opts)
	if strings.TrimSpace(opts.Config.APIKey) == "" {
		return nil, errs.New(opts.metadata.identifier, errs.CodeInvalid, errs.WithMessage("api key required"))
	}
	if opts.Prices == nil {
		return nil, errs.New(opts.metadata.identifier, errs.CodeInvalid, errs.WithMessage("price oracle required"))
	}
	if _, err := url.Parse(opts.restBase()); err != nil {
		return nil, errs.New(opts.metadata.identifier, errs.CodeInvalid, errs.WithMessage("invalid base url"), errs.WithCause(err))
	}
	client := newClient(opts)
	e := &Exchange{
		opts:      opts,
		client:    client,
		directory: newDirectory(client, opts.Assets, opts.Messages),
	}
	if opts.Config.BalanceCacheTTL > 0 {
		e.balances = cache.New(opts.Config.BalanceCacheTTL, 2*opts.Config.BalanceCacheTTL)
	}
	return e, nil
}

// Name returns the configured account name.
func (e *Exchange) Name() string { return e.opts.Config.Name }

// Location returns the ledger location of records produced by the session.
func (e *Exchange) Location() ledger.Location { return e.opts.metadata.location }

// Assets returns the resolver used by the session.
func (e *Exchange) Assets() assets.Resolver { return e.opts.Assets }

// Prices returns the price oracle used by the session.
func (e *Exchange) Prices() valuation.Oracle { return e.opts.Prices }

// ValidateAPIKey checks that the key can at least view accounts.
func (e *Exchange) ValidateAPIKey(ctx context.Context) (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.client.Query(ctx, Request{Endpoint: e.opts.metadata.accountsPath})
	switch {
	case err == nil:
		return true, ""
	case errs.IsPermission(err):
		return false, `Provided Coinbase Pro API key needs to have "View" permission activated. ` +
			`Please log into your coinbase account and create a key with the required permissions.`
	case strings.Contains(err.Error(), "Invalid Passphrase"):
		return false, "The passphrase for the given API key does not match. " +
			"Please create a key with the passphrase configured for this account."
	default:
		return false, err.Error()
	}
}

// QueryBalances returns per-asset balances. Results are cached for BalanceCacheTTL.
func (e *Exchange) QueryBalances(ctx context.Context) (ledger.BalanceMap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.balances != nil {
		if cached, ok := e.balances.Get(balancesCacheKey); ok {
			return maps.Clone(cached.(ledger.BalanceMap)), nil
		}
	}
	raw, err := fetchAccounts(ctx, e.client)
	if err != nil {
		observability.Log().Error("coinbasepro balance query failed",
			observability.F("account", e.Name()),
			observability.F("error", err.Error()))
		return nil, fmt.Errorf("coinbasepro balances: %w", err)
	}
	balances, diags := AggregateBalances(ctx, raw, e.opts.Assets, e.opts.Prices)
	e.report(ctx, "balances", diags)
	if e.balances != nil {
		e.balances.SetDefault(balancesCacheKey, maps.Clone(balances))
	}
	return balances, nil
}

// QueryDepositsWithdrawals returns the events of transfers completed within [start, end].
// A remote or permission failure yields an empty result; the error is recorded to the message sink only.
func (e *Exchange) QueryDepositsWithdrawals(ctx context.Context, start, end time.Time) ([]ledger.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	observability.Log().Debug("query coinbasepro asset movements",
		observability.F("account", e.Name()),
		observability.F("start", start.UTC().Format(time.RFC3339)),
		observability.F("end", end.UTC().Format(time.RFC3339)))

	var raw []json.RawMessage
	for _, kind := range []string{"withdraw", "deposit"} {
		batch, err := collect(ctx, e.client.Paginate(e.opts.metadata.transfersPath, url.Values{"type": {kind}}, e.opts.Config.PageLimit))
		if err != nil {
			e.historyFailure("deposits/withdrawals", err)
			return nil, nil
		}
		raw = append(raw, batch...)
	}
	directory, err := e.directory.Resolve(ctx)
	if err != nil {
		e.historyFailure("deposits/withdrawals", err)
		return nil, nil
	}

	events, diags := NormalizeMovements(raw, directory, Window{Start: ledger.FromTime(start), End: ledger.FromTime(end)})
	e.report(ctx, "movements", diags)
	e.opts.Metrics.RecordNormalized(ctx, "movements", len(events))
	return events, nil
}

// QueryTradeHistory generates fills reports for [start, end] and parses them into trades.
// A remote or permission failure yields an empty result; the error is recorded to the message sink only.
func (e *Exchange) QueryTradeHistory(ctx context.Context, start, end time.Time) ([]ledger.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	observability.Log().Debug("query coinbasepro trade history",
		observability.F("account", e.Name()),
		observability.F("start", start.UTC().Format(time.RFC3339)),
		observability.F("end", end.UTC().Format(time.RFC3339)))

	dir, cleanup, err := e.opts.TempDirs.MkdirTemp("tally-coinbasepro")
	if err != nil {
		return nil, fmt.Errorf("coinbasepro report directory: %w", err)
	}
	defer func() {
		if cerr := cleanup(); cerr != nil {
			observability.Log().Warn("remove coinbasepro report directory",
				observability.F("dir", dir),
				observability.F("error", cerr.Error()))
		}
	}()

	paths, err := e.generateReports(ctx, start, end, dir)
	if err != nil {
		e.historyFailure("trades", err)
		return nil, nil
	}
	var trades []ledger.Trade
	for _, path := range paths {
		parsed, diags := readTrades(path, e.opts.Assets)
		e.report(ctx, "trades", diags)
		trades = append(trades, parsed...)
	}
	e.opts.Metrics.RecordNormalized(ctx, "trades", len(trades))
	return trades, nil
}

func (e *Exchange) historyFailure(what string, err error) {
	kind := "remote"
	if errs.IsPermission(err) {
		kind = "permission"
	}
	msg := fmt.Sprintf("Got %s error while querying Coinbasepro for %s: %v", kind, what, err)
	e.opts.Messages.AddError(msg)
	observability.Log().Error("coinbasepro history query failed",
		observability.F("account", e.Name()),
		observability.F("query", what),
		observability.F("error", err.Error()))
}

// report forwards diagnostics to the message sink and the log.
func (e *Exchange) report(ctx context.Context, operation string, diags []ledger.Diagnostic) {
	for _, d := range diags {
		reason := string(d.Severity)
		if code := errs.CodeOf(d.Err); code != "" {
			reason = string(code)
		}
		e.opts.Metrics.RecordSkipped(ctx, operation, reason)
		fields := []observability.Field{
			observability.F("account", e.Name()),
			observability.F("operation", operation),
			observability.F("raw", d.Raw),
		}
		if d.Err != nil {
			fields = append(fields, observability.F("error", d.Err.Error()))
		}
		switch d.Severity {
		case ledger.SeverityWarning:
			e.opts.Messages.AddWarning(d.Message)
			observability.Log().Warn(d.Message, fields...)
		default:
			e.opts.Messages.AddError(d.Message)
			observability.Log().Error(d.Message, fields...)
		}
	}
}
