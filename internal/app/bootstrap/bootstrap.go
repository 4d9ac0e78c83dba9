// Package bootstrap turns an AppConfig into live collaborators for the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"io"

	"github.com/coachpo/tally/internal/app/ingest"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/domain/valuation"
	"github.com/coachpo/tally/internal/infra/adapters/coinbasepro"
	"github.com/coachpo/tally/internal/infra/config"
	"github.com/coachpo/tally/internal/infra/persistence/memory"
	"github.com/coachpo/tally/internal/infra/persistence/migrations"
	"github.com/coachpo/tally/internal/infra/persistence/postgres"
	"github.com/coachpo/tally/internal/infra/persistence/sqlite"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

// Logger installs the configured logrus logger globally and returns it.
func Logger(cfg config.LoggingConfig, out io.Writer) observability.Logger {
	logger := observability.NewLogrusLogger(observability.LogrusOptions{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: out,
	})
	observability.SetLogger(logger)
	return logger
}

// Telemetry starts the meter provider described by cfg.
func Telemetry(ctx context.Context, env config.Environment, cfg config.TelemetryConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Environment = string(env)
	if cfg.Enabled {
		telemetryCfg.Enabled = true
	}
	if cfg.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}
	if cfg.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.ServiceName
	}
	telemetryCfg.OTLPInsecure = telemetryCfg.OTLPInsecure || cfg.OTLPInsecure

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		observability.Log().Info("telemetry initialized",
			observability.F("endpoint", telemetryCfg.OTLPEndpoint),
			observability.F("service", telemetryCfg.ServiceName))
	} else {
		observability.Log().Debug("telemetry disabled")
	}
	return provider, nil
}

// Store opens the ledger store selected by cfg, applying Postgres migrations when configured.
func Store(ctx context.Context, cfg config.DatabaseConfig) (ledgerstore.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.DSN)
	case config.DriverPostgres:
		if cfg.RunMigrations {
			if err := migrations.Apply(ctx, cfg.DSN, cfg.MigrationsPath, nil); err != nil {
				return nil, err
			}
		}
		pool, err := postgres.Connect(ctx, cfg.DSN, postgres.PoolOptions{
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		return postgres.NewLedgerStore(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Session is one configured exchange account and its message sink.
type Session struct {
	Exchange *coinbasepro.Exchange
	Messages *observability.MessageAggregator
}

// Account adapts the session for the ingest runner.
func (s Session) Account() ingest.Account {
	return ingest.Account{Source: s.Exchange, Messages: s.Messages}
}

// Prices builds the cached static price oracle.
func Prices(cfg config.PricesConfig) (valuation.Oracle, error) {
	prices, err := cfg.Decimals()
	if err != nil {
		return nil, err
	}
	return valuation.NewCached(valuation.NewStatic(prices), cfg.CacheTTL), nil
}

// Sessions builds an exchange session for every exchange in exchanges. Credentials come
// from lookup, or the process environment when nil.
func Sessions(exchanges []config.ExchangeConfig, prices valuation.Oracle, lookup config.LookupFunc) ([]Session, error) {
	registry := assets.Default()
	sessions := make([]Session, 0, len(exchanges))
	for _, ex := range exchanges {
		creds, err := ex.ResolveCredentials(lookup)
		if err != nil {
			return nil, err
		}
		messages := observability.NewMessageAggregator(0)
		session, err := coinbasepro.New(coinbasepro.Options{
			Config: coinbasepro.Config{
				Name:              ex.Name,
				BaseURL:           ex.BaseURL,
				APIKey:            creds.APIKey,
				APISecret:         creds.APISecret,
				Passphrase:        creds.Passphrase,
				RetryBudget:       ex.RetryBudget,
				ReportWait:        ex.ReportWait,
				RequestsPerSecond: ex.RequestsPerSecond,
				HTTPTimeout:       ex.HTTPTimeout,
				BalanceCacheTTL:   ex.BalanceCacheTTL,
			},
			Assets:   registry,
			Prices:   prices,
			Messages: messages,
			Metrics:  telemetry.NewExchangeMetrics(ex.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("exchange %q: %w", ex.Name, err)
		}
		sessions = append(sessions, Session{Exchange: session, Messages: messages})
	}
	return sessions, nil
}
