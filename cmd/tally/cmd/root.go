// Package cmd holds the tally command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coachpo/tally/internal/app/bootstrap"
	"github.com/coachpo/tally/internal/infra/config"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

const defaultConfigPath = "tally.yaml"

type rootOptions struct {
	configPath string
}

// app is what every subcommand needs after bootstrap.
type app struct {
	cfg       config.AppConfig
	telemetry *telemetry.Provider
}

// close flushes telemetry even when ctx was canceled by a signal.
func (a *app) close(ctx context.Context) {
	if err := a.telemetry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		observability.Log().Warn("telemetry shutdown failed", observability.F("error", err))
	}
}

// New builds the root command.
func New() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Import exchange history into a local ledger",
		Long: `tally pulls balances, deposits, withdrawals and trades from configured
Coinbase Pro accounts and stores them as deduplicated ledger records.

Credentials are read from the environment (or the configured env file)
using the names listed under each exchange's credentialEnv block.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to the tally YAML config")

	cmd.AddCommand(
		newIngestCmd(opts),
		newBalancesCmd(opts),
		newValidateCmd(opts),
		newMigrateCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// Execute runs the command tree until completion or SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := New().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func loadApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}
	bootstrap.Logger(cfg.Logging, os.Stderr)

	provider, err := bootstrap.Telemetry(ctx, cfg.Environment, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	observability.Log().Debug("config loaded",
		observability.F("path", opts.configPath),
		observability.F("environment", string(cfg.Environment)),
		observability.F("exchanges", len(cfg.EnabledExchanges())))
	return &app{cfg: cfg, telemetry: provider}, nil
}

// selectExchanges filters the enabled exchanges down to names, or returns all when names is empty.
func selectExchanges(cfg config.AppConfig, names []string) ([]config.ExchangeConfig, error) {
	if len(names) == 0 {
		enabled := cfg.EnabledExchanges()
		if len(enabled) == 0 {
			return nil, fmt.Errorf("no enabled exchanges configured")
		}
		return enabled, nil
	}
	out := make([]config.ExchangeConfig, 0, len(names))
	for _, name := range names {
		ex, ok := cfg.Exchange(name)
		if !ok {
			return nil, fmt.Errorf("exchange %q not configured", name)
		}
		out = append(out, ex)
	}
	return out, nil
}

func (a *app) sessions(names []string) ([]bootstrap.Session, error) {
	exchanges, err := selectExchanges(a.cfg, names)
	if err != nil {
		return nil, err
	}
	prices, err := bootstrap.Prices(a.cfg.Prices)
	if err != nil {
		return nil, err
	}
	return bootstrap.Sessions(exchanges, prices, nil)
}
