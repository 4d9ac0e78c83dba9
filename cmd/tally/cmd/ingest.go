package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachpo/tally/internal/app/bootstrap"
	"github.com/coachpo/tally/internal/app/ingest"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/infra/telemetry"
)

type ingestOptions struct {
	from         string
	to           string
	exchanges    []string
	skipBalances bool
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch deposits, withdrawals and trades into the ledger store",
		Long: `Fetch history for every enabled exchange over a window and store it.

Records already in the store are skipped, so overlapping windows are safe.
Without --from the window starts ingest.lookback before --to (default now).

Examples:
  tally ingest
  tally ingest --from 2024-01-01 --to 2024-02-01
  tally ingest --exchange main --skip-balances`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, root, opts)
		},
	}
	cmd.Flags().StringVar(&opts.from, "from", "", "window start (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.to, "to", "", "window end (RFC3339 or YYYY-MM-DD, default now)")
	cmd.Flags().StringSliceVarP(&opts.exchanges, "exchange", "e", nil, "limit to the named exchanges")
	cmd.Flags().BoolVar(&opts.skipBalances, "skip-balances", false, "do not query current balances")
	return cmd
}

func runIngest(cmd *cobra.Command, root *rootOptions, opts *ingestOptions) error {
	ctx := cmd.Context()
	from, err := parseTime(opts.from)
	if err != nil {
		return err
	}
	to, err := parseTime(opts.to)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx, root)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	sessions, err := a.sessions(opts.exchanges)
	if err != nil {
		return err
	}
	store, err := bootstrap.Store(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := ingest.NewRunner(ingest.Options{
		Store:        store,
		Concurrency:  a.cfg.Ingest.Concurrency,
		SkipBalances: opts.skipBalances,
		Metrics:      telemetry.NewIngestMetrics(),
	})
	if err != nil {
		return err
	}
	accounts := make([]ingest.Account, 0, len(sessions))
	for _, s := range sessions {
		accounts = append(accounts, s.Account())
	}

	start, end := ingest.Window(from, to, a.cfg.Ingest.Lookback, time.Now())
	report, runErr := runner.Run(ctx, accounts, start, end)
	if report.RunID != "" {
		writeReport(cmd.OutOrStdout(), report)
	}
	return runErr
}

func writeReport(out io.Writer, report ingest.Report) {
	fmt.Fprintf(out, "run %s  %s .. %s\n\n", report.RunID, report.Start.Format(time.RFC3339), report.End.Format(time.RFC3339))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXCHANGE\tEVENTS\tNEW\tTRADES\tNEW\tWARNINGS\tERRORS\tELAPSED")
	for _, acc := range report.Accounts {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			acc.Name, acc.EventsFetched, acc.EventsStored, acc.TradesFetched, acc.TradesStored,
			len(acc.Warnings), len(acc.Errors), acc.Elapsed.Round(time.Millisecond))
	}
	_ = w.Flush()

	for _, acc := range report.Accounts {
		for _, msg := range acc.Warnings {
			fmt.Fprintf(out, "warning [%s]: %s\n", acc.Name, msg)
		}
		for _, msg := range acc.Errors {
			fmt.Fprintf(out, "error [%s]: %s\n", acc.Name, msg)
		}
		if len(acc.Balances) > 0 {
			fmt.Fprintf(out, "\nbalances [%s]\n", acc.Name)
			writeBalances(out, acc.Balances)
		}
	}
}

func writeBalances(out io.Writer, balances ledger.BalanceMap) {
	type row struct {
		symbol string
		bal    ledger.Balance
	}
	rows := make([]row, 0, len(balances))
	for asset, bal := range balances {
		rows = append(rows, row{symbol: asset.Symbol, bal: bal})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].symbol < rows[j].symbol })

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ASSET\tAMOUNT\tUSD\t")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.symbol, r.bal.Amount.String(), r.bal.USDValue.StringFixed(2))
	}
	_ = w.Flush()
}
