package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coachpo/tally/internal/observability"
)

func newBalancesCmd(root *rootOptions) *cobra.Command {
	var exchanges []string
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Print current balances with USD values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			sessions, err := a.sessions(exchanges)
			if err != nil {
				return err
			}
			var failures []error
			out := cmd.OutOrStdout()
			for _, s := range sessions {
				balances, err := s.Exchange.QueryBalances(ctx)
				for _, msg := range s.Messages.ConsumeWarnings() {
					fmt.Fprintf(out, "warning [%s]: %s\n", s.Exchange.Name(), msg)
				}
				if err != nil {
					failures = append(failures, fmt.Errorf("%s: %w", s.Exchange.Name(), err))
					continue
				}
				fmt.Fprintf(out, "%s\n", s.Exchange.Name())
				writeBalances(out, balances)
				fmt.Fprintln(out)
			}
			return observability.AggregateErrors("balances", failures)
		},
	}
	cmd.Flags().StringSliceVarP(&exchanges, "exchange", "e", nil, "limit to the named exchanges")
	return cmd
}
