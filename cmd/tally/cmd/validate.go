package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var exchanges []string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config and each exchange's API credentials",
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
			out := cmd.OutOrStdout()
			failed := 0
			for _, s := range sessions {
				ok, msg := s.Exchange.ValidateAPIKey(ctx)
				if ok {
					fmt.Fprintf(out, "%s: ok\n", s.Exchange.Name())
					continue
				}
				failed++
				fmt.Fprintf(out, "%s: %s\n", s.Exchange.Name(), msg)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exchanges failed validation", failed, len(sessions))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&exchanges, "exchange", "e", nil, "limit to the named exchanges")
	return cmd
}
