package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coachpo/tally/internal/infra/config"
	"github.com/coachpo/tally/internal/infra/persistence/migrations"
	"github.com/coachpo/tally/internal/observability"
)

type migrateOptions struct {
	dsn  string
	path string
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back Postgres schema migrations",
		Long: `Run the ledger schema migrations against the configured Postgres database.

The embedded migrations are used unless --path points at a directory.
SQLite and memory stores create their schema on open and need no migration.`,
	}
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "override database.dsn")
	cmd.PersistentFlags().StringVar(&opts.path, "path", "", "migrations directory (default embedded)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, path, err := migrateTarget(cmd, root, opts)
				if err != nil {
					return err
				}
				return migrations.Apply(cmd.Context(), dsn, path, observability.Log())
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default one step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps, err := parseSteps(args)
				if err != nil {
					return err
				}
				dsn, path, err := migrateTarget(cmd, root, opts)
				if err != nil {
					return err
				}
				return migrations.Rollback(cmd.Context(), dsn, path, steps, observability.Log())
			},
		},
	)
	return cmd
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("steps must be a positive integer, got %q", args[0])
	}
	return steps, nil
}

func migrateTarget(cmd *cobra.Command, root *rootOptions, opts *migrateOptions) (string, string, error) {
	ctx := cmd.Context()
	a, err := loadApp(ctx, root)
	if err != nil {
		return "", "", err
	}
	defer a.close(ctx)

	db := a.cfg.Database
	if db.Driver != config.DriverPostgres && opts.dsn == "" {
		return "", "", fmt.Errorf("migrate requires the postgres driver, config uses %q", db.Driver)
	}
	dsn := db.DSN
	if opts.dsn != "" {
		dsn = opts.dsn
	}
	path := db.MigrationsPath
	if opts.path != "" {
		path = opts.path
	}
	return dsn, path, nil
}
