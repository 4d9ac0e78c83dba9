package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/coachpo/tally/internal/app/bootstrap"
	httpserver "github.com/coachpo/tally/internal/infra/server/http"
	"github.com/coachpo/tally/internal/observability"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverShutdownTimeout   = 5 * time.Second
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored events and trades over a read-only HTTP API",
		Long: `Serve the ledger store over HTTP until interrupted.

Endpoints:
  GET /events?location=&event=&from=&to=&limit=
  GET /trades?location=&from=&to=&limit=
  GET /healthz

from and to accept unix milliseconds or RFC3339.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			store, err := bootstrap.Store(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			if addr == "" {
				addr = a.cfg.APIServer.Addr
			}
			server := &http.Server{
				Addr:              addr,
				Handler:           httpserver.NewHandler(store),
				ReadHeaderTimeout: serverReadHeaderTimeout,
			}
			return runServer(ctx, server)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default apiServer.addr)")
	return cmd
}

// runServer serves until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		observability.Log().Info("ledger api listening", observability.F("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	observability.Log().Info("ledger api stopped")
	return nil
}
