package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/infra/config"
	"github.com/coachpo/tally/internal/infra/persistence/memory"
	"github.com/coachpo/tally/internal/infra/persistence/sqlite"
	"github.com/coachpo/tally/internal/observability"
)

func TestStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Store(ctx, config.DatabaseConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	store, err = Store(ctx, config.DatabaseConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "t.db")})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}

	if _, err := Store(ctx, config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected unsupported driver to fail")
	}
}

func TestSessionsResolveCredentials(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("exchanges:\n  - name: main\n  - name: side\nprices:\n  usd:\n    ETH: \"2000\"\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	prices, err := Prices(cfg.Prices)
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	env := map[string]string{
		"TALLY_MAIN_API_KEY": "k", "TALLY_MAIN_API_SECRET": "c2VjcmV0", "TALLY_MAIN_PASSPHRASE": "p",
		"TALLY_SIDE_API_KEY": "k2", "TALLY_SIDE_API_SECRET": "c2VjcmV0", "TALLY_SIDE_PASSPHRASE": "p2",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	sessions, err := Sessions(cfg.EnabledExchanges(), prices, lookup)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Exchange.Name() != "main" || sessions[1].Exchange.Name() != "side" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
	if acc := sessions[0].Account(); acc.Source == nil || acc.Messages == nil {
		t.Fatalf("expected wired account")
	}
	price, err := sessions[0].Exchange.Prices().USDPrice(context.Background(), assets.Asset{Identifier: "ETH", Symbol: "ETH"})
	if err != nil || price.IntPart() != 2000 {
		t.Fatalf("unexpected price %s %v", price, err)
	}

	delete(env, "TALLY_SIDE_PASSPHRASE")
	if _, err := Sessions(cfg.EnabledExchanges(), prices, lookup); err == nil || !strings.Contains(err.Error(), "TALLY_SIDE_PASSPHRASE") {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestLoggerInstallsGlobal(t *testing.T) {
	var buf bytes.Buffer
	Logger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { observability.SetLogger(nil) })
	observability.Log().Debug("hello", observability.F("k", "v"))
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected json log line, got %q", buf.String())
	}
}

func TestTelemetryDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	provider, err := Telemetry(context.Background(), config.EnvDev, config.TelemetryConfig{})
	if err != nil || provider == nil {
		t.Fatalf("expected noop provider, got %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
