package cmd

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/app/ingest"
	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/infra/config"
)

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"":                          {},
		"2024-01-02":                time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"2024-01-02T03:04:05":       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"2024-01-02T03:04:05+02:00": time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := parseTime(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Fatal("expected invalid time to fail")
	}
}

func TestParseSteps(t *testing.T) {
	if steps, err := parseSteps(nil); err != nil || steps != 1 {
		t.Fatalf("expected default of one step, got %d %v", steps, err)
	}
	if steps, err := parseSteps([]string{"3"}); err != nil || steps != 3 {
		t.Fatalf("expected 3 steps, got %d %v", steps, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseSteps([]string{bad}); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestSelectExchanges(t *testing.T) {
	cfg, err := config.Parse(strings.NewReader("exchanges:\n  - name: main\n  - name: old\n    disabled: true\n"))
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	all, err := selectExchanges(cfg, nil)
	if err != nil || len(all) != 1 || all[0].Name != "main" {
		t.Fatalf("expected only enabled exchanges, got %+v %v", all, err)
	}
	named, err := selectExchanges(cfg, []string{"old"})
	if err != nil || len(named) != 1 {
		t.Fatalf("expected explicit selection to include disabled exchange, got %+v %v", named, err)
	}
	if _, err := selectExchanges(cfg, []string{"missing"}); err == nil {
		t.Fatal("expected unknown exchange to fail")
	}
}

func TestWriteReport(t *testing.T) {
	eth := assets.Asset{Identifier: "ETH", Symbol: "ETH"}
	var buf bytes.Buffer
	writeReport(&buf, ingest.Report{
		RunID: "r1",
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Accounts: []ingest.AccountReport{{
			Name:          "main",
			EventsFetched: 3,
			EventsStored:  2,
			Warnings:      []string{"skipped DOGE"},
			Balances: ledger.BalanceMap{eth: {
				Amount:   decimal.RequireFromString("1.5"),
				USDValue: decimal.RequireFromString("3000"),
			}},
		}},
	})
	out := buf.String()
	for _, want := range []string{"run r1", "main", "warning [main]: skipped DOGE", "ETH", "3000.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestIngestReportsMissingCredentials(t *testing.T) {
	t.Setenv("TALLY_MAIN_API_KEY", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "tally.yaml")
	body := "database:\n  driver: memory\nexchanges:\n  - name: main\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Chdir(dir)

	root := New()
	root.SetArgs([]string{"--config", path, "ingest", "--from", "2024-01-01"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "TALLY_MAIN_API_KEY") {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestCommandTree(t *testing.T) {
	root := New()
	for _, name := range []string{"ingest", "balances", "validate", "migrate", "serve"} {
		if sub, _, err := root.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("expected %s subcommand, got %v", name, err)
		}
	}
	if flag := root.PersistentFlags().Lookup("config"); flag == nil || flag.DefValue != defaultConfigPath {
		t.Fatalf("expected --config flag defaulting to %s", defaultConfigPath)
	}
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, server) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServerReportsListenFailure(t *testing.T) {
	server := &http.Server{Addr: "256.0.0.1:bad", Handler: http.NotFoundHandler()}
	if err := runServer(context.Background(), server); err == nil {
		t.Fatal("expected listen failure")
	}
}
