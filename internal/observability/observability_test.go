package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMessageAggregatorConsumeClears(t *testing.T) {
	agg := NewMessageAggregator(0)
	agg.AddWarning("skipped account")
	agg.AddError("bad record")
	agg.AddError("bad price")

	if got := agg.ConsumeWarnings(); len(got) != 1 || got[0] != "skipped account" {
		t.Fatalf("unexpected warnings %v", got)
	}
	if got := agg.ConsumeErrors(); len(got) != 2 {
		t.Fatalf("expected two errors, got %v", got)
	}
	if got := agg.ConsumeErrors(); len(got) != 0 {
		t.Fatalf("expected errors to be cleared, got %v", got)
	}
}

func TestMessageAggregatorDropsOldest(t *testing.T) {
	agg := NewMessageAggregator(2)
	agg.AddWarning("a")
	agg.AddWarning("b")
	agg.AddWarning("c")
	got := agg.ConsumeWarnings()
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected oldest warning dropped, got %v", got)
	}
}

func TestLogrusLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLogger(LogrusOptions{Level: "debug", Format: "json", Output: &buf})
	logger.Warn("record skipped", F("reason", "unknown_asset"))
	out := buf.String()
	if !strings.Contains(out, `"reason":"unknown_asset"`) || !strings.Contains(out, `"level":"warning"`) {
		t.Fatalf("unexpected log output %s", out)
	}
}

func TestAggregateErrors(t *testing.T) {
	if err := AggregateErrors("ingest", []error{nil, nil}); err != nil {
		t.Fatalf("expected nil for no errors, got %v", err)
	}
	first := errors.New("first")
	err := AggregateErrors("ingest", []error{first, nil, errors.New("second")})
	if err == nil || !errors.Is(err, first) {
		t.Fatalf("expected joined error to wrap first, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "ingest: ") {
		t.Fatalf("unexpected error text %q", err.Error())
	}
}
