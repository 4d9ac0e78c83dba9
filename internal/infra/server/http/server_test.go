package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/infra/persistence/memory"
)

var btc = assets.Asset{Identifier: "BTC", Symbol: "BTC", Type: assets.TypeOwnChain}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	events, err := ledger.NewAssetMovementWithFee(ledger.Movement{
		Location:  ledger.LocationCoinbasePro,
		Type:      ledger.EventTypeWithdrawal,
		Timestamp: 2_000,
		Asset:     btc,
		Amount:    decimal.RequireFromString("0.5"),
		Fee:       decimal.RequireFromString("0.0001"),
		UniqueID:  "w1",
		ExtraData: map[string]any{"address": "bc1q"},
	})
	if err != nil {
		t.Fatalf("build events: %v", err)
	}
	if _, err := store.AddEvents(ctx, "run-1", events); err != nil {
		t.Fatalf("add events: %v", err)
	}
	trades := []ledger.Trade{
		{Timestamp: 1_000, Location: ledger.LocationCoinbasePro, Pair: "BTC_USD", Side: ledger.TradeSideBuy,
			Amount: decimal.RequireFromString("0.1"), Rate: decimal.RequireFromString("30000"), Fee: decimal.RequireFromString("1.5"),
			FeeCurrency: assets.Asset{Identifier: "USD", Symbol: "USD"}, Link: "t1"},
		{Timestamp: 5_000, Location: ledger.LocationCoinbasePro, Pair: "BTC_USD", Side: ledger.TradeSideSell,
			Amount: decimal.RequireFromString("0.1"), Rate: decimal.RequireFromString("31000"), Fee: decimal.Zero,
			FeeCurrency: assets.Asset{Identifier: "USD", Symbol: "USD"}, Link: "t2"},
	}
	if _, err := store.AddTrades(ctx, "run-1", trades); err != nil {
		t.Fatalf("add trades: %v", err)
	}
	return store
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListEvents(t *testing.T) {
	handler := NewHandler(seededStore(t))

	rec := get(t, handler, "/events?location=coinbasepro")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Events []eventView `json:"events"`
		Count  int         `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 2 || len(body.Events) != 2 {
		t.Fatalf("expected principal and fee events, got %+v", body)
	}
	principal, fee := body.Events[0], body.Events[1]
	if principal.SequenceIndex != 0 || principal.Amount != "0.5" || principal.ExtraData["address"] != "bc1q" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if fee.SequenceIndex != 1 || fee.Amount != "0.0001" || fee.EventIdentifier != principal.EventIdentifier {
		t.Fatalf("unexpected fee %+v", fee)
	}
	if principal.Identifier == nil {
		t.Fatalf("stored events carry an identifier")
	}

	rec = get(t, handler, "/events?event="+principal.EventIdentifier+"&limit=1")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Count != 1 {
		t.Fatalf("expected limited result, got %s", rec.Body.String())
	}
}

func TestListTradesWindow(t *testing.T) {
	handler := NewHandler(seededStore(t))

	rec := get(t, handler, "/trades?from=500&to=2000")
	var body struct {
		Trades []tradeView `json:"trades"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Trades) != 1 || body.Trades[0].Link != "t1" || body.Trades[0].Rate != "30000" {
		t.Fatalf("unexpected trades %+v", body.Trades)
	}

	rec = get(t, handler, "/trades?from=1970-01-01T00:00:04Z")
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || len(body.Trades) != 1 || body.Trades[0].Link != "t2" {
		t.Fatalf("expected RFC3339 lower bound, got %s", rec.Body.String())
	}
}

func TestBadQueries(t *testing.T) {
	handler := NewHandler(memory.NewStore())
	for _, target := range []string{
		"/events?from=yesterday",
		"/events?from=10&to=5",
		"/trades?limit=0",
		"/trades?limit=abc",
		"/trades?to=-1",
	} {
		if rec := get(t, handler, target); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewHandler(memory.NewStore())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader("{}")))
	if rec.Code != http.StatusMethodNotAllowed || rec.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("expected 405 with Allow header, got %d %q", rec.Code, rec.Header().Get("Allow"))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/events", nil))
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS preflight, got %d", rec.Code)
	}
}

type failingStore struct {
	ledgerstore.Store
}

func (failingStore) ListTrades(context.Context, ledgerstore.TradeQuery) ([]ledger.Trade, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	rec := get(t, NewHandler(failingStore{}), "/trades")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("store errors must not leak to clients: %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	if rec := get(t, NewHandler(memory.NewStore()), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
