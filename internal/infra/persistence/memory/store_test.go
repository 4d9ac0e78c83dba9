package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
)

func movement(t *testing.T, id string, ts ledger.TimestampMS) []ledger.Event {
	t.Helper()
	events, err := ledger.NewAssetMovementWithFee(ledger.Movement{
		Location:  ledger.LocationCoinbasePro,
		Type:      ledger.EventTypeWithdrawal,
		Timestamp: ts,
		Asset:     assets.Asset{Identifier: "ETH", Symbol: "ETH", Type: assets.TypeOwnChain},
		Amount:    decimal.RequireFromString("1.5"),
		Fee:       decimal.RequireFromString("0.001"),
		UniqueID:  id,
		ExtraData: map[string]any{"address": "0xabc"},
	})
	if err != nil {
		t.Fatalf("build movement: %v", err)
	}
	return events
}

func TestAddEventsSkipsStoredIdentity(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first, err := store.AddEvents(ctx, "run-1", movement(t, "w1", 10))
	if err != nil || len(first) != 2 {
		t.Fatalf("expected two new events, got %d %v", len(first), err)
	}
	if *first[0].Identifier != 1 || *first[1].Identifier != 2 {
		t.Fatalf("unexpected identifiers %d %d", *first[0].Identifier, *first[1].Identifier)
	}
	second, err := store.AddEvents(ctx, "run-2", movement(t, "w1", 10))
	if err != nil || len(second) != 0 {
		t.Fatalf("expected no new events, got %d %v", len(second), err)
	}
	if _, err := store.AddEvents(ctx, "run-3", movement(t, "w2", 20)); err != nil {
		t.Fatalf("add events: %v", err)
	}

	all, err := store.ListEvents(ctx, ledgerstore.EventQuery{})
	if err != nil || len(all) != 4 {
		t.Fatalf("expected four stored events, got %d %v", len(all), err)
	}
	if all[0].Timestamp != 10 || all[1].SequenceIndex != ledger.SequenceFee {
		t.Fatalf("unexpected ordering %+v", all)
	}
	windowed, _ := store.ListEvents(ctx, ledgerstore.EventQuery{From: 15, Limit: 1})
	if len(windowed) != 1 || windowed[0].Timestamp != 20 {
		t.Fatalf("unexpected windowed result %+v", windowed)
	}
}

func TestListedEventsDoNotAliasStorage(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if _, err := store.AddEvents(ctx, "run", movement(t, "w1", 10)); err != nil {
		t.Fatalf("add events: %v", err)
	}
	listed, _ := store.ListEvents(ctx, ledgerstore.EventQuery{})
	listed[0].ExtraData["address"] = "mutated"
	again, _ := store.ListEvents(ctx, ledgerstore.EventQuery{})
	if again[0].ExtraData["address"] != "0xabc" {
		t.Fatalf("stored extra data was mutated")
	}
}

func TestInvalidBatchStoresNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	events := movement(t, "w1", 10)
	events[1].EventIdentifier = ""
	if _, err := store.AddEvents(ctx, "run", events); err == nil {
		t.Fatal("expected missing identifier to fail")
	}
	if listed, _ := store.ListEvents(ctx, ledgerstore.EventQuery{}); len(listed) != 0 {
		t.Fatalf("rejected batch must store nothing, found %d events", len(listed))
	}

	trades := []ledger.Trade{{Location: ledger.LocationCoinbasePro, Link: "74", Pair: "BTC_USD"}, {Location: ledger.LocationCoinbasePro}}
	if n, err := store.AddTrades(ctx, "run", trades); err == nil || n != 0 {
		t.Fatalf("expected missing link to fail, got %d %v", n, err)
	}
	if listed, _ := store.ListTrades(ctx, ledgerstore.TradeQuery{}); len(listed) != 0 {
		t.Fatalf("rejected batch must store nothing, found %d trades", len(listed))
	}

	if stored, err := store.AddEvents(ctx, "run", movement(t, "w1", 10)); err != nil || len(stored) != 2 || *stored[0].Identifier != 1 {
		t.Fatalf("valid batch after rejection: %d %v", len(stored), err)
	}
}

func TestAddTradesConcurrently(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	trade := ledger.Trade{Location: ledger.LocationCoinbasePro, Link: "74", Pair: "BTC_USD"}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.AddTrades(ctx, "run", []ledger.Trade{trade})
			if err != nil {
				t.Errorf("add trades: %v", err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	if total != 1 {
		t.Fatalf("expected exactly one insert, got %d", total)
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStore().AddEvents(ctx, "run", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled context, got %v", err)
	}
}

func TestRunsAreRecordedOnce(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.StartRun(ctx, ledgerstore.Run{}); !errors.Is(err, ledgerstore.ErrInvalidRun) {
		t.Fatalf("expected invalid run, got %v", err)
	}
	_ = store.StartRun(ctx, ledgerstore.Run{ID: "a", From: 1})
	_ = store.StartRun(ctx, ledgerstore.Run{ID: "a", From: 2})
	runs := store.Runs()
	if len(runs) != 1 || runs[0].From != 1 {
		t.Fatalf("unexpected runs %+v", runs)
	}
}
