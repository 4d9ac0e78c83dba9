package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
)

var eth = assets.Asset{Identifier: "ETH", Symbol: "ETH", Type: assets.TypeOwnChain}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func withdrawal(t *testing.T, id string, ts ledger.TimestampMS) []ledger.Event {
	t.Helper()
	events, err := ledger.NewAssetMovementWithFee(ledger.Movement{
		Location:  ledger.LocationCoinbasePro,
		Type:      ledger.EventTypeWithdrawal,
		Timestamp: ts,
		Asset:     eth,
		Amount:    decimal.RequireFromString("1.5"),
		Fee:       decimal.RequireFromString("0.001"),
		UniqueID:  id,
		ExtraData: map[string]any{"address": "0xabc", "transaction_id": "0xdead"},
	})
	require.NoError(t, err)
	return events
}

func TestAddEventsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.StartRun(ctx, ledgerstore.Run{ID: "run-1", StartedAt: time.Now()}))

	events := withdrawal(t, "w1", 1_600_000_000_000)
	inserted, err := store.AddEvents(ctx, "run-1", events)
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	require.NotNil(t, inserted[0].Identifier)
	require.NotNil(t, inserted[1].Identifier)
	require.NotEqual(t, *inserted[0].Identifier, *inserted[1].Identifier)
	require.Nil(t, events[0].Identifier, "input events stay unassigned")

	again, err := store.AddEvents(ctx, "run-2", events)
	require.NoError(t, err)
	require.Empty(t, again)

	stored, err := store.ListEvents(ctx, ledgerstore.EventQuery{Location: ledger.LocationCoinbasePro})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, events[0].EventIdentifier, stored[0].EventIdentifier)
	require.Equal(t, ledger.SequenceFee, stored[1].SequenceIndex)
	require.Equal(t, "0xdead", stored[0].ExtraData["transaction_id"])
	require.Nil(t, stored[1].ExtraData)
	require.Equal(t, eth, stored[1].Asset)
}

func TestListEventsFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	_, err := store.AddEvents(ctx, "run", append(withdrawal(t, "a", 1000), withdrawal(t, "b", 5000)...))
	require.NoError(t, err)

	window, err := store.ListEvents(ctx, ledgerstore.EventQuery{From: 2000, To: 6000})
	require.NoError(t, err)
	require.Len(t, window, 2)
	require.Equal(t, ledger.TimestampMS(5000), window[0].Timestamp)

	limited, err := store.ListEvents(ctx, ledgerstore.EventQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	byID, err := store.ListEvents(ctx, ledgerstore.EventQuery{EventIdentifier: ledger.HashID("COINBASEPROa")})
	require.NoError(t, err)
	require.Len(t, byID, 2)
}

func TestAddTradesSkipsKnownLinks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	usd := assets.Asset{Identifier: "USD", Symbol: "USD", Type: assets.TypeFiat}
	trade := ledger.Trade{
		Timestamp:   1_588_327_872_345,
		Location:    ledger.LocationCoinbasePro,
		Pair:        "BTC_USD",
		Side:        ledger.TradeSideBuy,
		Amount:      decimal.RequireFromString("0.5"),
		Rate:        decimal.RequireFromString("9000.00"),
		Fee:         decimal.RequireFromString("4.5"),
		FeeCurrency: usd,
		Link:        "74",
	}
	other := trade
	other.Link = "76"

	count, err := store.AddTrades(ctx, "run-1", []ledger.Trade{trade, other})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = store.AddTrades(ctx, "run-2", []ledger.Trade{trade})
	require.NoError(t, err)
	require.Zero(t, count)

	trades, err := store.ListTrades(ctx, ledgerstore.TradeQuery{Location: ledger.LocationCoinbasePro})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.Equal(t, usd, trades[0].FeeCurrency)
	require.True(t, trades[0].Rate.Equal(decimal.RequireFromString("9000")))
}

func TestRunIDRequired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.ErrorIs(t, store.StartRun(ctx, ledgerstore.Run{}), ledgerstore.ErrInvalidRun)
	_, err := store.AddEvents(ctx, " ", withdrawal(t, "w1", 1))
	require.ErrorIs(t, err, ledgerstore.ErrInvalidRun)
	_, err = store.AddTrades(ctx, "", []ledger.Trade{{Link: "1"}})
	require.ErrorIs(t, err, ledgerstore.ErrInvalidRun)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}
