package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage"
	"perp-trading-lab/internal/storage/postgres"
)

func sampleTrade(id string) *domain.TradeRecord {
	entry := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.TradeRecord{
		TradeID:    id,
		Symbol:     "ETHUSDT",
		Side:       domain.SideLong,
		Quantity:   1.5,
		Leverage:   5,
		EntryPrice: 3000,
		ExitPrice:  3150,
		EntryTime:  entry,
		ExitTime:   entry.Add(45 * time.Minute),
		Margin:     900,
		EntryFee:   1.2375,
		ExitFee:    1.2994,
		GrossPnL:   225,
		NetPnL:     222.4631,
		ExitReason: domain.ExitReasonTakeProfit,
		Held:       45 * time.Minute,
	}
}

func TestTradeLedger_AppendAndReadBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ledger := postgres.NewTradeLedger(pool)
	want := sampleTrade("trade-1")
	require.NoError(t, ledger.Append(ctx, want))

	got, err := ledger.GetByID(ctx, "trade-1")
	require.NoError(t, err)
	require.Equal(t, want.TradeID, got.TradeID)
	require.Equal(t, want.Side, got.Side)
	require.Equal(t, want.Quantity, got.Quantity)
	require.Equal(t, want.Leverage, got.Leverage)
	require.Equal(t, want.NetPnL, got.NetPnL)
	require.Equal(t, want.ExitReason, got.ExitReason)
	require.Equal(t, want.Held, got.Held)
	// Timestamps may come back in a different zone; compare instants.
	require.True(t, want.EntryTime.Equal(got.EntryTime))
	require.True(t, want.ExitTime.Equal(got.ExitTime))

	all, err := ledger.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestTradeLedger_DuplicateAndNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ledger := postgres.NewTradeLedger(pool)
	require.NoError(t, ledger.Append(ctx, sampleTrade("dup")))

	err := ledger.Append(ctx, sampleTrade("dup"))
	require.True(t, errors.Is(err, storage.ErrDuplicateKey), "got %v", err)

	_, err = ledger.GetByID(ctx, "missing")
	require.True(t, errors.Is(err, storage.ErrNotFound), "got %v", err)
}

func TestTradeLedger_InsertionOrderAndSymbolFilter(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ledger := postgres.NewTradeLedger(pool)
	first := sampleTrade("first")
	second := sampleTrade("second")
	second.Symbol = "BTCUSDT"
	third := sampleTrade("third")

	for _, tr := range []*domain.TradeRecord{first, second, third} {
		require.NoError(t, ledger.Append(ctx, tr))
	}

	all, err := ledger.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"first", "second", "third"},
		[]string{all[0].TradeID, all[1].TradeID, all[2].TradeID})

	eth, err := ledger.BySymbol(ctx, "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, eth, 2)
}

func TestDecisionLedger_AppendAndSince(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ledger := postgres.NewDecisionLedger(pool)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []*domain.DecisionRecord{
		{Timestamp: base, Symbol: "ETHUSDT", Signal: domain.SignalEntry, Side: domain.SideLong, Accepted: true, Confidence: 70, Justification: "breakout"},
		{Timestamp: base.Add(15 * time.Minute), Symbol: "ETHUSDT", Signal: domain.SignalHold, Accepted: true, UnrealizedPnL: -12.5},
		{Timestamp: base.Add(30 * time.Minute), Symbol: "ETHUSDT", Signal: domain.SignalEntry, Side: domain.SideShort, Accepted: false, RejectReason: "position_already_open"},
	}
	for _, d := range rows {
		require.NoError(t, ledger.Append(ctx, d))
	}

	all, err := ledger.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, rows[0].Justification, all[0].Justification)
	require.False(t, all[2].Accepted)
	require.Equal(t, "position_already_open", all[2].RejectReason)

	recent, err := ledger.Since(ctx, base.Add(10*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.SignalHold, recent[0].Signal)
}
