package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"perp-trading-lab/internal/domain"
	"perp-trading-lab/internal/storage/clickhouse"
)

func TestEquityStore_AppendAndCurve(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := clickhouse.NewEquityStore(conn, "run-a")
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, equity := range []float64{10000, 10050.5, 9980.25} {
		pt := domain.EquityPoint{Timestamp: base.Add(time.Duration(i) * 15 * time.Minute), Equity: equity}
		require.NoError(t, store.Append(ctx, pt))
	}

	curve, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, curve, 3)
	require.Equal(t, 10000.0, curve[0].Equity)
	require.Equal(t, 9980.25, curve[2].Equity)
	require.True(t, curve[0].Timestamp.Before(curve[1].Timestamp))
}

func TestEquityStore_RunsAreIsolated(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := clickhouse.NewEquityStore(conn, "run-a")
	b := clickhouse.NewEquityStore(conn, "run-b")

	require.NoError(t, a.Append(ctx, domain.EquityPoint{Timestamp: base, Equity: 10000}))
	require.NoError(t, b.Append(ctx, domain.EquityPoint{Timestamp: base, Equity: 20000}))

	curveA, err := a.All(ctx)
	require.NoError(t, err)
	require.Len(t, curveA, 1)
	require.Equal(t, 10000.0, curveA[0].Equity)

	// Cross-run reads go through Curve.
	curveB, err := a.Curve(ctx, "run-b")
	require.NoError(t, err)
	require.Len(t, curveB, 1)
	require.Equal(t, 20000.0, curveB[0].Equity)
}

func TestEquityStore_AppendBulk(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	store := clickhouse.NewEquityStore(conn, "bulk")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	points := make([]domain.EquityPoint, 0, 50)
	for i := 0; i < 50; i++ {
		points = append(points, domain.EquityPoint{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Equity:    10000 + float64(i),
		})
	}
	require.NoError(t, store.AppendBulk(ctx, points))

	curve, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, curve, 50)
	require.Equal(t, 10049.0, curve[49].Equity)
}
