package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAddAndSnapshot tests opening positions and snapshot totals
func TestAddAndSnapshot(t *testing.T) {
	pf := New(10000)

	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))

	snap := pf.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 5000.0, snap.CashBalance)
	assert.Equal(t, 10000.0, snap.TotalValue) // cash + market value
	assert.Equal(t, 5000.0, snap.Positions[0].MarketValue())
}

// TestAddAveragesEntryPrice tests extending a position
func TestAddAveragesEntryPrice(t *testing.T) {
	pf := New(100000)

	require.NoError(t, pf.Add("ETHUSDT", 10, 2000, SideLong))
	require.NoError(t, pf.Add("ETHUSDT", 10, 3000, SideLong))

	snap := pf.Snapshot()
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 20.0, snap.Positions[0].Quantity)
	assert.Equal(t, 2500.0, snap.Positions[0].AvgPrice)
}

// TestAddSideMismatch tests extending with the wrong side
func TestAddSideMismatch(t *testing.T) {
	pf := New(10000)

	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))
	err := pf.Add("BTCUSDT", 0.1, 50000, SideShort)
	assert.ErrorIs(t, err, ErrSideMismatch)
}

// TestReduceDestroysAtZero tests the position lifecycle invariant
func TestReduceDestroysAtZero(t *testing.T) {
	pf := New(10000)

	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))
	require.NoError(t, pf.Reduce("BTCUSDT", 0.1, 52000))

	snap := pf.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 10200.0, snap.CashBalance, 1e-9) // 5000 + 0.1*52000
}

// TestReduceValidations tests reduce error paths
func TestReduceValidations(t *testing.T) {
	pf := New(10000)
	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))

	assert.ErrorIs(t, pf.Reduce("BTCUSDT", 0.5, 50000), ErrInvalidQuantity)
	assert.ErrorIs(t, pf.Reduce("ETHUSDT", 0.1, 2000), ErrPositionNotFound)
	assert.ErrorIs(t, pf.Reduce("BTCUSDT", -1, 50000), ErrInvalidQuantity)
}

// TestClose tests full liquidation
func TestClose(t *testing.T) {
	pf := New(10000)
	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))

	require.NoError(t, pf.Close("BTCUSDT", 48000))

	snap := pf.Snapshot()
	assert.Empty(t, snap.Positions)
	assert.InDelta(t, 9800.0, snap.CashBalance, 1e-9)

	assert.ErrorIs(t, pf.Close("BTCUSDT", 48000), ErrPositionNotFound)
}

// TestUnrealizedPnL tests per-side PnL sign
func TestUnrealizedPnL(t *testing.T) {
	long := Position{Symbol: "A", Quantity: 10, AvgPrice: 100, CurrentPrice: 110, Side: SideLong}
	short := Position{Symbol: "B", Quantity: 10, AvgPrice: 100, CurrentPrice: 110, Side: SideShort}

	assert.Equal(t, 100.0, long.UnrealizedPnL())
	assert.Equal(t, -100.0, short.UnrealizedPnL())
}

// TestMarkPrice tests price marking affects totals
func TestMarkPrice(t *testing.T) {
	pf := New(10000)
	require.NoError(t, pf.Add("BTCUSDT", 0.1, 50000, SideLong))
	require.NoError(t, pf.MarkPrice("BTCUSDT", 60000))

	snap := pf.Snapshot()
	assert.Equal(t, 6000.0, snap.Positions[0].MarketValue())
	assert.Equal(t, 11000.0, snap.TotalValue)
}
