package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRiskBasedCashConstrained reproduces the cash-bound sizing case:
// risk budget allows 40 units, exposure cap 10, cash only 5.
func TestRiskBasedCashConstrained(t *testing.T) {
	calc := NewCalculator(Config{RiskFraction: 0.02, MaxPositionFraction: 0.1})

	sizing, err := calc.RiskBased(100, 95, 10000, 500)
	require.NoError(t, err)

	// risk_based = 10000*0.02/5 = 40, exposure_cap = 10000*0.1/100 = 10, cash = 500/100 = 5
	assert.InDelta(t, 5.0, sizing.RecommendedQuantity, 1e-9)
	assert.Equal(t, ConstraintAvailableCash, sizing.LimitingConstraint)
	assert.InDelta(t, 500.0, sizing.PositionValue, 1e-9)
	assert.InDelta(t, 25.0, sizing.RiskAmount, 1e-9) // 5 units * $5 stop distance
	assert.InDelta(t, 0.25, sizing.RiskPercentage, 1e-9)
	assert.InDelta(t, 2.0, sizing.RiskRewardRatio, 1e-9)
}

// TestRiskBasedConstraintSelection tests which constraint binds
func TestRiskBasedConstraintSelection(t *testing.T) {
	tests := []struct {
		name           string
		entry, stop    float64
		portfolio      float64
		cash           float64
		wantQty        float64
		wantConstraint Constraint
	}{
		{"exposure cap binds", 100, 95, 10000, 50000, 10, ConstraintExposureCap},
		{"risk budget binds", 100, 50, 10000, 50000, 4, ConstraintRiskBudget}, // 200/50=4 < 10
		{"cash binds", 100, 95, 10000, 200, 2, ConstraintAvailableCash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(Config{RiskFraction: 0.02, MaxPositionFraction: 0.1})
			sizing, err := calc.RiskBased(tt.entry, tt.stop, tt.portfolio, tt.cash)
			require.NoError(t, err)

			assert.InDelta(t, tt.wantQty, sizing.RecommendedQuantity, 1e-9)
			assert.Equal(t, tt.wantConstraint, sizing.LimitingConstraint)
		})
	}
}

// TestRiskBasedMonotonicity verifies the recommended quantity never
// exceeds any of the three individual constraint quantities.
func TestRiskBasedMonotonicity(t *testing.T) {
	cfg := Config{RiskFraction: 0.02, MaxPositionFraction: 0.1}
	calc := NewCalculator(cfg)

	cases := []struct {
		entry, stop, portfolio, cash float64
	}{
		{100, 95, 10000, 500},
		{50, 48, 25000, 25000},
		{2000, 1900, 100000, 3000},
		{10, 5, 1000, 10000},
		{1.5, 1.2, 500, 50},
	}

	for _, c := range cases {
		sizing, err := calc.RiskBased(c.entry, c.stop, c.portfolio, c.cash)
		require.NoError(t, err)

		riskPerUnit := c.entry - c.stop
		if riskPerUnit < 0 {
			riskPerUnit = -riskPerUnit
		}
		riskQty := c.portfolio * cfg.RiskFraction / riskPerUnit
		capQty := c.portfolio * cfg.MaxPositionFraction / c.entry
		cashQty := c.cash / c.entry

		assert.LessOrEqual(t, sizing.RecommendedQuantity, riskQty+1e-9)
		assert.LessOrEqual(t, sizing.RecommendedQuantity, capQty+1e-9)
		assert.LessOrEqual(t, sizing.RecommendedQuantity, cashQty+1e-9)
		assert.GreaterOrEqual(t, sizing.RecommendedQuantity, 0.0)
	}
}

// TestRiskBasedShortDirection verifies stop above entry works (short setup)
func TestRiskBasedShortDirection(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	sizing, err := calc.RiskBased(100, 105, 10000, 50000)
	require.NoError(t, err)
	assert.Greater(t, sizing.RecommendedQuantity, 0.0)
	assert.InDelta(t, 2.0, sizing.RiskRewardRatio, 1e-9)
}

// TestRiskBasedInvalidInputs tests input rejections
func TestRiskBasedInvalidInputs(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	t.Run("zero stop distance", func(t *testing.T) {
		_, err := calc.RiskBased(100, 100, 10000, 500)
		assert.ErrorIs(t, err, ErrInvalidStopLoss)
	})

	t.Run("non-positive entry", func(t *testing.T) {
		_, err := calc.RiskBased(0, 95, 10000, 500)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	})

	t.Run("non-positive portfolio", func(t *testing.T) {
		_, err := calc.RiskBased(100, 95, 0, 500)
		assert.ErrorIs(t, err, ErrInvalidPortfolioValue)
	})
}

// TestKellySizing tests the fractional Kelly mode
func TestKellySizing(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	t.Run("positive edge", func(t *testing.T) {
		// b = 2, p = 0.6, q = 0.4 -> kelly = (1.2-0.4)/2 = 0.4
		sizing, err := calc.Kelly(0.6, 200, 100, 10000)
		require.NoError(t, err)

		assert.InDelta(t, 0.4, sizing.KellyFraction, 1e-9)
		assert.InDelta(t, 0.1, sizing.AdjustedFraction, 1e-9) // quarter Kelly
		assert.InDelta(t, 1000.0, sizing.PositionValue, 1e-9)
	})

	t.Run("cap at 20 percent", func(t *testing.T) {
		// b = 10, p = 0.9 -> kelly = (9-0.1)/10 = 0.89, quarter = 0.2225 -> capped
		sizing, err := calc.Kelly(0.9, 1000, 100, 10000)
		require.NoError(t, err)

		assert.InDelta(t, 0.20, sizing.AdjustedFraction, 1e-9)
		assert.InDelta(t, 2000.0, sizing.PositionValue, 1e-9)
	})

	t.Run("negative edge sizes to zero", func(t *testing.T) {
		// b = 0.5, p = 0.3 -> kelly = (0.15-0.7)/0.5 < 0
		sizing, err := calc.Kelly(0.3, 50, 100, 10000)
		require.NoError(t, err)

		assert.Less(t, sizing.KellyFraction, 0.0)
		assert.Zero(t, sizing.AdjustedFraction)
		assert.Zero(t, sizing.PositionValue)
		assert.Contains(t, sizing.Recommendation, "negative edge")
	})
}

// TestKellyInvalidInputs tests Kelly input rejections
func TestKellyInvalidInputs(t *testing.T) {
	calc := NewCalculator(DefaultConfig())

	tests := []struct {
		name                             string
		winRate, avgWin, avgLoss, equity float64
		wantErr                          error
	}{
		{"win rate zero", 0, 200, 100, 10000, ErrInvalidTradeStats},
		{"win rate one", 1, 200, 100, 10000, ErrInvalidTradeStats},
		{"avg win zero", 0.6, 0, 100, 10000, ErrInvalidTradeStats},
		{"avg loss negative", 0.6, 200, -5, 10000, ErrInvalidTradeStats},
		{"portfolio zero", 0.6, 200, 100, 0, ErrInvalidPortfolioValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Kelly(tt.winRate, tt.avgWin, tt.avgLoss, tt.equity)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// TestNewCalculatorDefaults verifies out-of-range config falls back
func TestNewCalculatorDefaults(t *testing.T) {
	calc := NewCalculator(Config{RiskFraction: -1, MaxPositionFraction: 2})

	sizing, err := calc.RiskBased(100, 95, 10000, 50000)
	require.NoError(t, err)
	// defaults: 0.02 risk fraction -> 40 qty, 0.10 cap -> 10 qty
	assert.InDelta(t, 10.0, sizing.RecommendedQuantity, 1e-9)
}
