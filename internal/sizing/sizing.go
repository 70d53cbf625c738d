// Package sizing turns a gated decision into a concrete position size.
// Two interchangeable modes are offered: stop-distance risk budgeting
// (default) and a fractional Kelly criterion.
package sizing

import (
	"errors"
	"math"

	"github.com/rs/zerolog/log"
)

// Sizing errors. Invalid inputs are rejected, never silently clamped to
// a zero-quantity result.
var (
	ErrInvalidStopLoss       = errors.New("stop loss equals entry price, risk per unit is zero")
	ErrInvalidPrice          = errors.New("entry price must be positive")
	ErrInvalidPortfolioValue = errors.New("portfolio value must be positive")
	ErrInvalidTradeStats     = errors.New("win rate must be in (0,1) and average win/loss positive")
)

// Constraint identifies which of the three limits bound the quantity.
type Constraint string

const (
	ConstraintRiskBudget    Constraint = "risk_budget"
	ConstraintExposureCap   Constraint = "exposure_cap"
	ConstraintAvailableCash Constraint = "available_cash"
)

// Kelly safety parameters. Full and even half Kelly are too aggressive
// for this domain, so the raw fraction is always scaled and capped.
const (
	kellyMultiplier  = 0.25
	kellyFractionCap = 0.20
)

// Config holds the sizing limits, injected from configuration.
type Config struct {
	RiskFraction        float64 // fraction of portfolio risked per trade, e.g. 0.02
	MaxPositionFraction float64 // exposure cap as fraction of portfolio, e.g. 0.10
}

// DefaultConfig returns conservative sizing defaults.
func DefaultConfig() Config {
	return Config{
		RiskFraction:        0.02,
		MaxPositionFraction: 0.10,
	}
}

// PositionSizing is the result of risk-based sizing.
type PositionSizing struct {
	RecommendedQuantity float64    `json:"recommended_quantity"`
	PositionValue       float64    `json:"position_value"`
	RiskAmount          float64    `json:"risk_amount"`
	RiskPercentage      float64    `json:"risk_percentage"`
	RiskRewardRatio     float64    `json:"risk_reward_ratio"`
	LimitingConstraint  Constraint `json:"limiting_constraint"`
}

// KellySizing is the result of Kelly-criterion sizing.
type KellySizing struct {
	KellyFraction    float64 `json:"kelly_fraction"`    // raw (b·p − q)/b
	AdjustedFraction float64 `json:"adjusted_fraction"` // quarter-Kelly, capped
	PositionValue    float64 `json:"position_value"`
	Recommendation   string  `json:"recommendation"`
}

// Calculator computes position sizes under a fixed set of limits.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a position sizing calculator. Non-positive
// limits fall back to the defaults.
func NewCalculator(cfg Config) *Calculator {
	if cfg.RiskFraction <= 0 || cfg.RiskFraction >= 1 {
		cfg.RiskFraction = DefaultConfig().RiskFraction
	}
	if cfg.MaxPositionFraction <= 0 || cfg.MaxPositionFraction >= 1 {
		cfg.MaxPositionFraction = DefaultConfig().MaxPositionFraction
	}
	return &Calculator{cfg: cfg}
}

// RiskBased sizes a position from the stop distance: the recommended
// quantity is the minimum of the risk-budget, exposure-cap and
// available-cash quantities, and the binding constraint is recorded.
func (c *Calculator) RiskBased(entryPrice, stopLossPrice, portfolioValue, availableCash float64) (*PositionSizing, error) {
	if entryPrice <= 0 {
		return nil, ErrInvalidPrice
	}
	if portfolioValue <= 0 {
		return nil, ErrInvalidPortfolioValue
	}

	riskPerUnit := math.Abs(entryPrice - stopLossPrice)
	if riskPerUnit == 0 {
		return nil, ErrInvalidStopLoss
	}

	riskBasedQty := (portfolioValue * c.cfg.RiskFraction) / riskPerUnit
	exposureCapQty := (portfolioValue * c.cfg.MaxPositionFraction) / entryPrice
	cashQty := math.Max(0, availableCash) / entryPrice

	qty := riskBasedQty
	constraint := ConstraintRiskBudget
	if exposureCapQty < qty {
		qty = exposureCapQty
		constraint = ConstraintExposureCap
	}
	if cashQty < qty {
		qty = cashQty
		constraint = ConstraintAvailableCash
	}

	riskAmount := qty * riskPerUnit

	// Take-profit assumed at twice the stop distance from entry, in the
	// profitable direction.
	rewardPerUnit := 2 * riskPerUnit

	sizing := &PositionSizing{
		RecommendedQuantity: qty,
		PositionValue:       qty * entryPrice,
		RiskAmount:          riskAmount,
		RiskPercentage:      riskAmount / portfolioValue * 100,
		RiskRewardRatio:     rewardPerUnit / riskPerUnit,
		LimitingConstraint:  constraint,
	}

	log.Debug().
		Float64("entry_price", entryPrice).
		Float64("stop_loss", stopLossPrice).
		Float64("risk_based_qty", riskBasedQty).
		Float64("exposure_cap_qty", exposureCapQty).
		Float64("cash_qty", cashQty).
		Float64("recommended_qty", qty).
		Str("limiting_constraint", string(constraint)).
		Msg("Risk-based position sizing")

	return sizing, nil
}

// Kelly sizes a position from historical trade statistics using the
// Kelly Criterion f* = (b·p − q)/b with b = avgWin/avgLoss, p = winRate
// and q = 1 − p. The raw fraction is scaled to quarter Kelly and capped
// at 20% of the portfolio; a negative edge sizes to zero.
func (c *Calculator) Kelly(winRate, avgWin, avgLoss, portfolioValue float64) (*KellySizing, error) {
	if winRate <= 0 || winRate >= 1 || avgWin <= 0 || avgLoss <= 0 {
		return nil, ErrInvalidTradeStats
	}
	if portfolioValue <= 0 {
		return nil, ErrInvalidPortfolioValue
	}

	b := avgWin / avgLoss
	q := 1 - winRate
	kelly := (winRate*b - q) / b

	adjusted := kelly * kellyMultiplier
	if adjusted > kellyFractionCap {
		log.Warn().
			Float64("adjusted_fraction", adjusted).
			Msg("Quarter-Kelly fraction exceeds cap, capping at 20%")
		adjusted = kellyFractionCap
	}
	if adjusted < 0 {
		adjusted = 0
	}

	sizing := &KellySizing{
		KellyFraction:    kelly,
		AdjustedFraction: adjusted,
		PositionValue:    portfolioValue * adjusted,
		Recommendation:   kellyRecommendation(kelly),
	}

	log.Debug().
		Float64("win_rate", winRate).
		Float64("win_loss_ratio", b).
		Float64("raw_kelly", kelly).
		Float64("adjusted_fraction", adjusted).
		Float64("position_value", sizing.PositionValue).
		Msg("Kelly position sizing")

	return sizing, nil
}

// kellyRecommendation provides interpretation of the raw Kelly fraction.
func kellyRecommendation(kelly float64) string {
	percent := kelly * 100

	switch {
	case percent <= 0:
		return "No position recommended - negative edge (expected value < 0)"
	case percent <= 2:
		return "Very small position - minimal edge"
	case percent <= 5:
		return "Conservative position - moderate edge"
	case percent <= 10:
		return "Standard position - good edge"
	case percent <= 20:
		return "Large position - strong edge (monitor risk carefully)"
	default:
		return "Very large position suggested - verify statistics before trading"
	}
}
