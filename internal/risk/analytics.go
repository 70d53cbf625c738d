// Package risk scores the aggregate risk of a portfolio across five
// statistical lenses (concentration, volatility, tail loss, drawdown,
// liquidity) and rolls them into one monotonic composite score.
package risk

import (
	"errors"
	"math"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/portfolio"
)

// ErrInvalidPortfolioValue is returned when the snapshot carries a
// non-positive total value.
var ErrInvalidPortfolioValue = errors.New("portfolio total value must be positive")

// Level is a categorical risk level.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
	LevelUnknown  Level = "unknown"
)

// Annualization factor for daily returns.
const tradingDaysPerYear = 252

// Concentration thresholds.
const (
	concHighMaxWeight   = 0.5
	concHighHHI         = 0.4
	concMediumMaxWeight = 0.3
	concMediumHHI       = 0.25
)

// Annualized volatility bands.
const (
	volLowBand    = 0.30
	volMediumBand = 0.60
	volHighBand   = 1.00
)

// Liquidity heuristic bands on average position notional. Exchange depth
// data is an external collaborator this engine does not have.
const (
	liqLowBand    = 10_000.0
	liqMediumBand = 100_000.0
)

// Composite weighting: each lens owns a share of the 0-100 budget, and
// its categorical level converts to a fraction of that share.
const (
	weightConcentration = 30.0
	weightVolatility    = 25.0
	weightVaR           = 25.0
	weightLiquidity     = 20.0

	levelLowFraction    = 0.10
	levelMediumFraction = 0.50
	levelHighFraction   = 1.00
)

// Composite score boundaries (inclusive).
const (
	compositeHighBoundary   = 70.0
	compositeMediumBoundary = 40.0
)

// Drawdown duration counts contiguous periods below this level.
const drawdownDurationFloor = -0.01

// ConcentrationRisk measures how evenly exposure is spread.
type ConcentrationRisk struct {
	Level     Level   `json:"level"`
	HHIIndex  float64 `json:"hhi_index"`
	MaxWeight float64 `json:"max_weight"`
}

// VolatilityRisk measures return dispersion.
type VolatilityRisk struct {
	Daily      float64 `json:"daily"`
	Annualized float64 `json:"annualized"`
	Level      Level   `json:"level"`
}

// TailRisk holds empirical downside quantiles. All values are fractional
// returns and non-positive for any loss-bearing series.
type TailRisk struct {
	VaR95               float64 `json:"var_95"`
	VaR99               float64 `json:"var_99"`
	ExpectedShortfall95 float64 `json:"expected_shortfall_95"`
	ExpectedShortfall99 float64 `json:"expected_shortfall_99"`
	Level               Level   `json:"level"`
}

// DrawdownRisk measures peak-to-trough decline on the cumulative curve.
type DrawdownRisk struct {
	MaxDrawdown        float64 `json:"max_drawdown"`     // <= 0
	CurrentDrawdown    float64 `json:"current_drawdown"` // <= 0
	MaxDurationPeriods int     `json:"max_duration_periods"`
}

// LiquidityRisk is a position-size heuristic.
type LiquidityRisk struct {
	Level           Level   `json:"level"`
	AvgPositionSize float64 `json:"avg_position_size"`
}

// Report is the full portfolio risk assessment. It is produced fresh per
// call and treated as a read-only snapshot by consumers.
type Report struct {
	Concentration   ConcentrationRisk `json:"concentration"`
	Volatility      VolatilityRisk    `json:"volatility"`
	TailRisk        TailRisk          `json:"tail_risk"`
	Drawdown        DrawdownRisk      `json:"drawdown"`
	Liquidity       LiquidityRisk     `json:"liquidity"`
	CompositeScore  float64           `json:"composite_score"`
	RiskLevel       Level             `json:"risk_level"`
	Recommendations []string          `json:"recommendations"`
}

// Analyzer computes portfolio risk reports. Stateless per call.
type Analyzer struct{}

// NewAnalyzer creates a portfolio risk analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze scores the given portfolio snapshot against its trailing daily
// return series. Fewer than two return observations degrade the
// volatility and tail blocks to zeroed values labeled "unknown" instead
// of failing.
func (a *Analyzer) Analyze(snap portfolio.Snapshot, returns []float64) (*Report, error) {
	if snap.TotalValue <= 0 {
		return nil, ErrInvalidPortfolioValue
	}

	report := &Report{
		Concentration: analyzeConcentration(snap.Positions),
		Volatility:    analyzeVolatility(returns),
		TailRisk:      analyzeTailRisk(returns),
		Drawdown:      analyzeDrawdown(returns),
		Liquidity:     analyzeLiquidity(snap.Positions),
	}

	report.CompositeScore = compositeScore(report)
	report.RiskLevel = RiskLevelForScore(report.CompositeScore)
	report.Recommendations = recommendations(report)

	log.Debug().
		Float64("composite_score", report.CompositeScore).
		Str("risk_level", string(report.RiskLevel)).
		Str("concentration", string(report.Concentration.Level)).
		Str("volatility", string(report.Volatility.Level)).
		Str("liquidity", string(report.Liquidity.Level)).
		Int("returns", len(returns)).
		Msg("Portfolio risk analyzed")

	return report, nil
}

// analyzeConcentration computes position weights and the
// Herfindahl-Hirschman index over them.
func analyzeConcentration(positions []portfolio.Position) ConcentrationRisk {
	total := 0.0
	for _, p := range positions {
		total += p.MarketValue()
	}
	if total <= 0 {
		return ConcentrationRisk{Level: LevelLow}
	}

	hhi := 0.0
	maxWeight := 0.0
	for _, p := range positions {
		w := p.MarketValue() / total
		hhi += w * w
		if w > maxWeight {
			maxWeight = w
		}
	}

	level := LevelLow
	switch {
	case maxWeight > concHighMaxWeight || hhi > concHighHHI:
		level = LevelHigh
	case maxWeight > concMediumMaxWeight || hhi > concMediumHHI:
		level = LevelMedium
	}

	return ConcentrationRisk{Level: level, HHIIndex: hhi, MaxWeight: maxWeight}
}

func analyzeVolatility(returns []float64) VolatilityRisk {
	if len(returns) < 2 {
		return VolatilityRisk{Level: LevelUnknown}
	}

	daily := stdDev(returns)
	annualized := daily * math.Sqrt(tradingDaysPerYear)

	level := LevelVeryHigh
	switch {
	case annualized < volLowBand:
		level = LevelLow
	case annualized < volMediumBand:
		level = LevelMedium
	case annualized < volHighBand:
		level = LevelHigh
	}

	return VolatilityRisk{Daily: daily, Annualized: annualized, Level: level}
}

// analyzeTailRisk computes empirical (historical simulation) VaR and
// expected shortfall at the 95% and 99% levels.
func analyzeTailRisk(returns []float64) TailRisk {
	if len(returns) < 2 {
		return TailRisk{Level: LevelUnknown}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	slices.Sort(sorted)

	var95 := percentile(sorted, 0.05)
	var99 := percentile(sorted, 0.01)

	level := LevelLow
	switch {
	case var95 < -0.05:
		level = LevelHigh
	case var95 < -0.02:
		level = LevelMedium
	}

	return TailRisk{
		VaR95:               var95,
		VaR99:               var99,
		ExpectedShortfall95: expectedShortfall(sorted, var95),
		ExpectedShortfall99: expectedShortfall(sorted, var99),
		Level:               level,
	}
}

// analyzeDrawdown builds the compounded cumulative-return curve and
// tracks peak-to-trough declines plus the longest stretch spent more
// than 1% under water.
func analyzeDrawdown(returns []float64) DrawdownRisk {
	if len(returns) < 2 {
		return DrawdownRisk{}
	}

	cum := 1.0
	peak := 1.0
	maxDD := 0.0
	currentDD := 0.0
	maxDuration := 0
	run := 0

	for _, r := range returns {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}

		currentDD = (cum - peak) / peak
		if currentDD < maxDD {
			maxDD = currentDD
		}

		if currentDD < drawdownDurationFloor {
			run++
			if run > maxDuration {
				maxDuration = run
			}
		} else {
			run = 0
		}
	}

	return DrawdownRisk{
		MaxDrawdown:        maxDD,
		CurrentDrawdown:    currentDD,
		MaxDurationPeriods: maxDuration,
	}
}

func analyzeLiquidity(positions []portfolio.Position) LiquidityRisk {
	if len(positions) == 0 {
		return LiquidityRisk{Level: LevelLow}
	}

	total := 0.0
	for _, p := range positions {
		total += p.MarketValue()
	}
	avg := total / float64(len(positions))

	level := LevelHigh
	switch {
	case avg < liqLowBand:
		level = LevelLow
	case avg < liqMediumBand:
		level = LevelMedium
	}

	return LiquidityRisk{Level: level, AvgPositionSize: avg}
}

// compositeScore converts the categorical levels into points within
// each lens's weight budget and sums them. Unknown levels contribute as
// low so short histories degrade rather than inflate the score.
func compositeScore(r *Report) float64 {
	return levelPoints(r.Concentration.Level, weightConcentration) +
		levelPoints(r.Volatility.Level, weightVolatility) +
		levelPoints(r.TailRisk.Level, weightVaR) +
		levelPoints(r.Liquidity.Level, weightLiquidity)
}

func levelPoints(level Level, budget float64) float64 {
	switch level {
	case LevelHigh, LevelVeryHigh:
		return budget * levelHighFraction
	case LevelMedium:
		return budget * levelMediumFraction
	default:
		return budget * levelLowFraction
	}
}

// RiskLevelForScore maps a composite score to its category. Boundaries
// are inclusive: exactly 70 is high, exactly 40 is medium.
func RiskLevelForScore(score float64) Level {
	switch {
	case score >= compositeHighBoundary:
		return LevelHigh
	case score >= compositeMediumBoundary:
		return LevelMedium
	default:
		return LevelLow
	}
}

// recommendations derives advice from threshold breaches only.
func recommendations(r *Report) []string {
	var recs []string

	if r.Concentration.HHIIndex > concHighHHI {
		recs = append(recs, "reduce concentration: HHI above 0.4, diversify across more instruments")
	} else if r.Concentration.MaxWeight > concHighMaxWeight {
		recs = append(recs, "reduce largest position: single instrument exceeds 50% of exposure")
	}

	if r.Volatility.Level == LevelHigh || r.Volatility.Level == LevelVeryHigh {
		recs = append(recs, "reduce position sizes: annualized volatility above 60%")
	}

	if r.TailRisk.Level == LevelHigh {
		recs = append(recs, "tighten stops: 95% one-day VaR worse than -5%")
	}

	if r.Drawdown.MaxDrawdown < -0.20 {
		recs = append(recs, "review strategy: maximum drawdown beyond -20%")
	}

	if r.Liquidity.Level == LevelHigh {
		recs = append(recs, "stagger exits: average position notional above $100k")
	}

	return recs
}

// percentile returns the empirical percentile of an ascending-sorted
// series using the floor-index convention.
func percentile(sorted []float64, p float64) float64 {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// expectedShortfall is the mean of all returns at or below the VaR
// threshold, falling back to the threshold itself when no returns
// qualify.
func expectedShortfall(sorted []float64, varThreshold float64) float64 {
	sum := 0.0
	count := 0
	for _, r := range sorted {
		if r > varThreshold {
			break
		}
		sum += r
		count++
	}
	if count == 0 {
		return varThreshold
	}
	return sum / float64(count)
}

// stdDev computes the sample standard deviation (Bessel's correction).
func stdDev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)

	return math.Sqrt(variance)
}
