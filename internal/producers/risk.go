package producers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradequorum/internal/cache"
	"github.com/ajitpratap0/tradequorum/internal/opinion"
	"github.com/ajitpratap0/tradequorum/internal/risk"
)

// Composite score thresholds mapping a risk report to a gate stance.
const (
	rejectScore  = 85.0
	reduceScore  = 70.0
	cautionScore = 40.0
)

// Risk produces gate opinions from the most recent cached portfolio
// risk report. When no report is available the opinion fails, which
// makes the gate skip the risk rules rather than guess.
type Risk struct {
	reports     *cache.ReportCache
	portfolioID string
	log         zerolog.Logger
}

// NewRisk creates a report-backed risk opinion producer.
func NewRisk(reports *cache.ReportCache, portfolioID string, logger zerolog.Logger) *Risk {
	return &Risk{
		reports:     reports,
		portfolioID: portfolioID,
		log:         logger.With().Str("producer_id", opinion.ProducerRisk).Logger(),
	}
}

// ID implements the producer identity.
func (r *Risk) ID() string {
	return opinion.ProducerRisk
}

// Opinion derives the current risk stance from the cached report.
func (r *Risk) Opinion(ctx context.Context, symbol string) (opinion.RawOpinion, error) {
	report, ok := r.reports.Get(ctx, r.portfolioID)
	if !ok {
		return opinion.RawOpinion{}, fmt.Errorf("no risk report available for portfolio %s", r.portfolioID)
	}

	action, confidence := stanceForReport(report)
	score := report.CompositeScore

	r.log.Debug().
		Str("symbol", symbol).
		Float64("composite_score", score).
		Str("risk_level", string(report.RiskLevel)).
		Str("action", action).
		Msg("Risk opinion computed")

	return opinion.RawOpinion{
		ProducerID: opinion.ProducerRisk,
		OK:         true,
		Action:     action,
		Confidence: confidence,
		Score:      &score,
	}, nil
}

// stanceForReport maps the composite score onto the risk vocabulary.
// Higher scores carry higher confidence: an extreme reading is a
// stronger signal than a borderline one.
func stanceForReport(report *risk.Report) (string, float64) {
	switch {
	case report.CompositeScore >= rejectScore:
		return string(opinion.ActionReject), 0.9
	case report.CompositeScore >= reduceScore:
		return string(opinion.ActionReduce), 0.8
	case report.CompositeScore >= cautionScore:
		return string(opinion.ActionCaution), 0.6
	default:
		return string(opinion.ActionAccept), 0.7
	}
}
