// Package gate applies risk-producer overrides and portfolio cash
// constraints to a synthesized decision. Override precedence is strict:
// the first matching rule wins and the reason is retained for audit.
package gate

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/opinion"
	"github.com/ajitpratap0/tradequorum/internal/synthesis"
)

// Override reasons (bounded set, retained for audit).
const (
	ReasonNone             = "none"
	ReasonRiskRejection    = "risk rejection"
	ReasonRiskReduce       = "risk reduce"
	ReasonRiskCaution      = "risk caution"
	ReasonInsufficientCash = "insufficient cash"
)

// Confidence adjustments applied by the override rules.
const (
	rejectConfidence  = 0.3
	reduceMultiplier  = 0.7
	cautionMultiplier = 0.8
	lowCashConfidence = 0.4
	minCashFraction   = 0.10
)

// PortfolioContext carries the portfolio facts the gate consults.
type PortfolioContext struct {
	TotalValue    float64 `json:"total_value"`
	AvailableCash float64 `json:"available_cash"`
}

// GatedDecision is the immutable, audit-ready output of the gate.
type GatedDecision struct {
	Action         opinion.Action `json:"action"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	OverallScore   float64        `json:"overall_score"`
	OverrideReason string         `json:"override_reason"`
}

// Apply runs the override precedence chain against a synthesized
// decision. portfolio may be nil when no portfolio context is available.
// A failed risk opinion skips the risk rules; the cash constraint still
// applies.
func Apply(decision *synthesis.Decision, riskOp opinion.AgentOpinion, portfolio *PortfolioContext) GatedDecision {
	out := GatedDecision{
		Action:         decision.Action,
		Confidence:     decision.Confidence,
		Reasoning:      decision.Reasoning,
		OverallScore:   decision.OverallScore,
		OverrideReason: ReasonNone,
	}

	if riskOp.OK {
		switch riskOp.Action {
		case opinion.ActionReject:
			out.Action = opinion.ActionHold
			out.Confidence = rejectConfidence
			out.OverrideReason = ReasonRiskRejection
			logOverride(decision, out)
			return out

		case opinion.ActionReduce:
			if isBuy(decision.Action) {
				out.Action = downgrade(decision.Action)
				out.Confidence = decision.Confidence * reduceMultiplier
				out.OverrideReason = ReasonRiskReduce
				logOverride(decision, out)
				return out
			}

		case opinion.ActionCaution:
			out.Confidence = decision.Confidence * cautionMultiplier
			out.OverrideReason = ReasonRiskCaution
			logOverride(decision, out)
			return out
		}
	}

	if portfolio != nil && isBuy(decision.Action) &&
		portfolio.AvailableCash < minCashFraction*portfolio.TotalValue {
		out.Action = opinion.ActionHold
		out.Confidence = lowCashConfidence
		out.OverrideReason = ReasonInsufficientCash
		logOverride(decision, out)
		return out
	}

	return out
}

func isBuy(a opinion.Action) bool {
	return a == opinion.ActionBuy || a == opinion.ActionStrongBuy
}

// downgrade lowers a buy-side action by one tier.
func downgrade(a opinion.Action) opinion.Action {
	switch a {
	case opinion.ActionStrongBuy:
		return opinion.ActionBuy
	case opinion.ActionBuy:
		return opinion.ActionHold
	default:
		return a
	}
}

func logOverride(in *synthesis.Decision, out GatedDecision) {
	log.Info().
		Str("from_action", string(in.Action)).
		Str("to_action", string(out.Action)).
		Float64("confidence", out.Confidence).
		Str("override_reason", out.OverrideReason).
		Msg("Risk gate override applied")
}
