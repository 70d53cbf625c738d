// Package synthesis combines normalized producer opinions into a single
// bounded directional decision with a confidence level.
package synthesis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/tradequorum/internal/opinion"
)

// ErrNoSuccessfulOpinions is returned when every weighted producer failed.
// Defaulting to hold on total data failure would hide the outage, so the
// caller must surface this instead.
var ErrNoSuccessfulOpinions = errors.New("no successful producer opinions")

// Decision is the synthesized output. It is created fresh per request and
// immutable once returned.
type Decision struct {
	Action       opinion.Action `json:"action"`
	Confidence   float64        `json:"confidence"`
	Reasoning    string         `json:"reasoning"`
	OverallScore float64        `json:"overall_score"`
}

// Signed score adjustments per directional action.
const (
	adjStrongBuy  = 40.0
	adjBuy        = 20.0
	adjSell       = -20.0
	adjStrongSell = -40.0
)

// Score thresholds mapping overall score to an action.
const (
	thresholdStrongBuy = 75.0
	thresholdBuy       = 60.0
	thresholdHold      = 40.0
	thresholdSell      = 25.0
)

// DefaultWeights returns the default producer weight map. The risk and
// portfolio producers are intentionally absent: risk is consumed by the
// constraint gate, not by synthesis.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		opinion.ProducerTechnical: 0.25,
		opinion.ProducerTrading:   0.30,
		opinion.ProducerSentiment: 0.15,
		opinion.ProducerNews:      0.20,
	}
}

// Synthesizer aggregates opinions under an injected weight profile.
// Construct one per weight profile; instances are safe for concurrent use
// since the weight map is never mutated after construction.
type Synthesizer struct {
	weights map[string]float64
}

// NewSynthesizer creates a synthesizer with the given weight map. A nil
// map selects the defaults.
func NewSynthesizer(weights map[string]float64) *Synthesizer {
	if weights == nil {
		weights = DefaultWeights()
	}
	return &Synthesizer{weights: weights}
}

// Synthesize combines the successful, weighted opinions into one decision.
// Risk and portfolio producer opinions are ignored here. Weights of
// absent or failed producers are dropped and the survivors renormalized
// so partial producer failure degrades gracefully instead of silently
// depressing the score.
func (s *Synthesizer) Synthesize(opinions []opinion.AgentOpinion) (*Decision, error) {
	type contribution struct {
		producer string
		weight   float64
		adjusted float64
	}

	var contribs []contribution
	totalWeight := 0.0

	for _, op := range opinions {
		if op.ProducerID == opinion.ProducerRisk || op.ProducerID == opinion.ProducerPortfolio {
			continue
		}
		if !op.OK {
			log.Debug().
				Str("producer", op.ProducerID).
				Str("error", op.Error).
				Msg("Dropping failed producer from synthesis")
			continue
		}

		weight, configured := s.weights[op.ProducerID]
		if !configured || weight <= 0 {
			log.Debug().
				Str("producer", op.ProducerID).
				Msg("Producer has no configured weight, excluding from synthesis")
			continue
		}

		adjusted := clampScore(op.Score + actionAdjustment(op.Action)*op.Confidence)
		contribs = append(contribs, contribution{
			producer: op.ProducerID,
			weight:   weight,
			adjusted: adjusted,
		})
		totalWeight += weight
	}

	if len(contribs) == 0 || totalWeight <= 0 {
		return nil, ErrNoSuccessfulOpinions
	}

	// Renormalize surviving weights to sum to 1.
	overall := 0.0
	for _, c := range contribs {
		overall += (c.weight / totalWeight) * c.adjusted
	}

	action := actionForScore(overall)
	confidence := confidenceForAction(action)

	sort.Slice(contribs, func(i, j int) bool { return contribs[i].producer < contribs[j].producer })
	parts := make([]string, 0, len(contribs))
	for _, c := range contribs {
		parts = append(parts, fmt.Sprintf("%s=%.1f (w=%.2f)", c.producer, c.adjusted, c.weight/totalWeight))
	}
	reasoning := fmt.Sprintf("weighted score %.1f from %d producers: %s",
		overall, len(contribs), strings.Join(parts, ", "))

	log.Debug().
		Float64("overall_score", overall).
		Str("action", string(action)).
		Int("producers", len(contribs)).
		Msg("Synthesized decision")

	return &Decision{
		Action:       action,
		Confidence:   confidence,
		Reasoning:    reasoning,
		OverallScore: overall,
	}, nil
}

func actionAdjustment(a opinion.Action) float64 {
	switch a {
	case opinion.ActionStrongBuy:
		return adjStrongBuy
	case opinion.ActionBuy:
		return adjBuy
	case opinion.ActionSell:
		return adjSell
	case opinion.ActionStrongSell:
		return adjStrongSell
	default:
		return 0
	}
}

func actionForScore(score float64) opinion.Action {
	switch {
	case score >= thresholdStrongBuy:
		return opinion.ActionStrongBuy
	case score >= thresholdBuy:
		return opinion.ActionBuy
	case score >= thresholdHold:
		return opinion.ActionHold
	case score >= thresholdSell:
		return opinion.ActionSell
	default:
		return opinion.ActionStrongSell
	}
}

// confidenceForAction returns the fixed per-bracket confidence. It is
// deliberately decoupled from the score's precision so a single outlier
// opinion cannot manufacture false confidence.
func confidenceForAction(a opinion.Action) float64 {
	switch a {
	case opinion.ActionStrongBuy:
		return 0.8
	case opinion.ActionBuy:
		return 0.7
	case opinion.ActionHold:
		return 0.6
	case opinion.ActionSell:
		return 0.5
	default:
		return 0.4
	}
}

func clampScore(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
