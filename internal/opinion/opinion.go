// Package opinion defines the canonical producer opinion record and the
// normalization boundary that every raw producer output must cross before
// entering synthesis.
package opinion

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Action represents a directional recommendation from an opinion producer.
type Action string

const (
	ActionStrongBuy  Action = "strong_buy"
	ActionBuy        Action = "buy"
	ActionHold       Action = "hold"
	ActionSell       Action = "sell"
	ActionStrongSell Action = "strong_sell"

	// Risk producer vocabulary
	ActionAccept  Action = "accept"
	ActionCaution Action = "caution"
	ActionReduce  Action = "reduce"
	ActionReject  Action = "reject"
)

// Well-known producer identifiers.
const (
	ProducerTechnical = "technical"
	ProducerSentiment = "sentiment"
	ProducerNews      = "news"
	ProducerRisk      = "risk"
	ProducerTrading   = "trading"
	ProducerPortfolio = "portfolio"
)

// defaultScore is assigned when a successful producer omits its score.
const defaultScore = 50.0

// RawOpinion is the untrusted shape a producer hands over. Score is a
// pointer so a missing score can be told apart from an explicit zero.
type RawOpinion struct {
	ProducerID string   `json:"producer_id"`
	OK         bool     `json:"ok"`
	Action     string   `json:"action"`
	Confidence float64  `json:"confidence"`
	Score      *float64 `json:"score,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// AgentOpinion is the validated, canonical opinion record. Downstream
// components may rely on its fields without re-checking ranges.
type AgentOpinion struct {
	ProducerID string  `json:"producer_id"`
	OK         bool    `json:"ok"`
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"` // [0,1]
	Score      float64 `json:"score"`      // [0,100]
	Error      string  `json:"error,omitempty"`
}

// IsRisk reports whether this opinion came from the risk producer.
func (o AgentOpinion) IsRisk() bool {
	return o.ProducerID == ProducerRisk
}

// directionalActions are valid for non-risk producers.
var directionalActions = map[Action]bool{
	ActionStrongBuy:  true,
	ActionBuy:        true,
	ActionHold:       true,
	ActionSell:       true,
	ActionStrongSell: true,
}

// riskActions are valid for the risk producer.
var riskActions = map[Action]bool{
	ActionAccept:  true,
	ActionCaution: true,
	ActionReduce:  true,
	ActionReject:  true,
}

// Normalize validates and coerces a raw producer record into an
// AgentOpinion. It is a pure function: unknown actions default to
// hold (caution for the risk producer), confidence is clamped to [0,1],
// and a missing or non-finite score defaults to 50 only when the
// producer succeeded. A failed opinion is never scored.
func Normalize(raw RawOpinion) AgentOpinion {
	if !raw.OK {
		return AgentOpinion{
			ProducerID: raw.ProducerID,
			OK:         false,
			Error:      raw.Error,
		}
	}

	op := AgentOpinion{
		ProducerID: raw.ProducerID,
		OK:         true,
		Action:     normalizeAction(raw.ProducerID, raw.Action),
		Confidence: clamp(raw.Confidence, 0, 1),
	}

	switch {
	case raw.Score == nil:
		op.Score = defaultScore
	case math.IsNaN(*raw.Score) || math.IsInf(*raw.Score, 0):
		log.Debug().
			Str("producer", raw.ProducerID).
			Msg("Non-finite score from producer, defaulting to neutral")
		op.Score = defaultScore
	default:
		op.Score = clamp(*raw.Score, 0, 100)
	}

	return op
}

// normalizeAction maps a raw action string onto the vocabulary valid for
// the producer, defaulting malformed values to the neutral member.
func normalizeAction(producerID, raw string) Action {
	action := Action(raw)

	if producerID == ProducerRisk {
		if riskActions[action] {
			return action
		}
		if raw != "" {
			log.Debug().
				Str("producer", producerID).
				Str("action", raw).
				Msg("Unknown risk action, defaulting to caution")
		}
		return ActionCaution
	}

	if directionalActions[action] {
		return action
	}
	if raw != "" {
		log.Debug().
			Str("producer", producerID).
			Str("action", raw).
			Msg("Unknown action, defaulting to hold")
	}
	return ActionHold
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
