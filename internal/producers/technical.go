// Package producers contains built-in opinion producers. The technical
// producer derives a directional opinion from RSI and a moving-average
// crossover over recent closing prices.
package producers

import (
	"context"
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradequorum/internal/opinion"
)

// PriceSource supplies recent closing prices for a symbol, oldest first.
type PriceSource interface {
	Closes(ctx context.Context, symbol string, limit int) ([]float64, error)
}

const (
	rsiPeriod     = 14
	fastSMAPeriod = 10
	slowSMAPeriod = 20
	lookback      = 60
)

// Technical produces opinions from RSI and SMA crossover signals.
type Technical struct {
	source PriceSource
	log    zerolog.Logger
}

// NewTechnical creates a technical opinion producer.
func NewTechnical(source PriceSource, logger zerolog.Logger) *Technical {
	return &Technical{
		source: source,
		log:    logger.With().Str("producer_id", opinion.ProducerTechnical).Logger(),
	}
}

// ID implements the producer identity.
func (t *Technical) ID() string {
	return opinion.ProducerTechnical
}

// Opinion computes the current technical opinion for a symbol.
func (t *Technical) Opinion(ctx context.Context, symbol string) (opinion.RawOpinion, error) {
	closes, err := t.source.Closes(ctx, symbol, lookback)
	if err != nil {
		return opinion.RawOpinion{}, fmt.Errorf("failed to load closes for %s: %w", symbol, err)
	}
	if len(closes) < slowSMAPeriod+1 {
		return opinion.RawOpinion{}, fmt.Errorf("insufficient price history for %s: have %d, need %d",
			symbol, len(closes), slowSMAPeriod+1)
	}

	rsi := lastValue(momentum.NewRsiWithPeriod[float64](rsiPeriod).Compute(sliceToChan(closes)))
	fastSMA := lastValue(trend.NewSmaWithPeriod[float64](fastSMAPeriod).Compute(sliceToChan(closes)))
	slowSMA := lastValue(trend.NewSmaWithPeriod[float64](slowSMAPeriod).Compute(sliceToChan(closes)))

	action, score, confidence := interpret(rsi, fastSMA, slowSMA)

	t.log.Debug().
		Str("symbol", symbol).
		Float64("rsi", rsi).
		Float64("fast_sma", fastSMA).
		Float64("slow_sma", slowSMA).
		Str("action", action).
		Float64("score", score).
		Msg("Technical opinion computed")

	return opinion.RawOpinion{
		ProducerID: opinion.ProducerTechnical,
		OK:         true,
		Action:     action,
		Confidence: confidence,
		Score:      &score,
	}, nil
}

// interpret maps the indicator values onto an action, score, and
// confidence. RSI extremes dominate; otherwise the SMA crossover sets
// the direction and RSI distance from the midpoint sets the strength.
func interpret(rsi, fastSMA, slowSMA float64) (string, float64, float64) {
	bullishCross := fastSMA > slowSMA

	switch {
	case rsi < 30 && bullishCross:
		return "strong_buy", 80, 0.8
	case rsi < 30:
		return "buy", 65, 0.6
	case rsi > 70 && !bullishCross:
		return "strong_sell", 20, 0.8
	case rsi > 70:
		return "sell", 35, 0.6
	case bullishCross:
		return "buy", 50 + (rsi-50)/2 + 10, 0.5
	default:
		return "sell", 50 + (rsi-50)/2 - 10, 0.5
	}
}

func sliceToChan(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func lastValue(ch <-chan float64) float64 {
	var last float64
	for v := range ch {
		last = v
	}
	return last
}
