package producers

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradequorum/internal/opinion"
)

type stubSource struct {
	closes []float64
	err    error
}

func (s *stubSource) Closes(ctx context.Context, symbol string, limit int) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.closes, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout)
}

func rising(n int) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		out[i] = price
		price += 1.5
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	price := 200.0
	for i := range out {
		out[i] = price
		price -= 1.5
	}
	return out
}

func TestOpinionOverboughtUptrend(t *testing.T) {
	p := NewTechnical(&stubSource{closes: rising(60)}, testLogger())

	raw, err := p.Opinion(context.Background(), "BTC-USD")
	require.NoError(t, err)

	// A relentless uptrend saturates RSI; the overbought rule fires
	// even though the crossover is bullish.
	assert.True(t, raw.OK)
	assert.Equal(t, opinion.ProducerTechnical, raw.ProducerID)
	assert.Equal(t, "sell", raw.Action)
	require.NotNil(t, raw.Score)
	assert.Equal(t, 35.0, *raw.Score)
	assert.Equal(t, 0.6, raw.Confidence)
}

func TestOpinionOversoldDowntrend(t *testing.T) {
	p := NewTechnical(&stubSource{closes: falling(60)}, testLogger())

	raw, err := p.Opinion(context.Background(), "BTC-USD")
	require.NoError(t, err)

	assert.Equal(t, "buy", raw.Action)
	require.NotNil(t, raw.Score)
	assert.Equal(t, 65.0, *raw.Score)
}

func TestOpinionNormalizes(t *testing.T) {
	p := NewTechnical(&stubSource{closes: rising(60)}, testLogger())

	raw, err := p.Opinion(context.Background(), "BTC-USD")
	require.NoError(t, err)

	normalized := opinion.Normalize(raw)
	assert.True(t, normalized.OK)
	assert.Equal(t, opinion.ActionSell, normalized.Action)
}

func TestOpinionInsufficientHistory(t *testing.T) {
	p := NewTechnical(&stubSource{closes: rising(10)}, testLogger())

	_, err := p.Opinion(context.Background(), "BTC-USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient price history")
}

func TestOpinionSourceFailure(t *testing.T) {
	sourceErr := errors.New("feed unavailable")
	p := NewTechnical(&stubSource{err: sourceErr}, testLogger())

	_, err := p.Opinion(context.Background(), "BTC-USD")
	assert.ErrorIs(t, err, sourceErr)
}

func TestInterpretBranches(t *testing.T) {
	tests := []struct {
		name       string
		rsi        float64
		fast, slow float64
		wantAction string
	}{
		{"oversold bullish", 25, 110, 100, "strong_buy"},
		{"oversold bearish", 25, 90, 100, "buy"},
		{"overbought bearish", 75, 90, 100, "strong_sell"},
		{"overbought bullish", 75, 110, 100, "sell"},
		{"neutral bullish", 55, 110, 100, "buy"},
		{"neutral bearish", 45, 90, 100, "sell"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, score, confidence := interpret(tt.rsi, tt.fast, tt.slow)
			assert.Equal(t, tt.wantAction, action)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
			assert.Greater(t, confidence, 0.0)
		})
	}
}
