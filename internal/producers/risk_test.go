package producers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/tradequorum/internal/cache"
	"github.com/ajitpratap0/tradequorum/internal/opinion"
	"github.com/ajitpratap0/tradequorum/internal/risk"
)

func newTestReportCache(t *testing.T) *cache.ReportCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.NewReportCache(client, time.Minute)
}

func TestRiskOpinionFromCachedReport(t *testing.T) {
	reports := newTestReportCache(t)
	ctx := context.Background()

	require.NoError(t, reports.Set(ctx, "main", &risk.Report{
		CompositeScore: 75.0,
		RiskLevel:      risk.LevelHigh,
	}))

	p := NewRisk(reports, "main", testLogger())
	assert.Equal(t, opinion.ProducerRisk, p.ID())

	raw, err := p.Opinion(ctx, "BTC-USD")
	require.NoError(t, err)

	assert.True(t, raw.OK)
	assert.Equal(t, "reduce", raw.Action)
	assert.Equal(t, 0.8, raw.Confidence)
	require.NotNil(t, raw.Score)
	assert.Equal(t, 75.0, *raw.Score)

	normalized := opinion.Normalize(raw)
	assert.Equal(t, opinion.ActionReduce, normalized.Action)
	assert.True(t, normalized.IsRisk())
}

func TestRiskOpinionNoReport(t *testing.T) {
	p := NewRisk(newTestReportCache(t), "main", testLogger())

	_, err := p.Opinion(context.Background(), "BTC-USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no risk report available")
}

func TestStanceThresholds(t *testing.T) {
	tests := []struct {
		score          float64
		wantAction     string
		wantConfidence float64
	}{
		{90, "reject", 0.9},
		{85, "reject", 0.9},
		{84.9, "reduce", 0.8},
		{70, "reduce", 0.8},
		{69.9, "caution", 0.6},
		{40, "caution", 0.6},
		{39.9, "accept", 0.7},
		{0, "accept", 0.7},
	}

	for _, tt := range tests {
		action, confidence := stanceForReport(&risk.Report{CompositeScore: tt.score})
		assert.Equal(t, tt.wantAction, action, "score %.1f", tt.score)
		assert.Equal(t, tt.wantConfidence, confidence, "score %.1f", tt.score)
	}
}
