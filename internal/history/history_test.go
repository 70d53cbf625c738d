package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLen(t *testing.T) {
	l := NewLog(10)

	entry := l.Append(KindDecision, "BTC-USD", map[string]string{"action": "buy"})
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, KindDecision, entry.Kind)
	assert.Equal(t, "BTC-USD", entry.Symbol)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, 1, l.Len())
}

func TestEvictionOldestFirst(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Append(KindDecision, fmt.Sprintf("SYM-%d", i), nil)
	}

	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, "SYM-2", all[0].Symbol)
	assert.Equal(t, "SYM-3", all[1].Symbol)
	assert.Equal(t, "SYM-4", all[2].Symbol)
}

func TestInvalidCapacityFallsBack(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		l.Append(KindSizing, "ETH-USD", nil)
	}
	assert.Equal(t, DefaultCapacity, l.Len())
}

func TestRecentNewestFirst(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 4; i++ {
		l.Append(KindDecision, fmt.Sprintf("SYM-%d", i), nil)
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "SYM-3", recent[0].Symbol)
	assert.Equal(t, "SYM-2", recent[1].Symbol)

	// Asking for more than stored returns everything.
	assert.Len(t, l.Recent(100), 4)
	assert.Nil(t, l.Recent(0))
}

func TestQueryBySymbolAndKind(t *testing.T) {
	l := NewLog(10)
	l.Append(KindDecision, "BTC-USD", nil)
	l.Append(KindSizing, "BTC-USD", nil)
	l.Append(KindDecision, "ETH-USD", nil)
	l.Append(KindRiskReport, "", nil)

	assert.Len(t, l.BySymbol("BTC-USD"), 2)
	assert.Len(t, l.BySymbol("ETH-USD"), 1)
	assert.Empty(t, l.BySymbol("SOL-USD"))

	assert.Len(t, l.ByKind(KindDecision), 2)
	assert.Len(t, l.ByKind(KindRiskReport), 1)
}

func TestConcurrentAccess(t *testing.T) {
	l := NewLog(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Append(KindDecision, fmt.Sprintf("SYM-%d", n), nil)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = l.Recent(5)
				_ = l.Len()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
}
