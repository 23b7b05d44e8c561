package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/domain"
)

func TestLevels(t *testing.T) {
	rs := testInstrument("EURUSD", 4).Risk

	long, err := Levels(domain.Long, 100, 10, rs)
	require.NoError(t, err)
	assert.InDelta(t, 88, long.StopLoss, 1e-9)
	assert.InDelta(t, 124, long.TakeProfit, 1e-9)
	assert.InDelta(t, 12, long.StopDistance(100), 1e-9)

	short, err := Levels(domain.Short, 100, 10, rs)
	require.NoError(t, err)
	assert.InDelta(t, 112, short.StopLoss, 1e-9)
	assert.InDelta(t, 76, short.TakeProfit, 1e-9)
	assert.InDelta(t, 12, short.StopDistance(100), 1e-9)

	_, err = Levels(domain.Long, 100, 0, rs)
	assert.Error(t, err)
	_, err = Levels("sideways", 100, 10, rs)
	assert.Error(t, err)
}

func TestRoundLevels_AwayFromEntry(t *testing.T) {
	long := RoundLevels(domain.Long, ProtectiveLevels{StopLoss: 88.3, TakeProfit: 123.7}, 0.5)
	assert.InDelta(t, 88.0, long.StopLoss, 1e-12)
	assert.InDelta(t, 124.0, long.TakeProfit, 1e-12)

	short := RoundLevels(domain.Short, ProtectiveLevels{StopLoss: 111.7, TakeProfit: 76.3}, 0.5)
	assert.InDelta(t, 112.0, short.StopLoss, 1e-12)
	assert.InDelta(t, 76.0, short.TakeProfit, 1e-12)
}
