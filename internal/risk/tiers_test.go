package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantumFlowBot/internal/ports"
)

func TestTierTable_Lookup(t *testing.T) {
	table, err := NewTierTable(DefaultTiers())
	require.NoError(t, err)

	tests := []struct {
		name      string
		balance   float64
		threshold float64
		maxTrades int
	}{
		{"below every threshold uses lowest tier", 3, 10, 4},
		{"zero balance", 0, 10, 4},
		{"exact lowest threshold", 10, 10, 4},
		{"just below second tier", 24.99, 10, 4},
		{"exact threshold", 25, 25, 6},
		{"fifty", 50, 50, 8},
		{"between tiers", 99.5, 50, 8},
		{"six hundred", 600, 500, 15},
		{"top tier", 1000, 1000, 20},
		{"far above top tier", 1e6, 1000, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := table.Lookup(tt.balance)
			assert.Equal(t, tt.threshold, tier.Threshold)
			assert.Equal(t, tt.maxTrades, tier.MaxTrades)
			assert.Equal(t, tt.maxTrades, table.MaxTrades(tt.balance))
		})
	}
	assert.Equal(t, 4, table.ReferenceTrades())
}

func TestNewTierTable_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"unsorted", []Tier{{Threshold: 50, MaxTrades: 8}, {Threshold: 10, MaxTrades: 4}}},
		{"duplicate threshold", []Tier{{Threshold: 10, MaxTrades: 4}, {Threshold: 10, MaxTrades: 6}}},
		{"negative threshold", []Tier{{Threshold: -1, MaxTrades: 4}}},
		{"zero max trades", []Tier{{Threshold: 10, MaxTrades: 0}}},
		{"decreasing max trades", []Tier{{Threshold: 10, MaxTrades: 6}, {Threshold: 25, MaxTrades: 4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewTierTable(tt.tiers)
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.Nil(t, table)
		})
	}
}

func TestNewTierTableFromMap_SortsThresholds(t *testing.T) {
	table, err := NewTierTableFromMap(map[float64]int{1000: 20, 10: 4, 100: 10, 25: 6})
	require.NoError(t, err)

	tiers := table.Tiers()
	require.Len(t, tiers, 4)
	assert.Equal(t, []float64{10, 25, 100, 1000},
		[]float64{tiers[0].Threshold, tiers[1].Threshold, tiers[2].Threshold, tiers[3].Threshold})
	assert.Equal(t, 10, table.MaxTrades(150))

	// Tiers returns a copy.
	tiers[0].MaxTrades = 99
	assert.Equal(t, 4, table.ReferenceTrades())
}
