package risk

import (
	"sort"
)

// Tier maps a balance threshold to a maximum number of trades per instrument.
type Tier struct {
	Threshold float64
	MaxTrades int
}

// TierTable is an ordered balance → max-trades mapping with floor lookup.
type TierTable struct {
	tiers []Tier // strictly ascending by Threshold
}

// DefaultTiers is the reference micro-account tiering.
func DefaultTiers() []Tier {
	return []Tier{
		{Threshold: 10, MaxTrades: 4},
		{Threshold: 25, MaxTrades: 6},
		{Threshold: 50, MaxTrades: 8},
		{Threshold: 100, MaxTrades: 10},
		{Threshold: 250, MaxTrades: 12},
		{Threshold: 500, MaxTrades: 15},
		{Threshold: 1000, MaxTrades: 20},
	}
}

// NewTierTable validates tiers and builds a table. Thresholds must be
// strictly increasing in the given order; unsorted input is rejected rather
// than silently reordered.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, configError("tier table must define at least one tier")
	}
	out := make([]Tier, len(tiers))
	for i, t := range tiers {
		if t.Threshold < 0 {
			return nil, configError("tier threshold %.2f cannot be negative", t.Threshold)
		}
		if t.MaxTrades <= 0 {
			return nil, configError("tier %.2f: max trades must be positive, got %d", t.Threshold, t.MaxTrades)
		}
		if i > 0 && t.Threshold <= tiers[i-1].Threshold {
			return nil, configError("tier thresholds must be strictly increasing (%.2f after %.2f)", t.Threshold, tiers[i-1].Threshold)
		}
		if i > 0 && t.MaxTrades < tiers[i-1].MaxTrades {
			return nil, configError("tier %.2f allows fewer trades (%d) than a lower tier (%d)", t.Threshold, t.MaxTrades, tiers[i-1].MaxTrades)
		}
		out[i] = t
	}
	return &TierTable{tiers: out}, nil
}

// NewTierTableFromMap builds a table from an unordered threshold map, as found
// in configuration files. Keys are sorted before validation.
func NewTierTableFromMap(m map[float64]int) (*TierTable, error) {
	tiers := make([]Tier, 0, len(m))
	for threshold, maxTrades := range m {
		tiers = append(tiers, Tier{Threshold: threshold, MaxTrades: maxTrades})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Threshold < tiers[j].Threshold })
	return NewTierTable(tiers)
}

// Lookup returns the tier whose threshold is the largest value not exceeding
// balance, or the lowest tier when balance is below every threshold.
func (t *TierTable) Lookup(balance float64) Tier {
	// first index whose threshold is > balance
	i := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].Threshold > balance })
	if i == 0 {
		return t.tiers[0]
	}
	return t.tiers[i-1]
}

// MaxTrades is Lookup(balance).MaxTrades.
func (t *TierTable) MaxTrades(balance float64) int {
	return t.Lookup(balance).MaxTrades
}

// ReferenceTrades is the max-trades value of the lowest tier, the unit that
// base daily trade counts are expressed in.
func (t *TierTable) ReferenceTrades() int {
	return t.tiers[0].MaxTrades
}

// Tiers returns a copy of the table.
func (t *TierTable) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}
