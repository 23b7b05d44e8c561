package risk

import "time"

// DailyTradeCounters counts trades per instrument for one UTC day.
type DailyTradeCounters struct {
	Day    time.Time      // UTC midnight of the counted day
	Counts map[string]int // trades executed per symbol
}

// NewDailyTradeCounters returns empty counters for the UTC day containing now.
func NewDailyTradeCounters(now time.Time) DailyTradeCounters {
	return DailyTradeCounters{Day: utcDay(now), Counts: make(map[string]int)}
}

// Rollover returns counters valid for now. When the UTC date differs from the
// counted day the counts are zeroed and reset is true. Comparing dates rather
// than matching a wall-clock minute keeps the reset single even if cycles are
// delayed or skipped across midnight.
func (c DailyTradeCounters) Rollover(now time.Time) (next DailyTradeCounters, reset bool) {
	day := utcDay(now)
	if c.Day.Equal(day) && c.Counts != nil {
		return c, false
	}
	// Clock going backwards is not a new day.
	if !c.Day.IsZero() && day.Before(c.Day) {
		return c, false
	}
	return DailyTradeCounters{Day: day, Counts: make(map[string]int)}, true
}

// Increment returns counters with symbol's count raised by one.
func (c DailyTradeCounters) Increment(symbol string) DailyTradeCounters {
	next := c.Clone()
	next.Counts[symbol]++
	return next
}

// Count returns today's trades for symbol.
func (c DailyTradeCounters) Count(symbol string) int {
	return c.Counts[symbol]
}

// Clone returns an independent copy.
func (c DailyTradeCounters) Clone() DailyTradeCounters {
	out := DailyTradeCounters{Day: c.Day, Counts: make(map[string]int, len(c.Counts))}
	for k, v := range c.Counts {
		out.Counts[k] = v
	}
	return out
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
