package analytics

import (
	"math"
	"sort"
	"time"

	"quantumFlowBot/internal/domain"
)

// PerformanceMetrics summarises a sequence of closed trades.
type PerformanceMetrics struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	BreakevenTrades int
	WinRate         float64
	TotalProfit     float64
	AverageWin      float64
	AverageLoss     float64 // negative or zero
	ProfitFactor    float64 // gross profit / gross loss
	Expectancy      float64
	FinalBalance    float64
	MaxDrawdown     float64 // fraction of the running peak balance

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
}

// AnalyzePerformance computes metrics for trades replayed in exit order on
// top of initialBalance. The input slice is not reordered.
func AnalyzePerformance(trades []domain.Trade, initialBalance float64) *PerformanceMetrics {
	metrics := &PerformanceMetrics{FinalBalance: initialBalance}
	if len(trades) == 0 {
		return metrics
	}

	ordered := make([]domain.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	balance, peak := initialBalance, initialBalance
	var grossProfit, grossLoss float64
	var wins, losses int
	var totalDuration time.Duration

	for _, trade := range ordered {
		metrics.TotalTrades++
		switch {
		case trade.PNL > 0:
			metrics.WinningTrades++
			grossProfit += trade.PNL
			wins++
			losses = 0
		case trade.PNL < 0:
			metrics.LosingTrades++
			grossLoss -= trade.PNL
			losses++
			wins = 0
		default:
			metrics.BreakevenTrades++
			wins, losses = 0, 0
		}
		if wins > metrics.MaxConsecutiveWins {
			metrics.MaxConsecutiveWins = wins
		}
		if losses > metrics.MaxConsecutiveLosses {
			metrics.MaxConsecutiveLosses = losses
		}

		balance += trade.PNL
		metrics.TotalProfit += trade.PNL
		if balance > peak {
			peak = balance
		} else if peak > 0 {
			metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, (peak-balance)/peak)
		}
		if !trade.EntryTime.IsZero() && trade.ExitTime.After(trade.EntryTime) {
			totalDuration += trade.ExitTime.Sub(trade.EntryTime)
		}
	}

	n := float64(metrics.TotalTrades)
	metrics.FinalBalance = balance
	metrics.WinRate = float64(metrics.WinningTrades) / n
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = -grossLoss / float64(metrics.LosingTrades)
	}
	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	}
	metrics.Expectancy = metrics.TotalProfit / n
	metrics.AverageTradeDuration = totalDuration / time.Duration(metrics.TotalTrades)
	return metrics
}
