// Package analytics computes realized performance statistics over the
// trade ledger.
package analytics

import (
	"sort"
	"time"

	"tradePilot/internal/domain"
)

// Performance holds aggregate statistics over closed trades.
type Performance struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // fraction of winning trades, 0..1
	TotalPnL      float64
	AverageWin    float64
	AverageLoss   float64 // negative or zero
	ProfitFactor  float64 // gross wins / |gross losses|, 0 when no losses
	Expectancy    float64 // expected PnL per trade
	// MaxDrawdown is the largest peak-to-trough fall of cumulative
	// realized PnL, in quote currency.
	MaxDrawdown          float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHolding       time.Duration
}

// Analyze computes statistics over the closed records in the input.
// Open records are ignored; order does not matter.
func Analyze(records []*domain.TradeRecord) *Performance {
	perf := &Performance{}

	closed := make([]*domain.TradeRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil && rec.Status == domain.StatusClosed {
			closed = append(closed, rec)
		}
	}
	if len(closed) == 0 {
		return perf
	}

	// Realized PnL accrues in exit order.
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ExitTime.Before(closed[j].ExitTime)
	})

	var grossWins, grossLosses float64
	var equity, peak float64
	var consecutiveWins, consecutiveLosses int
	var totalHolding time.Duration

	for _, rec := range closed {
		perf.TotalTrades++
		if rec.PnL > 0 {
			perf.WinningTrades++
			grossWins += rec.PnL
			consecutiveWins++
			consecutiveLosses = 0
			perf.AverageWin = (perf.AverageWin*float64(perf.WinningTrades-1) + rec.PnL) / float64(perf.WinningTrades)
		} else {
			perf.LosingTrades++
			grossLosses += rec.PnL
			consecutiveLosses++
			consecutiveWins = 0
			perf.AverageLoss = (perf.AverageLoss*float64(perf.LosingTrades-1) + rec.PnL) / float64(perf.LosingTrades)
		}
		if consecutiveWins > perf.MaxConsecutiveWins {
			perf.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > perf.MaxConsecutiveLosses {
			perf.MaxConsecutiveLosses = consecutiveLosses
		}

		equity += rec.PnL
		perf.TotalPnL = equity
		if equity > peak {
			peak = equity
		}
		if fall := peak - equity; fall > perf.MaxDrawdown {
			perf.MaxDrawdown = fall
		}

		totalHolding += rec.ExitTime.Sub(rec.EntryTime)
	}

	perf.WinRate = float64(perf.WinningTrades) / float64(perf.TotalTrades)
	if grossLosses != 0 {
		perf.ProfitFactor = grossWins / -grossLosses
	}
	perf.Expectancy = perf.WinRate*perf.AverageWin + (1-perf.WinRate)*perf.AverageLoss
	perf.AverageHolding = totalHolding / time.Duration(perf.TotalTrades)
	return perf
}
