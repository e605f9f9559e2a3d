package analytics

import (
	"math"
	"testing"
	"time"

	"tradePilot/internal/domain"
)

func closedRecord(pnl float64, entry, exit time.Time) *domain.TradeRecord {
	return &domain.TradeRecord{
		ID:         "t",
		Symbol:     "BTCUSDT",
		Side:       domain.Long,
		EntryPrice: 50000,
		EntryTime:  entry,
		ExitPrice:  51000,
		ExitTime:   exit,
		PnL:        pnl,
		Status:     domain.StatusClosed,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyze(t *testing.T) {
	now := time.Now()
	records := []*domain.TradeRecord{
		closedRecord(1000, now.Add(-24*time.Hour), now.Add(-18*time.Hour)),
		closedRecord(-500, now.Add(-16*time.Hour), now.Add(-12*time.Hour)),
		closedRecord(200, now.Add(-8*time.Hour), now.Add(-6*time.Hour)),
		{ID: "open", Symbol: "ETHUSDT", Side: domain.Short, Status: domain.StatusOpen},
	}

	perf := Analyze(records)

	if perf.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", perf.TotalTrades)
	}
	if perf.WinningTrades != 2 || perf.LosingTrades != 1 {
		t.Errorf("wins/losses = %d/%d, want 2/1", perf.WinningTrades, perf.LosingTrades)
	}
	if !almostEqual(perf.WinRate, 2.0/3.0) {
		t.Errorf("WinRate = %v, want %v", perf.WinRate, 2.0/3.0)
	}
	if !almostEqual(perf.TotalPnL, 700) {
		t.Errorf("TotalPnL = %v, want 700", perf.TotalPnL)
	}
	if !almostEqual(perf.AverageWin, 600) {
		t.Errorf("AverageWin = %v, want 600", perf.AverageWin)
	}
	if !almostEqual(perf.AverageLoss, -500) {
		t.Errorf("AverageLoss = %v, want -500", perf.AverageLoss)
	}
	if !almostEqual(perf.ProfitFactor, 2.4) {
		t.Errorf("ProfitFactor = %v, want 2.4", perf.ProfitFactor)
	}
	// Equity path 1000 -> 500 -> 700: deepest fall from the 1000 peak is 500.
	if !almostEqual(perf.MaxDrawdown, 500) {
		t.Errorf("MaxDrawdown = %v, want 500", perf.MaxDrawdown)
	}
	wantExpectancy := (2.0/3.0)*600 + (1.0/3.0)*(-500)
	if !almostEqual(perf.Expectancy, wantExpectancy) {
		t.Errorf("Expectancy = %v, want %v", perf.Expectancy, wantExpectancy)
	}
	if perf.AverageHolding != 4*time.Hour {
		t.Errorf("AverageHolding = %v, want 4h", perf.AverageHolding)
	}
}

func TestAnalyzeStreaksAndOrder(t *testing.T) {
	now := time.Now()
	// Exit order W W L L L, supplied shuffled.
	records := []*domain.TradeRecord{
		closedRecord(-50, now.Add(-5*time.Hour), now.Add(-2*time.Hour)),
		closedRecord(100, now.Add(-10*time.Hour), now.Add(-9*time.Hour)),
		closedRecord(-50, now.Add(-4*time.Hour), now.Add(-1*time.Hour)),
		closedRecord(100, now.Add(-9*time.Hour), now.Add(-8*time.Hour)),
		closedRecord(-50, now.Add(-6*time.Hour), now.Add(-3*time.Hour)),
	}

	perf := Analyze(records)

	if perf.MaxConsecutiveWins != 2 {
		t.Errorf("MaxConsecutiveWins = %d, want 2", perf.MaxConsecutiveWins)
	}
	if perf.MaxConsecutiveLosses != 3 {
		t.Errorf("MaxConsecutiveLosses = %d, want 3", perf.MaxConsecutiveLosses)
	}
	if !almostEqual(perf.TotalPnL, 50) {
		t.Errorf("TotalPnL = %v, want 50", perf.TotalPnL)
	}
	if !almostEqual(perf.MaxDrawdown, 150) {
		t.Errorf("MaxDrawdown = %v, want 150", perf.MaxDrawdown)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	perf := Analyze(nil)
	if perf.TotalTrades != 0 || perf.TotalPnL != 0 || perf.WinRate != 0 {
		t.Errorf("empty input should yield zero metrics, got %+v", perf)
	}
}
