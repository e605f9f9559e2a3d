package indicators

import (
	"math"
	"testing"
	"time"

	"tradePilot/internal/domain"
)

// fixtureCandles is a 20-candle ascending series shared by the RSI and ATR
// tests. Opens chain from the previous close, highs/lows pad the body by 1.5.
func fixtureCandles() []domain.Candle {
	closes := []float64{
		100, 102, 101, 103, 106, 105, 107, 110, 108, 111,
		113, 112, 115, 114, 116, 113, 117, 119, 118, 121,
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, len(closes))
	open := 99.0
	for i, c := range closes {
		candles[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     open,
			High:     math.Max(open, c) + 1.5,
			Low:      math.Min(open, c) - 1.5,
			Close:    c,
			Volume:   10 + float64(i),
		}
		open = c
	}
	return candles
}

func TestRSI_Reference(t *testing.T) {
	// Precomputed with Wilder's method: seed averages over the deltas in the
	// first 14 candles placed at index 13, then avg=(prev*13+cur)/14.
	want := []float64{
		13: 76.9230769231,
		14: 78.5714285714,
		15: 70.4433497537,
		16: 74.2659188387,
		17: 75.9413481387,
		18: 73.3692575985,
		19: 75.9958910824,
	}

	got := RSI(fixtureCandles(), DefaultPeriod)
	if len(got) != 20 {
		t.Fatalf("expected 20 aligned values, got %d", len(got))
	}
	for i := 0; i <= 12; i++ {
		if got[i] != nil {
			t.Errorf("index %d: expected nil before first full period, got %f", i, *got[i])
		}
	}
	for i := 13; i < 20; i++ {
		if got[i] == nil {
			t.Fatalf("index %d: expected a value, got nil", i)
		}
		if diff := math.Abs(*got[i] - want[i]); diff > 1e-6 {
			t.Errorf("index %d: expected %.10f, got %.10f (diff %g)", i, want[i], *got[i], diff)
		}
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	got := RSI(fixtureCandles()[:13], DefaultPeriod)
	for i, v := range got {
		if v != nil {
			t.Errorf("index %d: expected nil with fewer than 14 candles, got %f", i, *v)
		}
	}
}

func TestRSI_AllGains(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, 16)
	for i := range candles {
		price := 100 + float64(i)*2
		candles[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     price - 2, High: price + 1, Low: price - 3, Close: price,
		}
	}

	got := RSI(candles, DefaultPeriod)
	for i := 13; i < len(got); i++ {
		if got[i] == nil || *got[i] != 100 {
			t.Errorf("index %d: expected RSI 100 with only gains, got %v", i, got[i])
		}
	}
}

func TestRSI_NoLookAhead(t *testing.T) {
	full := RSI(fixtureCandles(), DefaultPeriod)
	truncated := RSI(fixtureCandles()[:16], DefaultPeriod)

	for i := 0; i < 16; i++ {
		switch {
		case full[i] == nil && truncated[i] == nil:
		case full[i] == nil || truncated[i] == nil:
			t.Errorf("index %d: nil mismatch between full and truncated series", i)
		case math.Abs(*full[i]-*truncated[i]) > 1e-12:
			t.Errorf("index %d: value depends on later candles (%f vs %f)", i, *full[i], *truncated[i])
		}
	}
}
