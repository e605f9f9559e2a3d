package indicators

import (
	"math"

	"tradePilot/internal/domain"
)

// ATR computes Wilder's Average True Range over an ascending candle series.
// The returned slice is aligned with the input: entries are nil until the
// first full period is available at index period-1. The first candle's true
// range is its high-low span, there is no previous close to compare against.
func ATR(candles []domain.Candle, period int) []*float64 {
	out := make([]*float64, len(candles))
	if period <= 1 || len(candles) < period {
		return out
	}

	tr := make([]float64, len(candles))
	for i := range candles {
		highLow := candles[i].High - candles[i].Low
		if i == 0 {
			tr[i] = highLow
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(highLow, math.Max(
			math.Abs(candles[i].High-prevClose),
			math.Abs(candles[i].Low-prevClose),
		))
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	out[period-1] = float64Ptr(atr)

	for i := period; i < len(candles); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		out[i] = float64Ptr(atr)
	}
	return out
}

func float64Ptr(v float64) *float64 {
	return &v
}
