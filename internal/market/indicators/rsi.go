package indicators

import (
	"tradePilot/internal/domain"
)

// DefaultPeriod is the Wilder period used for both RSI and ATR.
const DefaultPeriod = 14

// RSI computes Wilder's Relative Strength Index over an ascending candle
// series. The returned slice is aligned with the input: entries are nil
// until the first full period is available at index period-1, and every
// value depends only on candles at or before its own index.
func RSI(candles []domain.Candle, period int) []*float64 {
	out := make([]*float64, len(candles))
	if period <= 1 || len(candles) < period {
		return out
	}

	gains := make([]float64, len(candles))
	losses := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		delta := candles[i].Close - candles[i-1].Close
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	// Seed averages run over the deltas inside the first window. The first
	// candle has no predecessor, so period-1 deltas exist there.
	var avgGain, avgLoss float64
	for i := 1; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period - 1)
	avgLoss /= float64(period - 1)
	out[period-1] = rsiValue(avgGain, avgLoss)

	for i := period; i < len(candles); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) *float64 {
	v := 100.0
	if avgLoss != 0 {
		rs := avgGain / avgLoss
		v = 100 - (100 / (1 + rs))
	}
	return &v
}
