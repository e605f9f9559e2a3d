package indicators

import (
	"tradePilot/internal/domain"
)

// Annotate returns a copy of the series with RSI and ATR attached under the
// default period. The caller's candles are never modified, so an original
// unannotated series stays intact if retained.
func Annotate(candles []domain.Candle) []domain.Candle {
	out := make([]domain.Candle, len(candles))
	copy(out, candles)

	rsi := RSI(out, DefaultPeriod)
	atr := ATR(out, DefaultPeriod)
	for i := range out {
		out[i].RSI = rsi[i]
		out[i].ATR = atr[i]
	}
	return out
}
