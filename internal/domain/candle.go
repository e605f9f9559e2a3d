package domain

import "time"

// Candle represents a single candlestick data point. RSI and ATR are nil
// until the series carries enough history for the indicator to be defined.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Symbol   string    `json:"symbol,omitempty"`
	Interval string    `json:"interval,omitempty"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	RSI      *float64  `json:"rsi"`
	ATR      *float64  `json:"atr"`
}

// LastCandle returns the most recent candle of an ascending series, or nil
// when the series is empty.
func LastCandle(candles []Candle) *Candle {
	if len(candles) == 0 {
		return nil
	}
	return &candles[len(candles)-1]
}
