package domain

import "time"

// PriceLevel is a single order-book level.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds the top levels of market depth at collection time.
type OrderBook struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// MarketSnapshot is the market context handed to the advisor for a verdict:
// the live price plus indicator-annotated candle history on two timeframes.
type MarketSnapshot struct {
	Symbol       string    `json:"symbol"`
	CollectedAt  time.Time `json:"collected_at"`
	CurrentPrice float64   `json:"current_price"`
	Candles5m    []Candle  `json:"candles_5m"`
	Candles15m   []Candle  `json:"candles_15m"`
	OrderBook    OrderBook `json:"orderbook"`
}
