package market

import (
	"context"
	"fmt"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/market/indicators"
	"tradePilot/internal/ports"
)

const (
	interval5m  = "5m"
	interval15m = "15m"

	defaultCandleLimit    = 200
	defaultOrderBookDepth = 50
)

// Collector assembles the market context the advisor sees: the live price,
// indicator-annotated candle history on two timeframes, and order-book depth.
type Collector struct {
	exchange       ports.ExchangeClient
	logger         ports.Logger
	candleLimit    int
	orderBookDepth int
}

// Config holds configuration for the snapshot collector.
type Config struct {
	Exchange       ports.ExchangeClient
	Logger         ports.Logger
	CandleLimit    int // candles per timeframe, defaults to 200
	OrderBookDepth int // order-book levels per side, defaults to 50
}

// NewCollector creates a snapshot collector.
func NewCollector(cfg Config) (*Collector, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required for collector")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for collector")
	}
	candleLimit := cfg.CandleLimit
	if candleLimit <= 0 {
		candleLimit = defaultCandleLimit
	}
	depth := cfg.OrderBookDepth
	if depth <= 0 {
		depth = defaultOrderBookDepth
	}
	return &Collector{
		exchange:       cfg.Exchange,
		logger:         cfg.Logger,
		candleLimit:    candleLimit,
		orderBookDepth: depth,
	}, nil
}

// Collect gathers a full market snapshot for the symbol. Indicator values are
// computed locally over the fetched candles, never trusted from upstream.
func (c *Collector) Collect(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	op := "Collect"

	price, err := c.exchange.GetTickerPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("collecting ticker price for %s: %w", symbol, err)
	}

	book, err := c.exchange.GetOrderBook(ctx, symbol, c.orderBookDepth)
	if err != nil {
		return nil, fmt.Errorf("collecting order book for %s: %w", symbol, err)
	}

	candles5m, err := c.exchange.GetKlines(ctx, symbol, interval5m, c.candleLimit)
	if err != nil {
		return nil, fmt.Errorf("collecting 5m candles for %s: %w", symbol, err)
	}
	candles15m, err := c.exchange.GetKlines(ctx, symbol, interval15m, c.candleLimit)
	if err != nil {
		return nil, fmt.Errorf("collecting 15m candles for %s: %w", symbol, err)
	}

	snap := &domain.MarketSnapshot{
		Symbol:       symbol,
		CollectedAt:  time.Now().UTC(),
		CurrentPrice: price,
		Candles5m:    indicators.Annotate(candles5m),
		Candles15m:   indicators.Annotate(candles15m),
	}
	if book != nil {
		snap.OrderBook = *book
	}

	c.logger.Debug(ctx, op+": market snapshot assembled", map[string]interface{}{
		"symbol":     symbol,
		"price":      price,
		"candles5m":  len(snap.Candles5m),
		"candles15m": len(snap.Candles15m),
	})
	return snap, nil
}
