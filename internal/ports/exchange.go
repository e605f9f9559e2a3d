package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradePilot/internal/domain"
)

// OrderResult represents the essential details returned after placing an order.
type OrderResult struct {
	OrderID     int64     // Exchange's order ID
	Symbol      string    // Symbol for the order
	Side        string    // Exchange-side order direction (BUY, SELL)
	Type        string    // Order type (MARKET, STOP_MARKET, ...)
	Status      string    // Order status (NEW, FILLED, CANCELED, ...)
	AvgPrice    float64   // Average filled price (0 until filled)
	ExecutedQty float64   // Quantity filled so far
	Timestamp   time.Time // Time the order response was generated
}

// Position is the exchange's authoritative view of a live exposure.
// The lifecycle controller treats this as ground truth and never as state
// it owns; absence of a Position means absence of exposure.
type Position struct {
	Symbol        string      // Symbol of the position
	Side          domain.Side // Direction derived from the position amount
	Size          float64     // Absolute position size in base asset
	EntryPrice    float64     // Average entry price
	Leverage      int         // Leverage currently applied
	UnrealizedPnL float64     // Unrealized profit/loss
	MarkPrice     float64     // Current mark price
	TakeProfit    float64     // Exchange-side take-profit price, 0 if unset
	StopLoss      float64     // Exchange-side stop-loss price, 0 if unset
}

// SymbolConstraints are the exchange's order-size rules for one symbol.
// Quantities submitted for the symbol must be multiples of QtyStep within
// [MinQty, MaxQty]. Cached per process, the rules do not change intraday.
type SymbolConstraints struct {
	MinQty            decimal.Decimal
	MaxQty            decimal.Decimal
	QtyStep           decimal.Decimal
	PricePrecision    int
	QuantityPrecision int
}

// ExchangeClient defines the interface for interacting with a derivatives
// exchange. The abstraction decouples the lifecycle core from a specific
// exchange implementation.
type ExchangeClient interface {
	// GetTickerPrice retrieves the last traded price for a symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetKlines retrieves historical candles in ascending time order.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// GetOrderBook retrieves the top levels of market depth.
	GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error)

	// GetPosition retrieves the live position for a symbol.
	// Returns nil, nil when the exchange reports no exposure.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	// GetAvailableBalance retrieves the free balance for an asset (e.g. "USDT").
	GetAvailableBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a symbol before entering.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder submits a market order opening or adding exposure.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity string) (*OrderResult, error)

	// ClosePosition submits a reduce-only market order on the opposite side
	// of the held exposure. side is the side of the position being closed.
	ClosePosition(ctx context.Context, symbol string, side domain.Side, quantity string) (*OrderResult, error)

	// SetTakeProfitStopLoss arms exchange-side conditional close orders for
	// the held exposure. side is the side of the position being protected.
	SetTakeProfitStopLoss(ctx context.Context, symbol string, side domain.Side, takeProfit, stopLoss float64) error

	// CancelAllOrders cancels every working order for a symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// GetSymbolConstraints retrieves the order-size rules for a symbol.
	GetSymbolConstraints(ctx context.Context, symbol string) (*SymbolConstraints, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
