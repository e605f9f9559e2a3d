package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger

	// Symbol filter rules never change intraday, so they are fetched once
	// per symbol and cached for the process lifetime.
	constraintsMu sync.RWMutex
	constraints   map[string]*ports.SymbolConstraints
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance futures client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		constraints:   make(map[string]*ports.SymbolConstraints),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to standard errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/request format errors
			mappedErr = ports.ErrValidation
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly order is rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -3041: // Position is not sufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrValidation
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrValidation
		case -4015: // Leverage is not valid
			mappedErr = ports.ErrValidation
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		case -4047: // Exceeded the maximum allowable position at current leverage
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrExternalService
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s canceled: %w", operation, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExternalService, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	tickers, err := c.futuresClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		err := fmt.Errorf("no ticker data returned for symbol %s", symbol)
		return 0, c.handleError(ctx, err, op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetKlines retrieves historical candles for the given symbol in ascending time order.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]domain.Candle, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]domain.Candle, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		candle, err := translateKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

// GetOrderBook retrieves the top levels of market depth for a symbol.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (*domain.OrderBook, error) {
	op := "GetOrderBook"
	res, err := c.futuresClient.NewDepthService().Symbol(symbol).Limit(depth).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	book := &domain.OrderBook{
		Bids: make([]domain.PriceLevel, 0, len(res.Bids)),
		Asks: make([]domain.PriceLevel, 0, len(res.Asks)),
	}
	for _, b := range res.Bids {
		level, err := translatePriceLevel(b.Price, b.Quantity)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate bid level: %w", err), op)
		}
		book.Bids = append(book.Bids, level)
	}
	for _, a := range res.Asks {
		level, err := translatePriceLevel(a.Price, a.Quantity)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate ask level: %w", err), op)
		}
		book.Asks = append(book.Asks, level)
	}
	return book, nil
}

// GetPosition retrieves the live position for a symbol. Returns nil, nil when
// the exchange reports no exposure. TP/SL prices are read from the working
// close-position orders; their absence is not an error.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	op := "GetPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		c.logger.Debug(ctx, op+": No position found for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	// One-way position mode reports a single entry per symbol.
	binancePos := positions[0]
	amt, _ := strconv.ParseFloat(binancePos.PositionAmt, 64)
	if amt == 0 {
		c.logger.Debug(ctx, op+": Position amount is zero for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	pos := translatePosition(binancePos, amt)

	// The conditional close orders carry the armed TP/SL prices.
	orders, err := c.futuresClient.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		c.logger.Warn(ctx, op+": could not list open orders for TP/SL prices", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return pos, nil
	}
	for _, o := range orders {
		if !o.ClosePosition {
			continue
		}
		stop, err := strconv.ParseFloat(o.StopPrice, 64)
		if err != nil {
			continue
		}
		switch o.Type {
		case futures.OrderTypeTakeProfitMarket:
			pos.TakeProfit = stop
		case futures.OrderTypeStopMarket:
			pos.StopLoss = stop
		}
	}
	return pos, nil
}

// GetAvailableBalance retrieves the free balance for a specific asset (e.g., "USDT").
func (c *Client) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAvailableBalance"
	balances, err := c.futuresClient.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range balances {
		if bal.Asset == asset {
			balance, err := strconv.ParseFloat(bal.AvailableBalance, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.AvailableBalance, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return balance, nil
		}
	}

	err = fmt.Errorf("asset %s not found in account balance", asset)
	return 0, c.handleError(ctx, err, op)
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// PlaceMarketOrder places a market order opening or adding exposure.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(entrySide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": result.OrderID, "avgPrice": result.AvgPrice})
	return result, nil
}

// ClosePosition places a reduce-only market order on the opposite side of the
// held exposure. side is the side of the position being closed.
func (c *Client) ClosePosition(ctx context.Context, symbol string, side domain.Side, quantity string) (*ports.OrderResult, error) {
	op := "ClosePosition"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(exitSide(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrder(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "closedSide": side, "quantity": quantity, "orderID": result.OrderID, "avgPrice": result.AvgPrice})
	return result, nil
}

// SetTakeProfitStopLoss arms exchange-side conditional close orders for the
// held exposure. side is the side of the position being protected. Both orders
// use close-position mode so quantity drift cannot leave residual exposure.
func (c *Client) SetTakeProfitStopLoss(ctx context.Context, symbol string, side domain.Side, takeProfit, stopLoss float64) error {
	op := "SetTakeProfitStopLoss"
	constraints, err := c.GetSymbolConstraints(ctx, symbol)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("could not resolve price precision: %w", err), op)
	}
	tpPrice := formatPrice(takeProfit, constraints.PricePrecision)
	slPrice := formatPrice(stopLoss, constraints.PricePrecision)

	_, err = c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(exitSide(side)).
		Type(futures.OrderTypeTakeProfitMarket).
		StopPrice(tpPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op+" take profit")
	}

	_, err = c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(exitSide(side)).
		Type(futures.OrderTypeStopMarket).
		StopPrice(slPrice).
		ClosePosition(true).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op+" stop loss")
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "takeProfit": tpPrice, "stopLoss": slPrice})
	return nil
}

// CancelAllOrders cancels every working order for a symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	op := "CancelAllOrders"
	err := c.futuresClient.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol})
	return nil
}

// GetSymbolConstraints retrieves the order-size rules for a symbol, cached
// for the process lifetime after the first successful fetch.
func (c *Client) GetSymbolConstraints(ctx context.Context, symbol string) (*ports.SymbolConstraints, error) {
	op := "GetSymbolConstraints"

	c.constraintsMu.RLock()
	cached, ok := c.constraints[symbol]
	c.constraintsMu.RUnlock()
	if ok {
		return cached, nil
	}

	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		lotSize := s.LotSizeFilter()
		if lotSize == nil {
			err := fmt.Errorf("symbol %s has no lot size filter", symbol)
			return nil, c.handleError(ctx, err, op)
		}
		minQty, err := decimal.NewFromString(lotSize.MinQuantity)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse min quantity '%s': %w", lotSize.MinQuantity, err), op)
		}
		maxQty, err := decimal.NewFromString(lotSize.MaxQuantity)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse max quantity '%s': %w", lotSize.MaxQuantity, err), op)
		}
		step, err := decimal.NewFromString(lotSize.StepSize)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("could not parse step size '%s': %w", lotSize.StepSize, err), op)
		}

		constraints := &ports.SymbolConstraints{
			MinQty:            minQty,
			MaxQty:            maxQty,
			QtyStep:           step,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}

		c.constraintsMu.Lock()
		c.constraints[symbol] = constraints
		c.constraintsMu.Unlock()

		c.logger.Debug(ctx, op+": cached symbol filters", map[string]interface{}{
			"symbol":  symbol,
			"minQty":  lotSize.MinQuantity,
			"maxQty":  lotSize.MaxQuantity,
			"qtyStep": lotSize.StepSize,
		})
		return constraints, nil
	}

	return nil, fmt.Errorf("%s failed: %w: symbol %s not listed on exchange", op, ports.ErrValidation, symbol)
}

// --- Translation Helpers ---

// entrySide maps a position side to the order side that opens it.
func entrySide(side domain.Side) futures.SideType {
	if side == domain.Long {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

// exitSide maps a position side to the order side that reduces it.
func exitSide(side domain.Side) futures.SideType {
	if side == domain.Long {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func formatPrice(price float64, precision int) string {
	return strconv.FormatFloat(price, 'f', precision, 64)
}

func translateOrder(order *futures.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResult{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		Side:        string(order.Side),
		Type:        string(order.Type),
		Status:      string(order.Status),
		AvgPrice:    avgPrice,
		ExecutedQty: execQty,
		Timestamp:   time.UnixMilli(order.UpdateTime),
	}
}

func translatePosition(pos *futures.PositionRisk, amt float64) *ports.Position {
	side := domain.Long
	size := amt
	if amt < 0 {
		side = domain.Short
		size = -amt
	}
	entryPrice, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	markPrice, _ := strconv.ParseFloat(pos.MarkPrice, 64)
	unProfit, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	leverage, _ := strconv.Atoi(pos.Leverage)

	return &ports.Position{
		Symbol:        pos.Symbol,
		Side:          side,
		Size:          size,
		EntryPrice:    entryPrice,
		Leverage:      leverage,
		UnrealizedPnL: unProfit,
		MarkPrice:     markPrice,
	}
}

func translatePriceLevel(price, quantity string) (domain.PriceLevel, error) {
	p, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("parsing level price '%s': %w", price, err)
	}
	q, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("parsing level quantity '%s': %w", quantity, err)
	}
	return domain.PriceLevel{Price: p, Quantity: q}, nil
}

func translateKline(bk *futures.Kline, symbol, interval string) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(bk.OpenTime),
		Symbol:   symbol,
		Interval: interval,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		Volume:   vol,
	}, nil
}
