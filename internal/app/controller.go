package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"tradePilot/internal/domain"
	"tradePilot/internal/metrics"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

// Inbound event names, recorded verbatim on every advisor consultation.
const (
	EventOpen       = "open_pos"
	EventClose      = "close_pos"
	EventTrendTouch = "close_trend_pos"
)

// Watcher receives notifications when exposures open and close so the
// background monitor can arm and disarm its thresholds.
type Watcher interface {
	Watch(symbol string, side domain.Side, entryPrice float64)
	Unwatch(symbol string)
}

// SymbolParams replaces the global leverage and threshold percentages
// for one symbol.
type SymbolParams struct {
	Leverage          int
	TakeProfitPercent float64
	StopLossPercent   float64
}

// ControllerConfig holds the trading parameters applied to every symbol.
type ControllerConfig struct {
	Leverage            int
	TakeProfitPercent   float64
	StopLossPercent     float64
	TrendTouchMinChange float64       // percent move vs entry below which touch signals are not reviewed; 0 disables
	SettleDelay         time.Duration // wait between entry order and fill confirmation
	ReverseTrading      bool          // flips the requested side before processing
	QuoteAsset          string        // balance asset, e.g. "USDT"
	RetryAttempts       int
	RetryDelay          time.Duration
	SymbolParams        map[string]SymbolParams // per-symbol overrides, optional
}

// paramsFor returns the effective parameters for a symbol.
func (cfg ControllerConfig) paramsFor(symbol string) SymbolParams {
	if p, ok := cfg.SymbolParams[symbol]; ok {
		return p
	}
	return SymbolParams{
		Leverage:          cfg.Leverage,
		TakeProfitPercent: cfg.TakeProfitPercent,
		StopLossPercent:   cfg.StopLossPercent,
	}
}

// LifecycleController drives the per-symbol position state machine. The
// exchange's live position is ground truth for every branch; in-memory
// state exists for observability and to mark the transient phases.
type LifecycleController struct {
	cfg      ControllerConfig
	logger   ports.Logger
	exchange ports.ExchangeClient
	ledger   ports.TradeLedger
	events   ports.DecisionEventStore
	advisor  ports.Advisor
	market   ports.SnapshotProvider
	sizer    *risk.Sizer
	retry    retryPolicy

	watcherMu sync.RWMutex
	watcher   Watcher

	// mu guards the state map and the lock registry. Each symbol's
	// operations are serialized by its own entry in locks; mu is never
	// held across an exchange call.
	mu     sync.RWMutex
	states map[string]domain.LifecycleState
	locks  map[string]*sync.Mutex
}

// NewLifecycleController validates dependencies and configuration.
func NewLifecycleController(
	cfg ControllerConfig,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	ledger ports.TradeLedger,
	events ports.DecisionEventStore,
	advisor ports.Advisor,
	market ports.SnapshotProvider,
	sizer *risk.Sizer,
) (*LifecycleController, error) {
	if logger == nil || exchange == nil || ledger == nil || events == nil || advisor == nil || market == nil || sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for LifecycleController")
	}
	if cfg.Leverage <= 0 {
		return nil, fmt.Errorf("configuration Leverage must be positive, got %d", cfg.Leverage)
	}
	if cfg.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("configuration TakeProfitPercent must be positive, got %g", cfg.TakeProfitPercent)
	}
	if cfg.StopLossPercent <= 0 {
		return nil, fmt.Errorf("configuration StopLossPercent must be positive, got %g", cfg.StopLossPercent)
	}
	if cfg.TrendTouchMinChange < 0 {
		return nil, fmt.Errorf("configuration TrendTouchMinChange must not be negative, got %g", cfg.TrendTouchMinChange)
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("configuration SettleDelay must not be negative, got %s", cfg.SettleDelay)
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &LifecycleController{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		ledger:   ledger,
		events:   events,
		advisor:  advisor,
		market:   market,
		sizer:    sizer,
		retry:    retryPolicy{attempts: cfg.RetryAttempts, delay: cfg.RetryDelay},
		states:   make(map[string]domain.LifecycleState),
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

// SetWatcher wires the background monitor. Called once during startup,
// after both the controller and the monitor exist.
func (c *LifecycleController) SetWatcher(w Watcher) {
	c.watcherMu.Lock()
	defer c.watcherMu.Unlock()
	c.watcher = w
}

// ReconcileState aligns in-memory state with the exchange at startup.
// Symbols the exchange reports exposure on start OPEN, are handed to the
// monitor, and get a ledger record if none survived the restart.
func (c *LifecycleController) ReconcileState(ctx context.Context, symbols []string) error {
	op := "ReconcileState"
	for _, symbol := range symbols {
		position, err := c.fetchPosition(ctx, symbol)
		if err != nil {
			c.logger.Error(ctx, err, op+": failed to fetch position", map[string]interface{}{"symbol": symbol})
			return fmt.Errorf("%s failed for %s: %w", op, symbol, err)
		}
		if position == nil {
			c.setState(symbol, domain.StateFlat)
			continue
		}
		c.setState(symbol, domain.StateOpen)
		c.watch(symbol, position.Side, position.EntryPrice)
		c.logger.Info(ctx, op+": adopted live position", map[string]interface{}{
			"symbol":     symbol,
			"side":       position.Side,
			"entryPrice": position.EntryPrice,
			"size":       position.Size,
		})
		if rec := c.findOpenRecord(ctx, symbol); rec == nil {
			c.adoptRecord(ctx, position)
		}
	}
	return nil
}

// adoptRecord creates a ledger record for an exposure found at startup
// with no surviving open record.
func (c *LifecycleController) adoptRecord(ctx context.Context, position *ports.Position) {
	op := "adoptRecord"
	params := c.cfg.paramsFor(position.Symbol)
	leverage := position.Leverage
	if leverage == 0 {
		leverage = params.Leverage
	}
	rec := &domain.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     position.Symbol,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		EntryTime:  time.Now().UTC(),
		Size:       position.Size,
		Leverage:   leverage,
		TakeProfit: risk.TakeProfitPrice(position.Side, position.EntryPrice, params.TakeProfitPercent),
		StopLoss:   risk.StopLossPrice(position.Side, position.EntryPrice, params.StopLossPercent),
		Reason:     "adopted at startup",
		Status:     domain.StatusOpen,
	}
	if err := c.retry.do(ctx, func() error { return c.ledger.Create(ctx, rec) }); err != nil {
		c.logger.Error(ctx, err, op+": failed to create record for live exposure", map[string]interface{}{"symbol": position.Symbol})
		return
	}
	c.logger.Warn(ctx, op+": live exposure had no open record, created one", map[string]interface{}{"symbol": position.Symbol, "tradeID": rec.ID})
}

// HandleOpen processes an open signal for the requested side.
func (c *LifecycleController) HandleOpen(ctx context.Context, symbol string, side domain.Side) *OpenResult {
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	res := c.handleOpen(ctx, symbol, side)
	metrics.IncSignal(EventOpen, string(res.Status))
	return res
}

func (c *LifecycleController) handleOpen(ctx context.Context, symbol string, side domain.Side) *OpenResult {
	op := "handleOpen"
	if !side.IsValid() {
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("invalid position side %q", side)}
	}
	c.logger.Info(ctx, op+": open signal received", map[string]interface{}{"symbol": symbol, "side": side})

	// 1. The live position decides the branch, not any cached state.
	position, err := c.fetchPosition(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to fetch position", map[string]interface{}{"symbol": symbol})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("failed to fetch position: %v", err)}
	}

	// 2. Market context for the advisor gate and order sizing.
	snap, err := c.market.Collect(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to collect market data", map[string]interface{}{"symbol": symbol})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("failed to collect market data: %v", err)}
	}

	// 3. Reverse mode flips the requested side before any decision is made.
	if c.cfg.ReverseTrading {
		flipped := side.Opposite()
		c.logger.Info(ctx, op+": reverse trading active, flipping side", map[string]interface{}{"requested": side, "effective": flipped})
		side = flipped
	}

	switch {
	case position == nil:
		return c.openFlat(ctx, symbol, side, snap)
	case position.Side == side:
		c.logger.Info(ctx, op+": same-side position already open", map[string]interface{}{"symbol": symbol, "side": side})
		return &OpenResult{Status: StatusSkipped, Message: fmt.Sprintf("%s position already open for %s", side, symbol)}
	default:
		return c.reverse(ctx, symbol, side, position, snap)
	}
}

// openFlat runs the entry path from a flat book: advisor gate, then the
// opening sequence.
func (c *LifecycleController) openFlat(ctx context.Context, symbol string, side domain.Side, snap *domain.MarketSnapshot) *OpenResult {
	verdict, err := c.consultEntry(ctx, symbol, side, nil, snap)
	if err != nil {
		return &OpenResult{Status: StatusRejected, Message: fmt.Sprintf("advisor unavailable, entry not taken: %v", err)}
	}
	if !verdict.IsYes() {
		return &OpenResult{
			Status:     StatusRejected,
			AIDecision: verdict.Answer,
			Message:    fmt.Sprintf("entry rejected by advisor: %s", verdict.Reason),
		}
	}
	return c.executeEntry(ctx, symbol, side, snap, verdict)
}

// reverse closes an opposite-side exposure and, if the advisor approves
// on fresh data, opens the requested side. A rejected or failed re-entry
// leaves the book flat; the old position is never restored.
func (c *LifecycleController) reverse(ctx context.Context, symbol string, side domain.Side, held *ports.Position, snap *domain.MarketSnapshot) *OpenResult {
	op := "reverse"
	c.logger.Info(ctx, op+": opposite exposure held, closing before re-entry", map[string]interface{}{
		"symbol":    symbol,
		"held":      held.Side,
		"requested": side,
	})

	c.setState(symbol, domain.StateClosing)
	if err := c.flatten(ctx, symbol, held); err != nil {
		c.setState(symbol, domain.StateOpen)
		c.logger.Error(ctx, err, op+": failed to close existing position", map[string]interface{}{"symbol": symbol})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("failed to close existing %s position: %v", held.Side, err)}
	}

	// The signal-time market price is the exit of record; the exchange's
	// unrealized figure becomes the realized one.
	rec := c.findOpenRecord(ctx, symbol)
	c.closeRecord(ctx, symbol, rec, snap.CurrentPrice, held.UnrealizedPnL, domain.CloseReasonReversal)
	c.setState(symbol, domain.StateFlat)
	c.unwatch(symbol)

	// Conditions may have moved while the close settled; the re-entry is
	// judged on fresh data, not the snapshot taken for the old position.
	fresh, err := c.market.Collect(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to collect market data for re-entry", map[string]interface{}{"symbol": symbol})
		return &OpenResult{Status: StatusPartial, Message: fmt.Sprintf("existing position closed; market data unavailable for re-entry: %v", err)}
	}
	verdict, err := c.consultEntry(ctx, symbol, side, held, fresh)
	if err != nil {
		return &OpenResult{Status: StatusPartial, Message: fmt.Sprintf("existing position closed; advisor unavailable for re-entry: %v", err)}
	}
	if !verdict.IsYes() {
		c.logger.Info(ctx, op+": advisor rejected re-entry, staying flat", map[string]interface{}{"symbol": symbol, "side": side})
		return &OpenResult{
			Status:     StatusPartial,
			AIDecision: verdict.Answer,
			Message:    fmt.Sprintf("existing position closed; advisor rejected new %s entry: %s", side, verdict.Reason),
		}
	}

	res := c.executeEntry(ctx, symbol, side, fresh, verdict)
	switch res.Status {
	case StatusSuccess:
		res.Message = fmt.Sprintf("existing position closed, %s position opened for %s", side, symbol)
	case StatusError:
		res.Status = StatusPartial
		res.Message = "existing position closed; " + res.Message
	}
	return res
}

// consultEntry asks the advisor to approve an entry and records the
// consultation. A transport failure is surfaced to the caller; the
// conservative mapping to a non-entry belongs there.
func (c *LifecycleController) consultEntry(ctx context.Context, symbol string, side domain.Side, holding *ports.Position, snap *domain.MarketSnapshot) (*ports.Verdict, error) {
	op := "consultEntry"
	start := time.Now()
	verdict, err := c.advisor.VerifyEntry(ctx, symbol, side, snap)
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Error(ctx, err, op+": advisor consultation failed", map[string]interface{}{"symbol": symbol, "side": side})
		return nil, err
	}
	var holdingSide domain.Side
	var holdingEntry float64
	if holding != nil {
		holdingSide = holding.Side
		holdingEntry = holding.EntryPrice
	}
	c.recordDecision(ctx, EventOpen, symbol, side, holdingSide, verdict, holdingEntry, snap.CurrentPrice, elapsed)
	return verdict, nil
}

// executeEntry runs the opening sequence after an approved gate: set
// leverage, size, submit, confirm the fill, record, arm protection.
func (c *LifecycleController) executeEntry(ctx context.Context, symbol string, side domain.Side, snap *domain.MarketSnapshot, verdict *ports.Verdict) *OpenResult {
	op := "executeEntry"
	params := c.cfg.paramsFor(symbol)
	c.setState(symbol, domain.StateOpening)

	// 1. Leverage first; sizing depends on it.
	if err := c.retry.do(ctx, func() error { return c.exchange.SetLeverage(ctx, symbol, params.Leverage) }); err != nil {
		c.setState(symbol, domain.StateFlat)
		c.logger.Error(ctx, err, op+": failed to set leverage", map[string]interface{}{"symbol": symbol, "leverage": params.Leverage})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("failed to set leverage: %v", err)}
	}

	// 2. Size the order from balance, price and the symbol's step rules.
	qty, err := c.sizeOrder(ctx, symbol, snap.CurrentPrice, params.Leverage)
	if err != nil {
		c.setState(symbol, domain.StateFlat)
		c.logger.Error(ctx, err, op+": failed to size order", map[string]interface{}{"symbol": symbol})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("failed to size order: %v", err)}
	}

	// 3. Submit the market order.
	var order *ports.OrderResult
	if err := c.retry.do(ctx, func() error {
		var err error
		order, err = c.exchange.PlaceMarketOrder(ctx, symbol, side, qty.String())
		return err
	}); err != nil {
		c.setState(symbol, domain.StateFlat)
		c.logger.Error(ctx, err, op+": entry order failed", map[string]interface{}{"symbol": symbol, "side": side, "qty": qty.String()})
		return &OpenResult{Status: StatusError, Message: fmt.Sprintf("entry order failed: %v", err)}
	}
	metrics.IncOrder(string(side), "entry")
	c.logger.Info(ctx, op+": entry order submitted", map[string]interface{}{"symbol": symbol, "side": side, "qty": qty.String(), "orderID": order.OrderID})

	// 4. Give the fill time to settle, then confirm exposure once.
	c.sleep(ctx, c.cfg.SettleDelay)
	position, err := c.fetchPosition(ctx, symbol)
	if err != nil || position == nil {
		c.setState(symbol, domain.StateFlat)
		c.logger.Warn(ctx, op+": order accepted but no exposure observed", map[string]interface{}{"symbol": symbol, "orderID": order.OrderID})
		return &OpenResult{Status: StatusError, Message: "order accepted but no resulting exposure observed"}
	}

	// 5. Thresholds come off the confirmed entry price, not the estimate.
	entryPrice := position.EntryPrice
	leverage := position.Leverage
	if leverage == 0 {
		leverage = params.Leverage
	}
	tp := risk.TakeProfitPrice(side, entryPrice, params.TakeProfitPercent)
	sl := risk.StopLossPrice(side, entryPrice, params.StopLossPercent)

	rec := &domain.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entryPrice,
		EntryTime:  time.Now().UTC(),
		Size:       position.Size,
		Leverage:   leverage,
		TakeProfit: tp,
		StopLoss:   sl,
		Reason:     entryReason(verdict),
		Status:     domain.StatusOpen,
	}
	if err := c.retry.do(ctx, func() error { return c.ledger.Create(ctx, rec) }); err != nil {
		// The exposure is live; a record failure must not unwind it.
		c.logger.Error(ctx, err, op+": failed to persist trade record", map[string]interface{}{"symbol": symbol, "tradeID": rec.ID})
	}

	c.setState(symbol, domain.StateOpen)
	c.watch(symbol, side, entryPrice)

	result := &OpenResult{
		Status:     StatusSuccess,
		AIDecision: verdict.Answer,
		TradeID:    rec.ID,
		EntryPrice: entryPrice,
		Size:       position.Size,
		Leverage:   leverage,
		TakeProfit: tp,
		StopLoss:   sl,
		Message:    fmt.Sprintf("%s position opened for %s", side, symbol),
	}

	// 6. Arm exchange-side protection. The monitor already covers the
	// thresholds, so a failure here degrades to partial, not error.
	if err := c.retry.do(ctx, func() error { return c.exchange.SetTakeProfitStopLoss(ctx, symbol, side, tp, sl) }); err != nil {
		c.logger.Error(ctx, err, op+": failed to arm protective orders", map[string]interface{}{"symbol": symbol, "tp": tp, "sl": sl})
		result.Status = StatusPartial
		result.Message = fmt.Sprintf("%s position opened for %s but protective orders failed: %v", side, symbol, err)
		return result
	}

	c.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"entryPrice": entryPrice,
		"size":       position.Size,
		"leverage":   leverage,
		"tp":         tp,
		"sl":         sl,
		"tradeID":    rec.ID,
	})
	return result
}

// HandleClose processes a close signal. Closing with no open exposure is
// a no-op, not an error.
func (c *LifecycleController) HandleClose(ctx context.Context, symbol string) *CloseResult {
	op := "HandleClose"
	c.logger.Info(ctx, op+": close signal received", map[string]interface{}{"symbol": symbol})
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	res := c.closeLocked(ctx, symbol, domain.CloseReasonSignal)
	metrics.IncSignal(EventClose, string(res.Status))
	return res
}

// Close runs the close path for the given reason under the symbol's
// lock. Used by the threshold monitor when a TP/SL level is crossed.
func (c *LifecycleController) Close(ctx context.Context, symbol string, reason domain.CloseReason) *CloseResult {
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	return c.closeLocked(ctx, symbol, reason)
}

func (c *LifecycleController) closeLocked(ctx context.Context, symbol string, reason domain.CloseReason) *CloseResult {
	op := "closePosition"

	position, err := c.fetchPosition(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to fetch position", map[string]interface{}{"symbol": symbol})
		return &CloseResult{Status: StatusError, Message: fmt.Sprintf("failed to fetch position: %v", err)}
	}
	if position == nil {
		c.setState(symbol, domain.StateFlat)
		c.unwatch(symbol)
		c.logger.Info(ctx, op+": no open position", map[string]interface{}{"symbol": symbol})
		return &CloseResult{Status: StatusSkipped, Message: fmt.Sprintf("no open position for %s", symbol)}
	}

	exitPrice, err := c.fetchPrice(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to fetch exit price", map[string]interface{}{"symbol": symbol})
		return &CloseResult{Status: StatusError, Message: fmt.Sprintf("failed to fetch exit price: %v", err)}
	}

	c.setState(symbol, domain.StateClosing)
	if err := c.flatten(ctx, symbol, position); err != nil {
		c.setState(symbol, domain.StateOpen)
		c.logger.Error(ctx, err, op+": failed to close position", map[string]interface{}{"symbol": symbol})
		return &CloseResult{Status: StatusError, Message: fmt.Sprintf("failed to close position: %v", err)}
	}

	// PnL is the leveraged return between the confirmed entry and the
	// fetched exit, on the recorded size when a record exists.
	rec := c.findOpenRecord(ctx, symbol)
	size, leverage := position.Size, position.Leverage
	if rec != nil {
		size, leverage = rec.Size, rec.Leverage
	}
	pnl := risk.RealizedPnL(position.Side, position.EntryPrice, exitPrice, size, leverage)
	c.closeRecord(ctx, symbol, rec, exitPrice, pnl, reason)

	c.setState(symbol, domain.StateFlat)
	c.unwatch(symbol)
	c.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"symbol":    symbol,
		"side":      position.Side,
		"exitPrice": exitPrice,
		"pnl":       pnl,
		"reason":    reason,
	})
	return &CloseResult{
		Status:    StatusSuccess,
		ExitPrice: exitPrice,
		PnL:       pnl,
		Message:   fmt.Sprintf("%s position closed for %s", position.Side, symbol),
	}
}

// HandleThresholdTouch processes a trend-touch signal: below the minimum
// move it keeps the position without consulting the advisor; otherwise
// the advisor decides keep-vs-close.
func (c *LifecycleController) HandleThresholdTouch(ctx context.Context, symbol string) *TouchResult {
	lock := c.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()
	res := c.handleTouch(ctx, symbol)
	metrics.IncSignal(EventTrendTouch, string(res.Status))
	return res
}

func (c *LifecycleController) handleTouch(ctx context.Context, symbol string) *TouchResult {
	op := "handleTouch"
	c.logger.Info(ctx, op+": threshold touch signal received", map[string]interface{}{"symbol": symbol})

	position, err := c.fetchPosition(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to fetch position", map[string]interface{}{"symbol": symbol})
		return &TouchResult{Status: StatusError, Message: fmt.Sprintf("failed to fetch position: %v", err)}
	}
	if position == nil {
		c.setState(symbol, domain.StateFlat)
		c.unwatch(symbol)
		c.logger.Info(ctx, op+": no open position", map[string]interface{}{"symbol": symbol})
		return &TouchResult{Status: StatusSkipped, Message: fmt.Sprintf("no open position for %s", symbol)}
	}

	price, err := c.fetchPrice(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to fetch current price", map[string]interface{}{"symbol": symbol})
		return &TouchResult{Status: StatusError, Message: fmt.Sprintf("failed to fetch current price: %v", err)}
	}

	var changeRate float64
	if position.EntryPrice != 0 {
		changeRate = (price - position.EntryPrice) / position.EntryPrice * 100
	}
	if c.cfg.TrendTouchMinChange > 0 && math.Abs(changeRate) < c.cfg.TrendTouchMinChange {
		c.logger.Info(ctx, op+": move below review threshold, keeping position", map[string]interface{}{
			"symbol":     symbol,
			"changeRate": changeRate,
			"minimum":    c.cfg.TrendTouchMinChange,
		})
		return &TouchResult{
			Status:     StatusMaintain,
			ChangeRate: changeRate,
			Message:    fmt.Sprintf("price moved %.2f%% since entry, below the %.2f%% review threshold", changeRate, c.cfg.TrendTouchMinChange),
		}
	}

	snap, err := c.market.Collect(ctx, symbol)
	if err != nil {
		c.logger.Error(ctx, err, op+": failed to collect market data", map[string]interface{}{"symbol": symbol})
		return &TouchResult{Status: StatusError, ChangeRate: changeRate, Message: fmt.Sprintf("failed to collect market data: %v", err)}
	}

	start := time.Now()
	verdict, err := c.advisor.VerifyTrendTouch(ctx, symbol, position, snap)
	elapsed := time.Since(start)
	if err != nil {
		// Fail-safe for exits is inaction: an unreachable advisor keeps
		// the position open.
		c.logger.Error(ctx, err, op+": advisor consultation failed, maintaining position", map[string]interface{}{"symbol": symbol})
		return &TouchResult{Status: StatusMaintain, ChangeRate: changeRate, Message: fmt.Sprintf("advisor unavailable, position maintained: %v", err)}
	}
	c.recordDecision(ctx, EventTrendTouch, symbol, "", position.Side, verdict, position.EntryPrice, price, elapsed)

	if !verdict.IsYes() {
		c.logger.Info(ctx, op+": advisor recommends holding", map[string]interface{}{"symbol": symbol, "side": position.Side})
		return &TouchResult{
			Status:     StatusMaintain,
			AIDecision: verdict.Answer,
			ChangeRate: changeRate,
			Message:    fmt.Sprintf("position maintained on advisor recommendation: %s", verdict.Reason),
		}
	}

	closeRes := c.closeLocked(ctx, symbol, domain.CloseReasonTrendTouch)
	out := &TouchResult{
		Status:     closeRes.Status,
		AIDecision: verdict.Answer,
		ChangeRate: changeRate,
		ExitPrice:  closeRes.ExitPrice,
		PnL:        closeRes.PnL,
		Message:    closeRes.Message,
	}
	if closeRes.Status == StatusSuccess {
		out.Message = fmt.Sprintf("%s position closed for %s on trend touch", position.Side, symbol)
	}
	return out
}

// States returns a copy of the per-symbol lifecycle states.
func (c *LifecycleController) States() map[string]domain.LifecycleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.LifecycleState, len(c.states))
	for symbol, state := range c.states {
		out[symbol] = state
	}
	return out
}

// --- internals ---

func (c *LifecycleController) symbolLock(symbol string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbol] = l
	}
	return l
}

func (c *LifecycleController) setState(symbol string, state domain.LifecycleState) {
	c.mu.Lock()
	c.states[symbol] = state
	open := 0
	for _, s := range c.states {
		if s == domain.StateOpen {
			open++
		}
	}
	c.mu.Unlock()
	metrics.SetOpenPositions(open)
}

func (c *LifecycleController) fetchPosition(ctx context.Context, symbol string) (*ports.Position, error) {
	var position *ports.Position
	err := c.retry.do(ctx, func() error {
		var err error
		position, err = c.exchange.GetPosition(ctx, symbol)
		return err
	})
	return position, err
}

func (c *LifecycleController) fetchPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := c.retry.do(ctx, func() error {
		var err error
		price, err = c.exchange.GetTickerPrice(ctx, symbol)
		return err
	})
	return price, err
}

// sizeOrder derives an exchange-compliant quantity for one entry at the
// given price.
func (c *LifecycleController) sizeOrder(ctx context.Context, symbol string, price float64, leverage int) (decimal.Decimal, error) {
	op := "sizeOrder"
	var balance float64
	if err := c.retry.do(ctx, func() error {
		var err error
		balance, err = c.exchange.GetAvailableBalance(ctx, c.cfg.QuoteAsset)
		return err
	}); err != nil {
		return decimal.Zero, fmt.Errorf("fetching available balance: %w", err)
	}
	var constraints *ports.SymbolConstraints
	if err := c.retry.do(ctx, func() error {
		var err error
		constraints, err = c.exchange.GetSymbolConstraints(ctx, symbol)
		return err
	}); err != nil {
		return decimal.Zero, fmt.Errorf("fetching symbol constraints: %w", err)
	}
	qty, err := c.sizer.OrderQuantity(leverage, decimal.NewFromFloat(price), decimal.NewFromFloat(balance), *constraints)
	if err != nil {
		return decimal.Zero, err
	}
	c.logger.Debug(ctx, op+": order sized", map[string]interface{}{
		"symbol":  symbol,
		"qty":     qty.String(),
		"price":   price,
		"balance": balance,
	})
	return qty, nil
}

// flatten closes the held exposure with a reduce-only order and cancels
// any working orders. Cancellation failures are logged, not surfaced:
// the exposure is already gone.
func (c *LifecycleController) flatten(ctx context.Context, symbol string, held *ports.Position) error {
	op := "flatten"
	qty := strconv.FormatFloat(held.Size, 'f', -1, 64)
	if err := c.retry.do(ctx, func() error {
		_, err := c.exchange.ClosePosition(ctx, symbol, held.Side, qty)
		return err
	}); err != nil {
		return err
	}
	metrics.IncOrder(string(held.Side), "close")
	if err := c.retry.do(ctx, func() error { return c.exchange.CancelAllOrders(ctx, symbol) }); err != nil {
		c.logger.Warn(ctx, op+": failed to cancel working orders", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
	return nil
}

func (c *LifecycleController) findOpenRecord(ctx context.Context, symbol string) *domain.TradeRecord {
	op := "findOpenRecord"
	var rec *domain.TradeRecord
	if err := c.retry.do(ctx, func() error {
		var err error
		rec, err = c.ledger.FindOpenBySymbol(ctx, symbol)
		return err
	}); err != nil {
		c.logger.Error(ctx, err, op+": ledger lookup failed", map[string]interface{}{"symbol": symbol})
		return nil
	}
	return rec
}

// closeRecord marks the open record closed. Persistence failures are
// logged and reattempted by the policy; the exchange-side close already
// happened and is never rolled back.
func (c *LifecycleController) closeRecord(ctx context.Context, symbol string, rec *domain.TradeRecord, exitPrice, pnl float64, reason domain.CloseReason) {
	op := "closeRecord"
	if rec == nil {
		c.logger.Warn(ctx, op+": closed exposure had no open ledger record", map[string]interface{}{"symbol": symbol})
		return
	}
	if err := c.retry.do(ctx, func() error {
		return c.ledger.CloseRecord(ctx, rec.ID, exitPrice, time.Now().UTC(), pnl, reason)
	}); err != nil {
		c.logger.Error(ctx, err, op+": failed to persist close", map[string]interface{}{"symbol": symbol, "tradeID": rec.ID})
	}
}

// recordDecision appends one advisor consultation to the event store.
func (c *LifecycleController) recordDecision(ctx context.Context, event, symbol string, requested, holding domain.Side, verdict *ports.Verdict, entryPrice, currentPrice float64, elapsed time.Duration) {
	op := "recordDecision"
	metrics.IncAdvisorVerdict(verdict.Answer)
	ev := &domain.DecisionEvent{
		ID:            ulid.Make().String(),
		Event:         event,
		Symbol:        symbol,
		RequestedSide: requested,
		HoldingSide:   holding,
		Answer:        verdict.Answer,
		Reason:        verdict.Reason,
		Executed:      verdict.IsYes(),
		EntryPrice:    entryPrice,
		CurrentPrice:  currentPrice,
		ResponseTime:  elapsed,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.retry.do(ctx, func() error { return c.events.RecordEvent(ctx, ev) }); err != nil {
		c.logger.Warn(ctx, op+": failed to persist decision event", map[string]interface{}{"symbol": symbol, "event": event, "error": err.Error()})
	}
}

func (c *LifecycleController) watch(symbol string, side domain.Side, entryPrice float64) {
	c.watcherMu.RLock()
	w := c.watcher
	c.watcherMu.RUnlock()
	if w != nil {
		w.Watch(symbol, side, entryPrice)
	}
}

func (c *LifecycleController) unwatch(symbol string) {
	c.watcherMu.RLock()
	w := c.watcher
	c.watcherMu.RUnlock()
	if w != nil {
		w.Unwatch(symbol)
	}
}

func (c *LifecycleController) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func entryReason(verdict *ports.Verdict) string {
	if verdict.Reason != "" {
		return verdict.Reason
	}
	return "advisor approved"
}
