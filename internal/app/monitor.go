package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradePilot/internal/domain"
	"tradePilot/internal/metrics"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
)

const (
	defaultMonitorInterval = time.Second
	defaultErrorBackoff    = 5 * time.Second
)

// Closer is the slice of the controller the monitor needs: the
// synchronized close path.
type Closer interface {
	Close(ctx context.Context, symbol string, reason domain.CloseReason) *CloseResult
}

// WatchEntry holds the armed thresholds for one symbol. Entries are
// recomputed whenever the live position's entry price or side diverges
// from the armed values.
type WatchEntry struct {
	Side       domain.Side
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// MonitorConfig holds the polling parameters and the threshold
// percentages shared with the entry path.
type MonitorConfig struct {
	Interval          time.Duration
	TakeProfitPercent float64
	StopLossPercent   float64
	ErrorBackoff      time.Duration
	SymbolParams      map[string]SymbolParams // per-symbol overrides, optional
}

func (cfg MonitorConfig) thresholdsFor(symbol string) (tpPct, slPct float64) {
	if p, ok := cfg.SymbolParams[symbol]; ok {
		return p.TakeProfitPercent, p.StopLossPercent
	}
	return cfg.TakeProfitPercent, cfg.StopLossPercent
}

// ThresholdMonitor polls the exchange for every watched symbol and
// triggers the controller's close path when a TP or SL level is crossed.
// It owns the watch cache; the controller arms and disarms entries
// through the Watcher interface.
type ThresholdMonitor struct {
	cfg      MonitorConfig
	logger   ports.Logger
	exchange ports.ExchangeClient
	closer   Closer

	mu      sync.Mutex
	watches map[string]*WatchEntry
}

// NewThresholdMonitor validates dependencies and configuration.
func NewThresholdMonitor(cfg MonitorConfig, logger ports.Logger, exchange ports.ExchangeClient, closer Closer) (*ThresholdMonitor, error) {
	if logger == nil || exchange == nil || closer == nil {
		return nil, fmt.Errorf("missing required dependencies for ThresholdMonitor")
	}
	if cfg.TakeProfitPercent <= 0 {
		return nil, fmt.Errorf("configuration TakeProfitPercent must be positive, got %g", cfg.TakeProfitPercent)
	}
	if cfg.StopLossPercent <= 0 {
		return nil, fmt.Errorf("configuration StopLossPercent must be positive, got %g", cfg.StopLossPercent)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultMonitorInterval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaultErrorBackoff
	}
	return &ThresholdMonitor{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		closer:   closer,
		watches:  make(map[string]*WatchEntry),
	}, nil
}

// Watch arms thresholds for a symbol from its entry price.
func (m *ThresholdMonitor) Watch(symbol string, side domain.Side, entryPrice float64) {
	tpPct, slPct := m.cfg.thresholdsFor(symbol)
	entry := &WatchEntry{
		Side:       side,
		EntryPrice: entryPrice,
		TakeProfit: risk.TakeProfitPrice(side, entryPrice, tpPct),
		StopLoss:   risk.StopLossPrice(side, entryPrice, slPct),
	}
	m.mu.Lock()
	m.watches[symbol] = entry
	m.mu.Unlock()
	m.logger.Info(context.Background(), "monitor: thresholds armed", map[string]interface{}{
		"symbol":     symbol,
		"side":       side,
		"entryPrice": entryPrice,
		"tp":         entry.TakeProfit,
		"sl":         entry.StopLoss,
	})
}

// Unwatch drops the entry for a symbol.
func (m *ThresholdMonitor) Unwatch(symbol string) {
	m.mu.Lock()
	_, ok := m.watches[symbol]
	delete(m.watches, symbol)
	m.mu.Unlock()
	if ok {
		m.logger.Debug(context.Background(), "monitor: thresholds disarmed", map[string]interface{}{"symbol": symbol})
	}
}

// Watched returns the symbols currently under watch, sorted.
func (m *ThresholdMonitor) Watched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.watches))
	for symbol := range m.watches {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Start runs the polling loop until the context is canceled. A cycle
// with symbol errors backs off before the next tick so a degraded API
// is not hammered at full rate.
func (m *ThresholdMonitor) Start(ctx context.Context) error {
	op := "Monitor.Start"
	m.logger.Info(ctx, op+": starting threshold monitor", map[string]interface{}{
		"interval": m.cfg.Interval.String(),
		"tpPct":    m.cfg.TakeProfitPercent,
		"slPct":    m.cfg.StopLossPercent,
	})
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info(ctx, op+": stopping threshold monitor")
			return nil
		case <-ticker.C:
			if errs := m.runCycle(ctx); errs > 0 {
				m.logger.Warn(ctx, op+": cycle finished with errors, backing off", map[string]interface{}{"errors": errs})
				select {
				case <-time.After(m.cfg.ErrorBackoff):
				case <-ctx.Done():
				}
			}
		}
	}
}

// runCycle checks every watched symbol once. Failures are isolated per
// symbol; the return value is the number of symbols that errored.
func (m *ThresholdMonitor) runCycle(ctx context.Context) int {
	op := "Monitor.runCycle"

	m.mu.Lock()
	symbols := make([]string, 0, len(m.watches))
	for symbol := range m.watches {
		symbols = append(symbols, symbol)
	}
	m.mu.Unlock()
	sort.Strings(symbols)

	errs := 0
	for _, symbol := range symbols {
		// 1. The live position is authoritative. Gone means done.
		position, err := m.exchange.GetPosition(ctx, symbol)
		if err != nil {
			m.logger.Warn(ctx, op+": failed to fetch position, skipping symbol", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			errs++
			continue
		}
		if position == nil {
			m.logger.Info(ctx, op+": position no longer open, dropping watch", map[string]interface{}{"symbol": symbol})
			m.Unwatch(symbol)
			continue
		}

		// 2. Recompute thresholds when the live position moved under us.
		entry := m.rearmIfDiverged(ctx, symbol, position)
		if entry == nil {
			continue
		}

		// 3. Price fetch failure skips just this symbol for this cycle.
		price, err := m.exchange.GetTickerPrice(ctx, symbol)
		if err != nil {
			m.logger.Warn(ctx, op+": failed to fetch price, skipping symbol", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			errs++
			continue
		}

		reason, crossed := risk.CrossedThreshold(entry.Side, price, entry.TakeProfit, entry.StopLoss)
		if !crossed {
			continue
		}

		m.logger.Info(ctx, op+": threshold crossed, closing position", map[string]interface{}{
			"symbol": symbol,
			"side":   entry.Side,
			"price":  price,
			"tp":     entry.TakeProfit,
			"sl":     entry.StopLoss,
			"reason": reason,
		})
		metrics.IncMonitorTrigger(string(reason))
		res := m.closer.Close(ctx, symbol, reason)
		if res.Status != StatusSuccess {
			m.logger.Warn(ctx, op+": close did not complete", map[string]interface{}{"symbol": symbol, "status": res.Status, "message": res.Message})
		}
		// Dropped regardless of outcome; a still-open position is picked
		// up again next cycle.
		m.Unwatch(symbol)
	}
	return errs
}

// rearmIfDiverged recomputes the thresholds when the live position's
// entry price or side no longer matches the armed entry. Returns the
// current entry, or nil when the watch was dropped mid-cycle.
func (m *ThresholdMonitor) rearmIfDiverged(ctx context.Context, symbol string, position *ports.Position) *WatchEntry {
	op := "Monitor.rearm"
	m.mu.Lock()
	entry, ok := m.watches[symbol]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if entry.EntryPrice == position.EntryPrice && entry.Side == position.Side {
		current := *entry
		m.mu.Unlock()
		return &current
	}
	tpPct, slPct := m.cfg.thresholdsFor(symbol)
	rearmed := &WatchEntry{
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		TakeProfit: risk.TakeProfitPrice(position.Side, position.EntryPrice, tpPct),
		StopLoss:   risk.StopLossPrice(position.Side, position.EntryPrice, slPct),
	}
	m.watches[symbol] = rearmed
	m.mu.Unlock()
	m.logger.Info(ctx, op+": position diverged from armed entry, thresholds recomputed", map[string]interface{}{
		"symbol":     symbol,
		"side":       position.Side,
		"entryPrice": position.EntryPrice,
		"tp":         rearmed.TakeProfit,
		"sl":         rearmed.StopLoss,
	})
	current := *rearmed
	return &current
}
