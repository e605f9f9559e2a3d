package app

import (
	"context"
	"fmt"
	"time"

	"tradePilot/internal/analytics"
	"tradePilot/internal/domain"
	"tradePilot/internal/metrics"
	"tradePilot/internal/ports"
)

const defaultStatusInterval = 60 * time.Second

// StatusReporter periodically logs an operational summary: lifecycle
// states, watched symbols, and realized performance from the ledger.
type StatusReporter struct {
	interval   time.Duration
	logger     ports.Logger
	ledger     ports.TradeLedger
	controller *LifecycleController
	monitor    *ThresholdMonitor
}

// NewStatusReporter validates dependencies.
func NewStatusReporter(interval time.Duration, logger ports.Logger, ledger ports.TradeLedger, controller *LifecycleController, monitor *ThresholdMonitor) (*StatusReporter, error) {
	if logger == nil || ledger == nil || controller == nil || monitor == nil {
		return nil, fmt.Errorf("missing required dependencies for StatusReporter")
	}
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &StatusReporter{
		interval:   interval,
		logger:     logger,
		ledger:     ledger,
		controller: controller,
		monitor:    monitor,
	}, nil
}

// Run emits one report per interval until the context is canceled.
func (r *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(ctx)
		}
	}
}

func (r *StatusReporter) report(ctx context.Context) {
	op := "statusReport"

	states := r.controller.States()
	stateFields := make(map[string]interface{}, len(states))
	open := 0
	for symbol, state := range states {
		stateFields[symbol] = string(state)
		if state == domain.StateOpen {
			open++
		}
	}

	records, err := r.ledger.FindAll(ctx)
	if err != nil {
		r.logger.Warn(ctx, op+": failed to read ledger", map[string]interface{}{"error": err.Error()})
		r.logger.Info(ctx, op, map[string]interface{}{"openPositions": open, "states": stateFields, "watched": r.monitor.Watched()})
		return
	}
	perf := analytics.Analyze(records)
	metrics.SetRealizedPnL(perf.TotalPnL)

	r.logger.Info(ctx, op, map[string]interface{}{
		"openPositions": open,
		"states":        stateFields,
		"watched":       r.monitor.Watched(),
		"closedTrades":  perf.TotalTrades,
		"winRate":       fmt.Sprintf("%.1f%%", perf.WinRate*100),
		"totalPnL":      perf.TotalPnL,
	})
}
