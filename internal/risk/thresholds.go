package risk

import (
	"tradePilot/internal/domain"
)

// TakeProfitPrice returns the absolute take-profit level for an entry.
// Long positions target above the entry, short positions below.
func TakeProfitPrice(side domain.Side, entryPrice, tpPercent float64) float64 {
	if side == domain.Long {
		return entryPrice * (1 + tpPercent/100)
	}
	return entryPrice * (1 - tpPercent/100)
}

// StopLossPrice returns the absolute stop-loss level for an entry.
// Long positions stop below the entry, short positions above.
func StopLossPrice(side domain.Side, entryPrice, slPercent float64) float64 {
	if side == domain.Long {
		return entryPrice * (1 - slPercent/100)
	}
	return entryPrice * (1 + slPercent/100)
}

// CrossedThreshold reports which configured level, if any, the price has
// crossed for a position on the given side. Crossing is inclusive: touching
// the exact level counts.
func CrossedThreshold(side domain.Side, price, takeProfit, stopLoss float64) (domain.CloseReason, bool) {
	if side == domain.Long {
		if price >= takeProfit {
			return domain.CloseReasonTakeProfit, true
		}
		if price <= stopLoss {
			return domain.CloseReasonStopLoss, true
		}
		return "", false
	}
	if price <= takeProfit {
		return domain.CloseReasonTakeProfit, true
	}
	if price >= stopLoss {
		return domain.CloseReasonStopLoss, true
	}
	return "", false
}

// RealizedPnL computes the profit of a closed exposure as the leveraged
// return on the entry notional.
func RealizedPnL(side domain.Side, entryPrice, exitPrice, size float64, leverage int) float64 {
	if entryPrice == 0 {
		return 0
	}
	ratio := (exitPrice - entryPrice) / entryPrice
	if side == domain.Short {
		ratio = -ratio
	}
	return ratio * size * entryPrice * float64(leverage)
}
