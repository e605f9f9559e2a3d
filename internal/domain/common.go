package domain

import (
	"fmt"
	"strings"
)

// Side represents the direction of an exposure (long or short).
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Opposite returns the reversed side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// IsValid reports whether the side is one of the known values.
func (s Side) IsValid() bool {
	return s == Long || s == Short
}

// ParseSide normalizes free-form input ("LONG", "Short", ...) into a Side.
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(raw))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	default:
		return "", fmt.Errorf("unknown side %q", raw)
	}
}

// RecordStatus represents the lifecycle status of a ledger record.
type RecordStatus string

const (
	StatusOpen   RecordStatus = "open"
	StatusClosed RecordStatus = "closed"
)

// CloseReason indicates why an exposure was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonSignal     CloseReason = "SIGNAL"
	CloseReasonTrendTouch CloseReason = "TREND_TOUCH"
	CloseReasonReversal   CloseReason = "REVERSED"
)

// LifecycleState is the per-symbol state of the position state machine.
// OPENING and CLOSING are transient and always resolve to FLAT or OPEN
// before a handler returns.
type LifecycleState string

const (
	StateFlat    LifecycleState = "FLAT"
	StateOpening LifecycleState = "OPENING"
	StateOpen    LifecycleState = "OPEN"
	StateClosing LifecycleState = "CLOSING"
)
