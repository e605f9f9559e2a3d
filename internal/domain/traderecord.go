package domain

import "time"

// TradeRecord is the ledger's account of one position from entry to exit.
// Records are created when an entry order is confirmed filled, mutated
// exactly once to closed, and never deleted.
type TradeRecord struct {
	ID         string       // uuid assigned at creation
	Symbol     string       // trading symbol (e.g. "BTCUSDT")
	Side       Side         // long or short
	EntryPrice float64      // confirmed average entry price
	EntryTime  time.Time    // timestamp of fill confirmation
	Size       float64      // order quantity in base asset
	Leverage   int          // leverage applied to the position
	TakeProfit float64      // absolute take-profit price submitted on entry
	StopLoss   float64      // absolute stop-loss price submitted on entry
	Reason     string       // what triggered the entry (signal source)
	ExitPrice  float64      // price at close (0 while open)
	ExitTime   time.Time    // timestamp of close (zero value while open)
	PnL        float64      // realized profit and loss, set on close
	ExitReason CloseReason  // why the position was closed
	Status     RecordStatus // open or closed
}

// IsOpen reports whether the record still tracks a live exposure.
func (r *TradeRecord) IsOpen() bool {
	return r.Status == StatusOpen
}
