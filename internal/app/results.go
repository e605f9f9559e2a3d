package app

// Status is the final outcome of one handled signal.
type Status string

const (
	// StatusSuccess means the requested transition completed.
	StatusSuccess Status = "success"
	// StatusSkipped means the request was a no-op for the current state.
	StatusSkipped Status = "skipped"
	// StatusRejected means the advisor declined the entry; nothing changed.
	StatusRejected Status = "rejected"
	// StatusPartial means the first half completed but the second did not,
	// e.g. a reversal that closed the old position and then failed to open
	// the new one.
	StatusPartial Status = "partial"
	// StatusMaintain means the advisor chose to keep the position open.
	StatusMaintain Status = "maintain"
	// StatusError means the operation failed; the message names the step.
	StatusError Status = "error"
)

// OpenResult reports the outcome of an open signal.
type OpenResult struct {
	Status     Status  `json:"status"`
	Message    string  `json:"message"`
	AIDecision string  `json:"ai_decision,omitempty"`
	TradeID    string  `json:"trade_id,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	Size       float64 `json:"size,omitempty"`
	Leverage   int     `json:"leverage,omitempty"`
	TakeProfit float64 `json:"tp_price,omitempty"`
	StopLoss   float64 `json:"sl_price,omitempty"`
}

// CloseResult reports the outcome of a close signal.
type CloseResult struct {
	Status    Status  `json:"status"`
	Message   string  `json:"message"`
	ExitPrice float64 `json:"exit_price,omitempty"`
	PnL       float64 `json:"pnl,omitempty"`
}

// TouchResult reports the outcome of a threshold-touch signal.
type TouchResult struct {
	Status     Status  `json:"status"`
	Message    string  `json:"message"`
	AIDecision string  `json:"ai_decision,omitempty"`
	ChangeRate float64 `json:"change_rate,omitempty"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	PnL        float64 `json:"pnl,omitempty"`
}
