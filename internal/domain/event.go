package domain

import "time"

// DecisionEvent records one advisor consultation: what was asked, what the
// advisor answered, and whether the answer was acted upon. Events are
// append-only history alongside the trade ledger.
type DecisionEvent struct {
	ID            string        // ulid, lexicographically ordered by time
	Event         string        // inbound event name (open_pos, close_trend_pos, ...)
	Symbol        string
	RequestedSide Side          // side the signal asked for (empty for exits)
	HoldingSide   Side          // side held when the signal arrived (empty when flat)
	Answer        string        // normalized advisor verdict, "yes" or "no"
	Reason        string        // advisor's stated reasoning
	Executed      bool          // whether the verdict led to an order
	EntryPrice    float64       // entry of the held position, if any
	CurrentPrice  float64       // market price at consultation time
	ResponseTime  time.Duration // advisor round-trip
	CreatedAt     time.Time
}
