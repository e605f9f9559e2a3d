package ports

import (
	"context"
	"time"

	"tradePilot/internal/domain"
)

// TradeLedger defines the interface for the durable trade record store.
// One open record per symbol is an invariant the implementation enforces.
type TradeLedger interface {
	// Create saves a new open record.
	// Returns ErrStateConflict when an open record already exists for the symbol.
	Create(ctx context.Context, rec *domain.TradeRecord) error
	// FindOpenBySymbol retrieves the currently open record for a symbol, if any.
	// Returns nil, nil when no open record is found.
	FindOpenBySymbol(ctx context.Context, symbol string) (*domain.TradeRecord, error)
	// CloseRecord transitions a record from open to closed.
	// Closing an already-closed record is a no-op.
	CloseRecord(ctx context.Context, id string, exitPrice float64, exitTime time.Time, pnl float64, reason domain.CloseReason) error
	// FindByID retrieves a record by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.TradeRecord, error)
	// FindBySymbol retrieves the most recent records for a symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error)
	// FindAll retrieves all records, ordered by entry time descending.
	FindAll(ctx context.Context) ([]*domain.TradeRecord, error)
	// GetTotalProfit calculates the sum of PnL over all closed records.
	GetTotalProfit(ctx context.Context) (float64, error)
}

// DecisionEventStore defines the interface for persisting advisor
// consultation history.
type DecisionEventStore interface {
	// RecordEvent appends one advisor consultation.
	RecordEvent(ctx context.Context, ev *domain.DecisionEvent) error
	// RecentEvents retrieves the most recent events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*domain.DecisionEvent, error)
}
