package ports

import (
	"context"

	"tradePilot/internal/domain"
)

// SnapshotProvider assembles the market context attached to every advisor
// consultation.
type SnapshotProvider interface {
	Collect(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
}
