package ports

import (
	"context"
	"strings"

	"tradePilot/internal/domain"
)

// Verdict is the advisor's normalized answer to a gate question.
type Verdict struct {
	Answer string // exactly "yes" or "no"
	Reason string // advisor's stated reasoning, may be empty
}

// IsYes reports whether the verdict approves the proposed action.
func (v *Verdict) IsYes() bool {
	return v != nil && v.Answer == "yes"
}

// NormalizeAnswer collapses a free-form advisor answer onto "yes" or "no".
// Any text containing "yes" (case-insensitive) counts as approval;
// everything else, including empty input, is "no".
func NormalizeAnswer(raw string) string {
	if strings.Contains(strings.ToLower(raw), "yes") {
		return "yes"
	}
	return "no"
}

// Advisor defines the interface for the external AI gate consulted before
// committing or releasing capital.
type Advisor interface {
	// VerifyEntry asks whether a new position on the given side should be
	// opened against the provided market context.
	VerifyEntry(ctx context.Context, symbol string, side domain.Side, snap *domain.MarketSnapshot) (*Verdict, error)

	// VerifyTrendTouch asks whether a held position should be closed after
	// a trend threshold touch. "yes" means close, "no" means keep holding.
	VerifyTrendTouch(ctx context.Context, symbol string, pos *Position, snap *domain.MarketSnapshot) (*Verdict, error)
}
