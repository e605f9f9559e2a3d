package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradePilot/internal/ports"
)

// SizingMode selects how the target notional for a new position is derived.
type SizingMode string

const (
	// SizeFixed commits a fixed quote-currency amount per trade.
	SizeFixed SizingMode = "fixed"
	// SizePercent commits a percentage of the available balance.
	SizePercent SizingMode = "percent"
)

// SizerConfig holds the sizing parameters applied to new entries.
type SizerConfig struct {
	Mode        SizingMode
	FixedAmount decimal.Decimal // quote currency, fixed mode
	Percent     decimal.Decimal // 0-100, percent mode
}

// Sizer converts a target notional exposure into an exchange-compliant
// order quantity. All arithmetic is exact decimal so quantities land
// precisely on the exchange's step grid.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer validates the configuration and returns a Sizer.
func NewSizer(cfg SizerConfig) (*Sizer, error) {
	switch cfg.Mode {
	case SizeFixed:
		if !cfg.FixedAmount.IsPositive() {
			return nil, fmt.Errorf("%w: fixed amount must be positive, got %s", ports.ErrValidation, cfg.FixedAmount)
		}
	case SizePercent:
		if !cfg.Percent.IsPositive() || cfg.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: percent must be in (0, 100], got %s", ports.ErrValidation, cfg.Percent)
		}
	default:
		return nil, fmt.Errorf("%w: unknown sizing mode %q", ports.ErrValidation, cfg.Mode)
	}
	return &Sizer{cfg: cfg}, nil
}

// OrderQuantity sizes one entry order.
//
// The target notional is fixedAmount*leverage or balance*percent/100*leverage
// depending on mode. The raw quantity notional/price is floored onto the step
// grid so the committed notional is never overshot; a result below the
// exchange minimum is raised to the smallest step multiple at or above it,
// since a sub-minimum order would be refused outright. The result is clamped
// to the maximum when one is set.
func (s *Sizer) OrderQuantity(leverage int, price, availableBalance decimal.Decimal, c ports.SymbolConstraints) (decimal.Decimal, error) {
	if leverage <= 0 {
		return decimal.Zero, fmt.Errorf("%w: leverage must be positive, got %d", ports.ErrValidation, leverage)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price must be positive, got %s", ports.ErrValidation, price)
	}
	if !c.QtyStep.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: quantity step must be positive, got %s", ports.ErrQuantization, c.QtyStep)
	}

	lev := decimal.NewFromInt(int64(leverage))
	var notional decimal.Decimal
	switch s.cfg.Mode {
	case SizeFixed:
		notional = s.cfg.FixedAmount.Mul(lev)
	case SizePercent:
		notional = availableBalance.Mul(s.cfg.Percent).Div(decimal.NewFromInt(100)).Mul(lev)
	}
	if !notional.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: computed notional %s is not positive", ports.ErrValidation, notional)
	}

	raw := notional.Div(price)
	qty := raw.Div(c.QtyStep).Floor().Mul(c.QtyStep)
	if qty.LessThan(c.MinQty) {
		qty = c.MinQty.Div(c.QtyStep).Ceil().Mul(c.QtyStep)
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		qty = c.MaxQty
	}
	return qty, nil
}
