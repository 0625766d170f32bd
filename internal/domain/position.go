package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// Position is one side (LONG or SHORT) of a strategy's exposure on a symbol.
type Position struct {
	ID                     int64
	StrategyID             int64
	Symbol                 string
	PositionSide           PositionSide
	Quantity               decimal.Decimal // always non-negative
	EntryPrice             decimal.Decimal
	BreakEvenPrice         decimal.Decimal
	AdjustedBreakEvenPrice decimal.Decimal
	Status                 PositionStatus
	PnL                    decimal.Decimal
	ActivationPrice        decimal.Decimal
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ClosedAt               time.Time // zero while open
}

// IsOpen reports whether the position is OPEN or UPDATED.
func (p *Position) IsOpen() bool {
	return p != nil && p.Status != PositionClosed
}

// CanTransition reports whether the position may move to next. CLOSED is final.
func (p *Position) CanTransition(next PositionStatus) bool {
	if p.Status == PositionClosed {
		return false
	}
	return next == PositionUpdated || next == PositionClosed
}

// SetPrices updates entry and break-even and recomputes the adjusted break-even.
// A zero break-even falls back to the entry price.
func (p *Position) SetPrices(entry, breakEven decimal.Decimal) {
	if breakEven.IsZero() {
		breakEven = entry
	}
	p.EntryPrice = entry
	p.BreakEvenPrice = breakEven
	p.AdjustedBreakEvenPrice = AdjustedBreakEven(entry, breakEven)
}

// UnrealizedPnL is the position's PnL at price measured against the adjusted break-even.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() || p.Quantity.IsZero() {
		return decimal.Zero
	}
	if p.PositionSide == PositionSideShort {
		return p.AdjustedBreakEvenPrice.Sub(price).Mul(p.Quantity)
	}
	return price.Sub(p.AdjustedBreakEvenPrice).Mul(p.Quantity)
}

// AdjustedBreakEven doubles the offset between the exchange break-even and the entry price.
func AdjustedBreakEven(entry, breakEven decimal.Decimal) decimal.Decimal {
	return entry.Add(breakEven.Sub(entry).Mul(two))
}
