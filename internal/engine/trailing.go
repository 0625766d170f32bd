package engine

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TrailAction is the outcome of feeding a price to a Trailing stop.
type TrailAction int

const (
	TrailNone TrailAction = iota
	TrailArmed
	TrailRatcheted
	TrailTriggered
)

// Trailing is a price-driven trailing stop for the long side.
// Once armed its stop only moves up.
type Trailing struct {
	trail1 decimal.Decimal // activation offset above the adjusted break-even, percent
	trail2 decimal.Decimal // stop distance below price, percent
	step   decimal.Decimal // minimum advance before ratcheting, percent

	activation decimal.Decimal
	stop       decimal.Decimal
	armed      bool
}

// NewTrailing creates a disarmed trailing stop.
func NewTrailing(trail1, trail2, step decimal.Decimal) Trailing {
	return Trailing{trail1: trail1, trail2: trail2, step: step}
}

// Enabled reports whether the stop has a positive distance.
func (t *Trailing) Enabled() bool {
	return t.trail2.IsPositive()
}

// SetBreakEven recomputes the activation price while disarmed.
func (t *Trailing) SetBreakEven(adjustedBreakEven decimal.Decimal) {
	if t.armed {
		return
	}
	t.activation = adjustedBreakEven.Mul(decimal.NewFromInt(1).Add(t.trail1.Div(hundred)))
}

// Activation returns the arming price.
func (t *Trailing) Activation() decimal.Decimal { return t.activation }

// Stop returns the current stop price (zero while disarmed).
func (t *Trailing) Stop() decimal.Decimal { return t.stop }

// Armed reports whether the stop is live.
func (t *Trailing) Armed() bool { return t.armed }

// Observe feeds a trade price and reports what happened.
func (t *Trailing) Observe(price decimal.Decimal) TrailAction {
	if !t.Enabled() || !t.activation.IsPositive() {
		return TrailNone
	}
	if !t.armed {
		if price.GreaterThanOrEqual(t.activation) {
			t.armed = true
			t.stop = t.activation.Mul(t.keep())
			return TrailArmed
		}
		return TrailNone
	}
	if price.LessThanOrEqual(t.stop) {
		return TrailTriggered
	}
	threshold := t.stop.Mul(decimal.NewFromInt(1).Add(t.step.Div(hundred)))
	if price.GreaterThanOrEqual(threshold) {
		if candidate := price.Mul(t.keep()); candidate.GreaterThan(t.stop) {
			t.stop = candidate
			return TrailRatcheted
		}
	}
	return TrailNone
}

// Rearm restores an armed stop after a restart.
func (t *Trailing) Rearm(activation decimal.Decimal) {
	t.activation = activation
	t.armed = true
	t.stop = activation.Mul(t.keep())
}

// Disarm clears the stop.
func (t *Trailing) Disarm() {
	t.armed = false
	t.stop = decimal.Zero
}

func (t *Trailing) keep() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(t.trail2.Div(hundred))
}
