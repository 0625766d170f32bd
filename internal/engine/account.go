package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/grid"
	"gridHedgeBot/internal/ports"
)

// OnAccountUpdate keeps local positions in line with position changes pushed by the exchange.
func (e *Engine) OnAccountUpdate(ctx context.Context, ev *domain.AccountUpdate) error {
	if !e.Active() {
		return nil
	}
	for _, pu := range ev.Positions {
		if pu.Symbol != "" && pu.Symbol != e.symbol {
			continue
		}
		side := pu.PositionSide
		if side != domain.PositionSideLong && side != domain.PositionSideShort {
			continue
		}
		qty := pu.Amount.Abs()
		local := e.position(side)

		switch {
		case qty.IsZero() && local.IsOpen():
			pnl := local.UnrealizedPnL(e.lastPrice)
			e.logger.Info(ctx, "OnAccountUpdate: exchange position closed", map[string]interface{}{
				"symbol": e.symbol, "side": side, "reason": ev.Reason, "pnl": pnl.String(),
			})
			e.closePosition(ctx, side, pnl)
		case qty.IsZero():
		case !local.IsOpen(), !qty.Equal(local.Quantity):
			if _, err := e.syncPosition(ctx, side, qty, pu.EntryPrice); err != nil {
				return fmt.Errorf("OnAccountUpdate failed: %w", err)
			}
		}
	}
	return nil
}

// Reconcile compares local state with the exchange: settles unresolved orders and corrects positions.
func (e *Engine) Reconcile(ctx context.Context) error {
	op := "Reconcile"
	if !e.Active() {
		return nil
	}
	strategyID := e.strategy.ID

	pending, err := e.ledger.Unresolved(ctx, strategyID)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	for _, o := range pending {
		ev, err := e.orders.Resolve(ctx, o)
		if err != nil {
			e.logger.Warn(ctx, op+": order not resolved", map[string]interface{}{
				"symbol": e.symbol, "type": o.Type, "clientOrderID": o.ClientOrderID, "error": err.Error(),
			})
			continue
		}
		if ev == nil {
			continue
		}
		if err := e.OnOrderUpdate(ctx, ev); err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		if !e.Active() || e.strategy.ID != strategyID {
			return nil
		}
	}

	pair, err := e.exchange.GetPosition(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	for _, side := range []domain.PositionSide{domain.PositionSideLong, domain.PositionSideShort} {
		local := e.position(side)
		if !local.IsOpen() {
			continue
		}
		remote := pair.Side(side)
		if remote.Quantity.IsZero() {
			pnl := local.UnrealizedPnL(e.closeReference(ctx, side))
			e.logger.Warn(ctx, op+": local position is flat on exchange", map[string]interface{}{
				"symbol": e.symbol, "side": side, "pnl": pnl.String(),
			})
			e.closePosition(ctx, side, pnl)
			continue
		}
		if !remote.Quantity.Equal(local.Quantity) {
			e.logger.Warn(ctx, op+": position quantity corrected", map[string]interface{}{
				"symbol": e.symbol, "side": side, "local": local.Quantity.String(), "exchange": remote.Quantity.String(),
				"error": ports.ErrReconciliationMismatch.Error(),
			})
			if err := e.ledger.UpdatePosition(ctx, local, remote.Quantity, remote.EntryPrice, remote.BreakEvenPrice); err != nil {
				return fmt.Errorf("%s failed: %w", op, err)
			}
			e.onPositionChanged(side)
		}
	}

	if pair.IsFlat() && !e.long.IsOpen() && !e.short.IsOpen() && e.entered(ctx) {
		if err := e.orders.CancelAll(ctx, strategyID, e.symbol); err != nil {
			e.logger.Error(ctx, err, op+": cancel open orders", map[string]interface{}{"symbol": e.symbol})
		}
		e.complete(ctx, domain.CloseReasonExchange, decimal.Zero)
	}
	return nil
}

// entered reports whether the market entry of the running strategy has filled.
func (e *Engine) entered(ctx context.Context) bool {
	o, err := e.ledger.LastFilled(ctx, e.strategy.ID, domain.OrderTypeLongMarket)
	return err == nil && o != nil
}

// closeReference is the price a position closed outside the engine is booked at:
// the latest closing fill on that side, or the last trade price.
func (e *Engine) closeReference(ctx context.Context, side domain.PositionSide) decimal.Decimal {
	o, err := e.ledger.LastClosingFill(ctx, e.strategy.ID, side)
	if err != nil {
		e.logger.Warn(ctx, "closeReference: fills not read", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
	}
	if o != nil && o.FillPrice().IsPositive() {
		return o.FillPrice()
	}
	return e.lastPrice
}

// Restore rebuilds runtime state of the symbol's ACTIVE strategy from the ledger and reconciles it.
func (e *Engine) Restore(ctx context.Context) error {
	op := "Restore"
	s, err := e.ledger.ActiveStrategy(ctx, e.symbol)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if s == nil {
		e.logger.Debug(ctx, op+": no active strategy", map[string]interface{}{"symbol": e.symbol})
		return nil
	}

	e.reset()
	e.strategy = s
	e.trailing = NewTrailing(s.Settings.Trail1, s.Settings.Trail2, s.Settings.TrailStep)

	if e.long, err = e.ledger.OpenPositionFor(ctx, e.symbol, domain.PositionSideLong); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if e.short, err = e.ledger.OpenPositionFor(ctx, e.symbol, domain.PositionSideShort); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	losses, err := e.ledger.HedgeLosses(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	e.hedgeMargin = s.Settings.ExtraMarg.Sub(losses)

	entry, err := e.ledger.LastFilled(ctx, s.ID, domain.OrderTypeLongMarket)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if entry != nil {
		if e.plan, err = grid.New(s.Settings, s.Open.Amount, s.Open.Leverage, entry.FillPrice(), e.cfg.FeePercent); err != nil {
			return e.fail(ctx, s, err)
		}
	}

	if e.long.IsOpen() {
		e.onPositionChanged(domain.PositionSideLong)
		trailing, err := e.ledger.InProgress(ctx, s.ID, domain.OrderTypeLongTrailingStop)
		if err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		if len(trailing) > 0 && e.long.ActivationPrice.IsPositive() {
			e.trailing.Rearm(e.long.ActivationPrice)
		}
	}
	e.refreshCommissions(ctx)

	e.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": e.symbol, "strategyID": s.ID, "long": e.long.IsOpen(), "short": e.short.IsOpen(),
		"hedgeMargin": e.hedgeMargin.String(), "trailingArmed": e.trailing.Armed(),
	})
	return e.Reconcile(ctx)
}
