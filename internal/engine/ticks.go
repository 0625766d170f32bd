package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
)

// OnTradeTick checks the profit-lock and trailing-stop exits against a trade price.
func (e *Engine) OnTradeTick(ctx context.Context, tick domain.TradeTick) error {
	if !tick.Price.IsPositive() {
		return nil
	}
	e.lastPrice = tick.Price
	if !e.Active() || !e.long.IsOpen() || e.flattening {
		return nil
	}

	if e.short.IsOpen() && e.short.Quantity.IsPositive() {
		e.lastPnL = e.combinedPnL(tick.Price)
		if e.lastPnL.IsPositive() {
			return e.flatten(ctx, domain.CloseReasonProfitLock)
		}
	}

	switch e.trailing.Observe(tick.Price) {
	case TrailArmed:
		return e.onTrailingArmed(ctx)
	case TrailRatcheted:
		e.metrics.TrailingStop(e.symbol, e.trailing.Stop().InexactFloat64())
		e.logger.Debug(ctx, "Trailing stop raised", map[string]interface{}{
			"symbol": e.symbol, "stop": e.trailing.Stop().String(), "price": tick.Price.String(),
		})
	case TrailTriggered:
		return e.flatten(ctx, domain.CloseReasonTrailingStop)
	}
	return nil
}

// combinedPnL nets both legs at price against the commissions paid on them, counted for entry and exit.
func (e *Engine) combinedPnL(price decimal.Decimal) decimal.Decimal {
	gross := e.long.UnrealizedPnL(price).Add(e.short.UnrealizedPnL(price))
	fees := e.commLong.Add(e.commShort).Mul(decimal.NewFromInt(2))
	return gross.Sub(fees)
}

func (e *Engine) onTrailingArmed(ctx context.Context) error {
	op := "onTrailingArmed"
	activation := e.trailing.Activation()
	if err := e.orders.CancelInProgress(ctx, e.strategy.ID, e.symbol, domain.OrderTypeLongTakeProfit); err != nil {
		e.logger.Warn(ctx, op+": take-profit not canceled", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
	}

	ts := e.newOrder(domain.OrderTypeLongTrailingStop, domain.Sell, domain.PositionSideLong, e.long.Quantity)
	ts.CallbackRate = e.strategy.Settings.Trail2
	ts.StopPrice = activation
	if _, err := e.orders.Submit(ctx, ts); err != nil {
		e.logger.Error(ctx, err, op+": exchange trailing stop not placed", map[string]interface{}{"symbol": e.symbol})
	}
	if err := e.ledger.SetActivationPrice(ctx, e.long, activation); err != nil {
		e.logger.Error(ctx, err, op+": activation price not saved", map[string]interface{}{"symbol": e.symbol})
	}

	e.metrics.TrailingStop(e.symbol, e.trailing.Stop().InexactFloat64())
	e.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": e.symbol, "activation": activation.String(), "stop": e.trailing.Stop().String(),
	})
	e.notifier.Notify(ctx, fmt.Sprintf("%s: trailing stop armed at %s, stop %s",
		e.symbol, activation.StringFixed(4), e.trailing.Stop().StringFixed(4)))
	return nil
}

// flatten closes both legs at market and completes the strategy. Only one flatten runs at a time;
// a partially failed flatten can be retried and skips legs already closed.
func (e *Engine) flatten(ctx context.Context, reason domain.CloseReason) error {
	op := "flatten"
	if e.flattening {
		return nil
	}
	e.flattening = true
	e.logger.Info(ctx, op+" started", map[string]interface{}{
		"symbol": e.symbol, "reason": reason, "price": e.lastPrice.String(), "pnl": e.lastPnL.String(),
	})

	if err := e.orders.CancelAll(ctx, e.strategy.ID, e.symbol); err != nil {
		e.logger.Error(ctx, err, op+": cancel open orders", map[string]interface{}{"symbol": e.symbol})
	}

	// a leg already closed on the exchange is booked, not closed again
	pair, err := e.exchange.GetPosition(ctx, e.symbol)
	if err != nil {
		e.logger.Warn(ctx, op+": exchange position not read, closing local quantities", map[string]interface{}{
			"symbol": e.symbol, "error": err.Error(),
		})
		pair = nil
	}

	total := decimal.Zero
	legs := []struct {
		side  domain.PositionSide
		close domain.OrderSide
	}{
		{domain.PositionSideShort, domain.Buy},
		{domain.PositionSideLong, domain.Sell},
	}
	for _, leg := range legs {
		p := e.position(leg.side)
		if !p.IsOpen() {
			continue
		}
		qty := p.Quantity
		if pair != nil {
			remote := pair.Side(leg.side).Quantity
			if remote.IsZero() {
				pnl := p.UnrealizedPnL(e.closeReference(ctx, leg.side))
				e.logger.Warn(ctx, op+": leg already flat on exchange", map[string]interface{}{
					"symbol": e.symbol, "side": leg.side, "pnl": pnl.String(),
				})
				total = total.Add(pnl)
				e.closePosition(ctx, leg.side, pnl)
				continue
			}
			qty = remote
		}
		filled, err := e.orders.Submit(ctx, e.newOrder(domain.OrderTypeShortMarket, leg.close, leg.side, qty))
		if err != nil {
			e.flattening = false
			return fmt.Errorf("%s failed: close %s: %w", op, leg.side, err)
		}
		pnl := p.UnrealizedPnL(e.priceOf(filled))
		total = total.Add(pnl)
		e.closePosition(ctx, leg.side, pnl)
	}

	e.trailing.Disarm()
	e.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": e.symbol, "reason": reason, "pnl": total.String()})
	e.complete(ctx, reason, total)
	return nil
}
