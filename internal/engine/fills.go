package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/grid"
	"gridHedgeBot/internal/ports"
)

// OnOrderUpdate folds an order update into the ledger and reacts to fresh fills.
func (e *Engine) OnOrderUpdate(ctx context.Context, ev *domain.OrderUpdate) error {
	op := "OnOrderUpdate"
	o, transitioned, err := e.ledger.ApplyOrderUpdate(ctx, ev)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	if o == nil {
		if !e.Active() || ev.Status != domain.ExchangeStatusNew {
			e.logger.Debug(ctx, op+": update for unknown order ignored", map[string]interface{}{
				"symbol": ev.Symbol, "orderID": ev.ExchangeOrderID, "status": ev.Status,
			})
			return nil
		}
		if _, err := e.ledger.AdoptOrder(ctx, e.strategy.ID, e.strategy.Open.Leverage, ev); err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		return nil
	}

	if !e.Active() || o.StrategyID != e.strategy.ID {
		return nil
	}
	if ev.TradeID != 0 {
		e.refreshCommissions(ctx)
	}
	if transitioned && o.Status == domain.OrderFilled {
		return e.onFilled(ctx, o)
	}
	return nil
}

// onFilled dispatches a freshly filled order by role.
func (e *Engine) onFilled(ctx context.Context, o *domain.Order) error {
	e.logger.Info(ctx, "Order filled", map[string]interface{}{
		"symbol": e.symbol, "type": o.Type, "price": o.FillPrice().String(), "qty": o.FilledQuantity().String(),
	})
	switch {
	case o.Type == domain.OrderTypeLongMarket:
		return e.onEntryFilled(ctx, o)
	case o.Type == domain.OrderTypeLongLimit:
		return e.onGridFill(ctx, o)
	case o.Type.IsHedgeOpen(),
		o.Type == domain.OrderTypeShortMarket && o.Side == domain.Sell && o.PositionSide == domain.PositionSideShort:
		return e.onHedgeOpened(ctx, o)
	case o.Type == domain.OrderTypeShortStopLoss:
		return e.onHedgeStopped(ctx, o)
	case o.Type == domain.OrderTypeLongTakeProfit:
		return e.exit(ctx, o, domain.CloseReasonTakeProfit)
	case o.Type == domain.OrderTypeLongTrailingStop:
		return e.exit(ctx, o, domain.CloseReasonTrailingStop)
	}
	return nil
}

func (e *Engine) onEntryFilled(ctx context.Context, o *domain.Order) error {
	op := "onEntryFilled"
	s := e.strategy
	if _, err := e.syncPosition(ctx, domain.PositionSideLong, o.FilledQuantity(), o.FillPrice()); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	plan, err := grid.New(s.Settings, s.Open.Amount, s.Open.Leverage, o.FillPrice(), e.cfg.FeePercent)
	if err != nil {
		return e.fail(ctx, s, err)
	}
	e.plan = plan

	tp := e.newOrder(domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, e.long.Quantity)
	tp.Price = plan.TakeProfitPrice
	if _, err := e.orders.Submit(ctx, tp); err != nil {
		e.logger.Error(ctx, err, op+": take-profit not placed", map[string]interface{}{"symbol": e.symbol})
	}
	return e.advanceLadder(ctx, 0)
}

func (e *Engine) onGridFill(ctx context.Context, o *domain.Order) error {
	op := "onGridFill"
	qty := o.FilledQuantity()
	if e.long.IsOpen() {
		qty = qty.Add(e.long.Quantity)
	}
	long, err := e.syncPosition(ctx, domain.PositionSideLong, qty, o.FillPrice())
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	if !e.trailing.Armed() {
		tp := e.newOrder(domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, long.Quantity)
		tp.Price = grid.TakeProfitFromBreakEven(long.AdjustedBreakEvenPrice, e.strategy.Settings.TP)
		if _, err := e.orders.Submit(ctx, tp); err != nil {
			e.logger.Error(ctx, err, op+": take-profit not moved", map[string]interface{}{"symbol": e.symbol})
		}
	}

	filled, err := e.ledger.CountFilled(ctx, e.strategy.ID, domain.OrderTypeLongLimit)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return e.advanceLadder(ctx, filled)
}

// advanceLadder places ladder step k and, on the last step, the hedge stop-open.
func (e *Engine) advanceLadder(ctx context.Context, k int) error {
	if e.plan == nil || k >= e.plan.Steps() {
		return nil
	}
	limit := e.newOrder(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, e.plan.MartingaleOrders[k])
	limit.Price = e.plan.LongOrders[k]
	limit.OrderNumber = k
	if _, err := e.orders.Submit(ctx, limit); err != nil {
		return fmt.Errorf("advanceLadder failed at step %d: %w", k, err)
	}
	if k == e.plan.Steps()-1 {
		price := grid.ShortPriceFor(e.plan.LongOrders[k], e.strategy.Settings.OffsetShort)
		return e.placeHedgeOpen(ctx, price, grid.ShortAmountFor(e.hedgeMargin, e.strategy.Open.Leverage, price))
	}
	return nil
}

// placeHedgeOpen rests a stop-market short entry, or opens at market when the stop would trigger at once.
func (e *Engine) placeHedgeOpen(ctx context.Context, price, qty decimal.Decimal) error {
	op := "placeHedgeOpen"
	stop := e.newOrder(domain.OrderTypeShortStopOpen, domain.Sell, domain.PositionSideShort, qty)
	stop.StopPrice = price
	_, err := e.orders.Submit(ctx, stop)
	if err == nil {
		e.logger.Info(ctx, op+" successful", map[string]interface{}{
			"symbol": e.symbol, "stopPrice": price.String(), "qty": qty.String(),
		})
		return nil
	}
	if !errors.Is(err, ports.ErrOrderWouldTrigger) {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	e.logger.Warn(ctx, op+": stop would trigger, opening hedge at market", map[string]interface{}{
		"symbol": e.symbol, "stopPrice": price.String(),
	})
	mkt, err := e.orders.Submit(ctx, e.newOrder(domain.OrderTypeShortMarket, domain.Sell, domain.PositionSideShort, qty))
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if mkt.Status == domain.OrderFilled {
		return e.onFilled(ctx, mkt)
	}
	return nil
}

func (e *Engine) onHedgeOpened(ctx context.Context, o *domain.Order) error {
	op := "onHedgeOpened"
	if _, err := e.syncPosition(ctx, domain.PositionSideShort, o.FilledQuantity(), o.FillPrice()); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	sl := e.newOrder(domain.OrderTypeShortStopLoss, domain.Buy, domain.PositionSideShort, o.FilledQuantity())
	sl.StopPrice = grid.StopLossFor(o.FillPrice(), e.strategy.Settings.SLShort)
	if _, err := e.orders.Submit(ctx, sl); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	e.notifier.Notify(ctx, fmt.Sprintf("%s: hedge opened %s @ %s, stop-loss %s",
		e.symbol, o.FilledQuantity(), o.FillPrice(), sl.StopPrice))
	return nil
}

// onHedgeStopped books the hedge loss and re-opens the hedge lower while margin remains.
func (e *Engine) onHedgeStopped(ctx context.Context, o *domain.Order) error {
	op := "onHedgeStopped"
	pnl := o.RealizedPnL
	if pnl.IsZero() {
		pnl = e.realizedFromTrades(ctx, o)
	}
	if pnl.IsNegative() {
		e.hedgeMargin = e.hedgeMargin.Sub(pnl.Abs())
	}
	e.closePosition(ctx, domain.PositionSideShort, pnl)
	e.notifier.Notify(ctx, fmt.Sprintf("%s: hedge stopped out, pnl %s, margin left %s",
		e.symbol, pnl.StringFixed(4), e.hedgeMargin.StringFixed(4)))

	lev := decimal.NewFromInt(int64(e.strategy.Open.Leverage))
	if !e.hedgeMargin.Mul(lev).GreaterThan(e.cfg.MinHedgeNotional) {
		e.logger.Warn(ctx, op+": hedge margin exhausted", map[string]interface{}{
			"symbol": e.symbol, "margin": e.hedgeMargin.String(),
		})
		e.notifier.Notify(ctx, fmt.Sprintf("%s: hedge margin exhausted, no further hedge", e.symbol))
		return nil
	}

	prev, err := e.lastHedgeOpenPrice(ctx)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if !prev.IsPositive() {
		prev = o.FillPrice()
	}
	price := grid.NextHedgePrice(prev, e.strategy.Settings.OffsetPluse)
	return e.placeHedgeOpen(ctx, price, grid.ShortAmountFor(e.hedgeMargin, e.strategy.Open.Leverage, price))
}

func (e *Engine) realizedFromTrades(ctx context.Context, o *domain.Order) decimal.Decimal {
	if o.ExchangeOrderID == 0 {
		return decimal.Zero
	}
	trades, err := e.exchange.GetAccountTrades(ctx, e.symbol, o.ExchangeOrderID)
	if err != nil {
		e.logger.Warn(ctx, "realizedFromTrades failed", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
		return decimal.Zero
	}
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.RealizedPnL)
	}
	return total
}

// lastHedgeOpenPrice returns the fill price of the most recent hedge entry.
func (e *Engine) lastHedgeOpenPrice(ctx context.Context) (decimal.Decimal, error) {
	var last *domain.Order
	for _, typ := range []domain.OrderType{domain.OrderTypeShortStopOpen, domain.OrderTypeShortLimit, domain.OrderTypeShortMarket} {
		o, err := e.ledger.LastFilled(ctx, e.strategy.ID, typ)
		if err != nil {
			return decimal.Zero, err
		}
		if o == nil || o.Side != domain.Sell {
			continue
		}
		if last == nil || o.UpdatedAt.After(last.UpdatedAt) {
			last = o
		}
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.FillPrice(), nil
}

// exit closes the strategy after the long was taken out by a take-profit or trailing stop.
func (e *Engine) exit(ctx context.Context, o *domain.Order, reason domain.CloseReason) error {
	op := "exit"
	if e.flattening {
		return nil
	}
	e.flattening = true
	if err := e.orders.CancelAll(ctx, e.strategy.ID, e.symbol); err != nil {
		e.logger.Error(ctx, err, op+": cancel remaining orders", map[string]interface{}{"symbol": e.symbol})
	}

	fill := o.FillPrice()
	total := decimal.Zero
	if e.short.IsOpen() {
		closeShort, err := e.orders.Submit(ctx, e.newOrder(domain.OrderTypeShortMarket, domain.Buy, domain.PositionSideShort, e.short.Quantity))
		if err != nil {
			e.flattening = false
			return fmt.Errorf("%s failed: close hedge: %w", op, err)
		}
		pnl := e.short.UnrealizedPnL(e.priceOf(closeShort))
		total = total.Add(pnl)
		e.closePosition(ctx, domain.PositionSideShort, pnl)
	}
	if e.long.IsOpen() {
		pnl := e.long.UnrealizedPnL(fill)
		total = total.Add(pnl)
		e.closePosition(ctx, domain.PositionSideLong, pnl)
	}
	e.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": e.symbol, "reason": reason, "pnl": total.String()})
	e.complete(ctx, reason, total)
	return nil
}

// priceOf returns the fill price of o, or the last trade price when the exchange did not report one.
func (e *Engine) priceOf(o *domain.Order) decimal.Decimal {
	if p := o.FillPrice(); p.IsPositive() {
		return p
	}
	return e.lastPrice
}
