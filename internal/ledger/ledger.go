// Package ledger records orders and positions and applies exchange updates to them idempotently.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

// Ledger is the single writer of Order and Position records.
type Ledger struct {
	store  ports.Store
	logger ports.Logger
}

// New creates a Ledger over store.
func New(store ports.Store, logger ports.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Store exposes the underlying store for read-only callers.
func (l *Ledger) Store() ports.Store {
	return l.store
}

// --- Positions ---

// OpenPosition creates p unless (symbol, side) already has a non-CLOSED position,
// in which case the existing one is returned unchanged and created is false.
func (l *Ledger) OpenPosition(ctx context.Context, p *domain.Position) (pos *domain.Position, created bool, err error) {
	op := "OpenPosition"

	err = l.store.WithTx(ctx, func(tx ports.Store) error {
		existing, err := tx.FindOpenPosition(ctx, p.Symbol, p.PositionSide)
		if err != nil {
			return err
		}
		if existing != nil {
			pos = existing
			return nil
		}
		p.Status = domain.PositionOpen
		p.ClosedAt = time.Time{}
		if _, err := tx.CreatePosition(ctx, p); err != nil {
			return err
		}
		pos, created = p, true
		return nil
	})
	if errors.Is(err, ports.ErrDuplicateEntry) {
		existing, findErr := l.store.FindOpenPosition(ctx, p.Symbol, p.PositionSide)
		if findErr == nil && existing != nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s failed: %w", op, err)
	}
	if created {
		l.logger.Info(ctx, op+" successful", map[string]interface{}{
			"symbol": pos.Symbol, "side": pos.PositionSide, "qty": pos.Quantity.String(), "entry": pos.EntryPrice.String(),
		})
	}
	return pos, created, nil
}

// UpdatePosition stores a new quantity and prices for an open position and marks it UPDATED.
func (l *Ledger) UpdatePosition(ctx context.Context, p *domain.Position, qty, entry, breakEven decimal.Decimal) error {
	if !p.CanTransition(domain.PositionUpdated) {
		return nil
	}
	p.Quantity = qty.Abs()
	if entry.IsPositive() {
		p.SetPrices(entry, breakEven)
	}
	p.Status = domain.PositionUpdated
	if err := l.store.UpdatePosition(ctx, p); err != nil {
		return fmt.Errorf("UpdatePosition failed: %w", err)
	}
	return nil
}

// SetActivationPrice records the trailing activation price of a position.
func (l *Ledger) SetActivationPrice(ctx context.Context, p *domain.Position, price decimal.Decimal) error {
	if !p.IsOpen() || p.ActivationPrice.Equal(price) {
		return nil
	}
	p.ActivationPrice = price
	return l.store.UpdatePosition(ctx, p)
}

// ClosePosition marks p CLOSED with pnl. Closing an already CLOSED position is a no-op.
func (l *Ledger) ClosePosition(ctx context.Context, p *domain.Position, pnl decimal.Decimal) error {
	op := "ClosePosition"
	if p == nil || !p.CanTransition(domain.PositionClosed) {
		return nil
	}
	p.Status = domain.PositionClosed
	p.PnL = pnl
	p.ClosedAt = time.Now().UTC()
	if err := l.store.UpdatePosition(ctx, p); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	l.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": p.Symbol, "side": p.PositionSide, "pnl": pnl.String(),
	})
	return nil
}

// OpenPositionFor returns the open position of (symbol, side), or nil.
func (l *Ledger) OpenPositionFor(ctx context.Context, symbol string, side domain.PositionSide) (*domain.Position, error) {
	return l.store.FindOpenPosition(ctx, symbol, side)
}

// --- Orders ---

// RecordNew persists an order about to be submitted.
func (l *Ledger) RecordNew(ctx context.Context, o *domain.Order) error {
	o.Status = domain.OrderNew
	if _, err := l.store.CreateOrder(ctx, o); err != nil {
		return fmt.Errorf("RecordNew failed: %w", err)
	}
	return nil
}

// Save persists the mutable fields of an order.
func (l *Ledger) Save(ctx context.Context, o *domain.Order) error {
	return l.store.UpdateOrder(ctx, o)
}

// Transition moves o forward to next. Backward or terminal-to-anything moves are ignored.
func (l *Ledger) Transition(ctx context.Context, o *domain.Order, next domain.OrderStatus, exchangeStatus domain.ExchangeOrderStatus) (bool, error) {
	if !o.Status.CanTransition(next) {
		return false, nil
	}
	o.Status = next
	if exchangeStatus != "" {
		o.ExchangeStatus = exchangeStatus
	}
	if err := l.store.UpdateOrder(ctx, o); err != nil {
		return false, fmt.Errorf("Transition failed: %w", err)
	}
	return true, nil
}

// FindByEvent locates the local order an update refers to, by exchange id then client id.
func (l *Ledger) FindByEvent(ctx context.Context, ev *domain.OrderUpdate) (*domain.Order, error) {
	if ev.ExchangeOrderID != 0 {
		o, err := l.store.FindOrderByExchangeID(ctx, ev.Symbol, ev.ExchangeOrderID)
		if err != nil || o != nil {
			return o, err
		}
	}
	if ev.ClientOrderID != "" {
		return l.store.FindOrderByClientID(ctx, ev.ClientOrderID)
	}
	return nil, nil
}

// ApplyOrderUpdate folds an exchange order update into the matching local order.
// It returns the order (nil if unknown) and whether its local status changed.
// Re-applying an update already seen leaves the order untouched.
func (l *Ledger) ApplyOrderUpdate(ctx context.Context, ev *domain.OrderUpdate) (*domain.Order, bool, error) {
	op := "ApplyOrderUpdate"

	o, err := l.FindByEvent(ctx, ev)
	if err != nil {
		return nil, false, fmt.Errorf("%s failed: %w", op, err)
	}
	if o == nil {
		return nil, false, nil
	}

	changed := false
	if o.ExchangeOrderID == 0 && ev.ExchangeOrderID != 0 {
		o.ExchangeOrderID = ev.ExchangeOrderID
		changed = true
	}
	if ev.TradeID != 0 && ev.TradeID > o.LastTradeID {
		o.LastTradeID = ev.TradeID
		o.Commission = o.Commission.Add(ev.Commission)
		if ev.CommissionAsset != "" {
			o.CommissionAsset = ev.CommissionAsset
		}
		o.RealizedPnL = o.RealizedPnL.Add(ev.RealizedPnL)
		changed = true
	}

	transitioned := false
	if !o.Status.IsTerminal() {
		if ev.AvgPrice.IsPositive() {
			o.AvgPrice = ev.AvgPrice
		}
		if ev.CumFilledQty.IsPositive() {
			o.ExecutedQty = ev.CumFilledQty
		}
		next, ok := ev.Status.LocalStatus()
		if !ok {
			l.logger.Warn(ctx, op+": unrecognized exchange status", map[string]interface{}{
				"symbol": ev.Symbol, "orderID": ev.ExchangeOrderID, "status": ev.Status,
			})
		} else if o.Status.CanTransition(next) {
			o.Status = next
			transitioned = true
		}
		o.ExchangeStatus = ev.Status
		changed = true
	}

	if !changed {
		return o, false, nil
	}
	if err := l.store.UpdateOrder(ctx, o); err != nil {
		return nil, false, fmt.Errorf("%s failed: %w", op, err)
	}
	if transitioned {
		l.logger.Debug(ctx, op+": order transitioned", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "status": o.Status, "orderID": o.ExchangeOrderID,
		})
	}
	return o, transitioned, nil
}

// AdoptOrder records an order this process did not place, classifying its role from exchange fields.
func (l *Ledger) AdoptOrder(ctx context.Context, strategyID int64, leverage int, ev *domain.OrderUpdate) (*domain.Order, error) {
	status, ok := ev.Status.LocalStatus()
	if !ok {
		status = domain.OrderInProgress
	}
	clientID := ev.ClientOrderID
	if clientID == "" {
		clientID = "adopted-" + strconv.FormatInt(ev.ExchangeOrderID, 10)
	}
	o := &domain.Order{
		StrategyID:      strategyID,
		Symbol:          ev.Symbol,
		Side:            ev.Side,
		PositionSide:    ev.PositionSide,
		Type:            domain.ClassifyRole(ev.OrderKind, ev.Side, ev.PositionSide),
		Price:           ev.Price,
		StopPrice:       ev.StopPrice,
		Quantity:        ev.OrigQty,
		Leverage:        leverage,
		ExchangeOrderID: ev.ExchangeOrderID,
		ClientOrderID:   clientID,
		Status:          status,
		ExchangeStatus:  ev.Status,
		AvgPrice:        ev.AvgPrice,
		ExecutedQty:     ev.CumFilledQty,
		Commission:      ev.Commission,
		CommissionAsset: ev.CommissionAsset,
		RealizedPnL:     ev.RealizedPnL,
		LastTradeID:     ev.TradeID,
	}
	if _, err := l.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("AdoptOrder failed: %w", err)
	}
	l.logger.Warn(ctx, "AdoptOrder: foreign order adopted", map[string]interface{}{
		"symbol": o.Symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "clientOrderID": o.ClientOrderID,
	})
	return o, nil
}

// LastFilled returns the most recent FILLED order of a role, or nil.
func (l *Ledger) LastFilled(ctx context.Context, strategyID int64, typ domain.OrderType) (*domain.Order, error) {
	return l.store.FindLastFilledOrder(ctx, strategyID, typ)
}

// LastClosingFill returns the most recent FILLED order that reduced the given position side, or nil.
func (l *Ledger) LastClosingFill(ctx context.Context, strategyID int64, side domain.PositionSide) (*domain.Order, error) {
	filled, err := l.store.FindOrdersByStatus(ctx, strategyID, "", domain.OrderFilled)
	if err != nil {
		return nil, fmt.Errorf("LastClosingFill failed: %w", err)
	}
	closing := domain.Sell
	if side == domain.PositionSideShort {
		closing = domain.Buy
	}
	var last *domain.Order
	for _, o := range filled {
		if o.PositionSide != side || o.Side != closing {
			continue
		}
		if last == nil || !o.UpdatedAt.Before(last.UpdatedAt) {
			last = o
		}
	}
	return last, nil
}

// InProgress lists the resting orders of a role ("" = every role).
func (l *Ledger) InProgress(ctx context.Context, strategyID int64, typ domain.OrderType) ([]*domain.Order, error) {
	return l.store.FindOrdersByStatus(ctx, strategyID, typ, domain.OrderInProgress)
}

// Unresolved lists orders whose final exchange status is not yet known locally.
func (l *Ledger) Unresolved(ctx context.Context, strategyID int64) ([]*domain.Order, error) {
	fresh, err := l.store.FindOrdersByStatus(ctx, strategyID, "", domain.OrderNew)
	if err != nil {
		return nil, err
	}
	resting, err := l.store.FindOrdersByStatus(ctx, strategyID, "", domain.OrderInProgress)
	if err != nil {
		return nil, err
	}
	return append(fresh, resting...), nil
}

// CountFilled counts FILLED orders of a role.
func (l *Ledger) CountFilled(ctx context.Context, strategyID int64, typ domain.OrderType) (int, error) {
	filled, err := l.store.FindOrdersByStatus(ctx, strategyID, typ, domain.OrderFilled)
	if err != nil {
		return 0, err
	}
	return len(filled), nil
}

// CommissionSince sums commissions of a side's filled orders updated at or after since.
func (l *Ledger) CommissionSince(ctx context.Context, strategyID int64, side domain.PositionSide, since time.Time) (decimal.Decimal, error) {
	orders, err := l.store.FindOrdersByStrategy(ctx, strategyID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range orders {
		if o.PositionSide == side && o.Status == domain.OrderFilled && !o.UpdatedAt.Before(since) {
			total = total.Add(o.Commission)
		}
	}
	return total, nil
}

// HedgeLosses sums the realized losses of filled hedge stop-loss orders as a positive amount.
func (l *Ledger) HedgeLosses(ctx context.Context, strategyID int64) (decimal.Decimal, error) {
	stops, err := l.store.FindOrdersByStatus(ctx, strategyID, domain.OrderTypeShortStopLoss, domain.OrderFilled)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range stops {
		if o.RealizedPnL.IsNegative() {
			total = total.Add(o.RealizedPnL.Abs())
		}
	}
	return total, nil
}

// --- Strategies ---

// ActiveStrategy returns the ACTIVE strategy of symbol, or nil.
func (l *Ledger) ActiveStrategy(ctx context.Context, symbol string) (*domain.StrategyInstance, error) {
	return l.store.FindActiveStrategy(ctx, symbol)
}

// SetStrategyStatus moves a strategy to status. Final strategies are left untouched.
func (l *Ledger) SetStrategyStatus(ctx context.Context, s *domain.StrategyInstance, status domain.StrategyStatus, reason string) error {
	if s.Status.IsFinal() || s.Status == status {
		return nil
	}
	if err := l.store.UpdateStrategyStatus(ctx, s.ID, status, reason); err != nil {
		return fmt.Errorf("SetStrategyStatus failed: %w", err)
	}
	s.Status = status
	s.StatusReason = reason
	l.logger.Info(ctx, "Strategy status changed", map[string]interface{}{
		"strategyID": s.ID, "symbol": s.Symbol, "status": status, "reason": reason,
	})
	return nil
}
