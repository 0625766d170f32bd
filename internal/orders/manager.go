// Package orders places and cancels exchange orders and keeps the ledger in step with the results.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ledger"
	"gridHedgeBot/internal/ports"
	"gridHedgeBot/internal/precision"
	"gridHedgeBot/internal/retry"
)

var (
	minCallbackRate = decimal.RequireFromString("0.1")
	maxCallbackRate = decimal.NewFromInt(10)
)

// PrecisionSource resolves symbol precision.
type PrecisionSource interface {
	Get(ctx context.Context, symbol string) (domain.SymbolPrecision, error)
}

// Manager submits and cancels orders on behalf of the engine.
type Manager struct {
	exchange  ports.ExchangeClient
	ledger    *ledger.Ledger
	precision PrecisionSource
	metrics   ports.Metrics
	logger    ports.Logger

	persistPolicy retry.Policy
	newClientID   func() string
	inflight      sync.WaitGroup
}

// Option customizes a Manager.
type Option func(*Manager)

// WithPersistPolicy sets how ledger writes are retried after the exchange accepted an order.
func WithPersistPolicy(p retry.Policy) Option {
	return func(m *Manager) { m.persistPolicy = p }
}

// WithClientIDGenerator replaces the uuid client order id generator.
func WithClientIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newClientID = fn }
}

// NewManager creates an order Manager.
func NewManager(exchange ports.ExchangeClient, l *ledger.Ledger, prec PrecisionSource, metrics ports.Metrics, logger ports.Logger, opts ...Option) *Manager {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	m := &Manager{
		exchange:  exchange,
		ledger:    l,
		precision: prec,
		metrics:   metrics,
		logger:    logger,
		persistPolicy: retry.Policy{
			Attempts:  3,
			Delay:     200 * time.Millisecond,
			Retryable: func(error) bool { return true },
		},
		newClientID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wait blocks until every in-flight submission has reached a recorded status.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// ClampCallbackRate limits a trailing callback rate to the exchange range [0.1, 10].
func ClampCallbackRate(rate decimal.Decimal) decimal.Decimal {
	if rate.LessThan(minCallbackRate) {
		return minCallbackRate
	}
	if rate.GreaterThan(maxCallbackRate) {
		return maxCallbackRate
	}
	return rate
}

// Submit places o on the exchange and records it. The returned order carries the
// recorded status: FILLED for immediate fills, IN_PROGRESS for resting orders.
// A rejected order is recorded CANCELED and the error wraps ports.ErrExchangeRejected.
func (m *Manager) Submit(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	op := "Submit"
	m.inflight.Add(1)
	defer m.inflight.Done()
	ctx = context.WithoutCancel(ctx)

	if o.Type.SingleInstance() {
		if err := m.CancelInProgress(ctx, o.StrategyID, o.Symbol, o.Type); err != nil {
			m.logger.Warn(ctx, op+": could not cancel previous order of role", map[string]interface{}{
				"symbol": o.Symbol, "type": o.Type, "error": err.Error(),
			})
		}
	}

	prec, err := m.precision.Get(ctx, o.Symbol)
	if err != nil {
		m.metrics.OrderSubmitted(o.Symbol, o.Type, err)
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	o.Quantity = precision.Quantize(o.Quantity, prec.QuantityPrecision)
	o.Price = precision.Quantize(o.Price, prec.PricePrecision)
	o.StopPrice = precision.Quantize(o.StopPrice, prec.PricePrecision)
	if o.Type == domain.OrderTypeLongTrailingStop {
		o.CallbackRate = ClampCallbackRate(o.CallbackRate)
	}
	if !o.Quantity.IsPositive() {
		err := fmt.Errorf("%w: quantity truncates to zero at precision %d", ports.ErrInvalidRequest, prec.QuantityPrecision)
		m.metrics.OrderSubmitted(o.Symbol, o.Type, err)
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	o.ClientOrderID = m.newClientID()
	if err := m.ledger.RecordNew(ctx, o); err != nil {
		m.metrics.OrderSubmitted(o.Symbol, o.Type, err)
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	req := BuildRequest(o, prec)
	res, err := m.exchange.CreateOrder(ctx, req)
	if errors.Is(err, ports.ErrDuplicateClientID) {
		res, err = m.exchange.GetOrder(ctx, o.Symbol, 0, o.ClientOrderID)
	}
	if err != nil {
		return m.handleCreateFailure(ctx, o, err)
	}

	m.fold(o, res)
	m.metrics.OrderSubmitted(o.Symbol, o.Type, nil)
	if err := m.persist(ctx, o); err != nil {
		return o, fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":   o.Symbol,
		"type":     o.Type,
		"side":     o.Side,
		"qty":      req.Quantity,
		"price":    req.Price,
		"stop":     req.StopPrice,
		"orderID":  o.ExchangeOrderID,
		"status":   o.Status,
		"strategy": o.StrategyID,
	})
	return o, nil
}

func (m *Manager) handleCreateFailure(ctx context.Context, o *domain.Order, createErr error) (*domain.Order, error) {
	op := "Submit"
	m.metrics.OrderSubmitted(o.Symbol, o.Type, createErr)

	if isRejection(createErr) {
		if _, err := m.ledger.Transition(ctx, o, domain.OrderCanceled, domain.ExchangeStatusRejected); err != nil {
			m.logger.Error(ctx, err, op+": failed to record rejection", map[string]interface{}{"clientOrderID": o.ClientOrderID})
		}
		m.logger.Warn(ctx, op+": order rejected", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "qty": o.Quantity.String(), "price": o.Price.String(),
			"stop": o.StopPrice.String(), "error": createErr.Error(),
		})
		return o, fmt.Errorf("%s failed: %w: %w", op, ports.ErrExchangeRejected, createErr)
	}

	// The request may or may not have reached the exchange.
	res, err := m.exchange.GetOrder(ctx, o.Symbol, 0, o.ClientOrderID)
	switch {
	case err == nil:
		m.fold(o, res)
		if perr := m.persist(ctx, o); perr != nil {
			return o, fmt.Errorf("%s failed: %w", op, perr)
		}
		m.logger.Warn(ctx, op+": order recovered after failed create", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "status": o.Status,
		})
		return o, nil
	case errors.Is(err, ports.ErrOrderNotFound):
		if _, terr := m.ledger.Transition(ctx, o, domain.OrderCanceled, ""); terr != nil {
			m.logger.Error(ctx, terr, op+": failed to record unplaced order", map[string]interface{}{"clientOrderID": o.ClientOrderID})
		}
	default:
		m.logger.Error(ctx, err, op+": order outcome unknown, left NEW for resolution", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "clientOrderID": o.ClientOrderID,
		})
	}
	m.logger.Error(ctx, createErr, op+" failed", map[string]interface{}{"symbol": o.Symbol, "type": o.Type})
	return o, fmt.Errorf("%s failed: %w", op, createErr)
}

func isRejection(err error) bool {
	return errors.Is(err, ports.ErrExchangeRejected) ||
		errors.Is(err, ports.ErrOrderWouldTrigger) ||
		errors.Is(err, ports.ErrInvalidRequest) ||
		errors.Is(err, ports.ErrInsufficientFunds)
}

// fold copies an exchange result onto o and advances its local status.
func (m *Manager) fold(o *domain.Order, res *ports.OrderResult) {
	if res == nil {
		return
	}
	if res.ExchangeOrderID != 0 {
		o.ExchangeOrderID = res.ExchangeOrderID
	}
	if res.AvgPrice.IsPositive() {
		o.AvgPrice = res.AvgPrice
	}
	if res.ExecutedQty.IsPositive() {
		o.ExecutedQty = res.ExecutedQty
	}
	o.ExchangeStatus = res.Status
	next, ok := res.Status.LocalStatus()
	if !ok {
		next = domain.OrderInProgress
	}
	if o.Status.CanTransition(next) {
		o.Status = next
	}
}

// persist writes o, retrying, and falls back to re-reading the order from the exchange.
func (m *Manager) persist(ctx context.Context, o *domain.Order) error {
	op := "persistOrder"
	err := retry.Do(ctx, m.persistPolicy, op, m.logger, func(ctx context.Context) error {
		return m.ledger.Save(ctx, o)
	})
	if err == nil {
		return nil
	}

	res, qerr := m.exchange.GetOrder(ctx, o.Symbol, o.ExchangeOrderID, o.ClientOrderID)
	if qerr == nil {
		m.fold(o, res)
	}
	if err := m.ledger.Save(ctx, o); err != nil {
		m.logger.Error(ctx, err, op+": order is live on the exchange but not recorded", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "clientOrderID": o.ClientOrderID,
		})
		return err
	}
	return nil
}

// BuildRequest maps an order role onto the exchange order kind and its required parameters.
func BuildRequest(o *domain.Order, prec domain.SymbolPrecision) ports.OrderRequest {
	req := ports.OrderRequest{
		Symbol:        o.Symbol,
		ClientOrderID: o.ClientOrderID,
		Side:          o.Side,
		PositionSide:  o.PositionSide,
		Kind:          domain.KindFor(o.Type),
		Quantity:      precision.Format(o.Quantity, prec.QuantityPrecision),
	}
	switch req.Kind {
	case domain.KindLimit:
		req.Price = precision.Format(o.Price, prec.PricePrecision)
		req.TimeInForce = "GTC"
	case domain.KindStop:
		req.Price = precision.Format(o.Price, prec.PricePrecision)
		req.StopPrice = precision.Format(o.StopPrice, prec.PricePrecision)
		req.TimeInForce = "GTC"
	case domain.KindStopMarket:
		req.StopPrice = precision.Format(o.StopPrice, prec.PricePrecision)
	case domain.KindTrailingStopMarket:
		req.CallbackRate = precision.Format(ClampCallbackRate(o.CallbackRate), 1)
	}
	return req
}

// Cancel cancels a resting order. An order already gone from the exchange is not an error:
// its final status arrives as an event.
func (m *Manager) Cancel(ctx context.Context, o *domain.Order) error {
	op := "Cancel"
	if o.Status.IsTerminal() {
		return nil
	}
	if o.ExchangeOrderID == 0 {
		res, err := m.exchange.GetOrder(ctx, o.Symbol, 0, o.ClientOrderID)
		if errors.Is(err, ports.ErrOrderNotFound) {
			_, terr := m.ledger.Transition(ctx, o, domain.OrderCanceled, "")
			return terr
		}
		if err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		o.ExchangeOrderID = res.ExchangeOrderID
		if err := m.ledger.Save(ctx, o); err != nil {
			return fmt.Errorf("%s failed: %w", op, err)
		}
		// a final order is settled by its event
		if st, ok := res.Status.LocalStatus(); ok && st.IsTerminal() {
			return nil
		}
	}

	err := m.exchange.CancelOrder(ctx, o.Symbol, o.ExchangeOrderID)
	if errors.Is(err, ports.ErrOrderNotFound) {
		m.logger.Debug(ctx, op+": order already final on exchange", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "reason": ports.ErrStaleOrRaceLoss.Error(),
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if _, err := m.ledger.Transition(ctx, o, domain.OrderCanceled, domain.ExchangeStatusCanceled); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": o.Symbol, "type": o.Type, "orderID": o.ExchangeOrderID})
	return nil
}

// CancelInProgress cancels every resting order of a role for a strategy.
func (m *Manager) CancelInProgress(ctx context.Context, strategyID int64, symbol string, typ domain.OrderType) error {
	resting, err := m.ledger.InProgress(ctx, strategyID, typ)
	if err != nil {
		return fmt.Errorf("CancelInProgress failed: %w", err)
	}
	var errs []error
	for _, o := range resting {
		if o.Symbol != symbol {
			continue
		}
		if err := m.Cancel(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CancelAll cancels every open order of the symbol on the exchange. Each resting order of the
// strategy is then looked up and marked CANCELED only when the exchange confirms it; an order
// that filled before the cancel keeps its status until its fill event arrives.
func (m *Manager) CancelAll(ctx context.Context, strategyID int64, symbol string) error {
	op := "CancelAll"
	if err := m.exchange.CancelAllOpenOrders(ctx, symbol); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	resting, err := m.ledger.InProgress(ctx, strategyID, "")
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	canceled := 0
	for _, o := range resting {
		if o.Symbol != symbol {
			continue
		}
		res, err := m.exchange.GetOrder(ctx, o.Symbol, o.ExchangeOrderID, o.ClientOrderID)
		switch {
		case errors.Is(err, ports.ErrOrderNotFound) && o.ExchangeOrderID == 0:
			if _, terr := m.ledger.Transition(ctx, o, domain.OrderCanceled, ""); terr != nil {
				return fmt.Errorf("%s failed: %w", op, terr)
			}
			canceled++
		case err != nil:
			m.logger.Warn(ctx, op+": order state unknown, left for reconciliation", map[string]interface{}{
				"symbol": symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "error": err.Error(),
			})
		case res.Status == domain.ExchangeStatusCanceled || res.Status == domain.ExchangeStatusRejected:
			if _, terr := m.ledger.Transition(ctx, o, domain.OrderCanceled, res.Status); terr != nil {
				return fmt.Errorf("%s failed: %w", op, terr)
			}
			canceled++
		default:
			m.logger.Warn(ctx, op+": order not canceled on exchange, waiting for its update", map[string]interface{}{
				"symbol": symbol, "type": o.Type, "orderID": o.ExchangeOrderID, "status": res.Status,
			})
		}
	}
	m.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "canceled": canceled, "resting": len(resting)})
	return nil
}

// Resolve asks the exchange for the current state of an unfinished order and returns it as an
// update for the regular event path. Orders the exchange never received are marked CANCELED
// and nil is returned.
func (m *Manager) Resolve(ctx context.Context, o *domain.Order) (*domain.OrderUpdate, error) {
	op := "Resolve"
	res, err := m.exchange.GetOrder(ctx, o.Symbol, o.ExchangeOrderID, o.ClientOrderID)
	if errors.Is(err, ports.ErrOrderNotFound) && o.ExchangeOrderID == 0 {
		if _, terr := m.ledger.Transition(ctx, o, domain.OrderCanceled, ""); terr != nil {
			return nil, fmt.Errorf("%s failed: %w", op, terr)
		}
		m.logger.Warn(ctx, op+": order never reached the exchange", map[string]interface{}{
			"symbol": o.Symbol, "type": o.Type, "clientOrderID": o.ClientOrderID,
		})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	return &domain.OrderUpdate{
		Symbol:          o.Symbol,
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: res.ExchangeOrderID,
		Side:            o.Side,
		PositionSide:    o.PositionSide,
		OrderKind:       domain.KindFor(o.Type),
		ExecutionType:   "RESOLVE",
		Status:          res.Status,
		OrigQty:         o.Quantity,
		Price:           o.Price,
		AvgPrice:        res.AvgPrice,
		StopPrice:       o.StopPrice,
		CumFilledQty:    res.ExecutedQty,
		Time:            res.UpdateTime,
	}, nil
}
