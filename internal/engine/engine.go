// Package engine holds the per-symbol position and hedge state machine.
package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/grid"
	"gridHedgeBot/internal/ledger"
	"gridHedgeBot/internal/ports"
)

// OrderManager is the order placement capability the engine drives.
type OrderManager interface {
	Submit(ctx context.Context, o *domain.Order) (*domain.Order, error)
	Cancel(ctx context.Context, o *domain.Order) error
	CancelInProgress(ctx context.Context, strategyID int64, symbol string, typ domain.OrderType) error
	CancelAll(ctx context.Context, strategyID int64, symbol string) error
	Resolve(ctx context.Context, o *domain.Order) (*domain.OrderUpdate, error)
}

// Config holds engine constants.
type Config struct {
	FeePercent       decimal.Decimal // added to tp for the initial take-profit
	MinHedgeNotional decimal.Decimal // hedge re-open threshold for remaining margin * leverage
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		FeePercent:       grid.DefaultFeePercent,
		MinHedgeNotional: decimal.NewFromInt(11),
	}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Exchange ports.ExchangeClient
	Orders   OrderManager
	Ledger   *ledger.Ledger
	Notifier ports.Notifier
	Metrics  ports.Metrics
	Logger   ports.Logger
}

// Engine owns the trading state of one symbol. It is not safe for concurrent use:
// the symbol's actor is its only caller.
type Engine struct {
	symbol   string
	cfg      Config
	exchange ports.ExchangeClient
	orders   OrderManager
	ledger   *ledger.Ledger
	notifier ports.Notifier
	metrics  ports.Metrics
	logger   ports.Logger

	strategy    *domain.StrategyInstance
	plan        *grid.Plan
	long        *domain.Position
	short       *domain.Position
	trailing    Trailing
	hedgeMargin decimal.Decimal
	commLong    decimal.Decimal
	commShort   decimal.Decimal
	lastPrice   decimal.Decimal
	lastPnL     decimal.Decimal
	flattening  bool
}

// New creates the engine of symbol.
func New(symbol string, deps Deps, cfg Config) *Engine {
	if deps.Notifier == nil {
		deps.Notifier = ports.NopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}
	return &Engine{
		symbol:   symbol,
		cfg:      cfg,
		exchange: deps.Exchange,
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
}

// Symbol returns the symbol this engine trades.
func (e *Engine) Symbol() string { return e.symbol }

// State is a read-only view of the runtime state.
type State struct {
	StrategyID   int64
	Armed        bool
	TrailingStop decimal.Decimal
	Activation   decimal.Decimal
	HedgeMargin  decimal.Decimal
	LastPrice    decimal.Decimal
	LastPnL      decimal.Decimal
	Long         *domain.Position
	Short        *domain.Position
}

// Snapshot returns the current runtime state.
func (e *Engine) Snapshot() State {
	st := State{
		Armed:        e.trailing.Armed(),
		TrailingStop: e.trailing.Stop(),
		Activation:   e.trailing.Activation(),
		HedgeMargin:  e.hedgeMargin,
		LastPrice:    e.lastPrice,
		LastPnL:      e.lastPnL,
		Long:         e.long,
		Short:        e.short,
	}
	if e.strategy != nil {
		st.StrategyID = e.strategy.ID
	}
	return st
}

// Active reports whether a strategy is currently running.
func (e *Engine) Active() bool {
	return e.strategy != nil && !e.strategy.Status.IsFinal()
}

// Start activates a PENDING strategy: funds check, market entry, take-profit and first ladder step.
func (e *Engine) Start(ctx context.Context, s *domain.StrategyInstance) error {
	op := "Start"
	if e.Active() {
		return e.fail(ctx, s, fmt.Errorf("%w: strategy %d is still running", ports.ErrPositionAlreadyOpen, e.strategy.ID))
	}
	if err := grid.Validate(s.Settings); err != nil {
		return e.fail(ctx, s, err)
	}

	price, err := e.exchange.GetLastPrice(ctx, s.Symbol)
	if err != nil {
		return e.fail(ctx, s, fmt.Errorf("read last price: %w", err))
	}
	pre, err := grid.New(s.Settings, s.Open.Amount, s.Open.Leverage, price, e.cfg.FeePercent)
	if err != nil {
		return e.fail(ctx, s, err)
	}
	if !pre.SufficientFunds {
		return e.fail(ctx, s, fmt.Errorf("%w: ladder needs %s, deposit*leverage is %s",
			ports.ErrInsufficientFunds, pre.TotalCost.String(), s.Settings.Deposit.Mul(decimal.NewFromInt(int64(s.Open.Leverage))).String()))
	}
	if err := e.exchange.SetLeverage(ctx, s.Symbol, s.Open.Leverage); err != nil {
		return e.fail(ctx, s, fmt.Errorf("set leverage: %w", err))
	}
	if err := e.ledger.SetStrategyStatus(ctx, s, domain.StrategyActive, ""); err != nil {
		return e.fail(ctx, s, err)
	}

	e.reset()
	e.strategy = s
	e.hedgeMargin = s.Settings.ExtraMarg
	e.trailing = NewTrailing(s.Settings.Trail1, s.Settings.Trail2, s.Settings.TrailStep)
	e.lastPrice = price

	entry, err := e.orders.Submit(ctx, e.newOrder(domain.OrderTypeLongMarket, domain.Buy, domain.PositionSideLong, s.Open.Amount))
	if err != nil {
		return e.fail(ctx, s, fmt.Errorf("market entry: %w", err))
	}
	e.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": e.symbol, "strategyID": s.ID, "qty": s.Open.Amount.String(), "leverage": s.Open.Leverage,
	})
	e.notifier.Notify(ctx, fmt.Sprintf("%s: strategy %d started, entry %s @ ~%s", e.symbol, s.ID, s.Open.Amount, price))
	if entry.Status == domain.OrderFilled {
		return e.onFilled(ctx, entry)
	}
	return nil
}

// fail marks s FAILED with err as the reason and reports it.
func (e *Engine) fail(ctx context.Context, s *domain.StrategyInstance, err error) error {
	reason := err.Error()
	if serr := e.ledger.SetStrategyStatus(ctx, s, domain.StrategyFailed, reason); serr != nil {
		e.logger.Error(ctx, serr, "Failed to persist strategy failure", map[string]interface{}{"strategyID": s.ID})
	}
	e.logger.Error(ctx, err, "Strategy failed", map[string]interface{}{"symbol": s.Symbol, "strategyID": s.ID})
	e.notifier.Notify(ctx, fmt.Sprintf("%s: strategy %d failed: %s", s.Symbol, s.ID, reason))
	if e.strategy == s {
		e.reset()
	}
	return err
}

// complete closes the books on the running strategy.
func (e *Engine) complete(ctx context.Context, reason domain.CloseReason, pnl decimal.Decimal) {
	s := e.strategy
	if s == nil {
		return
	}
	if err := e.ledger.SetStrategyStatus(ctx, s, domain.StrategyCompleted, string(reason)); err != nil {
		e.logger.Error(ctx, err, "Failed to persist strategy completion", map[string]interface{}{"strategyID": s.ID})
	}
	e.metrics.StrategyExit(e.symbol, reason, pnl.InexactFloat64())
	e.notifier.Notify(ctx, fmt.Sprintf("%s: strategy %d closed (%s), pnl %s", e.symbol, s.ID, reason, pnl.StringFixed(4)))
	e.reset()
}

func (e *Engine) reset() {
	e.strategy = nil
	e.plan = nil
	e.long = nil
	e.short = nil
	e.trailing = Trailing{}
	e.hedgeMargin = decimal.Zero
	e.commLong = decimal.Zero
	e.commShort = decimal.Zero
	e.lastPnL = decimal.Zero
	e.flattening = false
}

func (e *Engine) newOrder(typ domain.OrderType, side domain.OrderSide, ps domain.PositionSide, qty decimal.Decimal) *domain.Order {
	return &domain.Order{
		StrategyID:   e.strategy.ID,
		Symbol:       e.symbol,
		Side:         side,
		PositionSide: ps,
		Type:         typ,
		Quantity:     qty,
		Leverage:     e.strategy.Open.Leverage,
	}
}

func (e *Engine) position(side domain.PositionSide) *domain.Position {
	if side == domain.PositionSideShort {
		return e.short
	}
	return e.long
}

func (e *Engine) setPosition(side domain.PositionSide, p *domain.Position) {
	if side == domain.PositionSideShort {
		e.short = p
	} else {
		e.long = p
	}
}

// syncPosition brings the local position of side in line with the exchange, opening it if needed.
// The fallback values are used when the exchange cannot be read.
func (e *Engine) syncPosition(ctx context.Context, side domain.PositionSide, fallbackQty, fallbackPrice decimal.Decimal) (*domain.Position, error) {
	snap := ports.PositionSnapshot{Quantity: fallbackQty, EntryPrice: fallbackPrice, BreakEvenPrice: fallbackPrice}
	pair, err := e.exchange.GetPosition(ctx, e.symbol)
	if err != nil {
		e.logger.Warn(ctx, "syncPosition: using fill data, exchange position unavailable", map[string]interface{}{
			"symbol": e.symbol, "side": side, "error": err.Error(),
		})
	} else if s := pair.Side(side); s.Quantity.IsPositive() {
		snap = s
	}

	if local := e.position(side); local.IsOpen() {
		if err := e.ledger.UpdatePosition(ctx, local, snap.Quantity, snap.EntryPrice, snap.BreakEvenPrice); err != nil {
			return local, err
		}
		e.onPositionChanged(side)
		return local, nil
	}

	p := &domain.Position{
		StrategyID:   e.strategy.ID,
		Symbol:       e.symbol,
		PositionSide: side,
		Quantity:     snap.Quantity.Abs(),
	}
	p.SetPrices(snap.EntryPrice, snap.BreakEvenPrice)
	pos, created, err := e.ledger.OpenPosition(ctx, p)
	if err != nil {
		return nil, err
	}
	if !created {
		if err := e.ledger.UpdatePosition(ctx, pos, snap.Quantity, snap.EntryPrice, snap.BreakEvenPrice); err != nil {
			return pos, err
		}
	}
	e.setPosition(side, pos)
	e.onPositionChanged(side)
	return pos, nil
}

func (e *Engine) onPositionChanged(side domain.PositionSide) {
	if side == domain.PositionSideLong && e.long != nil {
		e.trailing.SetBreakEven(e.long.AdjustedBreakEvenPrice)
	}
}

func (e *Engine) closePosition(ctx context.Context, side domain.PositionSide, pnl decimal.Decimal) {
	p := e.position(side)
	if p == nil {
		return
	}
	if err := e.ledger.ClosePosition(ctx, p, pnl); err != nil {
		e.logger.Error(ctx, err, "Failed to close position", map[string]interface{}{"symbol": e.symbol, "side": side})
		return
	}
	e.setPosition(side, nil)
	if side == domain.PositionSideShort {
		e.commShort = decimal.Zero
	} else {
		e.commLong = decimal.Zero
	}
}

// refreshCommissions reloads the commissions paid since each open position was created.
func (e *Engine) refreshCommissions(ctx context.Context) {
	if e.strategy == nil {
		return
	}
	load := func(p *domain.Position) decimal.Decimal {
		if p == nil {
			return decimal.Zero
		}
		c, err := e.ledger.CommissionSince(ctx, e.strategy.ID, p.PositionSide, p.CreatedAt)
		if err != nil {
			e.logger.Warn(ctx, "refreshCommissions failed", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
			return decimal.Zero
		}
		return c
	}
	e.commLong = load(e.long)
	e.commShort = load(e.short)
}
