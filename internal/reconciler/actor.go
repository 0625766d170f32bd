// Package reconciler runs one actor per symbol. The actor is the only goroutine touching the
// symbol's engine: stream events, strategy starts and periodic reconciliation are serialized on it.
package reconciler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

// Engine is the per-symbol state machine driven by an Actor.
type Engine interface {
	Symbol() string
	Start(ctx context.Context, s *domain.StrategyInstance) error
	OnOrderUpdate(ctx context.Context, ev *domain.OrderUpdate) error
	OnTradeTick(ctx context.Context, tick domain.TradeTick) error
	OnAccountUpdate(ctx context.Context, ev *domain.AccountUpdate) error
	Reconcile(ctx context.Context) error
	Restore(ctx context.Context) error
	Active() bool
}

// Config holds actor tuning.
type Config struct {
	QueueSize         int
	EnqueueTimeout    time.Duration
	ReconcileInterval time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		QueueSize:         1024,
		EnqueueTimeout:    200 * time.Millisecond,
		ReconcileInterval: 60 * time.Second,
	}
}

type command struct {
	fn    func(ctx context.Context) error
	reply chan error
}

// Actor serializes everything that happens to one symbol.
type Actor struct {
	engine  Engine
	cfg     Config
	metrics ports.Metrics
	logger  ports.Logger

	events   chan domain.Event
	commands chan command
	resync   atomic.Bool
}

// NewActor creates the actor of engine's symbol.
func NewActor(engine Engine, cfg Config, metrics ports.Metrics, logger ports.Logger) *Actor {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = def.EnqueueTimeout
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Actor{
		engine:   engine,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		events:   make(chan domain.Event, cfg.QueueSize),
		commands: make(chan command),
	}
}

// Symbol returns the symbol the actor owns.
func (a *Actor) Symbol() string { return a.engine.Symbol() }

// Enqueue hands ev to the actor, waiting at most the configured timeout for queue space.
// On timeout the actor is flagged to resync with the exchange and ports.ErrQueueFull is returned.
func (a *Actor) Enqueue(ctx context.Context, ev domain.Event) error {
	select {
	case a.events <- ev:
		return nil
	default:
	}

	timer := time.NewTimer(a.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case a.events <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Enqueue: %w: %w", ports.ErrContextCanceled, ctx.Err())
	case <-timer.C:
		a.RequestResync()
		a.metrics.QueueOverflow(a.Symbol())
		return fmt.Errorf("Enqueue %s: %w", a.Symbol(), ports.ErrQueueFull)
	}
}

// RequestResync makes the actor reconcile with the exchange before its next event.
func (a *Actor) RequestResync() {
	a.resync.Store(true)
}

// StartStrategy runs engine.Start on the actor goroutine and waits for the result.
func (a *Actor) StartStrategy(ctx context.Context, s *domain.StrategyInstance) error {
	return a.do(ctx, func(ctx context.Context) error {
		return a.engine.Start(ctx, s)
	})
}

// Active reports, from the actor goroutine, whether a strategy is running.
func (a *Actor) Active(ctx context.Context) (bool, error) {
	var active bool
	err := a.do(ctx, func(context.Context) error {
		active = a.engine.Active()
		return nil
	})
	return active, err
}

func (a *Actor) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case a.commands <- cmd:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	}
}

// Run restores the engine and processes commands, events and reconciliation ticks until ctx ends.
// The event being processed when ctx ends is finished first.
func (a *Actor) Run(ctx context.Context) error {
	symbol := a.Symbol()
	if err := a.engine.Restore(ctx); err != nil {
		a.logger.Error(ctx, err, "Actor: restore failed, resyncing on first event", map[string]interface{}{"symbol": symbol})
		a.RequestResync()
	}
	a.logger.Info(ctx, "Actor started", map[string]interface{}{"symbol": symbol, "queueSize": a.cfg.QueueSize})

	ticker := time.NewTicker(a.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info(ctx, "Actor stopped", map[string]interface{}{"symbol": symbol, "pending": len(a.events)})
			return nil
		case cmd := <-a.commands:
			a.resyncIfRequested(ctx)
			cmd.reply <- cmd.fn(ctx)
		case ev := <-a.events:
			a.resyncIfRequested(ctx)
			a.dispatch(ctx, ev)
		case <-ticker.C:
			a.reconcile(ctx)
		}
	}
}

func (a *Actor) resyncIfRequested(ctx context.Context) {
	if a.resync.Swap(false) {
		a.logger.Warn(ctx, "Actor: resyncing with exchange", map[string]interface{}{"symbol": a.Symbol()})
		a.reconcile(ctx)
	}
}

func (a *Actor) reconcile(ctx context.Context) {
	if err := a.engine.Reconcile(ctx); err != nil {
		a.logger.Error(ctx, err, "Actor: reconcile failed", map[string]interface{}{"symbol": a.Symbol()})
	}
}

func (a *Actor) dispatch(ctx context.Context, ev domain.Event) {
	a.metrics.EventReceived(a.Symbol(), ev.Kind())
	var err error
	switch e := ev.(type) {
	case domain.TradeTick:
		err = a.engine.OnTradeTick(ctx, e)
	case *domain.TradeTick:
		err = a.engine.OnTradeTick(ctx, *e)
	case *domain.OrderUpdate:
		err = a.engine.OnOrderUpdate(ctx, e)
	case domain.OrderUpdate:
		err = a.engine.OnOrderUpdate(ctx, &e)
	case *domain.AccountUpdate:
		err = a.engine.OnAccountUpdate(ctx, e)
	case domain.AccountUpdate:
		err = a.engine.OnAccountUpdate(ctx, &e)
	default:
		a.logger.Debug(ctx, "Actor: event dropped", map[string]interface{}{"symbol": a.Symbol(), "kind": ev.Kind().String()})
		return
	}
	if err != nil {
		a.logger.Error(ctx, err, "Actor: event handling failed", map[string]interface{}{
			"symbol": a.Symbol(), "kind": ev.Kind().String(),
		})
	}
}
