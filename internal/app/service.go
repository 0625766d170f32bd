package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gridHedgeBot/config"
	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/engine"
	"gridHedgeBot/internal/ledger"
	"gridHedgeBot/internal/orders"
	"gridHedgeBot/internal/ports"
	"gridHedgeBot/internal/precision"
	"gridHedgeBot/internal/reconciler"
	"gridHedgeBot/internal/retry"
	"gridHedgeBot/internal/stream"
)

// Deps are the adapters the service runs on.
type Deps struct {
	Exchange ports.ExchangeClient
	Streams  ports.StreamClient // only needed by Start
	Store    ports.Store
	Notifier ports.Notifier
	Metrics  ports.Metrics
	Logger   ports.Logger
}

// HedgeService wires one engine and actor per symbol to the exchange streams and the store.
type HedgeService struct {
	cfg      *config.Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	streams  ports.StreamClient
	store    ports.Store
	notifier ports.Notifier

	ledger    *ledger.Ledger
	precision *precision.Cache
	orders    *orders.Manager
	actors    map[string]*reconciler.Actor
}

// NewHedgeService creates a new application service instance.
func NewHedgeService(cfg *config.Config, deps Deps) (*HedgeService, error) {
	if cfg == nil || deps.Logger == nil || deps.Exchange == nil || deps.Store == nil {
		return nil, fmt.Errorf("missing required dependencies for HedgeService")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols configured", ports.ErrConfigurationError)
	}
	if deps.Notifier == nil {
		deps.Notifier = ports.NopNotifier{}
	}
	if deps.Metrics == nil {
		deps.Metrics = ports.NopMetrics{}
	}

	exchange := retry.NewExchange(deps.Exchange, retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}, deps.Logger)
	l := ledger.New(deps.Store, deps.Logger)
	prec := precision.NewCache(deps.Store, exchange, deps.Logger)
	mgr := orders.NewManager(exchange, l, prec, deps.Metrics, deps.Logger)

	s := &HedgeService{
		cfg:       cfg,
		logger:    deps.Logger,
		exchange:  exchange,
		streams:   deps.Streams,
		store:     deps.Store,
		notifier:  deps.Notifier,
		ledger:    l,
		precision: prec,
		orders:    mgr,
		actors:    make(map[string]*reconciler.Actor, len(cfg.Symbols)),
	}

	engineCfg := engine.Config{FeePercent: cfg.TakeProfitFeePercent, MinHedgeNotional: cfg.MinHedgeNotional}
	actorCfg := reconciler.Config{
		QueueSize:         cfg.EventQueueSize,
		EnqueueTimeout:    cfg.EnqueueTimeout,
		ReconcileInterval: cfg.ReconcileInterval,
	}
	for _, symbol := range cfg.Symbols {
		eng := engine.New(symbol, engine.Deps{
			Exchange: exchange,
			Orders:   mgr,
			Ledger:   l,
			Notifier: deps.Notifier,
			Metrics:  deps.Metrics,
			Logger:   deps.Logger,
		}, engineCfg)
		s.actors[symbol] = reconciler.NewActor(eng, actorCfg, deps.Metrics, deps.Logger)
	}
	return s, nil
}

// Start prepares the account, then runs actors, streams and the strategy poller until ctx ends
// or a stream gives up. Submissions in flight are drained before it returns.
func (s *HedgeService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Hedge Service...", map[string]interface{}{"symbols": s.cfg.Symbols})
	if s.streams == nil {
		return fmt.Errorf("%w: stream client is required to start", ports.ErrConfigurationError)
	}

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Set server time (important for signed API calls)
	if err := s.exchange.SetServerTime(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	// 2. Hedge orders need dual-side position mode
	if err := s.ensureHedgeMode(ctx); err != nil {
		return err
	}

	// 3. Warm the precision cache; an unknown symbol is fatal
	for _, symbol := range s.cfg.Symbols {
		prec, err := s.precision.Get(ctx, symbol)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to load symbol precision", map[string]interface{}{"symbol": symbol})
			return fmt.Errorf("failed to load precision for %s: %w", symbol, err)
		}
		s.logger.Info(ctx, "Symbol precision loaded", map[string]interface{}{
			"symbol": symbol, "quantityPrecision": prec.QuantityPrecision, "pricePrecision": prec.PricePrecision,
		})
	}

	// --- Run ---
	sinks := make([]stream.Sink, 0, len(s.actors))
	for _, a := range s.actors {
		sinks = append(sinks, a)
	}
	supervisor := stream.NewSupervisor(s.streams, sinks, stream.Config{
		KeepaliveInterval:    s.cfg.ListenKeyKeepalive,
		MinBackoff:           s.cfg.ReconnectDelay,
		MaxBackoff:           s.cfg.MaxReconnectDelay,
		MaxReconnectAttempts: s.cfg.MaxReconnectAttempts,
	}, s.logger)

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.actors {
		a := a
		g.Go(func() error { return a.Run(gctx) })
	}
	g.Go(func() error { return supervisor.Run(gctx) })
	g.Go(func() error {
		s.pollStrategies(gctx)
		return nil
	})
	err := g.Wait()

	s.logger.Info(ctx, "Waiting for order submissions to finish...")
	s.orders.Wait()
	if err != nil {
		s.logger.Error(ctx, err, "Hedge Service stopped with error")
		return err
	}
	s.logger.Info(ctx, "Hedge Service stopped.")
	return nil
}

func (s *HedgeService) ensureHedgeMode(ctx context.Context) error {
	dual, err := s.exchange.IsDualSidePosition(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to read position mode")
		return fmt.Errorf("failed to read position mode: %w", err)
	}
	if dual {
		s.logger.Info(ctx, "Hedge position mode already enabled")
		return nil
	}
	if err := s.exchange.EnableDualSidePosition(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to enable hedge position mode")
		return fmt.Errorf("failed to enable hedge position mode: %w", err)
	}
	s.logger.Info(ctx, "Hedge position mode enabled")
	return nil
}

// pollStrategies starts PENDING strategies on their symbol's actor until ctx ends.
func (s *HedgeService) pollStrategies(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StrategyPoll)
	defer ticker.Stop()
	for {
		s.startPending(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// startPending starts queued strategies oldest first. A symbol whose actor is still running
// a strategy keeps its queued ones for a later poll.
func (s *HedgeService) startPending(ctx context.Context) {
	op := "startPending"
	pending, err := s.store.FindStrategiesByStatus(ctx, domain.StrategyPending)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to list pending strategies")
		return
	}
	busy := make(map[string]bool)
	for _, st := range pending {
		if ctx.Err() != nil {
			return
		}
		actor, ok := s.actors[st.Symbol]
		if !ok {
			reason := fmt.Sprintf("symbol %s is not managed by this engine", st.Symbol)
			if err := s.ledger.SetStrategyStatus(ctx, st, domain.StrategyFailed, reason); err != nil {
				s.logger.Error(ctx, err, op+": failed to reject strategy", map[string]interface{}{"strategyID": st.ID})
			}
			s.logger.Warn(ctx, op+": strategy rejected", map[string]interface{}{"strategyID": st.ID, "reason": reason})
			s.notifier.Notify(ctx, fmt.Sprintf("%s: strategy %d rejected: %s", st.Symbol, st.ID, reason))
			continue
		}
		if busy[st.Symbol] {
			continue
		}
		active, err := actor.Active(ctx)
		if err != nil {
			s.logger.Warn(ctx, op+": actor unavailable", map[string]interface{}{"symbol": st.Symbol, "error": err.Error()})
			continue
		}
		busy[st.Symbol] = true
		if active {
			continue
		}
		s.logger.Info(ctx, op+": starting strategy", map[string]interface{}{"symbol": st.Symbol, "strategyID": st.ID, "name": st.Name})
		if err := actor.StartStrategy(ctx, st); err != nil {
			// The engine already recorded the failure on the strategy.
			s.logger.Warn(ctx, op+": strategy did not start", map[string]interface{}{"strategyID": st.ID, "error": err.Error()})
		}
	}
}

// HasOpenPosition reports whether symbol has an open position on the exchange or a running strategy.
func (s *HedgeService) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	active, err := s.ledger.ActiveStrategy(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("HasOpenPosition failed: %w", err)
	}
	if active != nil {
		return true, nil
	}
	pair, err := s.exchange.GetPosition(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("HasOpenPosition failed: %w", err)
	}
	return !pair.IsFlat(), nil
}

// Enqueue decodes a strategy payload and stores it as PENDING for the engine process to pick up.
func (s *HedgeService) Enqueue(ctx context.Context, payload []byte) (*domain.StrategyInstance, error) {
	op := "Enqueue"
	p, err := domain.DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	st, err := p.Strategy()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	open, err := s.HasOpenPosition(ctx, st.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if open {
		return nil, fmt.Errorf("%s failed: %w: %s has an open position", op, ports.ErrPositionAlreadyOpen, st.Symbol)
	}
	pending, err := s.store.FindStrategiesByStatus(ctx, domain.StrategyPending)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	for _, other := range pending {
		if other.Symbol == st.Symbol {
			return nil, fmt.Errorf("%s failed: %w: strategy %d is queued for %s", op, ports.ErrPositionAlreadyOpen, other.ID, st.Symbol)
		}
	}

	id, err := s.store.CreateStrategy(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	st.ID = id
	s.logger.Info(ctx, op+" successful", map[string]interface{}{"strategyID": id, "symbol": st.Symbol, "name": st.Name})
	return st, nil
}
