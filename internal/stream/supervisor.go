// Package stream keeps the exchange websocket streams alive and routes their events to symbol actors.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

// Sink receives the events of one symbol.
type Sink interface {
	Symbol() string
	Enqueue(ctx context.Context, ev domain.Event) error
	RequestResync()
}

// Config holds reconnect and keepalive settings.
type Config struct {
	KeepaliveInterval    time.Duration
	MinBackoff           time.Duration
	MaxBackoff           time.Duration
	MaxReconnectAttempts int // consecutive failed connects before giving up; 0 means never
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		KeepaliveInterval: 30 * time.Minute,
		MinBackoff:        time.Second,
		MaxBackoff:        time.Minute,
	}
}

// Supervisor owns one trade stream per symbol and the account's user-data stream.
type Supervisor struct {
	client ports.StreamClient
	cfg    Config
	logger ports.Logger

	sinks   map[string]Sink
	restart map[string]chan struct{}
}

// NewSupervisor creates a supervisor routing to sinks by symbol.
func NewSupervisor(client ports.StreamClient, sinks []Sink, cfg Config, logger ports.Logger) *Supervisor {
	def := DefaultConfig()
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = def.MinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}
	s := &Supervisor{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		sinks:   make(map[string]Sink, len(sinks)),
		restart: make(map[string]chan struct{}, len(sinks)),
	}
	for _, sink := range sinks {
		s.sinks[sink.Symbol()] = sink
		s.restart[sink.Symbol()] = make(chan struct{}, 1)
	}
	return s
}

// Run keeps every stream connected until ctx ends. It returns an error only when a stream
// gave up after MaxReconnectAttempts.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for symbol := range s.sinks {
		symbol := symbol
		g.Go(func() error { return s.runTrades(ctx, symbol) })
	}
	g.Go(func() error { return s.runUserData(ctx) })
	return g.Wait()
}

func (s *Supervisor) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: s.cfg.MinBackoff, Max: s.cfg.MaxBackoff, Factor: 2, Jitter: true}
}

// wait sleeps for the next backoff step. It returns false when ctx ended or attempts are used up.
func (s *Supervisor) wait(ctx context.Context, b *backoff.Backoff, op string) (bool, error) {
	if s.cfg.MaxReconnectAttempts > 0 && int(b.Attempt()) >= s.cfg.MaxReconnectAttempts {
		return false, fmt.Errorf("%s: %w: gave up after %d reconnect attempts", op, ports.ErrConnectionFailed, s.cfg.MaxReconnectAttempts)
	}
	d := b.Duration()
	s.logger.Info(ctx, op+": reconnecting", map[string]interface{}{"attempt": int(b.Attempt()), "delay": d.String()})
	select {
	case <-ctx.Done():
		return false, nil
	case <-time.After(d):
		return true, nil
	}
}

func (s *Supervisor) runTrades(ctx context.Context, symbol string) error {
	op := "TradeStream " + symbol
	b := s.newBackoff()
	handler := func(ev domain.Event) { s.route(ctx, ev) }
	errHandler := func(err error) {
		s.logger.Warn(ctx, op+": stream error", map[string]interface{}{"error": err.Error()})
	}

	for {
		doneCh, stopCh, err := s.client.ServeTrades(symbol, handler, errHandler)
		if err != nil {
			s.logger.Error(ctx, err, op+": connect failed")
			ok, werr := s.wait(ctx, b, op)
			if !ok {
				return werr
			}
			continue
		}
		b.Reset()
		s.logger.Info(ctx, op+": connected")

		select {
		case <-ctx.Done():
			stop(stopCh, doneCh)
			return nil
		case <-s.restart[symbol]:
			s.logger.Warn(ctx, op+": restarting after queue overflow")
			stop(stopCh, doneCh)
		case <-doneCh:
			s.logger.Warn(ctx, op+": connection closed")
			ok, werr := s.wait(ctx, b, op)
			if !ok {
				return werr
			}
		}
	}
}

func (s *Supervisor) runUserData(ctx context.Context) error {
	op := "UserDataStream"
	b := s.newBackoff()
	errHandler := func(err error) {
		s.logger.Warn(ctx, op+": stream error", map[string]interface{}{"error": err.Error()})
	}

	for {
		listenKey, err := s.client.StartUserStream(ctx)
		if err != nil {
			s.logger.Error(ctx, err, op+": listen key not created")
			ok, werr := s.wait(ctx, b, op)
			if !ok {
				return werr
			}
			continue
		}

		expired := make(chan struct{}, 1)
		handler := func(ev domain.Event) {
			if ev.Kind() == domain.EventListenKeyExpired {
				select {
				case expired <- struct{}{}:
				default:
				}
				return
			}
			s.route(ctx, ev)
		}
		doneCh, stopCh, err := s.client.ServeUserData(listenKey, handler, errHandler)
		if err != nil {
			s.logger.Error(ctx, err, op+": connect failed")
			ok, werr := s.wait(ctx, b, op)
			if !ok {
				return werr
			}
			continue
		}
		b.Reset()
		s.logger.Info(ctx, op+": connected")

		kaCtx, stopKeepalive := context.WithCancel(ctx)
		go s.keepalive(kaCtx, listenKey)

		reconnect := true
		select {
		case <-ctx.Done():
			reconnect = false
		case <-expired:
			s.logger.Warn(ctx, op+": listen key expired")
		case <-doneCh:
			s.logger.Warn(ctx, op+": connection closed")
		}
		stopKeepalive()
		stop(stopCh, doneCh)

		if !reconnect {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.client.CloseUserStream(closeCtx, listenKey); err != nil {
				s.logger.Warn(ctx, op+": listen key not closed", map[string]interface{}{"error": err.Error()})
			}
			cancel()
			return nil
		}
		s.resyncAll()
		ok, werr := s.wait(ctx, b, op)
		if !ok {
			return werr
		}
	}
}

func (s *Supervisor) keepalive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(s.cfg.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.client.KeepaliveUserStream(ctx, listenKey); err != nil {
				s.logger.Warn(ctx, "UserDataStream: keepalive failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			s.logger.Debug(ctx, "UserDataStream: keepalive sent")
		}
	}
}

// route delivers ev to the actor of its symbol.
func (s *Supervisor) route(ctx context.Context, ev domain.Event) {
	if ev.Kind() == domain.EventUnrecognized {
		s.logger.Debug(ctx, "Stream: unrecognized message dropped", map[string]interface{}{"symbol": ev.EventSymbol()})
		return
	}
	sink, ok := s.sinks[ev.EventSymbol()]
	if !ok {
		s.logger.Debug(ctx, "Stream: event for unmanaged symbol dropped", map[string]interface{}{
			"symbol": ev.EventSymbol(), "kind": ev.Kind().String(),
		})
		return
	}
	err := sink.Enqueue(ctx, ev)
	if err == nil {
		return
	}
	if errors.Is(err, ports.ErrQueueFull) {
		s.logger.Warn(ctx, "Stream: queue full, event dropped", map[string]interface{}{
			"symbol": sink.Symbol(), "kind": ev.Kind().String(),
		})
		select {
		case s.restart[sink.Symbol()] <- struct{}{}:
		default:
		}
		return
	}
	s.logger.Debug(ctx, "Stream: event not delivered", map[string]interface{}{"symbol": sink.Symbol(), "error": err.Error()})
}

// resyncAll flags every actor to reconcile; user-data events may have been lost.
func (s *Supervisor) resyncAll() {
	for _, sink := range s.sinks {
		sink.RequestResync()
	}
}

func stop(stopCh, doneCh chan struct{}) {
	select {
	case stopCh <- struct{}{}:
	case <-doneCh:
		return
	case <-time.After(time.Second):
		return
	}
	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
	}
}
