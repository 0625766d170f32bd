package ports

import (
	"context"

	"gridHedgeBot/internal/domain"
)

// Notifier is a fire-and-forget sink for operator messages.
// Implementations must not block the caller and must log their own failures.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Metrics records engine activity.
type Metrics interface {
	OrderSubmitted(symbol string, typ domain.OrderType, err error)
	EventReceived(symbol string, kind domain.EventKind)
	QueueOverflow(symbol string)
	StrategyExit(symbol string, reason domain.CloseReason, pnl float64)
	TrailingStop(symbol string, price float64)
}

// NopNotifier discards all messages.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) {}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) OrderSubmitted(string, domain.OrderType, error)   {}
func (NopMetrics) EventReceived(string, domain.EventKind)           {}
func (NopMetrics) QueueOverflow(string)                             {}
func (NopMetrics) StrategyExit(string, domain.CloseReason, float64) {}
func (NopMetrics) TrailingStop(string, float64)                     {}
