// Package metrics exposes engine activity as Prometheus metrics.
//
//   - gridbot_orders_submitted_total{symbol,type,result}
//   - gridbot_events_total{symbol,kind}
//   - gridbot_queue_overflows_total{symbol}
//   - gridbot_strategy_exits_total{symbol,reason}
//   - gridbot_strategy_pnl_usdt{symbol}        last realized strategy PnL
//   - gridbot_trailing_stop_price{symbol}      current trailing stop level
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"gridHedgeBot/internal/domain"
)

// Recorder implements ports.Metrics.
type Recorder struct {
	orders    *prometheus.CounterVec
	events    *prometheus.CounterVec
	overflows *prometheus.CounterVec
	exits     *prometheus.CounterVec
	pnl       *prometheus.GaugeVec
	trailing  *prometheus.GaugeVec
}

// NewRecorder creates the metrics and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridbot_orders_submitted_total",
				Help: "Orders submitted to the exchange",
			},
			[]string{"symbol", "type", "result"}, // result: ok|error
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridbot_events_total",
				Help: "Stream events processed by symbol actors",
			},
			[]string{"symbol", "kind"},
		),
		overflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridbot_queue_overflows_total",
				Help: "Events dropped because a symbol queue was full",
			},
			[]string{"symbol"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridbot_strategy_exits_total",
				Help: "Completed strategies split by close reason",
			},
			[]string{"symbol", "reason"},
		),
		pnl: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridbot_strategy_pnl_usdt",
				Help: "Realized PnL of the last completed strategy",
			},
			[]string{"symbol"},
		),
		trailing: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridbot_trailing_stop_price",
				Help: "Current trailing stop level of the long position",
			},
			[]string{"symbol"},
		),
	}
	reg.MustRegister(r.orders, r.events, r.overflows, r.exits, r.pnl, r.trailing)
	return r
}

func (r *Recorder) OrderSubmitted(symbol string, typ domain.OrderType, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.orders.WithLabelValues(symbol, string(typ), result).Inc()
}

func (r *Recorder) EventReceived(symbol string, kind domain.EventKind) {
	r.events.WithLabelValues(symbol, kind.String()).Inc()
}

func (r *Recorder) QueueOverflow(symbol string) {
	r.overflows.WithLabelValues(symbol).Inc()
}

func (r *Recorder) StrategyExit(symbol string, reason domain.CloseReason, pnl float64) {
	r.exits.WithLabelValues(symbol, string(reason)).Inc()
	r.pnl.WithLabelValues(symbol).Set(pnl)
	r.trailing.DeleteLabelValues(symbol)
}

func (r *Recorder) TrailingStop(symbol string, price float64) {
	r.trailing.WithLabelValues(symbol).Set(price)
}
