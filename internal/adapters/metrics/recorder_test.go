package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"gridHedgeBot/internal/domain"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.OrderSubmitted("ETHUSDT", domain.OrderTypeLongMarket, nil)
	r.OrderSubmitted("ETHUSDT", domain.OrderTypeLongMarket, nil)
	r.OrderSubmitted("ETHUSDT", domain.OrderTypeShortStopOpen, errors.New("rejected"))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.orders.WithLabelValues("ETHUSDT", "LONG_MARKET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.orders.WithLabelValues("ETHUSDT", "SHORT_MARKET_STOP_OPEN", "error")))

	r.EventReceived("ETHUSDT", domain.EventTradeTick)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("ETHUSDT", "trade_tick")))

	r.QueueOverflow("ETHUSDT")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.overflows.WithLabelValues("ETHUSDT")))

	r.TrailingStop("ETHUSDT", 101.49)
	assert.Equal(t, 101.49, testutil.ToFloat64(r.trailing.WithLabelValues("ETHUSDT")))

	r.StrategyExit("ETHUSDT", domain.CloseReasonTrailingStop, 1.2)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.exits.WithLabelValues("ETHUSDT", "TRAILING_STOP")))
	assert.Equal(t, 1.2, testutil.ToFloat64(r.pnl.WithLabelValues("ETHUSDT")))
	assert.Equal(t, 0, testutil.CollectAndCount(r.trailing))
}
