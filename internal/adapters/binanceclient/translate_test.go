package binanceclient

import (
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridHedgeBot/internal/domain"
)

func TestTranslateUserData_OrderTradeUpdate(t *testing.T) {
	event := &futures.WsUserDataEvent{
		Event:                      futures.UserDataEventTypeOrderTradeUpdate,
		Time:                       1700000000000,
		WsUserDataOrderTradeUpdate: futures.WsUserDataOrderTradeUpdate{OrderTradeUpdate: futures.WsOrderTradeUpdate{
			Symbol:               "ETHUSDT",
			ClientOrderID:        "cid-1",
			Side:                 futures.SideTypeBuy,
			Type:                 futures.OrderTypeMarket,
			OriginalType:         futures.OrderTypeStopMarket,
			OriginalQty:          "1.000",
			AveragePrice:         "94.99",
			StopPrice:            "94.99",
			ExecutionType:        futures.OrderExecutionTypeTrade,
			Status:               futures.OrderStatusTypeFilled,
			ID:                   42,
			LastFilledQty:        "1.000",
			AccumulatedFilledQty: "1.000",
			Commission:           "0.038",
			CommissionAsset:      "USDT",
			RealizedPnL:          "-0.94",
			TradeID:              7,
			TradeTime:            1700000000100,
			PositionSide:         futures.PositionSideTypeShort,
		}},
	}

	events, err := translateUserData(event)
	require.NoError(t, err)
	require.Len(t, events, 1)
	u, ok := events[0].(*domain.OrderUpdate)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", u.EventSymbol())
	assert.Equal(t, domain.KindStopMarket, u.OrderKind)
	assert.Equal(t, domain.Buy, u.Side)
	assert.Equal(t, domain.PositionSideShort, u.PositionSide)
	assert.Equal(t, domain.ExchangeStatusFilled, u.Status)
	assert.Equal(t, int64(42), u.ExchangeOrderID)
	assert.Equal(t, "94.99", u.AvgPrice.String())
	assert.Equal(t, "-0.94", u.RealizedPnL.String())
	assert.Equal(t, int64(1700000000100), u.Time.UnixMilli())
	assert.Equal(t, domain.OrderTypeShortStopLoss, domain.ClassifyRole(u.OrderKind, u.Side, u.PositionSide))
}

func TestTranslateUserData_AccountUpdateSplitsPerSymbol(t *testing.T) {
	event := &futures.WsUserDataEvent{
		Event:                   futures.UserDataEventTypeAccountUpdate,
		Time:                    1700000000000,
		WsUserDataAccountUpdate: futures.WsUserDataAccountUpdate{AccountUpdate: futures.WsAccountUpdate{
			Reason: futures.UserDataEventReasonTypeOrder,
			Positions: []futures.WsPosition{
				{Symbol: "ETHUSDT", Side: futures.PositionSideTypeLong, Amount: "2.5", EntryPrice: "98.1"},
				{Symbol: "BTCUSDT", Side: futures.PositionSideTypeLong, Amount: "0.01", EntryPrice: "60000"},
				{Symbol: "ETHUSDT", Side: futures.PositionSideTypeShort, Amount: "-1.063", EntryPrice: "94.05"},
				{Symbol: "ETHUSDT", Side: futures.PositionSideTypeBoth, Amount: "0"},
			},
		}},
	}

	events, err := translateUserData(event)
	require.NoError(t, err)
	require.Len(t, events, 2)

	eth := events[0].(*domain.AccountUpdate)
	assert.Equal(t, "ETHUSDT", eth.Symbol)
	assert.Equal(t, "ORDER", eth.Reason)
	require.Len(t, eth.Positions, 2)
	assert.Equal(t, domain.PositionSideLong, eth.Positions[0].PositionSide)
	assert.Equal(t, "-1.063", eth.Positions[1].Amount.String())

	btc := events[1].(*domain.AccountUpdate)
	assert.Equal(t, "BTCUSDT", btc.Symbol)
	require.Len(t, btc.Positions, 1)
}

func TestTranslateUserData_ListenKeyExpiredAndUnknown(t *testing.T) {
	events, err := translateUserData(&futures.WsUserDataEvent{Event: futures.UserDataEventTypeListenKeyExpired, Time: 5})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventListenKeyExpired, events[0].Kind())

	events, err = translateUserData(&futures.WsUserDataEvent{Event: futures.UserDataEventTypeMarginCall})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUnrecognized, events[0].Kind())

	_, err = translateUserData(nil)
	assert.Error(t, err)
}

func TestTranslateUserData_BadNumber(t *testing.T) {
	event := &futures.WsUserDataEvent{
		Event:                      futures.UserDataEventTypeOrderTradeUpdate,
		WsUserDataOrderTradeUpdate: futures.WsUserDataOrderTradeUpdate{
			OrderTradeUpdate: futures.WsOrderTradeUpdate{Symbol: "ETHUSDT", OriginalQty: "abc"},
		},
	}
	_, err := translateUserData(event)
	assert.Error(t, err)
}

func TestTranslateAggTrade(t *testing.T) {
	tick, err := translateAggTrade(&futures.WsAggTradeEvent{Symbol: "ETHUSDT", Price: "101.25", Quantity: "0.3", TradeTime: 1700000000000})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tick.Symbol)
	assert.Equal(t, "101.25", tick.Price.String())
	assert.Equal(t, domain.EventTradeTick, tick.Kind())

	_, err = translateAggTrade(&futures.WsAggTradeEvent{Symbol: "ETHUSDT", Price: "0"})
	assert.Error(t, err)
	_, err = translateAggTrade(nil)
	assert.Error(t, err)
}

func TestTranslatePositionPair(t *testing.T) {
	pair, err := translatePositionPair("ETHUSDT", []*futures.PositionRisk{
		{Symbol: "ETHUSDT", PositionSide: "LONG", PositionAmt: "3.000", EntryPrice: "97.5", BreakEvenPrice: "97.6", Leverage: "10"},
		{Symbol: "ETHUSDT", PositionSide: "SHORT", PositionAmt: "-1.063", EntryPrice: "94.05"},
		{Symbol: "ETHUSDT", PositionSide: "BOTH", PositionAmt: "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, "3", pair.Long.Quantity.String())
	assert.Equal(t, "97.6", pair.Long.BreakEvenPrice.String())
	assert.Equal(t, 10, pair.Long.Leverage)
	assert.Equal(t, "1.063", pair.Short.Quantity.String())
	assert.False(t, pair.IsFlat())

	_, err = translatePositionPair("ETHUSDT", []*futures.PositionRisk{{Symbol: "ETHUSDT", PositionSide: "LONG", PositionAmt: "x"}})
	assert.Error(t, err)
}

func TestTranslateAccountTrades_FiltersByOrder(t *testing.T) {
	trades, err := translateAccountTrades([]*futures.AccountTrade{
		{ID: 1, OrderID: 10, Price: "94.99", Quantity: "0.5", RealizedPnl: "-0.47", Commission: "0.02"},
		{ID: 2, OrderID: 11, Price: "95", Quantity: "1", RealizedPnl: "0"},
		{ID: 3, OrderID: 10, Price: "94.99", Quantity: "0.563", RealizedPnl: "-0.53"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(3), trades[1].TradeID)
	assert.Equal(t, "-0.53", trades[1].RealizedPnL.String())
}
