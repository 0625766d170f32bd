package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the role an order plays in the hedge strategy.
type OrderType string

const (
	OrderTypeLongMarket       OrderType = "LONG_MARKET"
	OrderTypeLongLimit        OrderType = "LONG_LIMIT"
	OrderTypeLongTakeProfit   OrderType = "LONG_TAKE_PROFIT"
	OrderTypeLongTrailingStop OrderType = "LONG_TRAILING_STOP_MARKET"
	OrderTypeShortLimit       OrderType = "SHORT_LIMIT"
	OrderTypeShortStopOpen    OrderType = "SHORT_MARKET_STOP_OPEN"
	OrderTypeShortStopLoss    OrderType = "SHORT_MARKET_STOP_LOSS"
	OrderTypeShortMarket      OrderType = "SHORT_MARKET"
	OrderTypeUnrecognized     OrderType = "UNRECOGNIZED"
)

var knownOrderTypes = map[OrderType]struct{}{
	OrderTypeLongMarket:       {},
	OrderTypeLongLimit:        {},
	OrderTypeLongTakeProfit:   {},
	OrderTypeLongTrailingStop: {},
	OrderTypeShortLimit:       {},
	OrderTypeShortStopOpen:    {},
	OrderTypeShortStopLoss:    {},
	OrderTypeShortMarket:      {},
}

// ParseOrderType maps a stored role name onto the closed role set.
func ParseOrderType(s string) OrderType {
	t := OrderType(s)
	if _, ok := knownOrderTypes[t]; ok {
		return t
	}
	return OrderTypeUnrecognized
}

// SingleInstance reports whether at most one resting order of this role may exist per strategy.
func (t OrderType) SingleInstance() bool {
	switch t {
	case OrderTypeLongTakeProfit, OrderTypeLongTrailingStop, OrderTypeShortStopLoss, OrderTypeShortStopOpen, OrderTypeShortLimit:
		return true
	}
	return false
}

// IsHedgeOpen reports whether a fill of this role opens the hedge short.
func (t OrderType) IsHedgeOpen() bool {
	return t == OrderTypeShortLimit || t == OrderTypeShortStopOpen
}

// OrderKind is the exchange-level order type.
type OrderKind string

const (
	KindMarket             OrderKind = "MARKET"
	KindLimit              OrderKind = "LIMIT"
	KindStop               OrderKind = "STOP"
	KindStopMarket         OrderKind = "STOP_MARKET"
	KindTakeProfit         OrderKind = "TAKE_PROFIT"
	KindTakeProfitMarket   OrderKind = "TAKE_PROFIT_MARKET"
	KindTrailingStopMarket OrderKind = "TRAILING_STOP_MARKET"
)

// KindFor returns the exchange order kind used to express a role.
func KindFor(t OrderType) OrderKind {
	switch t {
	case OrderTypeLongMarket, OrderTypeShortMarket:
		return KindMarket
	case OrderTypeShortLimit:
		return KindStop
	case OrderTypeShortStopOpen, OrderTypeShortStopLoss:
		return KindStopMarket
	case OrderTypeLongTrailingStop:
		return KindTrailingStopMarket
	default:
		return KindLimit
	}
}

// ClassifyRole infers the role of an order this process did not create from its exchange fields.
func ClassifyRole(kind OrderKind, side OrderSide, ps PositionSide) OrderType {
	switch {
	case kind == KindStop && side == Sell && ps == PositionSideShort:
		return OrderTypeShortLimit
	case kind == KindStopMarket && side == Sell:
		return OrderTypeShortStopOpen
	case kind == KindStopMarket && side == Buy:
		return OrderTypeShortStopLoss
	case kind == KindTrailingStopMarket && ps == PositionSideLong:
		return OrderTypeLongTrailingStop
	case kind == KindMarket && ps == PositionSideLong && side == Buy:
		return OrderTypeLongMarket
	case kind == KindMarket:
		return OrderTypeShortMarket
	case kind == KindLimit && ps == PositionSideLong && side == Sell:
		return OrderTypeLongTakeProfit
	case kind == KindLimit && ps == PositionSideLong:
		return OrderTypeLongLimit
	case kind == KindLimit && ps == PositionSideShort:
		return OrderTypeShortLimit
	}
	return OrderTypeUnrecognized
}

// OrderStatus is the local lifecycle status of an order.
type OrderStatus string

const (
	OrderNew        OrderStatus = "NEW"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderFilled     OrderStatus = "FILLED"
	OrderCanceled   OrderStatus = "CANCELED"
)

func (s OrderStatus) rank() int {
	switch s {
	case OrderNew:
		return 0
	case OrderInProgress:
		return 1
	case OrderFilled, OrderCanceled:
		return 2
	}
	return -1
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderFilled || s == OrderCanceled
}

// CanTransition reports whether moving from s to next is a forward step.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// ExchangeOrderStatus is the order status as reported by the exchange.
type ExchangeOrderStatus string

const (
	ExchangeStatusNew             ExchangeOrderStatus = "NEW"
	ExchangeStatusPartiallyFilled ExchangeOrderStatus = "PARTIALLY_FILLED"
	ExchangeStatusFilled          ExchangeOrderStatus = "FILLED"
	ExchangeStatusCanceled        ExchangeOrderStatus = "CANCELED"
	ExchangeStatusExpired         ExchangeOrderStatus = "EXPIRED"
	ExchangeStatusRejected        ExchangeOrderStatus = "REJECTED"
	ExchangeStatusUnrecognized    ExchangeOrderStatus = "UNRECOGNIZED"
)

// ParseExchangeOrderStatus maps a raw exchange status onto the closed status set.
func ParseExchangeOrderStatus(s string) ExchangeOrderStatus {
	switch st := ExchangeOrderStatus(s); st {
	case ExchangeStatusNew, ExchangeStatusPartiallyFilled, ExchangeStatusFilled,
		ExchangeStatusCanceled, ExchangeStatusExpired, ExchangeStatusRejected:
		return st
	}
	return ExchangeStatusUnrecognized
}

// LocalStatus maps an exchange status onto the local lifecycle.
// EXPIRED is not final: a triggered stop or trailing order reports EXPIRED, then NEW as a
// MARKET order, then FILLED under the same order id.
func (s ExchangeOrderStatus) LocalStatus() (OrderStatus, bool) {
	switch s {
	case ExchangeStatusNew, ExchangeStatusPartiallyFilled, ExchangeStatusExpired:
		return OrderInProgress, true
	case ExchangeStatusFilled:
		return OrderFilled, true
	case ExchangeStatusCanceled, ExchangeStatusRejected:
		return OrderCanceled, true
	}
	return "", false
}

// Order is one exchange order placed (or adopted) on behalf of a strategy.
type Order struct {
	ID              int64
	StrategyID      int64
	Symbol          string
	Side            OrderSide
	PositionSide    PositionSide
	Type            OrderType
	Price           decimal.Decimal
	StopPrice       decimal.Decimal
	CallbackRate    decimal.Decimal
	Quantity        decimal.Decimal
	Leverage        int
	ExchangeOrderID int64 // 0 until the exchange acknowledged the order
	ClientOrderID   string
	Status          OrderStatus
	ExchangeStatus  ExchangeOrderStatus
	AvgPrice        decimal.Decimal
	ExecutedQty     decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	RealizedPnL     decimal.Decimal
	LastTradeID     int64
	OrderNumber     int // ladder index for LONG_LIMIT orders
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FillPrice returns the average fill price, falling back to the limit/stop price.
func (o *Order) FillPrice() decimal.Decimal {
	if o.AvgPrice.IsPositive() {
		return o.AvgPrice
	}
	if o.Price.IsPositive() {
		return o.Price
	}
	return o.StopPrice
}

// FilledQuantity returns the executed quantity, falling back to the requested quantity.
func (o *Order) FilledQuantity() decimal.Decimal {
	if o.ExecutedQty.IsPositive() {
		return o.ExecutedQty
	}
	return o.Quantity
}
