package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind classifies inbound stream messages.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventTradeTick
	EventOrderUpdate
	EventAccountUpdate
	EventListenKeyExpired
)

func (k EventKind) String() string {
	switch k {
	case EventTradeTick:
		return "trade_tick"
	case EventOrderUpdate:
		return "order_update"
	case EventAccountUpdate:
		return "account_update"
	case EventListenKeyExpired:
		return "listen_key_expired"
	default:
		return "unrecognized"
	}
}

// Event is the closed set of messages a symbol pipeline consumes.
// The concrete types are TradeTick, OrderUpdate, AccountUpdate, ListenKeyExpired and Unrecognized.
type Event interface {
	Kind() EventKind
	EventSymbol() string
}

// TradeTick is one aggregated trade print.
type TradeTick struct {
	Symbol   string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time
}

func (TradeTick) Kind() EventKind       { return EventTradeTick }
func (t TradeTick) EventSymbol() string { return t.Symbol }

// OrderUpdate is an order status change pushed on the user-data stream.
type OrderUpdate struct {
	Symbol          string
	ClientOrderID   string
	ExchangeOrderID int64
	Side            OrderSide
	PositionSide    PositionSide
	OrderKind       OrderKind
	ExecutionType   string
	Status          ExchangeOrderStatus
	OrigQty         decimal.Decimal
	Price           decimal.Decimal
	AvgPrice        decimal.Decimal
	StopPrice       decimal.Decimal
	LastFilledQty   decimal.Decimal
	CumFilledQty    decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	RealizedPnL     decimal.Decimal
	TradeID         int64
	Time            time.Time
}

func (OrderUpdate) Kind() EventKind       { return EventOrderUpdate }
func (u OrderUpdate) EventSymbol() string { return u.Symbol }

// PositionUpdate is one position line of an account update.
type PositionUpdate struct {
	Symbol        string
	PositionSide  PositionSide
	Amount        decimal.Decimal // signed, as reported
	EntryPrice    decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// AccountUpdate carries the position changes of a single symbol.
type AccountUpdate struct {
	Symbol    string
	Reason    string
	Positions []PositionUpdate
	Time      time.Time
}

func (AccountUpdate) Kind() EventKind       { return EventAccountUpdate }
func (u AccountUpdate) EventSymbol() string { return u.Symbol }

// ListenKeyExpired signals that the user-data stream must be re-established.
type ListenKeyExpired struct {
	Time time.Time
}

func (ListenKeyExpired) Kind() EventKind     { return EventListenKeyExpired }
func (ListenKeyExpired) EventSymbol() string { return "" }

// Unrecognized wraps a message whose type is not part of the schema.
type Unrecognized struct {
	Type   string
	Symbol string
}

func (Unrecognized) Kind() EventKind       { return EventUnrecognized }
func (u Unrecognized) EventSymbol() string { return u.Symbol }
