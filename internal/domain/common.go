package domain

import "strings"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the closing side for an order opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseOrderSide normalizes a side string. Unknown values yield "".
func ParseOrderSide(s string) OrderSide {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy
	case "SELL":
		return Sell
	default:
		return ""
	}
}

// PositionSide is the hedge-mode side a position or order belongs to.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// ParsePositionSide normalizes a position side string. Unknown values (including BOTH) yield "".
func ParsePositionSide(s string) PositionSide {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG":
		return PositionSideLong
	case "SHORT":
		return PositionSideShort
	default:
		return ""
	}
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "OPEN"
	PositionUpdated PositionStatus = "UPDATED"
	PositionClosed  PositionStatus = "CLOSED"
)

// CloseReason indicates why a strategy's positions were closed.
type CloseReason string

const (
	CloseReasonTakeProfit   CloseReason = "TAKE_PROFIT"
	CloseReasonTrailingStop CloseReason = "TRAILING_STOP"
	CloseReasonProfitLock   CloseReason = "PROFIT_LOCK"
	CloseReasonHedgeStop    CloseReason = "HEDGE_STOP_LOSS"
	CloseReasonExchange     CloseReason = "EXCHANGE_FLAT" // exchange reported zero quantity
)
