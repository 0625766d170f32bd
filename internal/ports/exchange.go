package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/domain"
)

// InstrumentFilters carries the trading rules of a symbol as published by the exchange.
type InstrumentFilters struct {
	Symbol      string
	StepSize    string // LOT_SIZE step, e.g. "0.001"
	TickSize    string // PRICE_FILTER tick, e.g. "0.10"
	MinNotional decimal.Decimal
}

// OrderRequest is a fully quantized order ready to be sent to the exchange.
// Numeric fields are pre-formatted strings; empty means "not sent".
type OrderRequest struct {
	Symbol        string
	ClientOrderID string
	Side          domain.OrderSide
	PositionSide  domain.PositionSide
	Kind          domain.OrderKind
	Quantity      string
	Price         string
	StopPrice     string
	CallbackRate  string
	TimeInForce   string
}

// OrderResult represents the essential details returned for an order.
type OrderResult struct {
	ExchangeOrderID int64
	ClientOrderID   string
	Symbol          string
	Status          domain.ExchangeOrderStatus
	AvgPrice        decimal.Decimal
	ExecutedQty     decimal.Decimal
	UpdateTime      time.Time
}

// PositionSnapshot is one side of an exchange position.
type PositionSnapshot struct {
	Quantity       decimal.Decimal // absolute size
	EntryPrice     decimal.Decimal
	BreakEvenPrice decimal.Decimal
	MarkPrice      decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	Leverage       int
}

// PositionPair holds both hedge-mode sides of a symbol.
type PositionPair struct {
	Symbol string
	Long   PositionSnapshot
	Short  PositionSnapshot
}

// IsFlat reports whether neither side holds quantity.
func (p *PositionPair) IsFlat() bool {
	return p == nil || (p.Long.Quantity.IsZero() && p.Short.Quantity.IsZero())
}

// Side returns the snapshot for one position side.
func (p *PositionPair) Side(ps domain.PositionSide) PositionSnapshot {
	if ps == domain.PositionSideShort {
		return p.Short
	}
	return p.Long
}

// AccountTrade is one execution from the account trade history.
type AccountTrade struct {
	TradeID         int64
	OrderID         int64
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	RealizedPnL     decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	Time            time.Time
}

// ExchangeClient is the REST capability contract the engine consumes.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error
	// GetInstrumentFilters returns step/tick sizes of a symbol.
	GetInstrumentFilters(ctx context.Context, symbol string) (*InstrumentFilters, error)
	// CreateOrder places an order.
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	// CancelOrder cancels a resting order. ErrOrderNotFound means it is already final.
	CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error
	// CancelAllOpenOrders cancels every resting order on the symbol.
	CancelAllOpenOrders(ctx context.Context, symbol string) error
	// GetOrder looks an order up by exchange id, or by client id when exchangeOrderID is 0.
	GetOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientOrderID string) (*OrderResult, error)
	// GetPosition returns both sides of the symbol's position.
	GetPosition(ctx context.Context, symbol string) (*PositionPair, error)
	// GetAccountTrades returns executions of a symbol, filtered by order when orderID != 0.
	GetAccountTrades(ctx context.Context, symbol string, orderID int64) ([]AccountTrade, error)
	// GetLastPrice returns the last traded price.
	GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// SetLeverage sets the leverage for a specific symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	// IsDualSidePosition reports whether hedge (dual-side) position mode is enabled.
	IsDualSidePosition(ctx context.Context) (bool, error)
	// EnableDualSidePosition switches the account to hedge position mode.
	EnableDualSidePosition(ctx context.Context) error
}

// StreamClient is the websocket capability contract consumed by the stream supervisor.
// Serve* calls return doneCh (closed when the connection ends) and stopCh (send to close it).
type StreamClient interface {
	StartUserStream(ctx context.Context) (listenKey string, err error)
	KeepaliveUserStream(ctx context.Context, listenKey string) error
	CloseUserStream(ctx context.Context, listenKey string) error
	ServeTrades(symbol string, handler func(domain.Event), errHandler func(error)) (doneCh, stopCh chan struct{}, err error)
	ServeUserData(listenKey string, handler func(domain.Event), errHandler func(error)) (doneCh, stopCh chan struct{}, err error)
}
