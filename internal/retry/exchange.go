package retry

import (
	"context"

	"github.com/shopspring/decimal"

	"gridHedgeBot/internal/ports"
)

// Exchange wraps a ports.ExchangeClient so every call follows the retry policy.
type Exchange struct {
	inner  ports.ExchangeClient
	policy Policy
	logger ports.Logger
}

var _ ports.ExchangeClient = (*Exchange)(nil)

// NewExchange creates the retrying decorator.
func NewExchange(inner ports.ExchangeClient, policy Policy, logger ports.Logger) *Exchange {
	return &Exchange{inner: inner, policy: policy, logger: logger}
}

func (e *Exchange) SetServerTime(ctx context.Context) error {
	return Do(ctx, e.policy, "SetServerTime", e.logger, e.inner.SetServerTime)
}

func (e *Exchange) GetInstrumentFilters(ctx context.Context, symbol string) (*ports.InstrumentFilters, error) {
	return Value(ctx, e.policy, "GetInstrumentFilters", e.logger, func(ctx context.Context) (*ports.InstrumentFilters, error) {
		return e.inner.GetInstrumentFilters(ctx, symbol)
	})
}

// CreateOrder is safe to repeat: the client order id makes a duplicate create fail instead of placing twice.
func (e *Exchange) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	return Value(ctx, e.policy, "CreateOrder", e.logger, func(ctx context.Context) (*ports.OrderResult, error) {
		return e.inner.CreateOrder(ctx, req)
	})
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol string, exchangeOrderID int64) error {
	return Do(ctx, e.policy, "CancelOrder", e.logger, func(ctx context.Context) error {
		return e.inner.CancelOrder(ctx, symbol, exchangeOrderID)
	})
}

func (e *Exchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	return Do(ctx, e.policy, "CancelAllOpenOrders", e.logger, func(ctx context.Context) error {
		return e.inner.CancelAllOpenOrders(ctx, symbol)
	})
}

func (e *Exchange) GetOrder(ctx context.Context, symbol string, exchangeOrderID int64, clientOrderID string) (*ports.OrderResult, error) {
	return Value(ctx, e.policy, "GetOrder", e.logger, func(ctx context.Context) (*ports.OrderResult, error) {
		return e.inner.GetOrder(ctx, symbol, exchangeOrderID, clientOrderID)
	})
}

func (e *Exchange) GetPosition(ctx context.Context, symbol string) (*ports.PositionPair, error) {
	return Value(ctx, e.policy, "GetPosition", e.logger, func(ctx context.Context) (*ports.PositionPair, error) {
		return e.inner.GetPosition(ctx, symbol)
	})
}

func (e *Exchange) GetAccountTrades(ctx context.Context, symbol string, orderID int64) ([]ports.AccountTrade, error) {
	return Value(ctx, e.policy, "GetAccountTrades", e.logger, func(ctx context.Context) ([]ports.AccountTrade, error) {
		return e.inner.GetAccountTrades(ctx, symbol, orderID)
	})
}

func (e *Exchange) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return Value(ctx, e.policy, "GetLastPrice", e.logger, func(ctx context.Context) (decimal.Decimal, error) {
		return e.inner.GetLastPrice(ctx, symbol)
	})
}

func (e *Exchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return Do(ctx, e.policy, "SetLeverage", e.logger, func(ctx context.Context) error {
		return e.inner.SetLeverage(ctx, symbol, leverage)
	})
}

func (e *Exchange) IsDualSidePosition(ctx context.Context) (bool, error) {
	return Value(ctx, e.policy, "IsDualSidePosition", e.logger, e.inner.IsDualSidePosition)
}

func (e *Exchange) EnableDualSidePosition(ctx context.Context) error {
	return Do(ctx, e.policy, "EnableDualSidePosition", e.logger, e.inner.EnableDualSidePosition)
}
