package ports

import (
	"context"

	"gridHedgeBot/internal/domain"
)

// StrategyRepository stores StrategyInstances.
type StrategyRepository interface {
	// CreateStrategy saves a new strategy and returns its assigned ID.
	CreateStrategy(ctx context.Context, s *domain.StrategyInstance) (int64, error)
	// UpdateStrategyStatus changes status and reason; all other fields are immutable.
	UpdateStrategyStatus(ctx context.Context, id int64, status domain.StrategyStatus, reason string) error
	// FindStrategyByID returns nil, nil if not found.
	FindStrategyByID(ctx context.Context, id int64) (*domain.StrategyInstance, error)
	// FindActiveStrategy returns the ACTIVE strategy of a symbol, or nil, nil.
	FindActiveStrategy(ctx context.Context, symbol string) (*domain.StrategyInstance, error)
	// FindStrategiesByStatus lists strategies in a status, oldest first.
	FindStrategiesByStatus(ctx context.Context, status domain.StrategyStatus) ([]*domain.StrategyInstance, error)
}

// OrderRepository stores Orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) (int64, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error
	// FindOrderByExchangeID returns nil, nil if not found.
	FindOrderByExchangeID(ctx context.Context, symbol string, exchangeOrderID int64) (*domain.Order, error)
	// FindOrderByClientID returns nil, nil if not found.
	FindOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error)
	// FindLastFilledOrder returns the most recently filled order of a role, or nil, nil.
	FindLastFilledOrder(ctx context.Context, strategyID int64, typ domain.OrderType) (*domain.Order, error)
	// FindOrdersByStatus lists a strategy's orders in a status, optionally restricted to one role ("" = any).
	FindOrdersByStatus(ctx context.Context, strategyID int64, typ domain.OrderType, status domain.OrderStatus) ([]*domain.Order, error)
	// FindOrdersByStrategy lists all orders of a strategy in creation order.
	FindOrdersByStrategy(ctx context.Context, strategyID int64) ([]*domain.Order, error)
	// FindOrdersBySymbol lists all orders of a symbol in creation order.
	FindOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error)
}

// PositionRepository stores Positions.
type PositionRepository interface {
	CreatePosition(ctx context.Context, p *domain.Position) (int64, error)
	UpdatePosition(ctx context.Context, p *domain.Position) error
	// FindOpenPosition returns the non-CLOSED position of (symbol, side), or nil, nil.
	FindOpenPosition(ctx context.Context, symbol string, side domain.PositionSide) (*domain.Position, error)
	// FindPositionsByStrategy lists all positions of a strategy.
	FindPositionsByStrategy(ctx context.Context, strategyID int64) ([]*domain.Position, error)
}

// PrecisionRepository stores symbol precisions.
type PrecisionRepository interface {
	// GetPrecision returns nil, nil if the symbol is unknown.
	GetPrecision(ctx context.Context, symbol string) (*domain.SymbolPrecision, error)
	SavePrecision(ctx context.Context, p *domain.SymbolPrecision) error
}

// Store bundles all repositories and runs groups of mutations atomically.
type Store interface {
	StrategyRepository
	OrderRepository
	PositionRepository
	PrecisionRepository

	// WithTx runs fn against a transactional view of the store.
	// fn's error (or a panic) rolls the transaction back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
