package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gridHedgeBot/internal/domain"
)

const orderColumns = `id, strategy_id, symbol, side, position_side, type, price, stop_price, callback_rate,
	quantity, leverage, exchange_order_id, client_order_id, local_status, exchange_status, avg_price,
	executed_qty, commission, commission_asset, realized_pnl, last_trade_id, order_number, created_at, updated_at`

// CreateOrder saves a new order and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) (int64, error) {
	const query = `
	INSERT INTO orders (strategy_id, symbol, side, position_side, type, price, stop_price, callback_rate,
	                    quantity, leverage, exchange_order_id, client_order_id, local_status, exchange_status,
	                    avg_price, executed_qty, commission, commission_asset, realized_pnl, last_trade_id,
	                    order_number, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	result, err := r.q.ExecContext(ctx, query,
		o.StrategyID, o.Symbol, o.Side, o.PositionSide, o.Type, o.Price, o.StopPrice, o.CallbackRate,
		o.Quantity, o.Leverage, nullableID(o.ExchangeOrderID), o.ClientOrderID, o.Status, o.ExchangeStatus,
		o.AvgPrice, o.ExecutedQty, o.Commission, o.CommissionAsset, o.RealizedPnL, o.LastTradeID,
		o.OrderNumber, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s order for symbol %s: %w", o.Type, o.Symbol, mapWriteErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order %s: %w", o.ClientOrderID, err)
	}
	o.ID = id
	r.logger.Debug(ctx, "Order created", map[string]interface{}{
		"orderID": id, "symbol": o.Symbol, "type": o.Type, "clientOrderID": o.ClientOrderID,
	})
	return id, nil
}

// UpdateOrder persists the mutable fields of an order.
func (r *Repository) UpdateOrder(ctx context.Context, o *domain.Order) error {
	const query = `
	UPDATE orders
	SET exchange_order_id = ?, local_status = ?, exchange_status = ?, avg_price = ?, executed_qty = ?,
	    commission = ?, commission_asset = ?, realized_pnl = ?, last_trade_id = ?, updated_at = ?
	WHERE id = ?`

	o.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		nullableID(o.ExchangeOrderID), o.Status, o.ExchangeStatus, o.AvgPrice, o.ExecutedQty,
		o.Commission, o.CommissionAsset, o.RealizedPnL, o.LastTradeID, o.UpdatedAt,
		o.ID)
	if err != nil {
		return fmt.Errorf("failed to update order ID %d: %w", o.ID, mapWriteErr(err))
	}
	if err := checkAffected(result, "order", o.ID); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Order updated", map[string]interface{}{"orderID": o.ID, "status": o.Status, "exchangeStatus": o.ExchangeStatus})
	return nil
}

// FindOrderByExchangeID retrieves an order by its exchange id.
func (r *Repository) FindOrderByExchangeID(ctx context.Context, symbol string, exchangeOrderID int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE symbol = ? AND exchange_order_id = ?`
	return r.findOneOrder(ctx, query, symbol, exchangeOrderID)
}

// FindOrderByClientID retrieves an order by its client order id.
func (r *Repository) FindOrderByClientID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE client_order_id = ?`
	return r.findOneOrder(ctx, query, clientOrderID)
}

// FindLastFilledOrder returns the most recently updated FILLED order of a role.
func (r *Repository) FindLastFilledOrder(ctx context.Context, strategyID int64, typ domain.OrderType) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
	WHERE strategy_id = ? AND type = ? AND local_status = ?
	ORDER BY updated_at DESC, id DESC LIMIT 1`
	return r.findOneOrder(ctx, query, strategyID, typ, domain.OrderFilled)
}

// FindOrdersByStatus lists a strategy's orders in a status. An empty typ matches every role.
func (r *Repository) FindOrdersByStatus(ctx context.Context, strategyID int64, typ domain.OrderType, status domain.OrderStatus) ([]*domain.Order, error) {
	if typ == "" {
		query := `SELECT ` + orderColumns + ` FROM orders WHERE strategy_id = ? AND local_status = ? ORDER BY id ASC`
		return r.findOrders(ctx, query, strategyID, status)
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE strategy_id = ? AND type = ? AND local_status = ? ORDER BY id ASC`
	return r.findOrders(ctx, query, strategyID, typ, status)
}

// FindOrdersByStrategy lists all orders of a strategy in creation order.
func (r *Repository) FindOrdersByStrategy(ctx context.Context, strategyID int64) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE strategy_id = ? ORDER BY id ASC`
	return r.findOrders(ctx, query, strategyID)
}

// FindOrdersBySymbol lists all orders of a symbol in creation order.
func (r *Repository) FindOrdersBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE symbol = ? ORDER BY id ASC`
	return r.findOrders(ctx, query, symbol)
}

func (r *Repository) findOneOrder(ctx context.Context, query string, args ...interface{}) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return o, nil
}

func (r *Repository) findOrders(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o             domain.Order
		exchangeID    sql.NullInt64
		typ, exchStat string
	)
	err := row.Scan(&o.ID, &o.StrategyID, &o.Symbol, &o.Side, &o.PositionSide, &typ, &o.Price, &o.StopPrice,
		&o.CallbackRate, &o.Quantity, &o.Leverage, &exchangeID, &o.ClientOrderID, &o.Status, &exchStat,
		&o.AvgPrice, &o.ExecutedQty, &o.Commission, &o.CommissionAsset, &o.RealizedPnL, &o.LastTradeID,
		&o.OrderNumber, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = domain.ParseOrderType(typ)
	if exchStat != "" {
		o.ExchangeStatus = domain.ParseExchangeOrderStatus(exchStat)
	}
	if exchangeID.Valid {
		o.ExchangeOrderID = exchangeID.Int64
	}
	return &o, nil
}
