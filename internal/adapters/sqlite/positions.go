package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gridHedgeBot/internal/domain"
)

const positionColumns = `id, strategy_id, symbol, position_side, quantity, entry_price, break_even_price,
	adjusted_break_even_price, status, pnl, activation_price, created_at, updated_at, closed_at`

// CreatePosition saves a new position and returns its assigned ID.
// A second non-CLOSED position for the same (symbol, side) fails with ports.ErrDuplicateEntry.
func (r *Repository) CreatePosition(ctx context.Context, p *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (strategy_id, symbol, position_side, quantity, entry_price, break_even_price,
	                       adjusted_break_even_price, status, pnl, activation_price, created_at, updated_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	result, err := r.q.ExecContext(ctx, query,
		p.StrategyID, p.Symbol, p.PositionSide, p.Quantity, p.EntryPrice, p.BreakEvenPrice,
		p.AdjustedBreakEvenPrice, p.Status, p.PnL, p.ActivationPrice, p.CreatedAt, p.UpdatedAt, nullableTime(p.ClosedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s position for symbol %s: %w", p.PositionSide, p.Symbol, mapWriteErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", p.Symbol, err)
	}
	p.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "symbol": p.Symbol, "side": p.PositionSide})
	return id, nil
}

// UpdatePosition modifies an existing position based on its ID.
func (r *Repository) UpdatePosition(ctx context.Context, p *domain.Position) error {
	const query = `
	UPDATE positions
	SET quantity = ?, entry_price = ?, break_even_price = ?, adjusted_break_even_price = ?, status = ?,
	    pnl = ?, activation_price = ?, updated_at = ?, closed_at = ?
	WHERE id = ?`

	p.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		p.Quantity, p.EntryPrice, p.BreakEvenPrice, p.AdjustedBreakEvenPrice, p.Status,
		p.PnL, p.ActivationPrice, p.UpdatedAt, nullableTime(p.ClosedAt),
		p.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", p.ID, mapWriteErr(err))
	}
	if err := checkAffected(result, "position", p.ID); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": p.ID, "symbol": p.Symbol, "status": p.Status})
	return nil
}

// FindOpenPosition retrieves the non-CLOSED position of (symbol, side), if any.
func (r *Repository) FindOpenPosition(ctx context.Context, symbol string, side domain.PositionSide) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE symbol = ? AND position_side = ? AND status != ?`

	p, err := scanPosition(r.q.QueryRowContext(ctx, query, symbol, side, domain.PositionClosed))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query open %s position for symbol %s: %w", side, symbol, err)
	}
	return p, nil
}

// FindPositionsByStrategy lists all positions of a strategy in creation order.
func (r *Repository) FindPositionsByStrategy(ctx context.Context, strategyID int64) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE strategy_id = ? ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions of strategy %d: %w", strategyID, err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		p        domain.Position
		closedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.StrategyID, &p.Symbol, &p.PositionSide, &p.Quantity, &p.EntryPrice,
		&p.BreakEvenPrice, &p.AdjustedBreakEvenPrice, &p.Status, &p.PnL, &p.ActivationPrice,
		&p.CreatedAt, &p.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	return &p, nil
}
