package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"gridHedgeBot/internal/domain"
)

const strategyColumns = `id, name, symbol, side, position_side, amount_type, amount, leverage,
	settings, status, status_reason, created_at, updated_at`

// CreateStrategy saves a new strategy and returns its assigned ID.
func (r *Repository) CreateStrategy(ctx context.Context, s *domain.StrategyInstance) (int64, error) {
	const query = `
	INSERT INTO strategies (name, symbol, side, position_side, amount_type, amount, leverage,
	                        settings, status, status_reason, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	settings, err := sonic.MarshalString(s.Settings)
	if err != nil {
		return 0, fmt.Errorf("failed to encode settings for strategy %s: %w", s.Symbol, err)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	result, err := r.q.ExecContext(ctx, query,
		s.Name, s.Symbol, s.Side, s.PositionSide, s.Open.AmountType, s.Open.Amount, s.Open.Leverage,
		settings, s.Status, s.StatusReason, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert strategy for symbol %s: %w", s.Symbol, mapWriteErr(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for strategy %s: %w", s.Symbol, err)
	}
	s.ID = id
	r.logger.Debug(ctx, "Strategy created", map[string]interface{}{"strategyID": id, "symbol": s.Symbol, "status": s.Status})
	return id, nil
}

// UpdateStrategyStatus changes the status and reason of a strategy.
func (r *Repository) UpdateStrategyStatus(ctx context.Context, id int64, status domain.StrategyStatus, reason string) error {
	const query = `UPDATE strategies SET status = ?, status_reason = ?, updated_at = ? WHERE id = ?`

	result, err := r.q.ExecContext(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update strategy ID %d: %w", id, mapWriteErr(err))
	}
	if err := checkAffected(result, "strategy", id); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Strategy status updated", map[string]interface{}{"strategyID": id, "status": status})
	return nil
}

// FindStrategyByID retrieves a strategy by ID.
func (r *Repository) FindStrategyByID(ctx context.Context, id int64) (*domain.StrategyInstance, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = ?`
	s, err := scanStrategy(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query strategy by ID %d: %w", id, err)
	}
	return s, nil
}

// FindActiveStrategy retrieves the ACTIVE strategy of a symbol, if any.
func (r *Repository) FindActiveStrategy(ctx context.Context, symbol string) (*domain.StrategyInstance, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE symbol = ? AND status = ?`
	s, err := scanStrategy(r.q.QueryRowContext(ctx, query, symbol, domain.StrategyActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active strategy for symbol %s: %w", symbol, err)
	}
	return s, nil
}

// FindStrategiesByStatus lists strategies in a status, oldest first.
func (r *Repository) FindStrategiesByStatus(ctx context.Context, status domain.StrategyStatus) ([]*domain.StrategyInstance, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE status = ? ORDER BY id ASC`

	rows, err := r.q.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies with status %s: %w", status, err)
	}
	defer rows.Close()

	out := make([]*domain.StrategyInstance, 0)
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy rows: %w", err)
	}
	return out, nil
}

func scanStrategy(row scanner) (*domain.StrategyInstance, error) {
	var (
		s        domain.StrategyInstance
		settings string
	)
	err := row.Scan(&s.ID, &s.Name, &s.Symbol, &s.Side, &s.PositionSide, &s.Open.AmountType,
		&s.Open.Amount, &s.Open.Leverage, &settings, &s.Status, &s.StatusReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(settings, &s.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings of strategy %d: %w", s.ID, err)
	}
	return &s, nil
}
