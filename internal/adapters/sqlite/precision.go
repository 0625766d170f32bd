package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gridHedgeBot/internal/domain"
)

// GetPrecision returns the stored precision of symbol, or nil, nil.
func (r *Repository) GetPrecision(ctx context.Context, symbol string) (*domain.SymbolPrecision, error) {
	const query = `SELECT symbol, quantity_precision, price_precision FROM symbol_precision WHERE symbol = ?`

	var p domain.SymbolPrecision
	err := r.q.QueryRowContext(ctx, query, symbol).Scan(&p.Symbol, &p.QuantityPrecision, &p.PricePrecision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query precision for symbol %s: %w", symbol, err)
	}
	return &p, nil
}

// SavePrecision inserts or replaces the precision of a symbol.
func (r *Repository) SavePrecision(ctx context.Context, p *domain.SymbolPrecision) error {
	const query = `
	INSERT INTO symbol_precision (symbol, quantity_precision, price_precision, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		quantity_precision = excluded.quantity_precision,
		price_precision = excluded.price_precision,
		updated_at = excluded.updated_at`

	if _, err := r.q.ExecContext(ctx, query, p.Symbol, p.QuantityPrecision, p.PricePrecision, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save precision for symbol %s: %w", p.Symbol, err)
	}
	r.logger.Debug(ctx, "Symbol precision saved", map[string]interface{}{"symbol": p.Symbol})
	return nil
}
