// Package precision caches per-symbol quantity/price precision and truncates values to it.
package precision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

// FilterSource provides exchange instrument filters.
type FilterSource interface {
	GetInstrumentFilters(ctx context.Context, symbol string) (*ports.InstrumentFilters, error)
}

// Cache resolves symbol precision from memory, then storage, then the exchange.
// Entries are never evicted: precision does not change for a listed symbol.
type Cache struct {
	repo     ports.PrecisionRepository
	exchange FilterSource
	logger   ports.Logger

	entries sync.Map // symbol -> domain.SymbolPrecision
	group   singleflight.Group
}

// NewCache creates a precision cache.
func NewCache(repo ports.PrecisionRepository, exchange FilterSource, logger ports.Logger) *Cache {
	return &Cache{repo: repo, exchange: exchange, logger: logger}
}

// Get returns the precision of symbol.
func (c *Cache) Get(ctx context.Context, symbol string) (domain.SymbolPrecision, error) {
	if v, ok := c.entries.Load(symbol); ok {
		return v.(domain.SymbolPrecision), nil
	}

	v, err, _ := c.group.Do(symbol, func() (interface{}, error) {
		return c.load(ctx, symbol)
	})
	if err != nil {
		return domain.SymbolPrecision{}, err
	}
	return v.(domain.SymbolPrecision), nil
}

func (c *Cache) load(ctx context.Context, symbol string) (domain.SymbolPrecision, error) {
	op := "PrecisionCache.load"

	stored, err := c.repo.GetPrecision(ctx, symbol)
	if err != nil {
		return domain.SymbolPrecision{}, fmt.Errorf("%s: read stored precision for %s: %w", op, symbol, err)
	}
	if stored != nil {
		c.entries.Store(symbol, *stored)
		return *stored, nil
	}

	filters, err := c.exchange.GetInstrumentFilters(ctx, symbol)
	if err != nil {
		return domain.SymbolPrecision{}, fmt.Errorf("%s: fetch filters for %s: %w", op, symbol, err)
	}
	p := domain.SymbolPrecision{
		Symbol:            symbol,
		QuantityPrecision: FromStep(filters.StepSize),
		PricePrecision:    FromStep(filters.TickSize),
	}
	if err := c.repo.SavePrecision(ctx, &p); err != nil {
		c.logger.Warn(ctx, op+": failed to persist precision", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}
	c.entries.Store(symbol, p)
	c.logger.Info(ctx, op+": precision resolved from exchange", map[string]interface{}{
		"symbol": symbol, "quantityPrecision": p.QuantityPrecision, "pricePrecision": p.PricePrecision,
	})
	return p, nil
}

// FromStep returns the number of significant fractional digits of a step or tick string.
// "0.001000" -> 3, "0.10" -> 1, "1" -> 0.
func FromStep(step string) int32 {
	step = strings.TrimSpace(step)
	dot := strings.IndexByte(step, '.')
	if dot < 0 {
		return 0
	}
	frac := strings.TrimRight(step[dot+1:], "0")
	return int32(len(frac))
}

// Quantize truncates value toward zero at precision fractional digits. It never rounds up.
func Quantize(value decimal.Decimal, precision int32) decimal.Decimal {
	return value.Truncate(precision)
}

// Format returns the truncated value with exactly precision fractional digits.
func Format(value decimal.Decimal, precision int32) string {
	return Quantize(value, precision).StringFixed(precision)
}
