package precision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockRepo struct {
	mu     sync.Mutex
	stored map[string]domain.SymbolPrecision
	saves  int
}

func (m *mockRepo) GetPrecision(ctx context.Context, symbol string) (*domain.SymbolPrecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.stored[symbol]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockRepo) SavePrecision(ctx context.Context, p *domain.SymbolPrecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[p.Symbol] = *p
	m.saves++
	return nil
}

type mockFilters struct {
	calls   atomic.Int32
	filters *ports.InstrumentFilters
	err     error
}

func (m *mockFilters) GetInstrumentFilters(ctx context.Context, symbol string) (*ports.InstrumentFilters, error) {
	m.calls.Add(1)
	return m.filters, m.err
}

func TestQuantize_Truncates(t *testing.T) {
	tests := []struct {
		value     string
		precision int32
		want      string
	}{
		{"123.456789", 2, "123.45"},
		{"123.459999", 2, "123.45"},
		{"0.0019", 3, "0.001"},
		{"-1.239", 2, "-1.23"},
		{"42", 0, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := Quantize(decimal.RequireFromString(tt.value), tt.precision)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestFormat_PadsToPrecision(t *testing.T) {
	assert.Equal(t, "95.00", Format(decimal.RequireFromString("95"), 2))
	assert.Equal(t, "0.015", Format(decimal.RequireFromString("0.0159"), 3))
	assert.Equal(t, "7", Format(decimal.RequireFromString("7.9"), 0))
}

func TestFromStep(t *testing.T) {
	tests := map[string]int32{
		"0.001":    3,
		"0.001000": 3,
		"0.10":     1,
		"0.01":     2,
		"1":        0,
		"1.00000":  0,
		"10":       0,
	}
	for step, want := range tests {
		assert.Equal(t, want, FromStep(step), step)
	}
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("miss fetches once and persists", func(t *testing.T) {
		repo := &mockRepo{stored: map[string]domain.SymbolPrecision{}}
		ex := &mockFilters{filters: &ports.InstrumentFilters{Symbol: "ETHUSDT", StepSize: "0.001", TickSize: "0.01"}}
		c := NewCache(repo, ex, &mockLogger{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := c.Get(ctx, "ETHUSDT")
				assert.NoError(t, err)
				assert.Equal(t, int32(3), p.QuantityPrecision)
				assert.Equal(t, int32(2), p.PricePrecision)
			}()
		}
		wg.Wait()

		_, err := c.Get(ctx, "ETHUSDT")
		require.NoError(t, err)
		assert.Equal(t, int32(1), ex.calls.Load())
		assert.Equal(t, 1, repo.saves)
	})

	t.Run("stored value skips exchange", func(t *testing.T) {
		repo := &mockRepo{stored: map[string]domain.SymbolPrecision{
			"BTCUSDT": {Symbol: "BTCUSDT", QuantityPrecision: 3, PricePrecision: 1},
		}}
		ex := &mockFilters{}
		c := NewCache(repo, ex, &mockLogger{})

		p, err := c.Get(ctx, "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, int32(1), p.PricePrecision)
		assert.Equal(t, int32(0), ex.calls.Load())
	})

	t.Run("exchange failure is surfaced and not cached", func(t *testing.T) {
		repo := &mockRepo{stored: map[string]domain.SymbolPrecision{}}
		ex := &mockFilters{err: ports.ErrExchangeUnavailable}
		c := NewCache(repo, ex, &mockLogger{})

		_, err := c.Get(ctx, "XRPUSDT")
		assert.True(t, errors.Is(err, ports.ErrExchangeUnavailable))

		ex.err = nil
		ex.filters = &ports.InstrumentFilters{Symbol: "XRPUSDT", StepSize: "0.1", TickSize: "0.0001"}
		p, err := c.Get(ctx, "XRPUSDT")
		require.NoError(t, err)
		assert.Equal(t, int32(4), p.PricePrecision)
	})
}
