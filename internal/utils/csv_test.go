package utils

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridHedgeBot/internal/domain"
)

func TestWriteOrders(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	orders := []*domain.Order{
		{
			ID: 1, StrategyID: 7, Symbol: "ETHUSDT",
			Type: domain.OrderTypeLongMarket, Side: domain.Buy, PositionSide: domain.PositionSideLong,
			Status: domain.OrderFilled, ExchangeStatus: domain.ExchangeStatusFilled,
			ExchangeOrderID: 991, ClientOrderID: "cid-1",
			Quantity: decimal.RequireFromString("0.1"), AvgPrice: decimal.RequireFromString("2500.5"),
			ExecutedQty: decimal.RequireFromString("0.1"), Commission: decimal.RequireFromString("0.1"),
			CommissionAsset: "USDT", CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrders(&buf, orders))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, orderHeader, rows[0])

	row := rows[1]
	assert.Equal(t, "7", row[1])
	assert.Equal(t, "LONG_MARKET", row[3])
	assert.Equal(t, "991", row[8])
	assert.Equal(t, "2500.5", row[15])
	assert.Equal(t, "2024-03-01T12:00:00Z", row[20])
	assert.Equal(t, "", row[21], "zero time stays empty")
}

func TestWriteOrdersToCSV_CreatesDirectory(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "exports", "orders.csv")
	require.NoError(t, WriteOrdersToCSV(nil, filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strategy_id")
}
