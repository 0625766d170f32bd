package utils

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gridHedgeBot/internal/domain"
)

var orderHeader = []string{
	"id", "strategy_id", "symbol", "type", "side", "position_side", "status", "exchange_status",
	"exchange_order_id", "client_order_id", "order_number", "quantity", "price", "stop_price",
	"callback_rate", "avg_price", "executed_qty", "commission", "commission_asset", "realized_pnl",
	"created_at", "updated_at",
}

// WriteOrdersToCSV writes the order ledger rows to filename, creating its directory if needed.
func WriteOrdersToCSV(orders []*domain.Order, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteOrders(file, orders)
}

// WriteOrders writes a header and one row per order.
func WriteOrders(w io.Writer, orders []*domain.Order) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(orderHeader); err != nil {
		return err
	}

	for _, o := range orders {
		writer.Write([]string{
			strconv.FormatInt(o.ID, 10),
			strconv.FormatInt(o.StrategyID, 10),
			o.Symbol,
			string(o.Type),
			string(o.Side),
			string(o.PositionSide),
			string(o.Status),
			string(o.ExchangeStatus),
			strconv.FormatInt(o.ExchangeOrderID, 10),
			o.ClientOrderID,
			strconv.Itoa(o.OrderNumber),
			o.Quantity.String(),
			o.Price.String(),
			o.StopPrice.String(),
			o.CallbackRate.String(),
			o.AvgPrice.String(),
			o.ExecutedQty.String(),
			o.Commission.String(),
			o.CommissionAsset,
			o.RealizedPnL.String(),
			formatTime(o.CreatedAt),
			formatTime(o.UpdatedAt),
		})
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
