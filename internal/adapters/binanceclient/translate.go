package binanceclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// --- Translation Helpers ---

// parseDecimal parses an exchange numeric string; empty means zero.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s '%s': %w", field, s, err)
	}
	return d, nil
}

// lenientDecimal is parseDecimal for fields where garbage is treated as zero.
func lenientDecimal(s string) decimal.Decimal {
	d, _ := parseDecimal("", s)
	return d
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	return &ports.OrderResult{
		ExchangeOrderID: order.OrderID,
		ClientOrderID:   order.ClientOrderID,
		Symbol:          order.Symbol,
		Status:          domain.ParseExchangeOrderStatus(string(order.Status)),
		AvgPrice:        lenientDecimal(order.AvgPrice),
		ExecutedQty:     lenientDecimal(order.ExecutedQuantity),
		UpdateTime:      time.UnixMilli(order.UpdateTime),
	}
}

func translateOrder(order *futures.Order) *ports.OrderResult {
	if order == nil {
		return nil
	}
	return &ports.OrderResult{
		ExchangeOrderID: order.OrderID,
		ClientOrderID:   order.ClientOrderID,
		Symbol:          order.Symbol,
		Status:          domain.ParseExchangeOrderStatus(string(order.Status)),
		AvgPrice:        lenientDecimal(order.AvgPrice),
		ExecutedQty:     lenientDecimal(order.ExecutedQuantity),
		UpdateTime:      time.UnixMilli(order.UpdateTime),
	}
}

// translatePositionPair folds the hedge-mode position lines of a symbol into one pair.
// Quantities are reported unsigned.
func translatePositionPair(symbol string, positions []*futures.PositionRisk) (*ports.PositionPair, error) {
	pair := &ports.PositionPair{Symbol: symbol}
	for _, pos := range positions {
		if pos == nil || pos.Symbol != symbol {
			continue
		}
		amt, err := parseDecimal("positionAmt", pos.PositionAmt)
		if err != nil {
			return nil, err
		}
		entry, err := parseDecimal("entryPrice", pos.EntryPrice)
		if err != nil {
			return nil, err
		}
		leverage, _ := strconv.Atoi(pos.Leverage) // Leverage is string in go-binance
		snap := ports.PositionSnapshot{
			Quantity:       amt.Abs(),
			EntryPrice:     entry,
			BreakEvenPrice: lenientDecimal(pos.BreakEvenPrice),
			MarkPrice:      lenientDecimal(pos.MarkPrice),
			UnrealizedPnL:  lenientDecimal(pos.UnRealizedProfit),
			Leverage:       leverage,
		}
		switch domain.ParsePositionSide(pos.PositionSide) {
		case domain.PositionSideLong:
			pair.Long = snap
		case domain.PositionSideShort:
			pair.Short = snap
		}
	}
	return pair, nil
}

func translateAccountTrades(trades []*futures.AccountTrade, orderID int64) ([]ports.AccountTrade, error) {
	out := make([]ports.AccountTrade, 0, len(trades))
	for _, t := range trades {
		if t == nil || (orderID != 0 && t.OrderID != orderID) {
			continue
		}
		price, err := parseDecimal("price", t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseDecimal("qty", t.Quantity)
		if err != nil {
			return nil, err
		}
		pnl, err := parseDecimal("realizedPnl", t.RealizedPnl)
		if err != nil {
			return nil, err
		}
		out = append(out, ports.AccountTrade{
			TradeID:         t.ID,
			OrderID:         t.OrderID,
			Price:           price,
			Quantity:        qty,
			RealizedPnL:     pnl,
			Commission:      lenientDecimal(t.Commission),
			CommissionAsset: t.CommissionAsset,
			Time:            time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

func translateFilters(sym *futures.Symbol) (*ports.InstrumentFilters, error) {
	if sym == nil {
		return nil, errors.New("received nil symbol info")
	}
	lot := sym.LotSizeFilter()
	price := sym.PriceFilter()
	if lot == nil || price == nil {
		return nil, fmt.Errorf("symbol %s is missing LOT_SIZE or PRICE_FILTER", sym.Symbol)
	}
	filters := &ports.InstrumentFilters{
		Symbol:   sym.Symbol,
		StepSize: lot.StepSize,
		TickSize: price.TickSize,
	}
	if mn := sym.MinNotionalFilter(); mn != nil {
		filters.MinNotional = lenientDecimal(mn.Notional)
	}
	return filters, nil
}

func translateAggTrade(event *futures.WsAggTradeEvent) (domain.TradeTick, error) {
	if event == nil {
		return domain.TradeTick{}, errors.New("received nil trade event")
	}
	price, err := parseDecimal("price", event.Price)
	if err != nil {
		return domain.TradeTick{}, err
	}
	if !price.IsPositive() {
		return domain.TradeTick{}, fmt.Errorf("non-positive trade price '%s'", event.Price)
	}
	qty, err := parseDecimal("quantity", event.Quantity)
	if err != nil {
		return domain.TradeTick{}, err
	}
	return domain.TradeTick{
		Symbol:   event.Symbol,
		Price:    price,
		Quantity: qty,
		Time:     time.UnixMilli(event.TradeTime),
	}, nil
}

// translateUserData decodes one user-data message into domain events. Account updates are
// split into one event per symbol; unknown message types become Unrecognized.
func translateUserData(event *futures.WsUserDataEvent) ([]domain.Event, error) {
	if event == nil {
		return nil, errors.New("received nil user-data event")
	}
	switch event.Event {
	case futures.UserDataEventTypeListenKeyExpired:
		return []domain.Event{domain.ListenKeyExpired{Time: time.UnixMilli(event.Time)}}, nil
	case futures.UserDataEventTypeOrderTradeUpdate:
		u, err := translateOrderTradeUpdate(&event.OrderTradeUpdate, event.Time)
		if err != nil {
			return nil, err
		}
		return []domain.Event{u}, nil
	case futures.UserDataEventTypeAccountUpdate:
		return translateAccountUpdate(&event.AccountUpdate, event.Time)
	default:
		return []domain.Event{domain.Unrecognized{Type: string(event.Event)}}, nil
	}
}

func translateOrderTradeUpdate(o *futures.WsOrderTradeUpdate, eventTime int64) (*domain.OrderUpdate, error) {
	origQty, err := parseDecimal("origQty", o.OriginalQty)
	if err != nil {
		return nil, err
	}
	cumQty, err := parseDecimal("cumFilledQty", o.AccumulatedFilledQty)
	if err != nil {
		return nil, err
	}
	avg, err := parseDecimal("avgPrice", o.AveragePrice)
	if err != nil {
		return nil, err
	}
	// Triggered stops are reported with type MARKET; the original type keeps the role.
	kind := domain.OrderKind(o.OriginalType)
	if kind == "" {
		kind = domain.OrderKind(o.Type)
	}
	ts := o.TradeTime
	if ts == 0 {
		ts = eventTime
	}
	return &domain.OrderUpdate{
		Symbol:          o.Symbol,
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: o.ID,
		Side:            domain.ParseOrderSide(string(o.Side)),
		PositionSide:    domain.ParsePositionSide(string(o.PositionSide)),
		OrderKind:       kind,
		ExecutionType:   string(o.ExecutionType),
		Status:          domain.ParseExchangeOrderStatus(string(o.Status)),
		OrigQty:         origQty,
		Price:           lenientDecimal(o.OriginalPrice),
		AvgPrice:        avg,
		StopPrice:       lenientDecimal(o.StopPrice),
		LastFilledQty:   lenientDecimal(o.LastFilledQty),
		CumFilledQty:    cumQty,
		Commission:      lenientDecimal(o.Commission),
		CommissionAsset: o.CommissionAsset,
		RealizedPnL:     lenientDecimal(o.RealizedPnL),
		TradeID:         o.TradeID,
		Time:            time.UnixMilli(ts),
	}, nil
}

func translateAccountUpdate(a *futures.WsAccountUpdate, eventTime int64) ([]domain.Event, error) {
	bySymbol := make(map[string]*domain.AccountUpdate)
	var order []string
	for _, p := range a.Positions {
		side := domain.ParsePositionSide(string(p.Side))
		if side == "" {
			continue
		}
		amt, err := parseDecimal("positionAmt", p.Amount)
		if err != nil {
			return nil, err
		}
		u, ok := bySymbol[p.Symbol]
		if !ok {
			u = &domain.AccountUpdate{Symbol: p.Symbol, Reason: string(a.Reason), Time: time.UnixMilli(eventTime)}
			bySymbol[p.Symbol] = u
			order = append(order, p.Symbol)
		}
		u.Positions = append(u.Positions, domain.PositionUpdate{
			Symbol:        p.Symbol,
			PositionSide:  side,
			Amount:        amt,
			EntryPrice:    lenientDecimal(p.EntryPrice),
			UnrealizedPnL: lenientDecimal(p.UnrealizedPnL),
		})
	}
	events := make([]domain.Event, 0, len(order))
	for _, symbol := range order {
		events = append(events, bySymbol[symbol])
	}
	return events, nil
}
