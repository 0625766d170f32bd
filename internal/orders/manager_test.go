package orders

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridHedgeBot/internal/adapters/sqlite"
	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ledger"
	"gridHedgeBot/internal/ports"
	"gridHedgeBot/internal/retry"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedPrecision struct{ p domain.SymbolPrecision }

func (f fixedPrecision) Get(ctx context.Context, symbol string) (domain.SymbolPrecision, error) {
	p := f.p
	p.Symbol = symbol
	return p, nil
}

// mockExchange implements ports.ExchangeClient for order tests.
type mockExchange struct {
	ports.ExchangeClient
	nextID    int64
	createErr error
	created   []ports.OrderRequest
	canceled  []int64
	cancelErr error
	cancelAll int
	getOrder  func(clientID string) (*ports.OrderResult, error)
	fillKinds map[domain.OrderKind]bool
}

func (m *mockExchange) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	m.created = append(m.created, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextID++
	res := &ports.OrderResult{ExchangeOrderID: m.nextID, ClientOrderID: req.ClientOrderID, Symbol: req.Symbol, Status: domain.ExchangeStatusNew}
	if m.fillKinds[req.Kind] {
		res.Status = domain.ExchangeStatusFilled
		res.AvgPrice = decimal.RequireFromString("100.5")
		res.ExecutedQty = decimal.RequireFromString(req.Quantity)
	}
	return res, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, id int64) error {
	m.canceled = append(m.canceled, id)
	return m.cancelErr
}

func (m *mockExchange) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	m.cancelAll++
	return nil
}

func (m *mockExchange) GetOrder(ctx context.Context, symbol string, id int64, clientID string) (*ports.OrderResult, error) {
	if m.getOrder == nil {
		return nil, ports.ErrOrderNotFound
	}
	return m.getOrder(clientID)
}

func setup(t *testing.T, ex *mockExchange) (*Manager, *sqlite.Repository) {
	t.Helper()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: t.TempDir() + "/orders.db", Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	seq := 0
	m := NewManager(ex, ledger.New(repo, &mockLogger{}), fixedPrecision{domain.SymbolPrecision{QuantityPrecision: 3, PricePrecision: 2}},
		nil, &mockLogger{},
		WithPersistPolicy(retry.Policy{Attempts: 1}),
		WithClientIDGenerator(func() string {
			seq++
			return fmt.Sprintf("cid-%d", seq)
		}),
	)
	return m, repo
}

func order(typ domain.OrderType, side domain.OrderSide, ps domain.PositionSide, qty, price string) *domain.Order {
	o := &domain.Order{
		StrategyID:   1,
		Symbol:       "ETHUSDT",
		Side:         side,
		PositionSide: ps,
		Type:         typ,
		Quantity:     decimal.RequireFromString(qty),
		Leverage:     10,
	}
	if price != "" {
		o.Price = decimal.RequireFromString(price)
		o.StopPrice = o.Price
	}
	return o
}

func TestSubmit_MarketOrderFillsImmediately(t *testing.T) {
	ex := &mockExchange{fillKinds: map[domain.OrderKind]bool{domain.KindMarket: true}}
	m, repo := setup(t, ex)

	o, err := m.Submit(context.Background(), order(domain.OrderTypeLongMarket, domain.Buy, domain.PositionSideLong, "1.23456", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, o.Status)
	assert.Equal(t, "cid-1", o.ClientOrderID)

	require.Len(t, ex.created, 1)
	req := ex.created[0]
	assert.Equal(t, domain.KindMarket, req.Kind)
	assert.Equal(t, "1.234", req.Quantity, "quantity is truncated, never rounded")
	assert.Empty(t, req.Price)

	stored, err := repo.FindOrderByClientID(context.Background(), "cid-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, stored.Status)
	assert.Equal(t, o.ExchangeOrderID, stored.ExchangeOrderID)
	assert.True(t, stored.AvgPrice.Equal(decimal.RequireFromString("100.5")))
}

func TestSubmit_RoleToKindMapping(t *testing.T) {
	tests := []struct {
		typ       domain.OrderType
		side      domain.OrderSide
		ps        domain.PositionSide
		kind      domain.OrderKind
		withPrice bool
		withStop  bool
		tif       string
	}{
		{domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, domain.KindLimit, true, false, "GTC"},
		{domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, domain.KindLimit, true, false, "GTC"},
		{domain.OrderTypeShortLimit, domain.Sell, domain.PositionSideShort, domain.KindStop, true, true, "GTC"},
		{domain.OrderTypeShortStopOpen, domain.Sell, domain.PositionSideShort, domain.KindStopMarket, false, true, ""},
		{domain.OrderTypeShortStopLoss, domain.Buy, domain.PositionSideShort, domain.KindStopMarket, false, true, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			ex := &mockExchange{}
			m, _ := setup(t, ex)
			o, err := m.Submit(context.Background(), order(tt.typ, tt.side, tt.ps, "0.5", "99.999"))
			require.NoError(t, err)
			assert.Equal(t, domain.OrderInProgress, o.Status)

			req := ex.created[0]
			assert.Equal(t, tt.kind, req.Kind)
			assert.Equal(t, tt.tif, req.TimeInForce)
			if tt.withPrice {
				assert.Equal(t, "99.99", req.Price)
			} else {
				assert.Empty(t, req.Price)
			}
			if tt.withStop {
				assert.Equal(t, "99.99", req.StopPrice)
			} else {
				assert.Empty(t, req.StopPrice)
			}
		})
	}
}

func TestSubmit_TrailingCallbackIsClamped(t *testing.T) {
	ex := &mockExchange{}
	m, _ := setup(t, ex)

	o := order(domain.OrderTypeLongTrailingStop, domain.Sell, domain.PositionSideLong, "1", "")
	o.CallbackRate = decimal.RequireFromString("25")
	_, err := m.Submit(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, domain.KindTrailingStopMarket, ex.created[0].Kind)
	assert.Equal(t, "10.0", ex.created[0].CallbackRate)

	assert.Equal(t, "0.1", ClampCallbackRate(decimal.RequireFromString("0.01")).String())
	assert.Equal(t, "0.5", ClampCallbackRate(decimal.RequireFromString("0.5")).String())
}

func TestSubmit_SingleInstanceRoleCancelsPrevious(t *testing.T) {
	ex := &mockExchange{}
	m, repo := setup(t, ex)
	ctx := context.Background()

	first, err := m.Submit(ctx, order(domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, "1", "101"))
	require.NoError(t, err)
	_, err = m.Submit(ctx, order(domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, "2", "102"))
	require.NoError(t, err)

	assert.Equal(t, []int64{first.ExchangeOrderID}, ex.canceled)
	resting, err := repo.FindOrdersByStatus(ctx, 1, domain.OrderTypeLongTakeProfit, domain.OrderInProgress)
	require.NoError(t, err)
	require.Len(t, resting, 1)
	assert.True(t, resting[0].Price.Equal(decimal.RequireFromString("102")))
}

func TestSubmit_LadderOrdersAreNotSingleInstance(t *testing.T) {
	ex := &mockExchange{}
	m, _ := setup(t, ex)
	ctx := context.Background()

	_, err := m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "99"))
	require.NoError(t, err)
	_, err = m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "98"))
	require.NoError(t, err)
	assert.Empty(t, ex.canceled)
}

func TestSubmit_RejectionRecordsCanceled(t *testing.T) {
	ex := &mockExchange{createErr: fmt.Errorf("wrapped: %w", ports.ErrOrderWouldTrigger)}
	m, repo := setup(t, ex)

	o, err := m.Submit(context.Background(), order(domain.OrderTypeShortStopOpen, domain.Sell, domain.PositionSideShort, "1", "95"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrExchangeRejected)
	assert.ErrorIs(t, err, ports.ErrOrderWouldTrigger)

	stored, err := repo.FindOrderByClientID(context.Background(), o.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, stored.Status)
	assert.Equal(t, domain.ExchangeStatusRejected, stored.ExchangeStatus)
}

func TestSubmit_UncertainCreateRecoversFromExchange(t *testing.T) {
	ex := &mockExchange{createErr: ports.ErrTimeout}
	ex.getOrder = func(clientID string) (*ports.OrderResult, error) {
		return &ports.OrderResult{ExchangeOrderID: 77, ClientOrderID: clientID, Status: domain.ExchangeStatusNew}, nil
	}
	m, repo := setup(t, ex)

	o, err := m.Submit(context.Background(), order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "99"))
	require.NoError(t, err)
	assert.Equal(t, int64(77), o.ExchangeOrderID)

	stored, err := repo.FindOrderByExchangeID(context.Background(), "ETHUSDT", 77)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, domain.OrderInProgress, stored.Status)
}

func TestSubmit_UnplacedOrderIsCanceledLocally(t *testing.T) {
	ex := &mockExchange{createErr: ports.ErrConnectionFailed}
	m, repo := setup(t, ex)

	o, err := m.Submit(context.Background(), order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "99"))
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)

	stored, err := repo.FindOrderByClientID(context.Background(), o.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, stored.Status)
}

func TestSubmit_QuantityTruncatedToZero(t *testing.T) {
	ex := &mockExchange{}
	m, _ := setup(t, ex)

	_, err := m.Submit(context.Background(), order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "0.0009", "99"))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	assert.Empty(t, ex.created)
}

func TestCancel_RaceWithFillIsNotAnError(t *testing.T) {
	ex := &mockExchange{}
	m, repo := setup(t, ex)
	ctx := context.Background()

	o, err := m.Submit(ctx, order(domain.OrderTypeLongTakeProfit, domain.Sell, domain.PositionSideLong, "1", "101"))
	require.NoError(t, err)

	ex.cancelErr = ports.ErrOrderNotFound
	require.NoError(t, m.Cancel(ctx, o))

	stored, err := repo.FindOrderByClientID(ctx, o.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, stored.Status, "the fill event settles the order")
}

func TestCancelAll(t *testing.T) {
	ex := &mockExchange{}
	ex.getOrder = func(clientID string) (*ports.OrderResult, error) {
		return &ports.OrderResult{ClientOrderID: clientID, Status: domain.ExchangeStatusCanceled}, nil
	}
	m, repo := setup(t, ex)
	ctx := context.Background()

	for _, p := range []string{"99", "98"} {
		_, err := m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", p))
		require.NoError(t, err)
	}
	require.NoError(t, m.CancelAll(ctx, 1, "ETHUSDT"))
	assert.Equal(t, 1, ex.cancelAll)

	resting, err := repo.FindOrdersByStatus(ctx, 1, "", domain.OrderInProgress)
	require.NoError(t, err)
	assert.Empty(t, resting)
	canceled, err := repo.FindOrdersByStatus(ctx, 1, "", domain.OrderCanceled)
	require.NoError(t, err)
	assert.Len(t, canceled, 2)
}

func TestCancelAll_OrderFilledBeforeCancelKeepsFill(t *testing.T) {
	ex := &mockExchange{}
	m, repo := setup(t, ex)
	ctx := context.Background()

	sl, err := m.Submit(ctx, order(domain.OrderTypeShortStopLoss, domain.Buy, domain.PositionSideShort, "1", "101"))
	require.NoError(t, err)
	limit, err := m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "95"))
	require.NoError(t, err)

	ex.getOrder = func(clientID string) (*ports.OrderResult, error) {
		if clientID == sl.ClientOrderID {
			return &ports.OrderResult{
				ExchangeOrderID: sl.ExchangeOrderID, ClientOrderID: clientID, Status: domain.ExchangeStatusFilled,
				AvgPrice: decimal.RequireFromString("101"), ExecutedQty: decimal.RequireFromString("1"),
			}, nil
		}
		return &ports.OrderResult{ClientOrderID: clientID, Status: domain.ExchangeStatusCanceled}, nil
	}
	require.NoError(t, m.CancelAll(ctx, 1, "ETHUSDT"))

	stored, err := repo.FindOrderByClientID(ctx, sl.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, stored.Status, "a filled order is not marked canceled")
	stored, err = repo.FindOrderByClientID(ctx, limit.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, stored.Status)

	// the fill event still lands
	o, transitioned, err := m.ledger.ApplyOrderUpdate(ctx, &domain.OrderUpdate{
		Symbol: "ETHUSDT", ExchangeOrderID: sl.ExchangeOrderID, Status: domain.ExchangeStatusFilled,
		AvgPrice: decimal.RequireFromString("101"), CumFilledQty: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	assert.True(t, transitioned)
	assert.Equal(t, domain.OrderFilled, o.Status)
}

func TestCancelAll_UnknownStateLeftForReconcile(t *testing.T) {
	ex := &mockExchange{}
	m, repo := setup(t, ex)
	ctx := context.Background()

	o, err := m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "99"))
	require.NoError(t, err)
	require.NotZero(t, o.ExchangeOrderID)

	ex.getOrder = func(clientID string) (*ports.OrderResult, error) {
		return nil, fmt.Errorf("%w: timeout", ports.ErrExchangeUnavailable)
	}
	require.NoError(t, m.CancelAll(ctx, 1, "ETHUSDT"))

	stored, err := repo.FindOrderByClientID(ctx, o.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderInProgress, stored.Status)
}

func TestResolve(t *testing.T) {
	ex := &mockExchange{}
	m, repo := setup(t, ex)
	ctx := context.Background()

	o, err := m.Submit(ctx, order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "99"))
	require.NoError(t, err)

	ex.getOrder = func(clientID string) (*ports.OrderResult, error) {
		return &ports.OrderResult{
			ExchangeOrderID: o.ExchangeOrderID, ClientOrderID: clientID, Status: domain.ExchangeStatusFilled,
			AvgPrice: decimal.RequireFromString("98.9"), ExecutedQty: decimal.RequireFromString("1"),
		}, nil
	}
	ev, err := m.Resolve(ctx, o)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.ExchangeStatusFilled, ev.Status)
	assert.Equal(t, o.ExchangeOrderID, ev.ExchangeOrderID)

	// never acknowledged and unknown to the exchange
	lost := order(domain.OrderTypeLongLimit, domain.Buy, domain.PositionSideLong, "1", "97")
	lost.ClientOrderID = "lost"
	lost.Status = domain.OrderNew
	_, err = repo.CreateOrder(ctx, lost)
	require.NoError(t, err)
	ex.getOrder = nil

	ev, err = m.Resolve(ctx, lost)
	require.NoError(t, err)
	assert.Nil(t, ev)
	stored, err := repo.FindOrderByClientID(ctx, "lost")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCanceled, stored.Status)
}
