package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/adshao/go-binance/v2/common"
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

// fakeBinance serves canned responses per path and records the last request form.
type fakeBinance struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	forms     map[string]url.Values
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeBinance(t *testing.T) (*fakeBinance, *Client) {
	t.Helper()
	f := &fakeBinance{responses: map[string]fakeResponse{}, forms: map[string]url.Values{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.forms[r.Method+" "+r.URL.Path] = r.Form
		resp, ok := f.responses[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = fmt.Fprint(w, `{"code":-1000,"msg":"no fake response"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		_, _ = fmt.Fprint(w, resp.body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{APIKey: "key", SecretKey: "secret", BaseURL: srv.URL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return f, c
}

func (f *fakeBinance) on(route string, status int, body string) {
	f.mu.Lock()
	f.responses[route] = fakeResponse{status: status, body: body}
	f.mu.Unlock()
}

func (f *fakeBinance) form(route string) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[route]
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestCreateOrder_SendsHedgeModeParameters(t *testing.T) {
	f, c := newFakeBinance(t)
	f.on("POST /fapi/v1/order", http.StatusOK, `{
		"orderId": 42, "symbol": "ETHUSDT", "clientOrderId": "cid-1", "status": "FILLED",
		"avgPrice": "100.10", "executedQty": "1.000", "origQty": "1.000", "updateTime": 1700000000000
	}`)

	res, err := c.CreateOrder(context.Background(), ports.OrderRequest{
		Symbol:        "ETHUSDT",
		ClientOrderID: "cid-1",
		Side:          domain.Sell,
		PositionSide:  domain.PositionSideShort,
		Kind:          domain.KindStopMarket,
		Quantity:      "1.063",
		StopPrice:     "94.05",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.ExchangeOrderID)
	assert.Equal(t, domain.ExchangeStatusFilled, res.Status)
	assert.Equal(t, "100.1", res.AvgPrice.String())

	form := f.form("POST /fapi/v1/order")
	assert.Equal(t, "SELL", form.Get("side"))
	assert.Equal(t, "SHORT", form.Get("positionSide"))
	assert.Equal(t, "STOP_MARKET", form.Get("type"))
	assert.Equal(t, "94.05", form.Get("stopPrice"))
	assert.Equal(t, "cid-1", form.Get("newClientOrderId"))
	assert.Equal(t, "RESULT", form.Get("newOrderRespType"))
	assert.Empty(t, form.Get("price"))
}

func TestCreateOrder_MapsAPIErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{"would trigger", -2021, ports.ErrOrderWouldTrigger},
		{"duplicate client id", -4116, ports.ErrDuplicateClientID},
		{"insufficient margin", -2019, ports.ErrInsufficientFunds},
		{"rejected", -2010, ports.ErrExchangeRejected},
		{"rate limited", -1003, ports.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeBinance(t)
			f.on("POST /fapi/v1/order", http.StatusBadRequest, fmt.Sprintf(`{"code":%d,"msg":"fake"}`, tt.code))

			_, err := c.CreateOrder(context.Background(), ports.OrderRequest{
				Symbol: "ETHUSDT", Side: domain.Buy, PositionSide: domain.PositionSideLong, Kind: domain.KindMarket, Quantity: "1",
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGetPosition_HedgeModePair(t *testing.T) {
	f, c := newFakeBinance(t)
	f.on("GET /fapi/v2/positionRisk", http.StatusOK, `[
		{"symbol":"ETHUSDT","positionSide":"LONG","positionAmt":"2.000","entryPrice":"97.5","breakEvenPrice":"97.55","leverage":"10"},
		{"symbol":"ETHUSDT","positionSide":"SHORT","positionAmt":"0.000","entryPrice":"0.0","leverage":"10"}
	]`)

	pair, err := c.GetPosition(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, "2", pair.Long.Quantity.String())
	assert.True(t, pair.Short.Quantity.IsZero())
}

func TestCancelOrder_UnknownOrderIsNotFound(t *testing.T) {
	f, c := newFakeBinance(t)
	f.on("DELETE /fapi/v1/order", http.StatusBadRequest, `{"code":-2011,"msg":"Unknown order sent."}`)

	err := c.CancelOrder(context.Background(), "ETHUSDT", 42)
	assert.ErrorIs(t, err, ports.ErrOrderNotFound)
}

func TestEnableDualSidePosition_AlreadyEnabled(t *testing.T) {
	f, c := newFakeBinance(t)
	f.on("POST /fapi/v1/positionSide/dual", http.StatusBadRequest, `{"code":-4059,"msg":"No need to change position side."}`)
	assert.NoError(t, c.EnableDualSidePosition(context.Background()))
}

func TestHandleError_NonAPIErrors(t *testing.T) {
	c := &Client{logger: &mockLogger{}}
	ctx := context.Background()

	assert.ErrorIs(t, c.handleError(ctx, context.DeadlineExceeded, "op"), ports.ErrTimeout)
	assert.ErrorIs(t, c.handleError(ctx, context.Canceled, "op"), ports.ErrContextCanceled)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("dial tcp: connection refused"), "op"), ports.ErrConnectionFailed)
	assert.ErrorIs(t, c.handleError(ctx, errors.New("boom"), "op"), ports.ErrUnknown)
	assert.ErrorIs(t, c.handleError(ctx, &common.APIError{Code: -2013, Message: "Order does not exist."}, "op"), ports.ErrOrderNotFound)
	assert.True(t, ports.IsTransient(c.handleError(ctx, &common.APIError{Code: -1001}, "op")))
	assert.NoError(t, c.handleError(ctx, nil, "op"))
}
