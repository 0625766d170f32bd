package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gridHedgeBot/internal/domain"
	"gridHedgeBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	accountTradesLimit = 500
)

// Client implements ports.ExchangeClient and ports.StreamClient using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // overrides the production/testnet REST endpoint when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
		// Websocket endpoints are only selectable through the package switch.
		futures.UseTestnet = true
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	default:
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001, -1016: // Unknown error / disconnected / service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		case -1003, -1008: // Too many requests / server overloaded
			mappedErr = ports.ErrRateLimited
		case -1007, -1021: // Backend timeout / timestamp outside recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010, -2022: // New order rejected / ReduceOnly rejected
			mappedErr = ports.ErrExchangeRejected
		case -2011, -2013: // Unknown order sent / order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041, -4047: // Margin or balance insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2021: // Order would immediately trigger
			mappedErr = ports.ErrOrderWouldTrigger
		case -4003, -4014, -4015, -4164: // Qty/price/leverage out of range, notional too small
			mappedErr = ports.ErrInvalidRequest
		case -4116: // ClientOrderId is duplicated
			mappedErr = ports.ErrDuplicateClientID
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		if errors.Is(mappedErr, ports.ErrOrderNotFound) || errors.Is(mappedErr, ports.ErrOrderWouldTrigger) {
			c.logger.Warn(ctx, fmt.Sprintf("%s failed with API error", operation), fields)
		} else {
			c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		}
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "i/o timeout"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "EOF"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	case strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetInstrumentFilters returns the lot, price and notional filters of a symbol.
func (c *Client) GetInstrumentFilters(ctx context.Context, symbol string) (*ports.InstrumentFilters, error) {
	op := "GetInstrumentFilters"
	info, err := c.futuresClient.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	for i := range info.Symbols {
		if info.Symbols[i].Symbol != symbol {
			continue
		}
		filters, err := translateFilters(&info.Symbols[i])
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		c.logger.Debug(ctx, op+" successful", map[string]interface{}{
			"symbol": symbol, "stepSize": filters.StepSize, "tickSize": filters.TickSize,
		})
		return filters, nil
	}
	return nil, fmt.Errorf("%s failed: %w: symbol %s not listed", op, ports.ErrNotFound, symbol)
}

// CreateOrder places an order and asks for the RESULT response so market orders come back filled.
func (c *Client) CreateOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResult, error) {
	op := "CreateOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		PositionSide(futures.PositionSideType(req.PositionSide)).
		Type(futures.OrderType(req.Kind)).
		Quantity(req.Quantity).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	if req.Price != "" {
		svc = svc.Price(req.Price)
	}
	if req.StopPrice != "" {
		if req.Kind == domain.KindTrailingStopMarket {
			svc = svc.ActivationPrice(req.StopPrice)
		} else {
			svc = svc.StopPrice(req.StopPrice)
		}
	}
	if req.CallbackRate != "" {
		svc = svc.CallbackRate(req.CallbackRate)
	}
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":        req.Symbol,
		"kind":          req.Kind,
		"side":          req.Side,
		"positionSide":  req.PositionSide,
		"quantity":      req.Quantity,
		"orderID":       resp.ExchangeOrderID,
		"clientOrderID": resp.ClientOrderID,
		"status":        resp.Status,
	})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelOrder"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": res.Status})
	return nil
}

// CancelAllOpenOrders cancels every resting order on the symbol.
func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	op := "CancelAllOpenOrders"
	if err := c.futuresClient.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol})
	return nil
}

// GetOrder looks an order up by exchange id, or by client id when orderID is 0.
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64, clientOrderID string) (*ports.OrderResult, error) {
	op := "GetOrder"
	svc := c.futuresClient.NewGetOrderService().Symbol(symbol)
	if orderID != 0 {
		svc = svc.OrderID(orderID)
	} else {
		svc = svc.OrigClientOrderID(clientOrderID)
	}
	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return translateOrder(order), nil
}

// GetPosition returns both hedge-mode sides of the symbol's position.
func (c *Client) GetPosition(ctx context.Context, symbol string) (*ports.PositionPair, error) {
	op := "GetPosition"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	pair, err := translatePositionPair(symbol, positions)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return pair, nil
}

// GetAccountTrades returns recent executions of a symbol, only those of orderID when it is set.
func (c *Client) GetAccountTrades(ctx context.Context, symbol string, orderID int64) ([]ports.AccountTrade, error) {
	op := "GetAccountTrades"
	trades, err := c.futuresClient.NewListAccountTradeService().
		Symbol(symbol).
		Limit(accountTradesLimit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out, err := translateAccountTrades(trades, orderID)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return out, nil
}

// GetLastPrice retrieves the last traded price for a given symbol.
func (c *Client) GetLastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	op := "GetLastPrice"
	prices, err := c.futuresClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		err := fmt.Errorf("no price data returned for symbol %s", symbol)
		return decimal.Zero, c.handleError(ctx, err, op)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return decimal.Zero, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// SetLeverage sets the leverage for a specific symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage})
	return nil
}

// IsDualSidePosition reports whether the account trades in hedge position mode.
func (c *Client) IsDualSidePosition(ctx context.Context) (bool, error) {
	op := "IsDualSidePosition"
	mode, err := c.futuresClient.NewGetPositionModeService().Do(ctx)
	if err != nil {
		return false, c.handleError(ctx, err, op)
	}
	return mode.DualSidePosition, nil
}

// EnableDualSidePosition switches the account to hedge position mode.
func (c *Client) EnableDualSidePosition(ctx context.Context) error {
	op := "EnableDualSidePosition"
	err := c.futuresClient.NewChangePositionModeService().DualSide(true).Do(ctx)
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == -4059 { // No need to change position side
		err = nil
	}
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful")
	return nil
}
