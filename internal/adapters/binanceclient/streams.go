package binanceclient

import (
	"context"

	"gridHedgeBot/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
)

// StartUserStream creates a listen key for the user-data stream.
func (c *Client) StartUserStream(ctx context.Context) (string, error) {
	op := "StartUserStream"
	listenKey, err := c.futuresClient.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful")
	return listenKey, nil
}

// KeepaliveUserStream extends the validity of a listen key.
func (c *Client) KeepaliveUserStream(ctx context.Context, listenKey string) error {
	op := "KeepaliveUserStream"
	if err := c.futuresClient.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// CloseUserStream invalidates a listen key.
func (c *Client) CloseUserStream(ctx context.Context, listenKey string) error {
	op := "CloseUserStream"
	if err := c.futuresClient.NewCloseUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful")
	return nil
}

// ServeTrades opens the aggregated trade stream of a symbol. Reconnection is the caller's job.
func (c *Client) ServeTrades(symbol string, handler func(domain.Event), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	op := "ServeTrades"
	ctx := context.Background()

	binanceHandler := func(event *futures.WsAggTradeEvent) {
		tick, err := translateAggTrade(event)
		if err != nil {
			c.logger.Error(ctx, err, op+": Failed to translate WebSocket trade event", map[string]interface{}{"symbol": symbol})
			return
		}
		handler(tick)
	}
	binanceErrHandler := func(err error) {
		errHandler(c.handleError(ctx, err, op+" WebSocket"))
	}

	doneCh, stopCh, err := futures.WsAggTradeServe(symbol, binanceHandler, binanceErrHandler)
	if err != nil {
		return nil, nil, c.handleError(ctx, err, op)
	}
	return doneCh, stopCh, nil
}

// ServeUserData opens the user-data stream of a listen key.
func (c *Client) ServeUserData(listenKey string, handler func(domain.Event), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	op := "ServeUserData"
	ctx := context.Background()

	binanceHandler := func(event *futures.WsUserDataEvent) {
		events, err := translateUserData(event)
		if err != nil {
			c.logger.Error(ctx, err, op+": Failed to translate WebSocket user-data event")
			return
		}
		for _, ev := range events {
			handler(ev)
		}
	}
	binanceErrHandler := func(err error) {
		errHandler(c.handleError(ctx, err, op+" WebSocket"))
	}

	doneCh, stopCh, err := futures.WsUserDataServe(listenKey, binanceHandler, binanceErrHandler)
	if err != nil {
		return nil, nil, c.handleError(ctx, err, op)
	}
	return doneCh, stopCh, nil
}
