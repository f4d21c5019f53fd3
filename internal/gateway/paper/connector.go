// Package paper simulates order execution at the live public price, so a bot
// can run the full lifecycle without exchange keys.
package paper

import (
	"context"
	"fmt"

	"stacker/internal/gateway/exchange"
	"stacker/internal/market"

	"github.com/google/uuid"
)

// Connector reads real market data through the wrapped source and fabricates
// fills locally. Fills are assumed instant and slippage-free.
type Connector struct {
	data exchange.MarketData
}

func New(data exchange.MarketData) *Connector {
	return &Connector{data: data}
}

func (c *Connector) FetchCandles(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	return c.data.FetchCandles(ctx, timeframe, limit)
}

func (c *Connector) FetchPrice(ctx context.Context) (float64, error) {
	return c.data.FetchPrice(ctx)
}

func (c *Connector) MarketBuy(ctx context.Context, quoteAmount float64) (exchange.BuyFill, error) {
	if quoteAmount <= 0 {
		return exchange.BuyFill{}, fmt.Errorf("paper buy: quote amount must be > 0")
	}
	price, err := c.data.FetchPrice(ctx)
	if err != nil {
		return exchange.BuyFill{}, err
	}
	if price <= 0 {
		return exchange.BuyFill{}, exchange.Connectivity("paper buy", fmt.Errorf("degenerate price %g", price))
	}
	return exchange.BuyFill{
		OrderID:   "paper-" + uuid.NewString(),
		FilledQty: quoteAmount / price,
		Price:     price,
		Cost:      quoteAmount,
	}, nil
}

func (c *Connector) MarketSell(ctx context.Context, baseQty float64) (exchange.SellFill, error) {
	if baseQty <= 0 {
		return exchange.SellFill{}, fmt.Errorf("paper sell: base qty must be > 0")
	}
	price, err := c.data.FetchPrice(ctx)
	if err != nil {
		return exchange.SellFill{}, err
	}
	if price <= 0 {
		return exchange.SellFill{}, exchange.Connectivity("paper sell", fmt.Errorf("degenerate price %g", price))
	}
	return exchange.SellFill{
		OrderID:       "paper-" + uuid.NewString(),
		ReceivedQuote: baseQty * price,
		Price:         price,
	}, nil
}
