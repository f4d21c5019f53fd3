package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"stacker/internal/gateway/exchange"
	"stacker/internal/market"
	"stacker/internal/scheduler"

	bn "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

const maxHistoryLimit = 1000

// Connector implements exchange.Connector for one Binance spot symbol.
type Connector struct {
	client *bn.Client
	symbol string // display form, e.g. "BTC/USDC"
	pair   string // exchange form, e.g. "BTCUSDC"

	stepMu  sync.Mutex
	lotStep decimal.Decimal // zero until loaded
}

// New returns a connector for symbol using a process-shared client for the
// given credential set. Empty credentials still work for the public market
// data endpoints, which is what the paper gateway relies on.
func New(apiKey, apiSecret, symbol string) (*Connector, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	return &Connector{
		client: sharedClient(apiKey, apiSecret),
		symbol: symbol,
		pair:   strings.ToUpper(strings.ReplaceAll(symbol, "/", "")),
	}, nil
}

func (c *Connector) FetchCandles(ctx context.Context, timeframe string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	kls, err := c.client.NewKlinesService().Symbol(c.pair).Interval(timeframe).Limit(limit).Do(ctx)
	if err != nil {
		return nil, exchange.Connectivity("fetch candles", err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
		})
	}
	if dur, ok := scheduler.ParseIntervalDuration(timeframe); ok {
		out = scheduler.DropUnclosedKline(out, dur)
	}
	return out, nil
}

func (c *Connector) FetchPrice(ctx context.Context) (float64, error) {
	prices, err := c.client.NewListPricesService().Symbol(c.pair).Do(ctx)
	if err != nil {
		return 0, exchange.Connectivity("fetch price", err)
	}
	for _, p := range prices {
		if p != nil && p.Symbol == c.pair {
			return parseFloat(p.Price), nil
		}
	}
	return 0, exchange.Connectivity("fetch price", fmt.Errorf("no ticker for %s", c.pair))
}

func (c *Connector) MarketBuy(ctx context.Context, quoteAmount float64) (exchange.BuyFill, error) {
	if quoteAmount <= 0 {
		return exchange.BuyFill{}, fmt.Errorf("market buy: quote amount must be > 0")
	}
	quoteStr := decimal.NewFromFloat(quoteAmount).Truncate(8).String()
	resp, err := c.client.NewCreateOrderService().
		Symbol(c.pair).
		Side(bn.SideTypeBuy).
		Type(bn.OrderTypeMarket).
		QuoteOrderQty(quoteStr).
		Do(ctx)
	if err != nil {
		return exchange.BuyFill{}, exchange.Connectivity("market buy", err)
	}
	qty := parseFloat(resp.ExecutedQuantity)
	cost := parseFloat(resp.CummulativeQuoteQuantity)
	fill := exchange.BuyFill{
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		FilledQty: qty,
		Cost:      cost,
	}
	if qty > 0 {
		fill.Price = cost / qty
	}
	return fill, nil
}

func (c *Connector) MarketSell(ctx context.Context, baseQty float64) (exchange.SellFill, error) {
	if baseQty <= 0 {
		return exchange.SellFill{}, fmt.Errorf("market sell: base qty must be > 0")
	}
	qtyStr, err := c.roundToStep(ctx, baseQty)
	if err != nil {
		return exchange.SellFill{}, err
	}
	resp, err := c.client.NewCreateOrderService().
		Symbol(c.pair).
		Side(bn.SideTypeSell).
		Type(bn.OrderTypeMarket).
		Quantity(qtyStr).
		Do(ctx)
	if err != nil {
		return exchange.SellFill{}, exchange.Connectivity("market sell", err)
	}
	qty := parseFloat(resp.ExecutedQuantity)
	quote := parseFloat(resp.CummulativeQuoteQuantity)
	fill := exchange.SellFill{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ReceivedQuote: quote,
	}
	if qty > 0 {
		fill.Price = quote / qty
	}
	return fill, nil
}

// roundToStep floors qty onto the symbol's LOT_SIZE grid. The step is loaded
// from exchange info on first use and cached for the connector lifetime.
func (c *Connector) roundToStep(ctx context.Context, qty float64) (string, error) {
	step, err := c.loadLotStep(ctx)
	if err != nil {
		return "", err
	}
	d := decimal.NewFromFloat(qty)
	if step.IsZero() {
		return d.String(), nil
	}
	rounded := d.Div(step).Floor().Mul(step)
	if rounded.IsZero() {
		return "", fmt.Errorf("market sell: qty %s below lot step %s", d, step)
	}
	return rounded.String(), nil
}

func (c *Connector) loadLotStep(ctx context.Context) (decimal.Decimal, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	if !c.lotStep.IsZero() {
		return c.lotStep, nil
	}
	info, err := c.client.NewExchangeInfoService().Symbols(c.pair).Do(ctx)
	if err != nil {
		return decimal.Zero, exchange.Connectivity("exchange info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != c.pair {
			continue
		}
		if f := s.LotSizeFilter(); f != nil {
			step, err := decimal.NewFromString(f.StepSize)
			if err == nil && !step.IsZero() {
				c.lotStep = step
				return c.lotStep, nil
			}
		}
	}
	// No filter published; sell with raw precision.
	return decimal.Zero, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
