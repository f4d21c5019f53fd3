package exchange

import (
	"context"
	"errors"
	"fmt"

	"stacker/internal/market"
)

// ErrConnectivity marks any exchange call failure. The tick handler matches
// it with errors.Is to abort the remaining steps of the current tick.
var ErrConnectivity = errors.New("exchange connectivity error")

// Connectivity wraps err so callers can both read the operation that failed
// and match ErrConnectivity.
func Connectivity(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrConnectivity, err))
}

// BuyFill reports a confirmed market buy.
type BuyFill struct {
	OrderID   string  `json:"order_id"`
	FilledQty float64 `json:"filled_qty"`
	Price     float64 `json:"price"`
	Cost      float64 `json:"cost"` // quote actually spent
}

// SellFill reports a confirmed market sell.
type SellFill struct {
	OrderID       string  `json:"order_id"`
	ReceivedQuote float64 `json:"received_quote"`
	Price         float64 `json:"price"`
}

// MarketData is the read-only half of a connector.
type MarketData interface {
	FetchCandles(ctx context.Context, timeframe string, limit int) ([]market.Candle, error)
	FetchPrice(ctx context.Context) (float64, error)
}

// Connector is a single-symbol exchange binding. Implementations confirm
// fills before returning; a returned error means no fill happened and the
// caller's ledgers must stay untouched.
type Connector interface {
	MarketData
	MarketBuy(ctx context.Context, quoteAmount float64) (BuyFill, error)
	MarketSell(ctx context.Context, baseQty float64) (SellFill, error)
}
