package engine

import (
	"context"

	"stacker/internal/market"
)

// applySoftStop liquidates all unpooled remaining quantity in one combined
// sell when the trend has flipped and price broke below the soft-stop band.
// The full proceeds are recycled, not just the profit share — after a stop
// the priority is keeping capital deployable without touching the caps.
func (e *Engine) applySoftStop(ctx context.Context, st *BotState, price, fastEMA, slowEMA float64) error {
	if fastEMA >= slowEMA || slowEMA <= 0 {
		return nil
	}
	band := slowEMA * (1 - e.cfg.Stops.SoftBand)
	if !priceAtMost(price, band) {
		return nil
	}

	totalQty := 0.0
	totalCost := 0.0
	for i := range st.Lots {
		if st.Lots[i].Open() {
			totalQty += st.Lots[i].QtyRem
			totalCost += st.Lots[i].CostBasis
		}
	}
	if totalQty <= 0 {
		return nil
	}

	fill, err := e.ex.MarketSell(ctx, totalQty)
	if err != nil {
		return err
	}

	for i := range st.Lots {
		if st.Lots[i].Open() {
			st.Lots[i].QtyRem = 0
			st.Lots[i].CostBasis = 0
		}
	}

	proceeds := fill.ReceivedQuote
	st.CashFree += proceeds
	st.recycle(proceeds, e.cfg.Budget.RecycledSoftCap)
	st.bump(func(p *PeriodStats) {
		p.Sells++
		p.Stops++
		p.RealizedPnL += proceeds - totalCost
		p.VolumeSold += proceeds
	})

	e.record(ctx, FillRecord{
		BotID: e.cfg.ID, Symbol: e.cfg.Symbol, Side: "sell", Kind: "soft_stop",
		OrderID: fill.OrderID, Qty: totalQty, Price: fill.Price, Quote: proceeds, At: e.nowFn(),
		Detail: map[string]any{"cost_basis": totalCost},
	})
	e.notify(
		"🛑 [%s] %s • soft stop • sold %.6f @ %.2f (pnl %+.2f, proceeds recycled)",
		e.cfg.ID, e.cfg.Symbol, totalQty, fill.Price, proceeds-totalCost,
	)
	return nil
}

// applySuperStop sells a fraction of the core bag after a sustained break
// below the super-EMA band. The streak is recomputed from raw history every
// tick rather than stored, and no done-marker is set, so a later streak can
// trigger it again.
func (e *Engine) applySuperStop(ctx context.Context, st *BotState, closes []float64, fastEMA, slowEMA float64) error {
	if st.Core.Qty <= 0 || fastEMA >= slowEMA {
		return nil
	}
	stops := e.cfg.Stops
	superSeries := market.EMASeries(closes, stops.SuperEMA)
	if !market.BelowBandStreak(closes, superSeries, stops.SuperBand, stops.SuperWindow) {
		return nil
	}

	sellQty := st.Core.Qty * stops.SuperFraction
	if sellQty <= 0 {
		return nil
	}

	fill, err := e.ex.MarketSell(ctx, sellQty)
	if err != nil {
		return err
	}

	costPart := 0.0
	if st.Core.AvgEntry != nil {
		costPart = *st.Core.AvgEntry * sellQty
	}
	st.Core.Qty -= sellQty

	proceeds := fill.ReceivedQuote
	st.CashFree += proceeds
	st.recycle(proceeds, e.cfg.Budget.RecycledSoftCap)
	st.bump(func(p *PeriodStats) {
		p.Sells++
		p.Stops++
		p.RealizedPnL += proceeds - costPart
		p.VolumeSold += proceeds
	})

	e.record(ctx, FillRecord{
		BotID: e.cfg.ID, Symbol: e.cfg.Symbol, Side: "sell", Kind: "super_stop",
		OrderID: fill.OrderID, Qty: sellQty, Price: fill.Price, Quote: proceeds, At: e.nowFn(),
		Detail: map[string]any{"core_left": st.Core.Qty},
	})
	e.notify(
		"🛑 [%s] %s • super stop • sold %.6f core @ %.2f (core left %.6f, proceeds recycled)",
		e.cfg.ID, e.cfg.Symbol, sellQty, fill.Price, st.Core.Qty,
	)
	return nil
}
