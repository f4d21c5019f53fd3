package engine

import (
	"context"
	"math"
)

// applyLotTakeProfits walks every open lot and fires at most one tier per
// lot per tick, even when price gapped past several targets. The remaining
// tiers catch up on the following ticks. Returns the IDs of lots whose tier
// advanced, so pooling can hold off until the tick after the final tier.
func (e *Engine) applyLotTakeProfits(ctx context.Context, st *BotState, price float64) (map[string]struct{}, error) {
	levels := e.cfg.TakeProfit.Levels
	fracs := e.cfg.TakeProfit.Fractions
	fired := make(map[string]struct{})

	for i := range st.Lots {
		lot := &st.Lots[i]
		if !lot.Open() {
			continue
		}
		next := lot.TPTakenIdx + 1
		if next >= len(levels) {
			continue // fully laddered, pooling picks it up
		}
		target := relativeTarget(lot.Entry, levels[next])
		if !priceAtLeast(price, target) {
			continue
		}
		sellQty := lot.QtyRem * fracs[next]
		if sellQty <= 0 {
			continue
		}

		fill, err := e.ex.MarketSell(ctx, sellQty)
		if err != nil {
			return fired, err
		}

		qtyBefore := lot.QtyRem
		costPart := lot.CostBasis * sellQty / qtyBefore
		lot.QtyRem -= sellQty
		lot.CostBasis -= costPart
		lot.TPTakenIdx = next
		fired[lot.ID] = struct{}{}

		proceeds := fill.ReceivedQuote
		profit := math.Max(proceeds-costPart, 0)
		skim := profit * e.cfg.Budget.SkimPct
		reinvest := proceeds - skim

		st.CashFree += proceeds
		st.recycle(reinvest, e.cfg.Budget.RecycledSoftCap)
		st.bump(func(p *PeriodStats) {
			p.Sells++
			p.TakeProfits++
			p.RealizedPnL += proceeds - costPart
			p.SkimSaved += skim
			p.VolumeSold += proceeds
		})

		e.record(ctx, FillRecord{
			BotID: e.cfg.ID, Symbol: e.cfg.Symbol, Side: "sell", Kind: "take_profit",
			OrderID: fill.OrderID, Qty: sellQty, Price: fill.Price, Quote: proceeds, At: e.nowFn(),
			Detail: map[string]any{"lot_id": lot.ID, "tier": next, "skim": skim},
		})
		e.notify(
			"💰 [%s] %s • TP%d lot %.8s • sold %.6f @ %.2f (+%.2f, skim %.2f)",
			e.cfg.ID, e.cfg.Symbol, next+1, lot.ID, sellQty, fill.Price, proceeds-costPart, skim,
		)
	}
	return fired, nil
}
