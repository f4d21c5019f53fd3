package engine

import (
	"context"
	"math"
)

// poolMaturedLots merges every lot that exhausted the take-profit ladder
// with quantity left into the core bag. The lot is retired in place. A lot
// whose final tier fired this very tick is left alone; it pools on the next
// tick, keeping at most one lifecycle step per lot per tick.
func (e *Engine) poolMaturedLots(st *BotState, firedThisTick map[string]struct{}) {
	tiers := len(e.cfg.TakeProfit.Levels)
	for i := range st.Lots {
		lot := &st.Lots[i]
		if lot.Pooled || lot.QtyRem <= 0 {
			continue
		}
		if lot.TPTakenIdx+1 != tiers {
			continue
		}
		if _, ok := firedThisTick[lot.ID]; ok {
			continue
		}
		st.Core.Merge(lot.Entry, lot.QtyRem)
		qty := lot.QtyRem
		lot.QtyRem = 0
		lot.Pooled = true
		st.bump(func(p *PeriodStats) { p.Pools++ })

		avg := 0.0
		if st.Core.AvgEntry != nil {
			avg = *st.Core.AvgEntry
		}
		e.notify(
			"📦 [%s] %s • lot %.8s pooled %.6f into core (core %.6f @ avg %.2f)",
			e.cfg.ID, e.cfg.Symbol, lot.ID, qty, st.Core.Qty, avg,
		)
	}
}

// applyCoreTakeProfits runs the optional wide-TP ladder on the core bag.
// Levels are checked ascending; a level that fires is marked done forever,
// even if price later retraces below it. Profit is computed against the core
// average entry — there is no per-lot tracking left at this stage.
func (e *Engine) applyCoreTakeProfits(ctx context.Context, st *BotState, price float64) error {
	if !e.cfg.Core.WideTP {
		return nil
	}
	if st.Core.Qty <= 0 || st.Core.AvgEntry == nil || *st.Core.AvgEntry <= 0 {
		return nil
	}
	avg := *st.Core.AvgEntry

	for _, lvl := range e.cfg.Core.Levels {
		label := lvl.Label()
		if st.Core.LevelDone(label) {
			continue
		}
		if !priceAtLeast(price, relativeTarget(avg, lvl.Pct)) {
			continue
		}
		sellQty := st.Core.Qty * lvl.Fraction
		if sellQty <= 0 {
			continue
		}

		fill, err := e.ex.MarketSell(ctx, sellQty)
		if err != nil {
			return err
		}

		proceeds := fill.ReceivedQuote
		costPart := avg * sellQty
		profit := math.Max(proceeds-costPart, 0)
		skim := profit * e.cfg.Budget.SkimPct
		reinvest := proceeds - skim

		st.Core.Qty -= sellQty
		st.Core.markLevelDone(label)
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
			BotID: e.cfg.ID, Symbol: e.cfg.Symbol, Side: "sell", Kind: "core_take_profit",
			OrderID: fill.OrderID, Qty: sellQty, Price: fill.Price, Quote: proceeds, At: e.nowFn(),
			Detail: map[string]any{"level": label, "skim": skim},
		})
		e.notify(
			"💰 [%s] %s • core TP %s • sold %.6f @ %.2f (+%.2f, skim %.2f)",
			e.cfg.ID, e.cfg.Symbol, label, sellQty, fill.Price, proceeds-costPart, skim,
		)
	}
	return nil
}
