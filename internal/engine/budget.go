package engine

import (
	"fmt"
	"math"
	"time"
)

// FinanceSplit reports where a buy's funding came from, for notifications
// and the trade journal.
type FinanceSplit struct {
	FromRecycled float64 `json:"from_recycled"`
	FromCaps     float64 `json:"from_caps"`
}

// CanFinance is true when either the recycled daily allowance alone or both
// cap counters alone can cover amount.
func (s *BotState) CanFinance(amount float64) bool {
	if amount <= 0 {
		return false
	}
	b := s.Budget
	if b.RecycledTodayBudget >= amount {
		return true
	}
	return b.DailyRemaining >= amount && b.WeeklyRemaining >= amount
}

// Finance debits amount: recycled allowance first (mirrored in the total
// recycled pool), any shortfall from the daily and weekly counters equally.
// CashFree drops by the full amount regardless of source. Callers check
// CanFinance beforehand.
func (s *BotState) Finance(amount float64) FinanceSplit {
	b := &s.Budget
	fromRecycled := math.Min(b.RecycledTodayBudget, amount)
	b.RecycledTodayBudget -= fromRecycled
	b.RecycledCash -= fromRecycled
	shortfall := amount - fromRecycled
	if shortfall > 0 {
		b.DailyRemaining -= shortfall
		b.WeeklyRemaining -= shortfall
	}
	s.CashFree -= amount
	return FinanceSplit{FromRecycled: fromRecycled, FromCaps: shortfall}
}

// EntrySize clamps the configured order size to what financing can cover:
// either the recycled allowance or the tighter of the two cap counters.
func (s *BotState) EntrySize(orderSize float64) float64 {
	b := s.Budget
	available := math.Max(b.RecycledTodayBudget, math.Min(b.DailyRemaining, b.WeeklyRemaining))
	size := math.Min(orderSize, available)
	if size <= 0 {
		return 0
	}
	return size
}

// recycle credits reinvestable proceeds to the recycled pool and tops up the
// daily allowance without exceeding softCap.
func (s *BotState) recycle(reinvest, softCap float64) {
	if reinvest <= 0 {
		return
	}
	b := &s.Budget
	b.RecycledCash += reinvest
	headroom := softCap - b.RecycledTodayBudget
	if headroom < 0 {
		headroom = 0
	}
	b.RecycledTodayBudget += math.Min(reinvest, headroom)
}

// DayKey formats t as YYYY-MM-DD in UTC.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey formats t's ISO week as YYYY-Www in UTC.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rotatePeriods detects day/week boundaries. On a boundary it first emits the
// period summary and stashes the rollover carry (reading the pre-reset
// counters), then resets the counter to capBase+carry. Running it twice in
// the same period is a no-op. The daily rotation also re-opens the recycled
// allowance, clamped to min(pool, soft cap).
func (e *Engine) rotatePeriods(st *BotState, now time.Time) {
	day := DayKey(now)
	week := WeekKey(now)
	b := &st.Budget
	cfg := e.cfg.Budget

	if b.CurrentDay != day {
		if b.CurrentDay != "" {
			e.notify("%s", periodSummary("Daily", b.CurrentDay, e.cfg.ID, st.DayStats))
			b.CarryDailyNext = math.Min(math.Max(b.DailyRemaining, 0), cfg.MaxDailyCarry)
			st.DayStats = PeriodStats{}
		}
		b.DailyRemaining = cfg.DailyCap + b.CarryDailyNext
		b.CarryDailyNext = 0
		b.CurrentDay = day
		b.RecycledTodayBudget = math.Min(b.RecycledCash, cfg.RecycledSoftCap)
		if b.RecycledTodayBudget < 0 {
			b.RecycledTodayBudget = 0
		}
	}

	if b.CurrentWeek != week {
		if b.CurrentWeek != "" {
			e.notify("%s", periodSummary("Weekly", b.CurrentWeek, e.cfg.ID, st.WeekStats))
			b.CarryWeeklyNext = math.Min(math.Max(b.WeeklyRemaining, 0), cfg.MaxWeeklyCarry)
			st.WeekStats = PeriodStats{}
		}
		b.WeeklyRemaining = cfg.WeeklyCap + b.CarryWeeklyNext
		b.CarryWeeklyNext = 0
		b.CurrentWeek = week
	}
}

func periodSummary(kind, period, botID string, s PeriodStats) string {
	return fmt.Sprintf(
		"📊 [%s] %s summary %s • buys %d • sells %d • TPs %d • pools %d • stops %d • pnl %+.2f • skimmed %.2f • bought %.2f • sold %.2f",
		botID, kind, period, s.Buys, s.Sells, s.TakeProfits, s.Pools, s.Stops,
		s.RealizedPnL, s.SkimSaved, s.VolumeBought, s.VolumeSold,
	)
}
