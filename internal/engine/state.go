package engine

import (
	"time"
)

// PositionLot is one financed entry, tracked independently until it is fully
// exited or pooled into the core bag. Lots are never deleted: a retired lot
// (QtyRem == 0) stays in the list as the audit record of its fills.
type PositionLot struct {
	ID         string    `json:"id"`
	OpenedAt   time.Time `json:"opened_at"`
	Entry      float64   `json:"entry"`
	FilledQty  float64   `json:"filled_qty"`
	QtyRem     float64   `json:"qty_rem"`
	TPTakenIdx int       `json:"tp_taken_idx"` // -1 until the first tier fires
	Pooled     bool      `json:"pooled"`
	CostBasis  float64   `json:"cost_basis"`
}

// Open reports whether the lot still participates in trading-tier logic.
func (l *PositionLot) Open() bool {
	return !l.Pooled && l.QtyRem > 0
}

// CoreBag is the pooled long-term holding: aggregate quantity plus a
// quantity-weighted average entry. AvgEntry is nil until the first merge.
type CoreBag struct {
	Qty      float64         `json:"qty"`
	AvgEntry *float64        `json:"avg_entry,omitempty"`
	TPDone   map[string]bool `json:"tp_done,omitempty"`
}

// Merge folds qty units entered at entry into the bag, updating the weighted
// average incrementally: newAvg = (oldAvg*oldQty + entry*qty) / (oldQty+qty).
func (c *CoreBag) Merge(entry, qty float64) {
	if entry <= 0 || qty <= 0 {
		return
	}
	if c.AvgEntry == nil || c.Qty <= 0 {
		avg := entry
		c.AvgEntry = &avg
		c.Qty += qty
		return
	}
	newQty := c.Qty + qty
	avg := (*c.AvgEntry*c.Qty + entry*qty) / newQty
	c.AvgEntry = &avg
	c.Qty = newQty
}

// LevelDone reports whether a wide-TP level label was already taken.
func (c *CoreBag) LevelDone(label string) bool {
	return c.TPDone[label]
}

func (c *CoreBag) markLevelDone(label string) {
	if c.TPDone == nil {
		c.TPDone = make(map[string]bool)
	}
	c.TPDone[label] = true
}

// BudgetState holds the live budget counters. Cap bases live in config; only
// the mutable side is persisted.
type BudgetState struct {
	DailyRemaining  float64 `json:"daily_remaining"`
	WeeklyRemaining float64 `json:"weekly_remaining"`

	CarryDailyNext  float64 `json:"carry_daily_next"`
	CarryWeeklyNext float64 `json:"carry_weekly_next"`

	// RecycledCash is the total skimmed-back pool; RecycledTodayBudget is
	// the slice of it spendable today (<= RecycledCash at all times).
	RecycledCash        float64 `json:"recycled_cash"`
	RecycledTodayBudget float64 `json:"recycled_today_budget"`

	CurrentDay  string `json:"current_day"`
	CurrentWeek string `json:"current_week"`
}

// PeriodStats aggregates activity for one reporting period.
type PeriodStats struct {
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	TakeProfits  int     `json:"take_profits"`
	Pools        int     `json:"pools"`
	Stops        int     `json:"stops"`
	RealizedPnL  float64 `json:"realized_pnl"`
	SkimSaved    float64 `json:"skim_saved"`
	VolumeBought float64 `json:"volume_bought"`
	VolumeSold   float64 `json:"volume_sold"`
}

// BotState is the aggregate root persisted after every tick.
type BotState struct {
	Lots   []PositionLot `json:"lots"`
	Core   CoreBag       `json:"core"`
	Budget BudgetState   `json:"budget"`

	CashFree   float64 `json:"cash_free"`
	EquityHint float64 `json:"equity_hint"`

	DayStats      PeriodStats `json:"day_stats"`
	WeekStats     PeriodStats `json:"week_stats"`
	LifetimeStats PeriodStats `json:"lifetime_stats"`

	LastBuyAt time.Time `json:"last_buy_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewBotState() *BotState {
	return &BotState{}
}

// bump applies one stats mutation to the day, week and lifetime buckets.
func (s *BotState) bump(fn func(*PeriodStats)) {
	fn(&s.DayStats)
	fn(&s.WeekStats)
	fn(&s.LifetimeStats)
}

// OpenQty is the total unpooled remaining quantity across lots.
func (s *BotState) OpenQty() float64 {
	total := 0.0
	for i := range s.Lots {
		if s.Lots[i].Open() {
			total += s.Lots[i].QtyRem
		}
	}
	return total
}

// OpenLots returns copies of the lots still in play, for reporting.
func (s *BotState) OpenLots() []PositionLot {
	var out []PositionLot
	for i := range s.Lots {
		if s.Lots[i].Open() {
			out = append(out, s.Lots[i])
		}
	}
	return out
}

// BudgetSnapshot returns a copy of the live budget counters.
func (s *BotState) BudgetSnapshot() BudgetState {
	return s.Budget
}

// CoreSnapshot returns a deep copy of the core bag.
func (s *BotState) CoreSnapshot() CoreBag {
	out := CoreBag{Qty: s.Core.Qty}
	if s.Core.AvgEntry != nil {
		avg := *s.Core.AvgEntry
		out.AvgEntry = &avg
	}
	if len(s.Core.TPDone) > 0 {
		out.TPDone = make(map[string]bool, len(s.Core.TPDone))
		for k, v := range s.Core.TPDone {
			out.TPDone[k] = v
		}
	}
	return out
}
