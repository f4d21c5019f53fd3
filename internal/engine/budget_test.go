package engine

import (
	"testing"
	"time"

	"stacker/internal/config"

	"github.com/stretchr/testify/assert"
)

func testBudgetConfig() config.BudgetConfig {
	return config.BudgetConfig{
		DailyCap:        30,
		WeeklyCap:       100,
		MaxDailyCarry:   15,
		MaxWeeklyCarry:  40,
		RecycledSoftCap: 50,
		SkimPct:         0.10,
	}
}

func TestCanFinance(t *testing.T) {
	st := NewBotState()
	st.Budget.DailyRemaining = 30
	st.Budget.WeeklyRemaining = 100

	assert.True(t, st.CanFinance(30))
	assert.False(t, st.CanFinance(31), "daily cap binds")
	assert.False(t, st.CanFinance(0))
	assert.False(t, st.CanFinance(-5))

	// Recycled allowance alone can cover even when caps cannot.
	st.Budget.DailyRemaining = 5
	st.Budget.RecycledCash = 40
	st.Budget.RecycledTodayBudget = 40
	assert.True(t, st.CanFinance(35))
}

func TestFinanceRecycledFirst(t *testing.T) {
	st := NewBotState()
	st.Budget.DailyRemaining = 30
	st.Budget.WeeklyRemaining = 100
	st.Budget.RecycledCash = 25
	st.Budget.RecycledTodayBudget = 10
	st.CashFree = 200

	split := st.Finance(16)

	assert.Equal(t, 10.0, split.FromRecycled)
	assert.Equal(t, 6.0, split.FromCaps)
	assert.Equal(t, 0.0, st.Budget.RecycledTodayBudget)
	assert.Equal(t, 15.0, st.Budget.RecycledCash, "recycled draw mirrors into the pool")
	assert.Equal(t, 24.0, st.Budget.DailyRemaining)
	assert.Equal(t, 94.0, st.Budget.WeeklyRemaining, "shortfall debits both caps equally")
	assert.Equal(t, 184.0, st.CashFree, "cashFree drops by the full amount")
}

func TestFinanceCapsOnly(t *testing.T) {
	st := NewBotState()
	st.Budget.DailyRemaining = 30
	st.Budget.WeeklyRemaining = 100

	split := st.Finance(30)

	assert.Equal(t, 0.0, split.FromRecycled)
	assert.Equal(t, 30.0, split.FromCaps)
	assert.Equal(t, 0.0, st.Budget.DailyRemaining)
	assert.Equal(t, 70.0, st.Budget.WeeklyRemaining)
}

func TestEntrySize(t *testing.T) {
	st := NewBotState()
	st.Budget.DailyRemaining = 12
	st.Budget.WeeklyRemaining = 100

	assert.Equal(t, 12.0, st.EntrySize(30), "clamped to the tighter cap")
	assert.Equal(t, 5.0, st.EntrySize(5))

	st.Budget.DailyRemaining = 0
	assert.Equal(t, 0.0, st.EntrySize(30))

	st.Budget.RecycledTodayBudget = 20
	st.Budget.RecycledCash = 20
	assert.Equal(t, 20.0, st.EntrySize(30), "recycled allowance can exceed exhausted caps")
}

func TestRecycleRespectsSoftCap(t *testing.T) {
	st := NewBotState()
	st.Budget.RecycledTodayBudget = 45

	st.recycle(20, 50)

	assert.Equal(t, 20.0, st.Budget.RecycledCash)
	assert.Equal(t, 50.0, st.Budget.RecycledTodayBudget, "top-up clamps at the soft cap")
	assert.LessOrEqual(t, st.Budget.RecycledTodayBudget, st.Budget.RecycledCash+45)
}

func newRotationEngine(noteSink *[]string) *Engine {
	cfg := config.BotConfig{ID: "rot-test", Symbol: "BTC/USDC", Budget: testBudgetConfig()}
	return New(cfg, nil, notifierFunc(func(text string) {
		if noteSink != nil {
			*noteSink = append(*noteSink, text)
		}
	}))
}

func TestRotationFirstRunInitializesCounters(t *testing.T) {
	e := newRotationEngine(nil)
	st := NewBotState()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) // Monday

	e.rotatePeriods(st, now)

	assert.Equal(t, 30.0, st.Budget.DailyRemaining)
	assert.Equal(t, 100.0, st.Budget.WeeklyRemaining)
	assert.Equal(t, "2026-03-02", st.Budget.CurrentDay)
	assert.Equal(t, "2026-W10", st.Budget.CurrentWeek)
}

func TestRotationIdempotentWithinPeriod(t *testing.T) {
	var notes []string
	e := newRotationEngine(&notes)
	st := NewBotState()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.rotatePeriods(st, now)
	st.Budget.DailyRemaining = 12 // simulate spending
	before := *st

	e.rotatePeriods(st, now.Add(3*time.Hour))

	assert.Equal(t, before.Budget, st.Budget, "second rotation in the same period mutates nothing")
	assert.Empty(t, notes)
}

func TestRotationCarriesAndSummarizes(t *testing.T) {
	var notes []string
	e := newRotationEngine(&notes)
	st := NewBotState()
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	e.rotatePeriods(st, day1)

	st.Budget.DailyRemaining = 22 // unused; above MaxDailyCarry=15
	st.DayStats = PeriodStats{Buys: 2, RealizedPnL: 3.5}
	st.Budget.RecycledCash = 80
	st.Budget.RecycledTodayBudget = 5

	e.rotatePeriods(st, day1.Add(24*time.Hour))

	assert.Equal(t, 30.0+15.0, st.Budget.DailyRemaining, "carry clamped to configured max")
	assert.Equal(t, 0.0, st.Budget.CarryDailyNext, "carry consumed by the reset")
	assert.Equal(t, PeriodStats{}, st.DayStats, "day stats reset after summary")
	assert.Equal(t, 50.0, st.Budget.RecycledTodayBudget, "daily allowance reopened to min(pool, soft cap)")
	if assert.Len(t, notes, 1) {
		assert.Contains(t, notes[0], "Daily summary 2026-03-02")
		assert.Contains(t, notes[0], "buys 2")
	}
}

func TestRotationSummaryKeepsPercentLiterals(t *testing.T) {
	// Summary text is preformatted; a "%" in the bot id must survive the trip
	// through the notifier untouched.
	var notes []string
	cfg := config.BotConfig{ID: "rot-100%", Symbol: "BTC/USDC", Budget: testBudgetConfig()}
	e := New(cfg, nil, notifierFunc(func(text string) { notes = append(notes, text) }))
	st := NewBotState()
	day1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	e.rotatePeriods(st, day1)
	e.rotatePeriods(st, day1.Add(24*time.Hour))

	if assert.Len(t, notes, 1) {
		assert.Contains(t, notes[0], "[rot-100%]")
		assert.NotContains(t, notes[0], "%!")
	}
}

func TestRotationWeekBoundary(t *testing.T) {
	var notes []string
	e := newRotationEngine(&notes)
	st := NewBotState()
	sunday := time.Date(2026, 3, 8, 23, 0, 0, 0, time.UTC)
	e.rotatePeriods(st, sunday)
	st.Budget.WeeklyRemaining = 60 // above MaxWeeklyCarry=40

	monday := time.Date(2026, 3, 9, 0, 30, 0, 0, time.UTC)
	e.rotatePeriods(st, monday)

	assert.Equal(t, 100.0+40.0, st.Budget.WeeklyRemaining)
	assert.Equal(t, "2026-W11", st.Budget.CurrentWeek)
	// Both the daily and weekly summaries fired on this boundary.
	assert.Len(t, notes, 2)
}

func TestPeriodKeys(t *testing.T) {
	// 2026-01-01 is a Thursday, ISO week 1.
	d := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-01", DayKey(d))
	assert.Equal(t, "2026-W01", WeekKey(d))

	// 2027-01-01 is a Friday belonging to ISO week 53 of 2026.
	d = time.Date(2027, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-W53", WeekKey(d))
}
