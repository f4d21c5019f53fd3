package engine

import (
	"testing"
	"time"

	"stacker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoreBagMergeWeightedAverage(t *testing.T) {
	var bag CoreBag
	bag.Merge(100, 1)
	require.NotNil(t, bag.AvgEntry)
	assert.Equal(t, 100.0, *bag.AvgEntry)

	bag.Merge(130, 2)
	assert.Equal(t, 3.0, bag.Qty)
	assert.InDelta(t, 120.0, *bag.AvgEntry, 1e-12)

	// Degenerate merges are ignored.
	bag.Merge(0, 5)
	bag.Merge(100, 0)
	assert.Equal(t, 3.0, bag.Qty)
}

func TestCoreBagMergeOrderIndependent(t *testing.T) {
	var a, b CoreBag
	a.Merge(100, 1)
	a.Merge(130, 2)
	b.Merge(130, 2)
	b.Merge(100, 1)
	assert.InDelta(t, *a.AvgEntry, *b.AvgEntry, 1e-9)
	assert.Equal(t, a.Qty, b.Qty)
}

func TestLotOpen(t *testing.T) {
	lot := PositionLot{QtyRem: 1}
	assert.True(t, lot.Open())
	lot.Pooled = true
	assert.False(t, lot.Open())
	lot = PositionLot{QtyRem: 0}
	assert.False(t, lot.Open())
}

func TestCoreSnapshotIsDeepCopy(t *testing.T) {
	st := NewBotState()
	avg := 100.0
	st.Core = CoreBag{Qty: 1, AvgEntry: &avg, TPDone: map[string]bool{"15%": true}}

	snap := st.CoreSnapshot()
	*snap.AvgEntry = 999
	snap.TPDone["30%"] = true

	assert.Equal(t, 100.0, *st.Core.AvgEntry)
	assert.False(t, st.Core.TPDone["30%"])
}

func TestEvalEntry(t *testing.T) {
	cfg := config.StrategyConfig{EMAFast: 1, EMASlow: 3, PullbackTolerance: 0.01, CooldownMinutes: 60}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	sig := EvalEntry([]float64{100, 100, 100, 101}, cfg, time.Time{}, now)
	assert.True(t, sig.Uptrend)
	assert.True(t, sig.Pullback)
	assert.True(t, sig.CooldownOK, "zero last-buy time means no cooldown")
	assert.True(t, sig.ShouldBuy())

	// Price extended too far above the slow EMA: trend holds, pullback fails.
	sig = EvalEntry([]float64{100, 100, 100, 110}, cfg, time.Time{}, now)
	assert.True(t, sig.Uptrend)
	assert.False(t, sig.Pullback)
	assert.False(t, sig.ShouldBuy())

	// Downtrend.
	sig = EvalEntry([]float64{100, 100, 100, 95}, cfg, time.Time{}, now)
	assert.False(t, sig.Uptrend)
	assert.False(t, sig.ShouldBuy())

	// Cooldown still running.
	sig = EvalEntry([]float64{100, 100, 100, 101}, cfg, now.Add(-59*time.Minute), now)
	assert.False(t, sig.CooldownOK)
	sig = EvalEntry([]float64{100, 100, 100, 101}, cfg, now.Add(-60*time.Minute), now)
	assert.True(t, sig.CooldownOK)

	sig = EvalEntry(nil, cfg, time.Time{}, now)
	assert.False(t, sig.ShouldBuy())
}
