package scheduler

import (
	"context"
	"testing"
	"time"

	"stacker/internal/market"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"1M", 30 * 24 * time.Hour, true},
		{"30m", 30 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0m", 0, false},
		{"-5m", 0, false},
		{"15x", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseIntervalDuration(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDropUnclosedKline(t *testing.T) {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	interval := 15 * time.Minute
	klines := []market.Candle{
		{OpenTime: base.Add(-30 * time.Minute).UnixMilli()},
		{OpenTime: base.Add(-15 * time.Minute).UnixMilli()},
		{OpenTime: base.UnixMilli()},
	}

	// Mid-candle: the last entry is still forming and must be dropped.
	got := dropUnclosedKlineAt(klines, interval, base.Add(5*time.Minute), DefaultKlineGrace)
	assert.Len(t, got, 2)

	// Well past close+grace: everything is settled.
	got = dropUnclosedKlineAt(klines, interval, base.Add(16*time.Minute), DefaultKlineGrace)
	assert.Len(t, got, 3)

	// Inside the grace window the candle still counts as unclosed.
	got = dropUnclosedKlineAt(klines, interval, base.Add(15*time.Minute+5*time.Second), DefaultKlineGrace)
	assert.Len(t, got, 2)
}

func TestAlignedSchedulerCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runs := 0
	s := NewAlignedScheduler(ctx, 15*time.Minute, 10*time.Second)
	s.Start(func() { runs++ })
	assert.Equal(t, 0, runs, "a cancelled scheduler never fires the task")

	s = NewAlignedScheduler(ctx, 15*time.Minute, 10*time.Second)
	s.RunImmediately = true
	s.Start(func() { runs++ })
	assert.Equal(t, 1, runs, "only the immediate run happens under a cancelled context")
}

func TestAlignedSchedulerNextTimes(t *testing.T) {
	s := &AlignedScheduler{Interval: 15 * time.Minute, Offset: 10 * time.Second}
	now := time.Date(2026, 3, 2, 12, 7, 30, 0, time.UTC)
	nextClose, wakeAt, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 15, 0, 0, time.UTC), nextClose)
	assert.Equal(t, nextClose.Add(10*time.Second), wakeAt)
	assert.Equal(t, wakeAt.Sub(now), wait)
}
