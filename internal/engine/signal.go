package engine

import (
	"time"

	"stacker/internal/config"
	"stacker/internal/market"
)

// Signal is a pure entry decision; financing and order placement happen
// downstream of it.
type Signal struct {
	FastEMA   float64
	SlowEMA   float64
	LastClose float64

	Uptrend    bool
	Pullback   bool
	CooldownOK bool
}

func (s Signal) ShouldBuy() bool {
	return s.Uptrend && s.Pullback && s.CooldownOK
}

// EvalEntry derives the buy signal from the closing series: fast EMA above
// slow EMA, last close within pullback tolerance of the slow EMA, and the
// per-bot cooldown since the previous buy elapsed.
func EvalEntry(closes []float64, cfg config.StrategyConfig, lastBuyAt, now time.Time) Signal {
	var sig Signal
	if len(closes) == 0 {
		return sig
	}
	fast := emaLast(closes, cfg.EMAFast)
	slow := emaLast(closes, cfg.EMASlow)
	last := closes[len(closes)-1]

	sig.FastEMA = fast
	sig.SlowEMA = slow
	sig.LastClose = last
	sig.Uptrend = fast > slow
	sig.Pullback = slow > 0 && priceAtMost(last, relativeTarget(slow, cfg.PullbackTolerance))
	cooldown := time.Duration(cfg.CooldownMinutes) * time.Minute
	sig.CooldownOK = lastBuyAt.IsZero() || now.Sub(lastBuyAt) >= cooldown
	return sig
}

func emaLast(closes []float64, period int) float64 {
	series := market.EMASeries(closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
