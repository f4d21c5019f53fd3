package config

import (
	"fmt"
	"strings"

	"stacker/internal/scheduler"
)

func validate(c *Config) error {
	ids := make(map[string]struct{}, len(c.Bots))
	for i := range c.Bots {
		b := &c.Bots[i]
		if err := b.Validate(); err != nil {
			return err
		}
		if _, dup := ids[b.ID]; dup {
			return fmt.Errorf("bots contains duplicate id: %s", b.ID)
		}
		ids[b.ID] = struct{}{}
	}
	return nil
}

// Validate rejects a bot definition before it can enter the tick loop.
func (b *BotConfig) Validate() error {
	id := strings.TrimSpace(b.ID)
	if id == "" {
		return fmt.Errorf("bot id is required")
	}
	if strings.TrimSpace(b.Symbol) == "" {
		return fmt.Errorf("bot %s: symbol is required", id)
	}
	if _, ok := scheduler.ParseIntervalDuration(b.Timeframe); !ok {
		return fmt.Errorf("bot %s: invalid timeframe %q", id, b.Timeframe)
	}
	if b.OrderSize <= 0 {
		return fmt.Errorf("bot %s: order_size must be > 0", id)
	}
	if !b.Paper && (strings.TrimSpace(b.APIKey) == "" || strings.TrimSpace(b.APISecret) == "") {
		return fmt.Errorf("bot %s: live mode requires api_key and api_secret", id)
	}

	s := b.Strategy
	if s.EMAFast >= s.EMASlow {
		return fmt.Errorf("bot %s: strategy.ema_fast (%d) must be < ema_slow (%d)", id, s.EMAFast, s.EMASlow)
	}
	if s.PullbackTolerance < 0 {
		return fmt.Errorf("bot %s: strategy.pullback_tolerance must be >= 0", id)
	}

	bd := b.Budget
	if bd.DailyCap > bd.WeeklyCap {
		return fmt.Errorf("bot %s: budget.daily_cap (%g) exceeds weekly_cap (%g)", id, bd.DailyCap, bd.WeeklyCap)
	}
	if bd.SkimPct < 0 || bd.SkimPct >= 1 {
		return fmt.Errorf("bot %s: budget.skim_pct must be in [0,1)", id)
	}

	tp := b.TakeProfit
	if len(tp.Levels) != len(tp.Fractions) {
		return fmt.Errorf("bot %s: take_profit.levels (%d) and fractions (%d) must align", id, len(tp.Levels), len(tp.Fractions))
	}
	for i, lvl := range tp.Levels {
		if lvl <= 0 {
			return fmt.Errorf("bot %s: take_profit.levels[%d] must be > 0", id, i)
		}
		if i > 0 && lvl <= tp.Levels[i-1] {
			return fmt.Errorf("bot %s: take_profit.levels must be strictly ascending", id)
		}
		if f := tp.Fractions[i]; f <= 0 || f > 1 {
			return fmt.Errorf("bot %s: take_profit.fractions[%d] must be in (0,1]", id, i)
		}
	}

	if b.Core.WideTP {
		for i, lvl := range b.Core.Levels {
			if lvl.Pct <= 0 {
				return fmt.Errorf("bot %s: core.levels[%d].pct must be > 0", id, i)
			}
			if i > 0 && lvl.Pct <= b.Core.Levels[i-1].Pct {
				return fmt.Errorf("bot %s: core.levels must be strictly ascending", id)
			}
			if lvl.Fraction <= 0 || lvl.Fraction > 1 {
				return fmt.Errorf("bot %s: core.levels[%d].fraction must be in (0,1]", id, i)
			}
		}
	}

	st := b.Stops
	if st.SoftBand <= 0 || st.SoftBand >= 1 {
		return fmt.Errorf("bot %s: stops.soft_band must be in (0,1)", id)
	}
	if st.SuperFraction <= 0 || st.SuperFraction > 1 {
		return fmt.Errorf("bot %s: stops.super_fraction must be in (0,1]", id)
	}
	return nil
}
