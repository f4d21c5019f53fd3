package config

import (
	"path/filepath"
	"strings"
)

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":8080"
	defaultAppDataDir  = "/data/stacker"

	defaultHistoryFile = "history.db"

	defaultCandleLimit = 200
	defaultOrderSize   = 10

	defaultEMAFast         = 9
	defaultEMASlow         = 21
	defaultPullbackTol     = 0.002
	defaultCooldownMinutes = 240

	defaultDailyCap        = 100.0
	defaultWeeklyCap       = 500.0
	defaultRecycledSoftCap = 50.0
	defaultSkimPct         = 0.10

	defaultSoftBand      = 0.02
	defaultSuperEMA      = 50
	defaultSuperBand     = 0.03
	defaultSuperWindow   = 3
	defaultSuperFraction = 0.25
)

var (
	defaultTPLevels    = []float64{0.04, 0.10}
	defaultTPFractions = []float64{0.5, 0.5}

	defaultCoreLevels = []CoreLevel{
		{Pct: 0.15, Fraction: 0.20},
		{Pct: 0.30, Fraction: 0.20},
		{Pct: 0.50, Fraction: 0.20},
	}
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = filepath.Join(c.App.DataDir, defaultHistoryFile)
	}
	for i := range c.Bots {
		c.Bots[i].ApplyDefaults(c.App.DataDir)
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

// ApplyDefaults fills zero-valued bot fields. Bots arrive both from the main
// config and from the watched bots file, so defaults are keyed off zero
// values rather than the keySet (list entries flatten to a single path).
func (b *BotConfig) ApplyDefaults(dataDir string) {
	if b == nil {
		return
	}
	if strings.TrimSpace(b.Name) == "" {
		b.Name = b.ID
	}
	if b.CandleLimit <= 0 {
		b.CandleLimit = defaultCandleLimit
	}
	if b.OrderSize <= 0 {
		b.OrderSize = defaultOrderSize
	}
	if strings.TrimSpace(b.StateFile) == "" && strings.TrimSpace(b.ID) != "" {
		if strings.TrimSpace(dataDir) == "" {
			dataDir = defaultAppDataDir
		}
		b.StateFile = filepath.Join(dataDir, "bots", b.ID+".json")
	}

	s := &b.Strategy
	if s.EMAFast <= 0 {
		s.EMAFast = defaultEMAFast
	}
	if s.EMASlow <= 0 {
		s.EMASlow = defaultEMASlow
	}
	if s.PullbackTolerance <= 0 {
		s.PullbackTolerance = defaultPullbackTol
	}
	if s.CooldownMinutes <= 0 {
		s.CooldownMinutes = defaultCooldownMinutes
	}

	bd := &b.Budget
	if bd.DailyCap <= 0 {
		bd.DailyCap = defaultDailyCap
	}
	if bd.WeeklyCap <= 0 {
		bd.WeeklyCap = defaultWeeklyCap
	}
	// Carry maxima default to one full period of base cap.
	if bd.MaxDailyCarry <= 0 {
		bd.MaxDailyCarry = bd.DailyCap
	}
	if bd.MaxWeeklyCarry <= 0 {
		bd.MaxWeeklyCarry = bd.WeeklyCap
	}
	if bd.RecycledSoftCap <= 0 {
		bd.RecycledSoftCap = defaultRecycledSoftCap
	}
	if bd.SkimPct <= 0 {
		bd.SkimPct = defaultSkimPct
	}

	if len(b.TakeProfit.Levels) == 0 {
		b.TakeProfit.Levels = append([]float64(nil), defaultTPLevels...)
	}
	if len(b.TakeProfit.Fractions) == 0 {
		b.TakeProfit.Fractions = append([]float64(nil), defaultTPFractions...)
	}

	if b.Core.WideTP && len(b.Core.Levels) == 0 {
		b.Core.Levels = append([]CoreLevel(nil), defaultCoreLevels...)
	}

	st := &b.Stops
	if st.SoftBand <= 0 {
		st.SoftBand = defaultSoftBand
	}
	if st.SuperEMA <= 0 {
		st.SuperEMA = defaultSuperEMA
	}
	if st.SuperBand <= 0 {
		st.SuperBand = defaultSuperBand
	}
	if st.SuperWindow <= 0 {
		st.SuperWindow = defaultSuperWindow
	}
	if st.SuperFraction <= 0 {
		st.SuperFraction = defaultSuperFraction
	}
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
