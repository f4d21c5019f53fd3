package config

import (
	"fmt"
	"strings"
)

// Config is the top-level configuration for the stacker process.
type Config struct {
	App     AppConfig     `toml:"app"`
	Notify  NotifyConfig  `toml:"notify"`
	History HistoryConfig `toml:"history"`

	// BotsFile points at a standalone yaml listing bot definitions. It is
	// watched at runtime; edits are applied without a restart.
	BotsFile string `toml:"bots_file"`

	// Bots declared inline in the main config file.
	Bots []BotConfig `toml:"bots"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
	APIToken string `toml:"api_token"`
	DataDir  string `toml:"data_dir"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	BotToken string `toml:"bot_token" yaml:"bot_token"`
	ChatID   string `toml:"chat_id" yaml:"chat_id"`
}

func (t TelegramConfig) Configured() bool {
	return t.Enabled && strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

// HistoryConfig locates the sqlite trade journal.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// BotConfig fully describes one bot: one exchange market, one timeframe, one
// persisted state file. Bots arrive through viper (main config) and through
// strict yaml decoding (bots file), hence the dual tags.
type BotConfig struct {
	ID        string `toml:"id" yaml:"id"`
	Name      string `toml:"name" yaml:"name"`
	Symbol    string `toml:"symbol" yaml:"symbol"` // e.g. "BTC/USDC"
	Timeframe string `toml:"timeframe" yaml:"timeframe"`

	CandleLimit int     `toml:"candle_limit" yaml:"candle_limit"`
	OrderSize   float64 `toml:"order_size" yaml:"order_size"` // quote currency per entry

	// Paper bots simulate fills at the public ticker price and need no keys.
	Paper     bool   `toml:"paper" yaml:"paper"`
	APIKey    string `toml:"api_key" yaml:"api_key"`
	APISecret string `toml:"api_secret" yaml:"api_secret"`

	StateFile string `toml:"state_file" yaml:"state_file"`

	Strategy   StrategyConfig   `toml:"strategy" yaml:"strategy"`
	Budget     BudgetConfig     `toml:"budget" yaml:"budget"`
	TakeProfit TakeProfitConfig `toml:"take_profit" yaml:"take_profit"`
	Core       CoreConfig       `toml:"core" yaml:"core"`
	Stops      StopConfig       `toml:"stops" yaml:"stops"`

	// Per-bot telegram override; falls back to the global notify section.
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
}

type StrategyConfig struct {
	EMAFast           int     `toml:"ema_fast" yaml:"ema_fast"`
	EMASlow           int     `toml:"ema_slow" yaml:"ema_slow"`
	PullbackTolerance float64 `toml:"pullback_tolerance" yaml:"pullback_tolerance"`
	CooldownMinutes   int     `toml:"cooldown_minutes" yaml:"cooldown_minutes"`
}

// BudgetConfig carries the two-tier spending caps and the recycling knobs.
type BudgetConfig struct {
	DailyCap        float64 `toml:"daily_cap" yaml:"daily_cap"`
	WeeklyCap       float64 `toml:"weekly_cap" yaml:"weekly_cap"`
	MaxDailyCarry   float64 `toml:"max_daily_carry" yaml:"max_daily_carry"`
	MaxWeeklyCarry  float64 `toml:"max_weekly_carry" yaml:"max_weekly_carry"`
	RecycledSoftCap float64 `toml:"recycled_soft_cap" yaml:"recycled_soft_cap"`
	SkimPct         float64 `toml:"skim_pct" yaml:"skim_pct"`
}

// TakeProfitConfig defines the per-lot exit ladder. Levels are price offsets
// relative to entry (0.04 = +4%); Fractions are the share of the remaining
// quantity sold when the matching level fires.
type TakeProfitConfig struct {
	Levels    []float64 `toml:"levels" yaml:"levels"`
	Fractions []float64 `toml:"fractions" yaml:"fractions"`
}

type CoreConfig struct {
	WideTP bool        `toml:"wide_tp" yaml:"wide_tp"`
	Levels []CoreLevel `toml:"levels" yaml:"levels"`
}

type CoreLevel struct {
	Pct      float64 `toml:"pct" yaml:"pct"`
	Fraction float64 `toml:"fraction" yaml:"fraction"`
}

// Label is the permanent done-set key for a core level ("15%", "30%", ...).
func (l CoreLevel) Label() string {
	return fmt.Sprintf("%g%%", l.Pct*100)
}

type StopConfig struct {
	SoftBand      float64 `toml:"soft_band" yaml:"soft_band"`
	SuperEMA      int     `toml:"super_ema" yaml:"super_ema"`
	SuperBand     float64 `toml:"super_band" yaml:"super_band"`
	SuperWindow   int     `toml:"super_window" yaml:"super_window"`
	SuperFraction float64 `toml:"super_fraction" yaml:"super_fraction"`
}

// keySet tracks config paths explicitly present in the loaded files, so that
// defaults only fill what the operator left unset.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes one default-value rule.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
