package engine

import (
	"context"
	"fmt"
	"time"

	"stacker/internal/config"
	"stacker/internal/gateway/exchange"
	"stacker/internal/gateway/notifier"
	"stacker/internal/logger"
	"stacker/internal/market"

	"github.com/google/uuid"
)

// FillRecord is one confirmed exchange fill, handed to the trade journal.
type FillRecord struct {
	BotID   string
	Symbol  string
	Side    string // "buy" | "sell"
	Kind    string // "entry" | "take_profit" | "core_take_profit" | "soft_stop" | "super_stop"
	OrderID string
	Qty     float64
	Price   float64
	Quote   float64
	At      time.Time
	Detail  map[string]any
}

// Journal persists confirmed fills. Failures are logged, never fatal to the
// tick.
type Journal interface {
	RecordFill(ctx context.Context, rec FillRecord) error
}

// Engine drives one bot's position lifecycle. All collaborators are injected;
// the engine owns no I/O of its own and every decision helper is pure, which
// keeps ticks deterministic under test.
type Engine struct {
	cfg      config.BotConfig
	ex       exchange.Connector
	notifier notifier.Notifier
	journal  Journal
	nowFn    func() time.Time
}

type Option func(*Engine)

func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithNow(fn func() time.Time) Option {
	return func(e *Engine) { e.nowFn = fn }
}

func New(cfg config.BotConfig, ex exchange.Connector, n notifier.Notifier, opts ...Option) *Engine {
	e := &Engine{cfg: cfg, ex: ex, notifier: n, nowFn: time.Now}
	if e.notifier == nil {
		e.notifier = notifier.Noop{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunTick executes one full cycle in strict order: rotate budgets, fetch
// market data, entry signal + financing, lot take-profits, pooling, core
// take-profit, stops. The caller persists state afterwards — also when an
// error is returned, since every mutation before the failing exchange call
// is already confirmed.
func (e *Engine) RunTick(ctx context.Context, st *BotState) error {
	now := e.nowFn()
	e.rotatePeriods(st, now)

	candles, err := e.ex.FetchCandles(ctx, e.cfg.Timeframe, e.cfg.CandleLimit)
	if err != nil {
		return err
	}
	closes := market.Candles(candles).Closes()
	if len(closes) == 0 {
		logger.Warnf("[%s] no closed candles returned, skipping tick", e.cfg.ID)
		return nil
	}

	price, err := e.ex.FetchPrice(ctx)
	if err != nil {
		return err
	}
	if price <= 0 {
		logger.Warnf("[%s] degenerate ticker price %g, skipping tick", e.cfg.ID, price)
		return nil
	}

	fastEMA := emaLast(closes, e.cfg.Strategy.EMAFast)
	slowEMA := emaLast(closes, e.cfg.Strategy.EMASlow)

	if err := e.tryEnter(ctx, st, closes, now); err != nil {
		return err
	}
	fired, err := e.applyLotTakeProfits(ctx, st, price)
	if err != nil {
		return err
	}
	e.poolMaturedLots(st, fired)
	if err := e.applyCoreTakeProfits(ctx, st, price); err != nil {
		return err
	}
	if err := e.applySoftStop(ctx, st, price, fastEMA, slowEMA); err != nil {
		return err
	}
	if err := e.applySuperStop(ctx, st, closes, fastEMA, slowEMA); err != nil {
		return err
	}

	st.EquityHint = (st.OpenQty() + st.Core.Qty) * price
	st.UpdatedAt = now
	return nil
}

// tryEnter places a market buy when the signal fires and financing allows.
// Ledger mutations happen only after the exchange confirms the fill.
func (e *Engine) tryEnter(ctx context.Context, st *BotState, closes []float64, now time.Time) error {
	sig := EvalEntry(closes, e.cfg.Strategy, st.LastBuyAt, now)
	if !sig.ShouldBuy() {
		return nil
	}
	amount := st.EntrySize(e.cfg.OrderSize)
	if amount <= 0 || !st.CanFinance(amount) {
		logger.Debugf("[%s] entry signal without budget (order_size=%g)", e.cfg.ID, e.cfg.OrderSize)
		return nil
	}

	fill, err := e.ex.MarketBuy(ctx, amount)
	if err != nil {
		return err
	}
	if fill.FilledQty <= 0 || fill.Price <= 0 {
		logger.Warnf("[%s] buy confirmed with degenerate fill (qty=%g price=%g), ignoring", e.cfg.ID, fill.FilledQty, fill.Price)
		return nil
	}

	split := st.Finance(amount)
	lot := PositionLot{
		ID:         uuid.NewString(),
		OpenedAt:   now,
		Entry:      fill.Price,
		FilledQty:  fill.FilledQty,
		QtyRem:     fill.FilledQty,
		TPTakenIdx: -1,
		CostBasis:  amount,
	}
	st.Lots = append(st.Lots, lot)
	st.LastBuyAt = now
	st.bump(func(p *PeriodStats) {
		p.Buys++
		p.VolumeBought += amount
	})

	e.record(ctx, FillRecord{
		BotID: e.cfg.ID, Symbol: e.cfg.Symbol, Side: "buy", Kind: "entry",
		OrderID: fill.OrderID, Qty: fill.FilledQty, Price: fill.Price, Quote: amount, At: now,
		Detail: map[string]any{"from_recycled": split.FromRecycled, "from_caps": split.FromCaps},
	})
	e.notify(
		"✅ [%s] %s • buy %.6f @ %.2f (≈ %.2f, recycled %.2f / caps %.2f)",
		e.cfg.ID, e.cfg.Symbol, fill.FilledQty, fill.Price, amount, split.FromRecycled, split.FromCaps,
	)
	return nil
}

func (e *Engine) notify(format string, args ...any) {
	if e.notifier == nil {
		return
	}
	if len(args) == 0 {
		e.notifier.Notify(format)
		return
	}
	e.notifier.Notify(fmt.Sprintf(format, args...))
}

func (e *Engine) record(ctx context.Context, rec FillRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordFill(ctx, rec); err != nil {
		logger.Warnf("[%s] trade journal write failed: %v", e.cfg.ID, err)
	}
}
