package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stacker/internal/config"
	"stacker/internal/engine"
	"stacker/internal/gateway/binance"
	"stacker/internal/gateway/exchange"
	"stacker/internal/gateway/notifier"
	"stacker/internal/gateway/paper"
	"stacker/internal/logger"
	"stacker/internal/scheduler"
	"stacker/internal/store"
)

// tickOffset delays each tick slightly past candle close so the exchange has
// published the closed candle by the time we fetch.
const tickOffset = 10 * time.Second

// BotSummary is the read-model served over HTTP.
type BotSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Paper     bool   `json:"paper"`
	Running   bool   `json:"running"`

	CashFree   float64            `json:"cash_free"`
	EquityHint float64            `json:"equity_hint"`
	OpenLots   int                `json:"open_lots"`
	Core       engine.CoreBag     `json:"core"`
	Budget     engine.BudgetState `json:"budget"`

	LastTickAt time.Time `json:"last_tick_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Manager owns the bot fleet: one engine, scheduler goroutine and state file
// per bot. Bots can be added, replaced and removed while the process runs.
type Manager struct {
	cfg     config.Config
	journal engine.Journal

	// connectorFn overrides exchange connector construction in tests.
	connectorFn func(config.BotConfig) (exchange.Connector, error)

	mu   sync.Mutex
	bots map[string]*botRunner
	ctx  context.Context
	wg   sync.WaitGroup
}

type botRunner struct {
	cfg    config.BotConfig
	eng    *engine.Engine
	states *store.StateStore
	notify notifier.Notifier

	mu         sync.Mutex
	st         *engine.BotState
	lastTickAt time.Time
	lastErr    string

	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// fromFile marks bots defined in the watched bots file; only those are
	// removed when they disappear from it.
	fromFile bool
}

func New(cfg config.Config, journal engine.Journal) *Manager {
	return &Manager{
		cfg:     cfg,
		journal: journal,
		bots:    make(map[string]*botRunner),
	}
}

// Start brings up every configured bot and, when a bots file is configured,
// begins watching it. Blocks until ctx is cancelled, then waits for in-flight
// ticks to finish.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	for _, bc := range m.cfg.Bots {
		if err := m.Upsert(bc); err != nil {
			return fmt.Errorf("bot %s: %w", bc.ID, err)
		}
	}
	if m.cfg.BotsFile != "" {
		if err := m.watchBotsFile(ctx, m.cfg.BotsFile); err != nil {
			return err
		}
	}

	<-ctx.Done()
	m.shutdown()
	return nil
}

// Upsert adds a bot or replaces a running one. A replaced bot is stopped
// first; the new definition picks up the persisted state from its state file.
func (m *Manager) Upsert(bc config.BotConfig) error {
	return m.upsert(bc, false)
}

func (m *Manager) upsert(bc config.BotConfig, fromFile bool) error {
	bc.ApplyDefaults(m.cfg.App.DataDir)
	if err := bc.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.bots[bc.ID]; ok {
		m.stopLocked(prev)
		delete(m.bots, bc.ID)
		logger.Infof("[%s] bot replaced", bc.ID)
	}

	r, err := m.buildRunner(bc)
	if err != nil {
		return err
	}
	r.fromFile = fromFile
	m.bots[bc.ID] = r
	m.startLocked(r)
	return nil
}

// Remove stops a bot and forgets it. Its state file stays on disk.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.bots[id]
	if !ok {
		return fmt.Errorf("unknown bot: %s", id)
	}
	m.stopLocked(r)
	delete(m.bots, id)
	logger.Infof("[%s] bot removed", id)
	return nil
}

// StartBot resumes a stopped bot.
func (m *Manager) StartBot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.bots[id]
	if !ok {
		return fmt.Errorf("unknown bot: %s", id)
	}
	if r.running {
		return nil
	}
	m.startLocked(r)
	return nil
}

// StopBot pauses a bot's scheduler. An in-flight tick finishes and persists.
func (m *Manager) StopBot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.bots[id]
	if !ok {
		return fmt.Errorf("unknown bot: %s", id)
	}
	m.stopLocked(r)
	return nil
}

// Summaries lists all bots for the dashboard.
func (m *Manager) Summaries() []BotSummary {
	m.mu.Lock()
	runners := make([]*botRunner, 0, len(m.bots))
	for _, r := range m.bots {
		runners = append(runners, r)
	}
	m.mu.Unlock()

	out := make([]BotSummary, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.summary())
	}
	return out
}

// StateSnapshot returns a deep copy of one bot's ledger state.
func (m *Manager) StateSnapshot(id string) (*engine.BotState, error) {
	m.mu.Lock()
	r, ok := m.bots[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown bot: %s", id)
	}
	return r.snapshot(), nil
}

func (m *Manager) buildRunner(bc config.BotConfig) (*botRunner, error) {
	conn, err := m.connector(bc)
	if err != nil {
		return nil, err
	}

	var n notifier.Notifier = notifier.Noop{}
	tg := bc.Telegram
	if !tg.Configured() {
		tg = m.cfg.Notify.Telegram
	}
	if tg.Configured() {
		n = notifier.NewTelegram(tg.BotToken, tg.ChatID)
	}

	states := store.NewStateStore(bc.StateFile)
	st, err := states.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	eng := engine.New(bc, conn, n, engine.WithJournal(m.journal))
	return &botRunner{cfg: bc, eng: eng, states: states, notify: n, st: st}, nil
}

func (m *Manager) connector(bc config.BotConfig) (exchange.Connector, error) {
	if m.connectorFn != nil {
		return m.connectorFn(bc)
	}
	if bc.Paper {
		md, err := binance.New("", "", bc.Symbol)
		if err != nil {
			return nil, err
		}
		return paper.New(md), nil
	}
	return binance.New(bc.APIKey, bc.APISecret, bc.Symbol)
}

// startLocked launches the runner's scheduler goroutine. Caller holds m.mu.
func (m *Manager) startLocked(r *botRunner) {
	parent := m.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	interval, ok := scheduler.ParseIntervalDuration(r.cfg.Timeframe)
	if !ok {
		// Validate() already rejected bad timeframes; belt and braces.
		logger.Errorf("[%s] bad timeframe %q", r.cfg.ID, r.cfg.Timeframe)
		interval = time.Hour
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		sch := scheduler.NewAlignedScheduler(ctx, interval, tickOffset)
		sch.RunImmediately = true
		sch.Start(func() { m.tickOnce(ctx, r) })
	}()
	logger.Infof("[%s] bot started (%s %s, paper=%v)", r.cfg.ID, r.cfg.Symbol, r.cfg.Timeframe, r.cfg.Paper)
}

// stopLocked cancels the runner and waits for its loop to exit. Caller holds
// m.mu; the tick callback never takes m.mu, so this cannot deadlock.
func (m *Manager) stopLocked(r *botRunner) {
	if !r.running {
		return
	}
	r.cancel()
	<-r.done
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	logger.Infof("[%s] bot stopped", r.cfg.ID)
}

func (m *Manager) tickOnce(ctx context.Context, r *botRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.eng.RunTick(ctx, r.st)
	r.lastTickAt = time.Now()
	if err != nil {
		r.lastErr = err.Error()
		if errors.Is(err, exchange.ErrConnectivity) {
			logger.Warnf("[%s] tick aborted: %v", r.cfg.ID, err)
			r.notify.Notify(fmt.Sprintf("⚠️ [%s] exchange unreachable, tick skipped: %v", r.cfg.ID, err))
		} else {
			logger.Errorf("[%s] tick failed: %v", r.cfg.ID, err)
		}
	} else {
		r.lastErr = ""
	}

	// Persist regardless: mutations before a failed exchange call are
	// confirmed fills and must survive a restart.
	if err := r.states.Save(r.st); err != nil {
		logger.Errorf("[%s] state save failed: %v", r.cfg.ID, err)
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	for _, r := range m.bots {
		if r.running {
			r.cancel()
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
	logger.Infof("all bots stopped")
}

func (r *botRunner) summary() BotSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return BotSummary{
		ID:         r.cfg.ID,
		Name:       r.cfg.Name,
		Symbol:     r.cfg.Symbol,
		Timeframe:  r.cfg.Timeframe,
		Paper:      r.cfg.Paper,
		Running:    r.running,
		CashFree:   r.st.CashFree,
		EquityHint: r.st.EquityHint,
		OpenLots:   len(r.st.OpenLots()),
		Core:       r.st.CoreSnapshot(),
		Budget:     r.st.BudgetSnapshot(),
		LastTickAt: r.lastTickAt,
		LastError:  r.lastErr,
	}
}

func (r *botRunner) snapshot() *engine.BotState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.st
	cp.Lots = append([]engine.PositionLot(nil), r.st.Lots...)
	cp.Core = r.st.CoreSnapshot()
	return &cp
}
