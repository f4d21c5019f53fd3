package manager

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stacker/internal/config"
	"stacker/internal/gateway/exchange"
	"stacker/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubConnector serves a flat market so no trade ever fires.
type stubConnector struct{}

func (stubConnector) FetchCandles(_ context.Context, _ string, _ int) ([]market.Candle, error) {
	out := make([]market.Candle, 30)
	for i := range out {
		out[i] = market.Candle{Open: 100, High: 100, Low: 100, Close: 100}
	}
	return out, nil
}

func (stubConnector) FetchPrice(_ context.Context) (float64, error) { return 100, nil }

func (stubConnector) MarketBuy(_ context.Context, _ float64) (exchange.BuyFill, error) {
	return exchange.BuyFill{}, nil
}

func (stubConnector) MarketSell(_ context.Context, _ float64) (exchange.SellFill, error) {
	return exchange.SellFill{}, nil
}

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := New(config.Config{App: config.AppConfig{DataDir: t.TempDir()}}, nil)
	m.connectorFn = func(config.BotConfig) (exchange.Connector, error) {
		return stubConnector{}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		m.wg.Wait()
	})
	m.ctx = ctx
	return m
}

func paperBot(id string) config.BotConfig {
	return config.BotConfig{ID: id, Symbol: "BTC/USDC", Timeframe: "1h", Paper: true}
}

func TestManagerUpsertStartsBot(t *testing.T) {
	m := testManager(t)

	require.NoError(t, m.Upsert(paperBot("b1")))

	sums := m.Summaries()
	require.Len(t, sums, 1)
	assert.Equal(t, "b1", sums[0].ID)
	assert.True(t, sums[0].Running)
	assert.True(t, sums[0].Paper)

	// RunImmediately: the first tick lands right after start.
	assert.Eventually(t, func() bool {
		return !m.Summaries()[0].LastTickAt.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerStopStartRemove(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Upsert(paperBot("b1")))

	require.NoError(t, m.StopBot("b1"))
	assert.False(t, m.Summaries()[0].Running)

	require.NoError(t, m.StartBot("b1"))
	assert.True(t, m.Summaries()[0].Running)

	require.NoError(t, m.Remove("b1"))
	assert.Empty(t, m.Summaries())

	assert.Error(t, m.Remove("b1"))
	assert.Error(t, m.StartBot("nope"))
}

func TestManagerUpsertRejectsInvalidBot(t *testing.T) {
	m := testManager(t)
	bc := paperBot("bad")
	bc.Timeframe = "sometimes"
	assert.Error(t, m.Upsert(bc))
	assert.Empty(t, m.Summaries())
}

func TestManagerStateSnapshotIsACopy(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Upsert(paperBot("b1")))

	snap, err := m.StateSnapshot("b1")
	require.NoError(t, err)
	snap.CashFree = 999

	again, err := m.StateSnapshot("b1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, again.CashFree)

	_, err = m.StateSnapshot("nope")
	assert.Error(t, err)
}

func TestApplyBotsFileSyncsFleet(t *testing.T) {
	m := testManager(t)

	// An inline bot must survive bots-file syncs.
	require.NoError(t, m.Upsert(paperBot("inline")))

	dir := t.TempDir()
	path := filepath.Join(dir, "bots.yaml")
	write := func(body string) {
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	write(`bots:
  - id: f1
    symbol: BTC/USDC
    timeframe: 1h
    paper: true
  - id: f2
    symbol: ETH/USDC
    timeframe: 4h
    paper: true
`)
	require.NoError(t, m.applyBotsFile(path))
	assert.Len(t, m.Summaries(), 3)

	// Drop f2: it stops, f1 and the inline bot stay.
	write(`bots:
  - id: f1
    symbol: BTC/USDC
    timeframe: 1h
    paper: true
`)
	require.NoError(t, m.applyBotsFile(path))
	ids := map[string]bool{}
	for _, s := range m.Summaries() {
		ids[s.ID] = true
	}
	assert.Equal(t, map[string]bool{"inline": true, "f1": true}, ids)
}

func TestApplyBotsFileRejectsDuplicates(t *testing.T) {
	m := testManager(t)
	path := filepath.Join(t.TempDir(), "bots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`bots:
  - id: dup
    symbol: BTC/USDC
    timeframe: 1h
    paper: true
  - id: dup
    symbol: ETH/USDC
    timeframe: 1h
    paper: true
`), 0o644))
	assert.Error(t, m.applyBotsFile(path))
}

func TestApplyBotsFileRejectsUnknownKeys(t *testing.T) {
	m := testManager(t)
	path := filepath.Join(t.TempDir(), "bots.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`bots:
  - id: typo
    symbol: BTC/USDC
    timefame: 1h
    paper: true
`), 0o644))
	assert.Error(t, m.applyBotsFile(path))
	assert.Empty(t, m.Summaries())
}
