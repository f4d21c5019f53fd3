package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"stacker/internal/engine"
	"stacker/internal/manager"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeFleet struct {
	started, stopped []string
}

func (f *fakeFleet) Summaries() []manager.BotSummary {
	return []manager.BotSummary{{ID: "b1", Symbol: "BTC/USDC", Running: true}}
}

func (f *fakeFleet) StateSnapshot(id string) (*engine.BotState, error) {
	if id != "b1" {
		return nil, fmt.Errorf("unknown bot: %s", id)
	}
	st := engine.NewBotState()
	st.CashFree = 42
	return st, nil
}

func (f *fakeFleet) StartBot(id string) error {
	if id != "b1" {
		return fmt.Errorf("unknown bot: %s", id)
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeFleet) StopBot(id string) error {
	if id != "b1" {
		return fmt.Errorf("unknown bot: %s", id)
	}
	f.stopped = append(f.stopped, id)
	return nil
}

type fakeFills struct{}

func (fakeFills) ListFills(_ context.Context, botID string, _, _ int) ([]engine.FillRecord, error) {
	if botID == "" || botID == "b1" {
		return []engine.FillRecord{{BotID: "b1", Side: "buy", Kind: "entry", Quote: 30}}, nil
	}
	return nil, nil
}

func (fakeFills) CountFills(context.Context, string) (int, error) { return 1, nil }

func newTestServer(t *testing.T, token string) (*Server, *fakeFleet) {
	t.Helper()
	fleet := &fakeFleet{}
	srv, err := NewServer(ServerConfig{Addr: ":0", Token: token, Fleet: fleet, Fills: fakeFills{}})
	require.NoError(t, err)
	return srv, fleet
}

func do(srv *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthzNeedsNoToken(t *testing.T) {
	srv, _ := newTestServer(t, "sekrit")
	w := do(srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenAuth(t *testing.T) {
	srv, _ := newTestServer(t, "sekrit")

	w := do(srv, http.MethodGet, "/api/bots")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(srv, http.MethodGet, "/api/bots?token=sekrit")
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/bots", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(srv, http.MethodGet, "/api/bots?token=wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEmptyTokenDisablesAuth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := do(srv, http.MethodGet, "/api/bots")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "b1", gjson.Get(w.Body.String(), "bots.0.id").String())
}

func TestBotStateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := do(srv, http.MethodGet, "/api/bots/b1/state")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 42.0, gjson.Get(w.Body.String(), "state.cash_free").Float())

	w = do(srv, http.MethodGet, "/api/bots/nope/state")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartStopEndpoints(t *testing.T) {
	srv, fleet := newTestServer(t, "")

	w := do(srv, http.MethodPost, "/api/bots/b1/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(srv, http.MethodPost, "/api/bots/b1/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"b1"}, fleet.stopped)
	assert.Equal(t, []string{"b1"}, fleet.started)

	w = do(srv, http.MethodPost, "/api/bots/nope/start")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFillsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := do(srv, http.MethodGet, "/api/fills?bot=b1")
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "total_count").Int())
	assert.Equal(t, "entry", gjson.Get(body, "fills.0.Kind").String())
}
