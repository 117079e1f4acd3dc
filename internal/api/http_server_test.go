package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bookingsync/internal/clock"
	"bookingsync/internal/config"
	"bookingsync/internal/events"
	"bookingsync/internal/models"
	"bookingsync/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeEngine struct {
	mu      sync.Mutex
	ops     []models.Operation
	online  bool
	syncs   int
	syncCtx context.Context
}

func (e *fakeEngine) AddToOfflineQueue(_ context.Context, op models.Operation) (int, error) {
	if err := op.Validate(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops = append(e.ops, op)
	return len(e.ops), nil
}

func (e *fakeEngine) SyncOfflineData(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.syncs++
	e.syncCtx = ctx
	return e.online && len(e.ops) > 0
}

func (e *fakeEngine) Status() service.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return service.Status{QueueLength: len(e.ops), Online: e.online}
}

func (e *fakeEngine) Pending() []models.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Operation(nil), e.ops...)
}

type fakeCycles struct {
	cycles []models.SyncCycle
	err    error
	limit  int
}

func (f *fakeCycles) GetRecentSyncCycles(_ context.Context, limit int) ([]models.SyncCycle, error) {
	f.limit = limit
	return f.cycles, f.err
}

type testServer struct {
	url    string
	engine *fakeEngine
	cycles *fakeCycles
	bus    *events.Bus[events.SyncEvent]
	cancel context.CancelFunc
}

func newTestServer(t *testing.T, cfg config.APIConfig) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		engine: &fakeEngine{online: true},
		cycles: &fakeCycles{},
		bus:    events.NewBus[events.SyncEvent](),
		cancel: cancel,
	}
	clk := clock.NewFake(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	srv := NewHTTPServer(ctx, cfg, ts.engine, ts.cycles, ts.bus, clk, nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		hs.Close()
	})
	ts.url = hs.URL
	return ts
}

func doRequest(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	resp := doRequest(t, http.MethodGet, ts.url+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSubmitAndStatus(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	resp := doRequest(t, http.MethodPost, ts.url+"/api/v1/queue",
		`{"natural_key":"BK-1","payload":{"item":"camera"}}`, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted struct {
		QueueLength int    `json:"queue_length"`
		Key         string `json:"key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	assert.Equal(t, 1, submitted.QueueLength)
	assert.Equal(t, "booking_BK-1", submitted.Key)
	assert.JSONEq(t, `{"item":"camera"}`, string(ts.engine.ops[0].Payload))

	resp = doRequest(t, http.MethodGet, ts.url+"/api/v1/queue?include=pending", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		Status  service.Status     `json:"status"`
		Pending []models.Operation `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, 1, status.Status.QueueLength)
	require.Len(t, status.Pending, 1)
	assert.Equal(t, "BK-1", status.Pending[0].NaturalKey)
}

func TestSubmitValidation(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	resp := doRequest(t, http.MethodPost, ts.url+"/api/v1/queue", `{"natural_key":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, ts.url+"/api/v1/queue", `{"natural_key":"x","unknown":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, ts.url+"/api/v1/queue", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTriggerSync_UsesServerContext(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	_, _ = ts.engine.AddToOfflineQueue(context.Background(), models.Operation{Kind: models.KindBooking, NaturalKey: "BK-1"})

	resp := doRequest(t, http.MethodPost, ts.url+"/api/v1/sync", "", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body struct {
		Started bool `json:"started"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Started)

	ts.engine.mu.Lock()
	ctx := ts.engine.syncCtx
	ts.engine.mu.Unlock()
	require.NotNil(t, ctx)
	assert.NoError(t, ctx.Err(), "cycle context must outlive the request")

	resp = doRequest(t, http.MethodGet, ts.url+"/api/v1/sync", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestExport(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	_, _ = ts.engine.AddToOfflineQueue(context.Background(), models.Operation{Kind: models.KindBooking, NaturalKey: "BK-9"})

	resp := doRequest(t, http.MethodGet, ts.url+"/api/v1/queue/export", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "pending_20240701_120000.xlsx")

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue("Pending", "C3")
	require.NoError(t, err)
	assert.Equal(t, "BK-9", v)
}

func TestCycles(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})
	ts.cycles.cycles = []models.SyncCycle{{ID: 2, CycleID: "c-2", Result: models.CycleResultDrained}}

	resp := doRequest(t, http.MethodGet, ts.url+"/api/v1/sync/cycles?limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, ts.cycles.limit)

	var body struct {
		Cycles []models.SyncCycle `json:"cycles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Cycles, 1)
	assert.Equal(t, "c-2", body.Cycles[0].CycleID)

	resp = doRequest(t, http.MethodGet, ts.url+"/api/v1/sync/cycles?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ts.cycles.err = errors.New("db closed")
	resp = doRequest(t, http.MethodGet, ts.url+"/api/v1/sync/cycles", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 20, ts.cycles.limit)
}

func TestCycles_Disabled(t *testing.T) {
	engine := &fakeEngine{}
	srv := NewHTTPServer(context.Background(), config.APIConfig{}, engine, nil, nil, nil, nil)
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()

	resp := doRequest(t, http.MethodGet, hs.URL+"/api/v1/sync/cycles", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = doRequest(t, http.MethodGet, hs.URL+"/api/v1/events", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{})

	wsURL := "ws" + strings.TrimPrefix(ts.url, "http") + "/api/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return ts.bus.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	ts.bus.Publish(events.SyncEvent{Type: events.EventDrained, CycleID: "c-1", Committed: 3})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.SyncEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.EventDrained, ev.Type)
	assert.Equal(t, "c-1", ev.CycleID)
	assert.Equal(t, 3, ev.Committed)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ts.bus.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestRouteLabel_UnknownPathsShareOneLabel(t *testing.T) {
	srv := NewHTTPServer(context.Background(), config.APIConfig{}, &fakeEngine{}, nil, nil, nil, nil)

	assert.Equal(t, "/api/v1/queue", srv.routeLabel("/api/v1/queue"))
	assert.Equal(t, "/healthz", srv.routeLabel("/healthz"))
	for _, path := range []string{"/wp-login.php", "/api/v1/queue/../../etc", "/api/v1/queue/", "/" + strings.Repeat("x", 64)} {
		assert.Equal(t, routeOther, srv.routeLabel(path), path)
	}

	ts := newTestServer(t, config.APIConfig{})
	resp := doRequest(t, http.MethodGet, ts.url+"/no/such/route", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
