package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"procsim/internal/config"
	"procsim/internal/metrics"
	"procsim/internal/models"
	"procsim/internal/service"
	"procsim/internal/sim"
	"procsim/web"
)

func TestCreateAndControlOverAPI(t *testing.T) {
	f := newRouterFixture(t)

	var p models.Process
	rec := f.do(http.MethodPost, "/api/processes", `{"name":"api","threads":3,"priority":"High"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f.decode(rec, &p)
	assert.Equal(t, "api", p.Name)
	assert.Equal(t, "high", p.Priority)
	assert.Equal(t, sim.DefaultMemoryMB, p.MemoryMB)

	f.pm.RefreshAll()
	rec = f.do(http.MethodGet, "/api/processes/"+strconv.Itoa(p.Pid), "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &p)
	assert.Equal(t, "running", p.State)
	assert.Equal(t, 3, p.Progress)
	assert.NotEmpty(t, p.Log)

	rec = f.do(http.MethodPost, "/api/processes/"+strconv.Itoa(p.Pid)+"/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &p)
	assert.Equal(t, "paused", p.State)

	rec = f.do(http.MethodPost, "/api/processes/"+strconv.Itoa(p.Pid)+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &p)
	assert.Equal(t, "running", p.State)

	rec = f.do(http.MethodPost, "/api/processes/"+strconv.Itoa(p.Pid)+"/terminate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &p)
	assert.Equal(t, "terminated", p.State)
	assert.Equal(t, 100, p.Progress)

	rec = f.do(http.MethodGet, "/api/processes/"+strconv.Itoa(p.Pid), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/processes", `{"threads":17}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/processes", `{"memory_mb":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/processes", `{"priority":"urgent"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, f.launcher.Launched())
}

func TestLaunchFailureIs500(t *testing.T) {
	f := newRouterFixture(t)
	f.launcher.Err = errors.New("fork failed")

	rec := f.do(http.MethodPost, "/api/processes", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDismiss(t *testing.T) {
	f := newRouterFixture(t)
	p, err := f.pm.CreateProcess(service.CreateRequest{Name: "gone"})
	require.NoError(t, err)
	path := "/api/processes/" + strconv.Itoa(p.Pid)

	rec := f.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.launcher.Process(p.Pid).Exit()
	f.pm.RefreshAll()

	rec = f.do(http.MethodGet, path+"/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []models.LogEntry
	f.decode(rec, &logs)
	assert.Equal(t, "process finished", logs[len(logs)-1].Message)

	rec = f.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndSystemLog(t *testing.T) {
	f := newRouterFixture(t)
	_, err := f.pm.CreateProcess(service.CreateRequest{Name: "one"})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.pm.CreateProcess(service.CreateRequest{Name: "two"})
	require.NoError(t, err)

	var procs []models.Process
	rec := f.do(http.MethodGet, "/api/processes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &procs)
	require.Len(t, procs, 2)
	assert.Equal(t, "two", procs[0].Name)

	var logs []models.LogEntry
	rec = f.do(http.MethodGet, "/api/logs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, "two", logs[0].Process)
}

func TestHostAndSystem(t *testing.T) {
	f := newRouterFixture(t)

	var m models.HostMetrics
	rec := f.do(http.MethodGet, "/api/host", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &m)
	assert.Equal(t, 12.5, m.CPUPercent)

	var info models.SystemInfo
	rec = f.do(http.MethodGet, "/api/system", "")
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(rec, &info)
	assert.Equal(t, "linux", info.OS)

	f.host.err = errors.New("no /proc")
	rec = f.do(http.MethodGet, "/api/host", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboard(t *testing.T) {
	f := newRouterFixture(t)
	_, err := f.pm.CreateProcess(service.CreateRequest{Name: "visible"})
	require.NoError(t, err)

	rec := f.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "visible")
	assert.Contains(t, body, "12.5%")

	rec = f.do(http.MethodGet, "/static/css/style.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateFromForm(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.form(url.Values{"name": {"formed"}, "memory": {""}, "threads": {"2"}, "priority": {"medium"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	procs := f.pm.GetProcesses()
	require.Len(t, procs, 1)
	assert.Equal(t, "formed", procs[0].Name)
	assert.Equal(t, sim.DefaultMemoryMB, procs[0].MemoryMB)
	assert.Equal(t, 2, procs[0].Threads)
	assert.False(t, procs[0].CPUConsuming)
	assert.Equal(t, "medium", procs[0].Priority)

	for _, v := range []url.Values{
		{"memory": {"lots"}},
		{"threads": {"0"}},
		{"threads": {"x"}},
		{"threads": {"17"}},
	} {
		rec = f.form(v)
		require.Equal(t, http.StatusSeeOther, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/?error="), v.Encode())
	}
	assert.Len(t, f.pm.GetProcesses(), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRouterFixture(t)
	_, err := f.pm.CreateProcess(service.CreateRequest{})
	require.NoError(t, err)
	f.pm.RefreshAll()

	rec := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "procsim_processes_created_total 1")
}

func TestStreamPushesSnapshots(t *testing.T) {
	f := newRouterFixture(t)
	p, err := f.pm.CreateProcess(service.CreateRequest{Threads: 5})
	require.NoError(t, err)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var snap []models.Process
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "ready", snap[0].State)

	f.pm.RefreshAll()
	require.NoError(t, conn.ReadJSON(&snap))
	require.Len(t, snap, 1)
	assert.Equal(t, p.Pid, snap[0].Pid)
	assert.Equal(t, "running", snap[0].State)
	assert.Equal(t, 5, snap[0].Progress)
}

func TestHealth(t *testing.T) {
	f := newRouterFixture(t)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/ready", "").Code)

	f.pm.RefreshAll()
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/ready", "").Code)
}

type fakeHost struct {
	err error
}

func (h *fakeHost) Sample() (models.HostMetrics, error) {
	if h.err != nil {
		return models.HostMetrics{}, h.err
	}
	return models.HostMetrics{CPUPercent: 12.5, MemoryPercent: 40, DiskPercent: 70}, nil
}

type routerFixture struct {
	t        *testing.T
	clock    clockwork.FakeClock
	launcher *sim.FakeLauncher
	host     *fakeHost
	pm       *service.ProcessManager
	router   *Router
}

func newRouterFixture(t *testing.T) *routerFixture {
	clock := clockwork.NewFakeClock()
	l := sim.NewFakeLauncher()
	log := zaptest.NewLogger(t)
	m := metrics.New()
	pm := service.NewProcessManager(config.SimulationConfig{PollInterval: time.Second, MaxMemoryMB: 4096}, service.Deps{
		Launcher: l,
		Sampler:  l.Sampler(),
		Clock:    clock,
		Metrics:  m,
		Log:      log,
	})
	t.Cleanup(pm.StopAll)

	host := &fakeHost{}
	r, err := NewRouter(pm, web.Templates(), web.Static(), Options{
		Host: host,
		SystemInfo: func() (models.SystemInfo, error) {
			return models.SystemInfo{OS: "linux", LogicalCores: 8}, nil
		},
		Metrics:      m,
		PollInterval: time.Second,
		Log:          log,
	})
	require.NoError(t, err)

	return &routerFixture{t: t, clock: clock, launcher: l, host: host, pm: pm, router: r}
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) form(v url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/processes", strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) decode(rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), v))
}
