package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/api"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/monitor"
)

// --- test helpers -----------------------------------------------------------

type fixedStatus monitor.Status

func (f fixedStatus) Status() monitor.Status { return monitor.Status(f) }

func sampleStatus() fixedStatus {
	return fixedStatus{
		Run:         367104,
		Mode:        "collisions2023",
		LastCycle:   time.Now(),
		Pileup:      52.5,
		PileupReady: true,
		Roster:      3,
		Modelled:    2,
		Batch:       []string{"HLT_IsoMu24"},
		Triggers: []monitor.TriggerStatus{
			{Trigger: "HLT_IsoMu24", Category: "HLT", Count: 4, Observed: 410, Expected: 250, Batched: true},
			{Trigger: "L1_SingleMu22", Category: "L1", Count: 1, Observed: 9000},
		},
		Alerts: []monitor.AlertStatus{
			{Name: "shift", Depth: 0, Status: "alarm", Level: "error", Active: true},
			{Name: "escalated", Depth: 1, Status: "alarm", Level: "warning", Active: true},
			{Name: "fresh", Depth: 1, Status: "good", Level: "info"},
		},
	}
}

func fits() *fitstore.Store {
	s := fitstore.New()
	s.Put(types.FitModel{Trigger: "HLT_IsoMu24", Group: "hlt", Type: types.ModelLinear, Params: [4]float64{1, 2}, Points: 40})
	s.Put(types.FitModel{Trigger: "HLT_IsoMu24", Group: "hlt", Type: types.ModelQuad, Params: [4]float64{1, 2, 0.1}, Points: 40})
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v), "decode body %q", rr.Body.String())
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth(t *testing.T) {
	h := api.New(sampleStatus(), fits(), 0)

	rr := get(t, h, "/api/v1/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp api.HealthResponse
	decode(t, rr, &resp)
	assert.Equal(t, "ok", resp.State)
	assert.Equal(t, int64(367104), resp.Run)
	assert.Equal(t, 3, resp.Roster)
	assert.Equal(t, 2, resp.BadCount)
	assert.Equal(t, 1, resp.BatchSize)
	assert.Equal(t, 2, resp.ActiveAlerts)
	assert.NotEmpty(t, resp.LastCycle)
	assert.Empty(t, resp.LastFlush)
}

func TestHealthStates(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*fixedStatus)
		stale time.Duration
		want  string
	}{
		{"before first cycle", func(s *fixedStatus) { s.LastCycle = time.Time{} }, 0, "unknown"},
		{"fetch error", func(s *fixedStatus) { s.LastError = "source: fetch failed" }, 0, "degraded"},
		{"stale overrides", func(s *fixedStatus) { s.ThresholdsStale = true }, 0, "degraded"},
		{"cycles stopped", func(s *fixedStatus) { s.LastCycle = time.Now().Add(-time.Hour) }, time.Minute, "stale"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := sampleStatus()
			tc.edit(&st)
			var resp api.HealthResponse
			decode(t, get(t, api.New(st, nil, tc.stale), "/api/v1/health"), &resp)
			assert.Equal(t, tc.want, resp.State)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := api.New(sampleStatus(), nil, 0)
	for _, path := range []string{"/api/v1/health", "/api/v1/triggers", "/api/v1/alerts", "/api/v1/models/x"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code, path)
	}
}

// --- /api/v1/triggers -------------------------------------------------------

func TestTriggers(t *testing.T) {
	h := api.New(sampleStatus(), nil, 0)

	var resp api.TriggersResponse
	decode(t, get(t, h, "/api/v1/triggers"), &resp)
	assert.Equal(t, []string{"HLT_IsoMu24"}, resp.Batch)
	require.Len(t, resp.Triggers, 2)
	assert.True(t, resp.Triggers[0].Batched)
}

func TestTriggerByName(t *testing.T) {
	h := api.New(sampleStatus(), nil, 0)

	var ts monitor.TriggerStatus
	rr := get(t, h, "/api/v1/triggers/L1_SingleMu22")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &ts)
	assert.Equal(t, "L1", ts.Category)
	assert.Equal(t, 9000.0, ts.Observed)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/triggers/HLT_Unknown").Code)
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts(t *testing.T) {
	h := api.New(sampleStatus(), nil, 0)

	var resp []monitor.AlertStatus
	decode(t, get(t, h, "/api/v1/alerts"), &resp)
	require.Len(t, resp, 3)
	assert.Equal(t, "shift", resp[0].Name)
	assert.Equal(t, 1, resp[2].Depth)
}

// --- /api/v1/models ---------------------------------------------------------

func TestModels(t *testing.T) {
	h := api.New(sampleStatus(), fits(), 0)

	var resp api.ModelsResponse
	decode(t, get(t, h, "/api/v1/models/HLT_IsoMu24"), &resp)
	assert.Equal(t, "HLT_IsoMu24", resp.Trigger)
	require.Len(t, resp.Models, 2)
	assert.Equal(t, types.ModelLinear, resp.Models[0].Type)
	assert.Equal(t, types.ModelQuad, resp.Models[1].Type)

	var names []string
	decode(t, get(t, h, "/api/v1/models/"), &names)
	assert.Equal(t, []string{"HLT_IsoMu24"}, names)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/models/HLT_Missing").Code)
}

// --- auth -------------------------------------------------------------------

func TestAPIKeyMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	open := api.APIKeyMiddleware("none", "secret", ok)
	assert.Equal(t, http.StatusNoContent, get(t, open, "/").Code)

	noKey := api.APIKeyMiddleware("apikey", "", ok)
	assert.Equal(t, http.StatusNoContent, get(t, noKey, "/").Code)

	guarded := api.APIKeyMiddleware("apikey", "secret", ok)
	assert.Equal(t, http.StatusUnauthorized, get(t, guarded, "/").Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(api.DefaultKeyHeader, "wrong")
	rr := httptest.NewRecorder()
	guarded.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req.Header.Set(api.DefaultKeyHeader, "secret")
	rr = httptest.NewRecorder()
	guarded.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRoutesLeaveMetricsOpen(t *testing.T) {
	t.Setenv("SHIFTMON_API_KEY", "secret")
	cfg := config.APIConfig{Auth: config.ServerAuthConfig{Mode: "apikey", KeyEnv: "SHIFTMON_API_KEY"}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	h := api.Routes(cfg, api.New(sampleStatus(), nil, 0), metrics)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/v1/health").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
}
