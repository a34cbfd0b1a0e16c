package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/monitor"
)

// StatusSource is implemented by *monitor.Session.
type StatusSource interface {
	Status() monitor.Status
}

// Handler serves the /api/v1/* endpoints from the session's published
// status and the loaded fit store.
type Handler struct {
	status StatusSource
	fits   *fitstore.Store
	stale  time.Duration
	now    func() time.Time
	mux    *http.ServeMux
}

// New registers all routes. staleAfter is how old the last cycle may be
// before health reports "stale"; zero disables the check.
func New(st StatusSource, fits *fitstore.Store, staleAfter time.Duration) *Handler {
	if fits == nil {
		fits = fitstore.New()
	}
	h := &Handler{status: st, fits: fits, stale: staleAfter, now: time.Now, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/triggers", h.triggers)
	h.mux.HandleFunc("/api/v1/triggers/", h.trigger)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/models/", h.models)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Routes mounts the API behind the configured auth and /metrics beside it.
func Routes(cfg config.APIConfig, api http.Handler, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", APIKeyMiddleware(cfg.Auth.Mode, cfg.Auth.Key(), api))
	mux.Handle("/metrics", metrics)
	return mux
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.status.Status()

	resp := HealthResponse{
		Run:             st.Run,
		Mode:            st.Mode,
		Pileup:          st.Pileup,
		PileupReady:     st.PileupReady,
		Roster:          st.Roster,
		Modelled:        st.Modelled,
		BadCount:        len(st.Triggers),
		BatchSize:       len(st.Batch),
		ThresholdsStale: st.ThresholdsStale,
		LastError:       st.LastError,
		LastCycle:       rfc3339(st.LastCycle),
		LastFlush:       rfc3339(st.LastFlush),
	}
	for _, a := range st.Alerts {
		if a.Active {
			resp.ActiveAlerts++
		}
	}
	resp.State = healthState(st, h.stale, h.now())
	jsonResp(w, http.StatusOK, resp)
}

// healthState is "unknown" before the first cycle, "stale" when cycles
// stopped, "degraded" on fetch failure or stale overrides, else "ok".
func healthState(st monitor.Status, staleAfter time.Duration, now time.Time) string {
	switch {
	case st.LastCycle.IsZero():
		return "unknown"
	case staleAfter > 0 && now.Sub(st.LastCycle) > staleAfter:
		return "stale"
	case st.LastError != "" || st.ThresholdsStale:
		return "degraded"
	default:
		return "ok"
	}
}

// triggers returns GET /api/v1/triggers: every trigger currently bad.
func (h *Handler) triggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := h.status.Status()
	jsonResp(w, http.StatusOK, TriggersResponse{Run: st.Run, Batch: st.Batch, Triggers: st.Triggers})
}

// trigger returns GET /api/v1/triggers/{name}.
func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/triggers/")
	if name == "" {
		h.triggers(w, r)
		return
	}
	for _, t := range h.status.Status().Triggers {
		if t.Trigger == name {
			jsonResp(w, http.StatusOK, t)
			return
		}
	}
	jsonErr(w, http.StatusNotFound, "trigger not bad or unknown")
}

// alerts returns GET /api/v1/alerts: the alert tree, depth first.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.status.Status().Alerts)
}

// models returns GET /api/v1/models/{trigger}: every stored fit.
func (h *Handler) models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/models/")
	if name == "" {
		jsonResp(w, http.StatusOK, h.fits.Triggers())
		return
	}

	groups, ok := h.fits.Snapshot()[name]
	if !ok {
		jsonErr(w, http.StatusNotFound, "no fit for trigger")
		return
	}
	resp := ModelsResponse{Trigger: name, Models: []types.FitModel{}}
	for _, group := range []string{types.CategoryL1.Group(), types.CategoryHLT.Group()} {
		for _, mt := range types.ModelTypes {
			if m, ok := groups[group][mt]; ok {
				resp.Models = append(resp.Models, m)
			}
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// --- helpers ----------------------------------------------------------------

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
