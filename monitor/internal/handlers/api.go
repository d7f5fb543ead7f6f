package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/exception-monitor/common/httputil"
	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/service"
)

// GetException handles GET /api/exceptions/{id}. An unknown id yields a
// null body.
func (h *Handler) GetException(w http.ResponseWriter, r *http.Request) {
	rec, err := h.search.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrNotFound) {
		httputil.WriteJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// SearchExceptions handles GET /api/exceptions with the query string of the
// list page.
func (h *Handler) SearchExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.search.Search(r.Context(), searchRequest(q, h.window(q, "")))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.stats.Dashboard(r.Context(), h.window(r.URL.Query(), service.DashboardDefault))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) GetComponentStats(w http.ResponseWriter, r *http.Request) {
	b, err := h.stats.Components(r.Context(), h.window(r.URL.Query(), ""))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) GetProjectStats(w http.ResponseWriter, r *http.Request) {
	b, err := h.stats.Projects(r.Context(), h.window(r.URL.Query(), ""))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) GetEnvironmentStats(w http.ResponseWriter, r *http.Request) {
	b, err := h.stats.Environments(r.Context(), h.window(r.URL.Query(), ""))
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

// GetFilters handles GET /api/filters.
func (h *Handler) GetFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := h.search.FilterOptions(r.Context())
	if err != nil {
		h.apiError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, opts)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /readyz by pinging the store and, when ingestion runs,
// the bus connection.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "Readiness check failed", logging.Error(err))
			httputil.WriteError(w, r, http.StatusServiceUnavailable, "exception store unavailable")
			return
		}
	}
	resp := map[string]any{"status": "ready"}
	if h.bus != nil {
		bus := messaging.CheckClientHealth(h.bus)
		if !bus.Healthy() {
			h.logger.WarnContext(r.Context(), "Readiness check failed", slog.String("bus_error", bus.Error))
			httputil.WriteError(w, r, http.StatusServiceUnavailable, "message bus unavailable")
			return
		}
		resp["busLatencyMs"] = bus.Latency.Milliseconds()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
