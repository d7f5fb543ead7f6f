package app

import (
	"context"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/telhawk-systems/exception-monitor/common/httputil"
	"github.com/telhawk-systems/exception-monitor/common/middleware"
	"github.com/telhawk-systems/exception-monitor/reporter"
)

// Reporter is the part of *reporter.Reporter the handlers use.
type Reporter interface {
	Handle(ctx context.Context, err error, additionalData map[string]any)
	HandleWithHTTPHeaders(ctx context.Context, scope *reporter.RequestScope, err error, additionalData map[string]any)
}

type Handler struct {
	svc      *Service
	reporter Reporter
	cfg      reporter.Config
	version  string
}

func NewHandler(svc *Service, r Reporter, cfg reporter.Config, version string) *Handler {
	return &Handler{svc: svc, reporter: r, cfg: cfg, version: version}
}

type message struct {
	Message string `json:"message"`
}

func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, message{Message: "Hello from the demo application"})
}

// Config shows the reporter settings stamped on events.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"applicationName": "demo",
		"version":         h.version,
		"projectName":     h.cfg.ProjectName,
		"componentName":   h.cfg.ComponentName,
		"podName":         h.cfg.PodName,
		"podIp":           h.cfg.PodIP,
		"clusterName":     h.cfg.ClusterName,
		"environment":     h.cfg.Environment,
		"busTopic":        h.cfg.Bus.Topic,
		"busServers":      h.cfg.Bus.Servers,
		"busPartitions":   h.cfg.Bus.Partitions,
	})
}

func kind(r *http.Request) string {
	if k := r.URL.Query().Get("type"); k != "" {
		return k
	}
	return "runtime"
}

func (h *Handler) ThrowException(w http.ResponseWriter, r *http.Request) {
	k := kind(r)
	if err := h.svc.Fail(k); err != nil {
		h.reporter.Handle(r.Context(), err, map[string]any{
			"requestType": k,
			"endpoint":    "/api/throw-exception",
		})
		httputil.WriteError(w, r, http.StatusInternalServerError, "exception occurred and was sent to the monitor")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message{Message: "no exception thrown"})
}

func (h *Handler) ThrowExceptionWithHeaders(w http.ResponseWriter, r *http.Request) {
	k := kind(r)
	if err := h.svc.Fail(k); err != nil {
		h.reporter.HandleWithHTTPHeaders(r.Context(), reporter.ScopeFromRequest(r), err, map[string]any{
			"requestType": k,
			"endpoint":    "/api/throw-exception-with-headers",
			"requestId":   middleware.GetRequestID(r.Context()),
		})
		httputil.WriteError(w, r, http.StatusInternalServerError, "exception occurred and was sent to the monitor with request headers")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message{Message: "no exception thrown"})
}

func (h *Handler) ProcessUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "user id must be a number")
		return
	}

	var data map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&data); err != nil {
		httputil.WriteError(w, r, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	if err := h.svc.ProcessUser(id, data); err != nil {
		h.reporter.HandleWithHTTPHeaders(r.Context(), reporter.ScopeFromRequest(r), err, map[string]any{
			"userId":    id,
			"userData":  data,
			"operation": "processUser",
		})
		httputil.WriteError(w, r, http.StatusBadRequest, "user processing failed and was reported")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message{Message: "user processed"})
}

func (h *Handler) DatabaseError(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.QueryDatabase(); err != nil {
		h.reporter.Handle(r.Context(), err, nil)
		httputil.WriteError(w, r, http.StatusInternalServerError, "database error occurred and was reported")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message{Message: "database operation completed"})
}

func (h *Handler) ValidationError(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if err := h.svc.ValidateEmail(email); err != nil {
		h.reporter.Handle(r.Context(), err, map[string]any{
			"email":          email,
			"validationType": "email",
		})
		httputil.WriteError(w, r, http.StatusBadRequest, "validation failed and was reported")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, message{Message: "email is valid"})
}

// Panic fails the request with an unhandled panic for the Recover middleware.
func (h *Handler) Panic(w http.ResponseWriter, r *http.Request) {
	var counters map[string]int
	counters[kind(r)]++
	w.WriteHeader(http.StatusNoContent)
}

// NewRouter wires the demo routes. Panics are reported through rep.
func NewRouter(h *Handler, rep *reporter.Reporter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/hello", h.Hello)
	mux.HandleFunc("GET /api/config", h.Config)
	mux.HandleFunc("GET /api/throw-exception", h.ThrowException)
	mux.HandleFunc("GET /api/throw-exception-with-headers", h.ThrowExceptionWithHeaders)
	mux.HandleFunc("POST /api/user/{id}", h.ProcessUser)
	mux.HandleFunc("GET /api/database-error", h.DatabaseError)
	mux.HandleFunc("GET /api/validation-error", h.ValidationError)
	mux.HandleFunc("GET /api/panic", h.Panic)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return middleware.RequestID(reporter.Recover(rep, mux))
}
