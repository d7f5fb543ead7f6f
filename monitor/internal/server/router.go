// Package server assembles the monitor's HTTP routes and middleware.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/exception-monitor/common/middleware"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/handlers"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/ratelimit"
)

// NewRouter constructs a ServeMux with the monitor's pages, JSON API, health
// and metrics routes. JSON API routes go through limiter.
func NewRouter(h *handlers.Handler, limiter ratelimit.RateLimiter) http.Handler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	api := func(fn http.HandlerFunc) http.Handler {
		return ratelimit.Middleware(limiter, "api", fn)
	}

	mux := http.NewServeMux()

	// Pages
	mux.HandleFunc("GET /{$}", h.Dashboard)
	mux.HandleFunc("GET /exceptions", h.ListExceptions)
	mux.HandleFunc("GET /exceptions/{id}", h.ExceptionDetail)
	mux.HandleFunc("GET /components", h.Components)
	mux.HandleFunc("GET /projects", h.Projects)
	mux.HandleFunc("GET /environments", h.Environments)

	// JSON API
	mux.Handle("GET /api/exceptions", api(h.SearchExceptions))
	mux.Handle("GET /api/exceptions/{id}", api(h.GetException))
	mux.Handle("GET /api/dashboard", api(h.GetDashboard))
	mux.Handle("GET /api/stats/components", api(h.GetComponentStats))
	mux.Handle("GET /api/stats/projects", api(h.GetProjectStats))
	mux.Handle("GET /api/stats/environments", api(h.GetEnvironmentStats))
	mux.Handle("GET /api/filters", api(h.GetFilters))

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(AccessLog(Instrument(mux)))
}
