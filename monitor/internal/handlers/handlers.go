// Package handlers serves the monitor's HTML pages and JSON API.
package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/httputil"
	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	"github.com/telhawk-systems/exception-monitor/common/middleware"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/service"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	search  *service.SearchService
	stats   *service.StatsService
	store   Pinger
	bus     messaging.Client
	pages   map[string]*template.Template
	logger  *logging.Logger
	version string
	now     func() time.Time
}

func New(search *service.SearchService, stats *service.StatsService, store Pinger, logger *logging.Logger, version string) (*Handler, error) {
	if logger == nil {
		logger = logging.Default()
	}
	pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &Handler{
		search:  search,
		stats:   stats,
		store:   store,
		pages:   pages,
		logger:  logger.Component("http"),
		version: version,
		now:     time.Now,
	}, nil
}

// WithBus adds the bus connection to the readiness check.
func (h *Handler) WithBus(c messaging.Client) *Handler {
	h.bus = c
	return h
}

func statusFor(err error) int {
	if errors.Is(err, repository.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func messageFor(status int) string {
	if status == http.StatusServiceUnavailable {
		return "exception store unavailable"
	}
	return "internal error"
}

func (h *Handler) logFailure(r *http.Request, status int, err error) {
	h.logger.ErrorContext(r.Context(), "Request failed",
		logging.Method(r.Method),
		logging.Path(r.URL.Path),
		logging.Status(status),
		logging.Error(err),
	)
}

func (h *Handler) apiError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logFailure(r, status, err)
	httputil.WriteError(w, r, status, messageFor(status))
}

func (h *Handler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	h.logFailure(r, status, err)
	h.render(w, r, status, "error", &view{
		Title:     "Error",
		Message:   messageFor(status),
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

// window resolves the timeRange, customStartDate and customEndDate
// parameters.
func (h *Handler) window(q url.Values, fallback string) models.TimeWindow {
	return service.ParseTimeRange(q.Get("timeRange"), q.Get("customStartDate"), q.Get("customEndDate"), h.now(), fallback)
}

// rangeOptions returns the selectable range tokens, with token first when it
// is not one of them.
func rangeOptions(token string) []string {
	tokens := service.TimeRangeTokens()
	if token == "" {
		return tokens
	}
	for _, t := range tokens {
		if t == token {
			return tokens
		}
	}
	return append([]string{token}, tokens...)
}

func (h *Handler) baseView(title string, w models.TimeWindow) *view {
	v := &view{
		Title:      title,
		Window:     w,
		TimeRanges: rangeOptions(w.Token),
	}
	if w.Token == service.TokenCustom {
		v.CustomStart = formatInput(w.Start)
		v.CustomEnd = formatInput(w.End)
	}
	return v
}

func searchRequest(q url.Values, w models.TimeWindow) models.SearchRequest {
	return models.SearchRequest{
		Filters: models.Filters{
			ProjectName:   strings.TrimSpace(q.Get("projectName")),
			ExceptionType: strings.TrimSpace(q.Get("exceptionType")),
			Environment:   strings.TrimSpace(q.Get("environment")),
			ComponentName: strings.TrimSpace(q.Get("componentName")),
			ServiceName:   strings.TrimSpace(q.Get("serviceName")),
			Method:        strings.TrimSpace(q.Get("method")),
		},
		AdvancedQuery: q.Get("advancedQuery"),
		Window:        w,
		Page:          httputil.ParseIntParam(q.Get("page"), 0),
		Size:          httputil.ParseIntParam(q.Get("size"), 0),
	}
}

// Dashboard handles GET /.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win := h.window(q, service.DashboardDefault)

	d, err := h.stats.Dashboard(r.Context(), win)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	v := h.baseView("Dashboard", win)
	v.Dashboard = d
	h.render(w, r, http.StatusOK, "dashboard", v)
}

// ListExceptions handles GET /exceptions.
func (h *Handler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win := h.window(q, "")
	req := searchRequest(q, win)

	page, err := h.search.Search(r.Context(), req)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	opts, err := h.search.FilterOptions(r.Context())
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	v := h.baseView("Exceptions", win)
	v.TimeRanges = service.TimeRangeTokens()
	v.Page = page
	v.Options = opts
	v.Filters = req.Filters
	v.AdvancedQuery = req.AdvancedQuery
	v.Query = q
	h.render(w, r, http.StatusOK, "exceptions", v)
}

// ExceptionDetail handles GET /exceptions/{id}. Unknown ids redirect to the
// list.
func (h *Handler) ExceptionDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.search.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Redirect(w, r, "/exceptions", http.StatusFound)
		return
	}
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	v := &view{Title: rec.ExceptionType, Record: rec}
	details, err := rec.Details()
	if err != nil {
		h.logger.WarnContext(r.Context(), "Additional data is not a JSON object",
			logging.EventID(rec.ID),
			logging.Error(err),
		)
		v.ParseError = true
	}
	v.Details = details
	h.render(w, r, http.StatusOK, "detail", v)
}

// Components handles GET /components.
func (h *Handler) Components(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win := h.window(q, "")
	b, err := h.stats.Components(r.Context(), win)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	v := h.baseView("Components", win)
	v.Components = b
	h.render(w, r, http.StatusOK, "components", v)
}

// Projects handles GET /projects.
func (h *Handler) Projects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win := h.window(q, "")
	b, err := h.stats.Projects(r.Context(), win)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	v := h.baseView("Projects", win)
	v.Projects = b
	h.render(w, r, http.StatusOK, "projects", v)
}

// Environments handles GET /environments.
func (h *Handler) Environments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win := h.window(q, "")
	b, err := h.stats.Environments(r.Context(), win)
	if err != nil {
		h.pageError(w, r, err)
		return
	}
	v := h.baseView("Environments", win)
	v.Environments = b
	h.render(w, r, http.StatusOK, "environments", v)
}
