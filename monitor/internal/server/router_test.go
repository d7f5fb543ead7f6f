package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/common/logging"
	"github.com/telhawk-systems/exception-monitor/common/middleware"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/handlers"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/metrics"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/ratelimit"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/repository"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/service"
)

func newTestRouter(t *testing.T, limiter ratelimit.RateLimiter) http.Handler {
	t.Helper()
	repo := repository.NewMemoryRepository()
	logger := logging.Discard()
	h, err := handlers.New(
		service.NewSearchService(repo, logger, service.SearchOptions{}),
		service.NewStatsService(repo, logger, 0),
		repo,
		logger,
		"test",
	)
	require.NoError(t, err)
	return NewRouter(h, limiter)
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/exceptions", http.StatusOK},
		{http.MethodGet, "/exceptions/unknown", http.StatusFound},
		{http.MethodGet, "/components", http.StatusOK},
		{http.MethodGet, "/projects", http.StatusOK},
		{http.MethodGet, "/environments", http.StatusOK},
		{http.MethodGet, "/api/exceptions", http.StatusOK},
		{http.MethodGet, "/api/exceptions/unknown", http.StatusOK},
		{http.MethodGet, "/api/dashboard", http.StatusOK},
		{http.MethodGet, "/api/stats/components", http.StatusOK},
		{http.MethodGet, "/api/stats/projects", http.StatusOK},
		{http.MethodGet, "/api/stats/environments", http.StatusOK},
		{http.MethodGet, "/api/filters", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
		{http.MethodPost, "/exceptions", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestRouter_RateLimitsAPIOnly(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisRateLimiter("redis://"+mr.Addr(), 1, time.Minute, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	router := newTestRouter(t, limiter)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/filters").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodGet, "/api/dashboard").Code)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/exceptions").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz").Code)
}

func TestInstrument_LabelsByPattern(t *testing.T) {
	router := newTestRouter(t, nil)
	counter := metrics.HTTPRequests.WithLabelValues("GET /healthz", "200")
	before := testutil.ToFloat64(counter)

	serve(router, http.MethodGet, "/healthz")
	serve(router, http.MethodGet, "/healthz")

	assert.Equal(t, before+2, testutil.ToFloat64(counter))

	unmatched := metrics.HTTPRequests.WithLabelValues("unmatched", "404")
	before = testutil.ToFloat64(unmatched)
	serve(router, http.MethodGet, "/does/not/exist")
	assert.Equal(t, before+1, testutil.ToFloat64(unmatched))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Default()
	logging.SetDefault(logging.NewWithWriter(&buf, slog.LevelDebug, "json"))
	t.Cleanup(func() { logging.SetDefault(prev) })

	h := middleware.RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})))
	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set(middleware.RequestIDHeader, "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"rid-1"`)
	assert.Contains(t, out, `"/api/x"`)
	assert.Contains(t, out, "502")
}
