package reporter

import (
	"net"
	"net/http"
	"strings"

	"github.com/telhawk-systems/exception-monitor/common/events"
)

// capturedHeaders are copied into httpHeaders besides every X-* header.
var capturedHeaders = []string{
	"User-Agent",
	"Accept",
	"Accept-Language",
	"Content-Type",
	"Content-Length",
	"Host",
	"Origin",
	"Referer",
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Request-ID",
	"Authorization",
}

// maskedHeaders never leave the process with their real value.
var maskedHeaders = map[string]bool{
	"Authorization": true,
}

var sessionCookies = []string{"SESSION", "JSESSIONID"}

const sessionHeader = "X-Session-Id"

// RequestScope is the part of an HTTP request attached to a reported error.
// Build it with ScopeFromRequest while the request is still being served.
type RequestScope struct {
	Method    string
	URL       string
	Path      string
	UserAgent string
	SessionID string

	Headers    map[string]string
	Parameters map[string][]string

	RemoteAddress string
	RemoteHost    string
	RemotePort    string
}

// ScopeFromRequest captures r. Only the whitelisted and X-* headers are kept
// and Authorization is masked.
func ScopeFromRequest(r *http.Request) *RequestScope {
	if r == nil {
		return nil
	}

	s := &RequestScope{
		Method:     r.Method,
		URL:        requestURL(r),
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		SessionID:  sessionID(r),
		Headers:    captureHeaders(r.Header, r.Host),
		Parameters: map[string][]string(r.URL.Query()),
	}

	host, port, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	s.RemoteAddress = host
	s.RemoteHost = host
	s.RemotePort = port
	return s
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func sessionID(r *http.Request) string {
	for _, name := range sessionCookies {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return r.Header.Get(sessionHeader)
}

func captureHeaders(h http.Header, host string) map[string]string {
	out := make(map[string]string)
	seen := make(map[string]bool)
	for _, name := range capturedHeaders {
		seen[http.CanonicalHeaderKey(name)] = true
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	// net/http moves Host out of the header map.
	if _, ok := out["Host"]; !ok && host != "" {
		out["Host"] = host
	}
	for name, values := range h {
		key := http.CanonicalHeaderKey(name)
		if len(values) == 0 || seen[key] || !strings.HasPrefix(strings.ToLower(key), "x-") {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	for name := range out {
		if maskedHeaders[name] {
			out[name] = events.MaskedValue
		}
	}
	return out
}

// additionalData merges the scope sections into a copy of extra. Keys of
// extra win over the captured sections, except that an httpHeaders map in
// extra is merged into the captured headers and masked afterwards.
func (s *RequestScope) additionalData(extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+5)
	if s != nil {
		if len(s.Parameters) > 0 {
			out[events.KeyRequestParameters] = s.Parameters
		}
		if s.RemoteAddress != "" {
			out[events.KeyRemoteAddress] = s.RemoteAddress
			out[events.KeyRemoteHost] = s.RemoteHost
		}
		if s.RemotePort != "" {
			out[events.KeyRemotePort] = s.RemotePort
		}
	}
	for k, v := range extra {
		if k == events.KeyHTTPHeaders {
			continue
		}
		out[k] = v
	}

	var captured map[string]string
	if s != nil {
		captured = s.Headers
	}
	if headers := mergeHeaders(captured, extra[events.KeyHTTPHeaders]); headers != nil {
		out[events.KeyHTTPHeaders] = headers
	} else if v, ok := extra[events.KeyHTTPHeaders]; ok {
		out[events.KeyHTTPHeaders] = v
	}
	return out
}

// mergeHeaders layers the caller's header map over the captured one and
// masks the result. It returns nil when there is nothing to merge and extra
// is not a header map.
func mergeHeaders(captured map[string]string, extra any) map[string]any {
	var out map[string]any
	if captured != nil {
		out = make(map[string]any, len(captured))
		for k, v := range captured {
			out[k] = v
		}
	}
	add := func(k string, v any) {
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	switch h := extra.(type) {
	case map[string]any:
		for k, v := range h {
			add(k, v)
		}
	case map[string]string:
		for k, v := range h {
			add(k, v)
		}
	case http.Header:
		for k, v := range h {
			add(k, strings.Join(v, ", "))
		}
	}
	for k := range out {
		if maskedHeaders[http.CanonicalHeaderKey(k)] {
			out[k] = events.MaskedValue
		}
	}
	return out
}
