package httputil

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

// GetClientIP extracts the client address, preferring the first entry of
// X-Forwarded-For, then X-Real-IP, then RemoteAddr without its port.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ParseIntParam parses s as an int, returning defaultVal when s is empty or
// not a number.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return v
	}
	return defaultVal
}

// Page holds zero-based pagination parameters.
type Page struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

// ParsePage reads "page" (default 0) and "size" (default defaultSize) from the
// query string. Negative pages become 0 and sizes are clamped to [1, maxSize].
func ParsePage(r *http.Request, defaultSize, maxSize int) Page {
	q := r.URL.Query()
	page := ParseIntParam(q.Get("page"), 0)
	size := ParseIntParam(q.Get("size"), defaultSize)

	if page < 0 {
		page = 0
	}
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return Page{Page: page, Size: size}
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	return p.Page * p.Size
}
