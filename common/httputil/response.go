// Package httputil contains small helpers for JSON responses and query
// string parsing.
package httputil

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/telhawk-systems/exception-monitor/common/middleware"
)

// ErrorResponse is the body of every JSON error. RequestID lets an operator
// find the matching server log line.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteJSON encodes data and writes it with the given status. Encoding happens
// before the header is written so a marshal failure still yields a clean 500.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.MarshalNoEscape(data)
	if err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// WriteError writes an ErrorResponse carrying the request's correlation id.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message string) {
	resp := ErrorResponse{Error: message}
	if r != nil {
		resp.RequestID = middleware.GetRequestID(r.Context())
	}
	WriteJSON(w, status, resp)
}
