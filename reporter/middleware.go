package reporter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/telhawk-systems/exception-monitor/common/httputil"
)

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recover reports panics raised by next together with the request and
// answers 500. http.ErrAbortHandler is re-raised untouched.
func Recover(r *Reporter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(p)
			}
			r.HandleWithHTTPHeaders(req.Context(), ScopeFromRequest(req), &PanicError{Value: p}, nil)
			httputil.WriteError(w, req, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, req)
	})
}
