package reporter

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/telhawk-systems/exception-monitor/common/events"
)

// ExceptionType returns the bare type name of err: "*fs.PathError" becomes
// "PathError".
func ExceptionType(err error) string {
	name := strings.TrimLeft(fmt.Sprintf("%T", err), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// StackTrace renders the chain of wrapped errors followed by the stack of the
// calling goroutine.
func StackTrace(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", ExceptionType(err), err.Error())
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintf(&b, "caused by %s: %s\n", ExceptionType(cause), cause.Error())
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			fmt.Fprintf(&b, "joined %s: %s\n", ExceptionType(e), e.Error())
		}
	}
	b.WriteString("\n")
	b.Write(debug.Stack())
	return b.String()
}

func (r *Reporter) buildEvent(err error, scope *RequestScope, extra map[string]any) (*events.Event, error) {
	ev := &events.Event{
		ID:            uuid.NewString(),
		ExceptionType: ExceptionType(err),
		Message:       err.Error(),
		StackTrace:    StackTrace(err),
		Timestamp:     events.NewLocalDateTime(r.now()),
		ProjectName:   r.cfg.ProjectName,
		ComponentName: r.cfg.ComponentName,
		PodName:       r.cfg.PodName,
		PodIP:         r.cfg.PodIP,
		ClusterName:   r.cfg.ClusterName,
		Environment:   r.cfg.Environment,
	}

	if scope != nil {
		ev.ServiceName = scope.Path
		ev.Method = scope.Method
		ev.URL = scope.URL
		ev.UserAgent = scope.UserAgent
		ev.SessionID = scope.SessionID
	}

	raw, mErr := json.MarshalNoEscape(scope.additionalData(extra))
	if mErr != nil {
		return nil, fmt.Errorf("encode additional data: %w", mErr)
	}
	ev.AdditionalData = raw
	return ev, nil
}
