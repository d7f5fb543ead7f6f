package logging

import "log/slog"

// Field names used across the exception monitor.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldQuery     = "query"
	FieldSubject   = "subject"
	FieldConsumer  = "consumer"
	FieldPartition = "partition"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for err. A nil error is logged as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func Query(query string) slog.Attr {
	return slog.String(FieldQuery, query)
}

func Subject(subject string) slog.Attr {
	return slog.String(FieldSubject, subject)
}

func Consumer(name string) slog.Attr {
	return slog.String(FieldConsumer, name)
}

func Partition(p int) slog.Attr {
	return slog.Int(FieldPartition, p)
}
