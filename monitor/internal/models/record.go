// Package models contains the monitor's stored record and the request and
// result types shared by the store, the services and the handlers.
package models

import (
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
)

// Record is one row of exception_records. Empty strings map to NULL columns.
// AdditionalData is the JSON text exactly as stored.
type Record struct {
	ID            string               `json:"id"`
	ExceptionType string               `json:"exceptionType"`
	Message       string               `json:"message"`
	StackTrace    string               `json:"stackTrace"`
	Timestamp     events.LocalDateTime `json:"timestamp"`

	ProjectName   string `json:"projectName"`
	ComponentName string `json:"componentName"`
	PodName       string `json:"podName"`
	PodIP         string `json:"podIp"`
	ClusterName   string `json:"clusterName"`
	Environment   string `json:"environment"`

	ServiceName string `json:"serviceName"`
	Method      string `json:"method"`
	URL         string `json:"url"`
	UserAgent   string `json:"userAgent"`
	SessionID   string `json:"sessionId"`

	AdditionalData string               `json:"additionalData"`
	CreatedAt      events.LocalDateTime `json:"createdAt"`
}

// RecordFromEvent maps a decoded event onto a record. The caller is expected
// to have resolved the timestamp. Additional data is kept byte for byte.
func RecordFromEvent(e *events.Event, createdAt time.Time) *Record {
	return &Record{
		ID:             e.ID,
		ExceptionType:  e.ExceptionType,
		Message:        e.Message,
		StackTrace:     e.StackTrace,
		Timestamp:      events.NewLocalDateTime(e.Timestamp.Time),
		ProjectName:    e.ProjectName,
		ComponentName:  e.ComponentName,
		PodName:        e.PodName,
		PodIP:          e.PodIP,
		ClusterName:    e.ClusterName,
		Environment:    e.Environment,
		ServiceName:    e.ServiceName,
		Method:         e.Method,
		URL:            e.URL,
		UserAgent:      e.UserAgent,
		SessionID:      e.SessionID,
		AdditionalData: events.StoredAdditionalData(e.AdditionalData),
		CreatedAt:      events.NewLocalDateTime(createdAt),
	}
}

// Event converts the record back to its wire form.
func (r *Record) Event() *events.Event {
	e := &events.Event{
		ID:            r.ID,
		ExceptionType: r.ExceptionType,
		Message:       r.Message,
		StackTrace:    r.StackTrace,
		Timestamp:     r.Timestamp,
		ProjectName:   r.ProjectName,
		ComponentName: r.ComponentName,
		PodName:       r.PodName,
		PodIP:         r.PodIP,
		ClusterName:   r.ClusterName,
		Environment:   r.Environment,
		ServiceName:   r.ServiceName,
		Method:        r.Method,
		URL:           r.URL,
		UserAgent:     r.UserAgent,
		SessionID:     r.SessionID,
	}
	if r.AdditionalData != "" {
		e.AdditionalData = []byte(r.AdditionalData)
	}
	return e
}

// Value returns the text of column c and whether it is non-NULL.
func (r *Record) Value(c Column) (string, bool) {
	var v string
	switch c {
	case ColumnExceptionType:
		v = r.ExceptionType
	case ColumnProjectName:
		v = r.ProjectName
	case ColumnComponentName:
		v = r.ComponentName
	case ColumnEnvironment:
		v = r.Environment
	case ColumnServiceName:
		v = r.ServiceName
	case ColumnMethod:
		v = r.Method
	case ColumnPodName:
		v = r.PodName
	case ColumnPodIP:
		v = r.PodIP
	case ColumnMessage:
		v = r.Message
	case ColumnAdditionalData:
		v = r.AdditionalData
	case ColumnTimestamp:
		v = r.Timestamp.String()
	}
	return v, v != ""
}

// Time returns the event timestamp.
func (r *Record) Time() time.Time {
	return r.Timestamp.Time
}

// Details parses the additional data into its reserved sections.
func (r *Record) Details() (events.AdditionalData, error) {
	return events.ParseAdditionalData([]byte(r.AdditionalData))
}
