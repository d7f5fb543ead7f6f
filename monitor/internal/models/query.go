package models

import (
	"time"
)

// Column names a field of exception_records that may be grouped, filtered or
// listed as distinct values.
type Column string

const (
	ColumnExceptionType Column = "exception_type"
	ColumnProjectName   Column = "project_name"
	ColumnComponentName Column = "component_name"
	ColumnEnvironment   Column = "environment"
	ColumnServiceName   Column = "service_name"
	ColumnMethod        Column = "method"
	ColumnPodName       Column = "pod_name"
	ColumnPodIP         Column = "pod_ip"
	ColumnMessage       Column = "message"

	ColumnAdditionalData Column = "additional_data"
	ColumnTimestamp      Column = "timestamp"
)

// GroupColumns are the columns accepted by a single-field group-by.
var GroupColumns = []Column{ColumnExceptionType, ColumnProjectName, ColumnComponentName, ColumnEnvironment}

// DistinctColumns are the columns offered as filter dropdowns.
var DistinctColumns = []Column{ColumnProjectName, ColumnExceptionType, ColumnEnvironment, ColumnComponentName, ColumnServiceName, ColumnMethod}

// IsGroupColumn reports whether c may be used with GroupBy.
func (c Column) IsGroupColumn() bool {
	for _, g := range GroupColumns {
		if g == c {
			return true
		}
	}
	return false
}

// IsDistinctColumn reports whether c may be used with Distinct.
func (c Column) IsDistinctColumn() bool {
	for _, d := range DistinctColumns {
		if d == c {
			return true
		}
	}
	return false
}

// Filters are the structured exact-match filters. Empty means absent.
type Filters struct {
	ProjectName   string `json:"projectName,omitempty"`
	ExceptionType string `json:"exceptionType,omitempty"`
	Environment   string `json:"environment,omitempty"`
	ComponentName string `json:"componentName,omitempty"`
	ServiceName   string `json:"serviceName,omitempty"`
	Method        string `json:"method,omitempty"`
}

// Pairs returns the non-empty filters keyed by column, in a fixed order.
func (f Filters) Pairs() []ColumnValue {
	all := []ColumnValue{
		{ColumnProjectName, f.ProjectName},
		{ColumnExceptionType, f.ExceptionType},
		{ColumnEnvironment, f.Environment},
		{ColumnComponentName, f.ComponentName},
		{ColumnServiceName, f.ServiceName},
		{ColumnMethod, f.Method},
	}
	out := all[:0]
	for _, p := range all {
		if p.Value != "" {
			out = append(out, p)
		}
	}
	return out
}

// ColumnValue is one column constraint.
type ColumnValue struct {
	Column Column
	Value  string
}

// TimeWindow bounds event timestamps. A nil bound is open. Both bounds are
// inclusive.
type TimeWindow struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`

	// Token is the time range token the window was built from, for display.
	Token string `json:"token,omitempty"`
}

// Unbounded reports whether neither side is constrained.
func (w TimeWindow) Unbounded() bool {
	return w.Start == nil && w.End == nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && t.After(*w.End) {
		return false
	}
	return true
}

// SearchRequest is the executor input.
type SearchRequest struct {
	Filters       Filters
	AdvancedQuery string
	Window        TimeWindow
	Page          int
	Size          int
}

// Page is one page of records, newest first, with the total match count.
type Page struct {
	Items      []*Record `json:"items"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	TotalPages int       `json:"totalPages"`
}

// NewPage fills in the derived page count.
func NewPage(items []*Record, total int64, page, size int) *Page {
	if items == nil {
		items = []*Record{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return &Page{Items: items, Total: total, Page: page, Size: size, TotalPages: pages}
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool {
	return p.Page+1 < p.TotalPages
}

// HasPrevious reports whether an earlier page exists.
func (p *Page) HasPrevious() bool {
	return p.Page > 0
}

// GroupCount is one (key, count) pair of a group-by. An empty key stands for
// rows where the column is NULL.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// PodCount is one row of the pods-by-component view.
type PodCount struct {
	PodName string `json:"podName"`
	PodIP   string `json:"podIp"`
	Count   int64  `json:"count"`
}
