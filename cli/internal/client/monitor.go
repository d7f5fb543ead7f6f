// Package client talks to the exception monitor's JSON API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

type Exception struct {
	ID             string `json:"id"`
	ExceptionType  string `json:"exceptionType"`
	Message        string `json:"message"`
	StackTrace     string `json:"stackTrace"`
	Timestamp      string `json:"timestamp"`
	ProjectName    string `json:"projectName"`
	ComponentName  string `json:"componentName"`
	PodName        string `json:"podName"`
	PodIP          string `json:"podIp"`
	ClusterName    string `json:"clusterName"`
	Environment    string `json:"environment"`
	ServiceName    string `json:"serviceName"`
	Method         string `json:"method"`
	URL            string `json:"url"`
	UserAgent      string `json:"userAgent"`
	SessionID      string `json:"sessionId"`
	AdditionalData string `json:"additionalData"`
	CreatedAt      string `json:"createdAt"`
}

type Page struct {
	Items      []*Exception `json:"items"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Size       int          `json:"size"`
	TotalPages int          `json:"totalPages"`
}

type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type PodCount struct {
	PodName string `json:"podName"`
	PodIP   string `json:"podIp"`
	Count   int64  `json:"count"`
}

type EnvironmentGroup struct {
	Environment string       `json:"environment"`
	Counts      []GroupCount `json:"counts"`
}

type Dashboard struct {
	TotalExceptions    int64        `json:"totalExceptions"`
	ExceptionsLast24h  int64        `json:"exceptionsLast24h"`
	ExceptionsLastHour int64        `json:"exceptionsLastHour"`
	ExceptionsInRange  int64        `json:"exceptionsInRange"`
	ExceptionTypeStats []GroupCount `json:"exceptionTypeStats"`
	ProjectStats       []GroupCount `json:"projectStats"`
	ComponentStats     []GroupCount `json:"componentStats"`
	EnvironmentStats   []GroupCount `json:"environmentStats"`
	RecentExceptions   []*Exception `json:"recentExceptions"`
}

type ComponentBreakdown struct {
	ComponentStats    []GroupCount `json:"componentStats"`
	SelectedComponent string       `json:"selectedComponent,omitempty"`
	ComponentPods     []PodCount   `json:"componentPods"`
}

type ProjectBreakdown struct {
	ProjectStats          []GroupCount       `json:"projectStats"`
	ProjectsByEnvironment []EnvironmentGroup `json:"projectsByEnvironment"`
}

type EnvironmentBreakdown struct {
	EnvironmentStats        []GroupCount       `json:"environmentStats"`
	ComponentsByEnvironment []EnvironmentGroup `json:"componentsByEnvironment"`
}

type Filters struct {
	Projects       []string `json:"projects"`
	ExceptionTypes []string `json:"exceptionTypes"`
	Environments   []string `json:"environments"`
	Components     []string `json:"components"`
	Services       []string `json:"services"`
	Methods        []string `json:"methods"`
}

// SearchParams mirrors the query string of GET /api/exceptions. Empty fields
// are not sent.
type SearchParams struct {
	ProjectName   string
	ExceptionType string
	Environment   string
	ComponentName string
	ServiceName   string
	Method        string
	AdvancedQuery string
	Range         Range
	Page          int
	Size          int
}

// Range selects a time window: a preset token such as "1h", or "custom" with
// Start and/or End.
type Range struct {
	Token string
	Start string
	End   string
}

func (r Range) apply(v url.Values) {
	set(v, "timeRange", r.Token)
	set(v, "customStartDate", r.Start)
	set(v, "customEndDate", r.End)
}

func (p SearchParams) values() url.Values {
	v := url.Values{}
	set(v, "projectName", p.ProjectName)
	set(v, "exceptionType", p.ExceptionType)
	set(v, "environment", p.Environment)
	set(v, "componentName", p.ComponentName)
	set(v, "serviceName", p.ServiceName)
	set(v, "method", p.Method)
	set(v, "advancedQuery", p.AdvancedQuery)
	p.Range.apply(v)
	if p.Page > 0 {
		v.Set("page", fmt.Sprint(p.Page))
	}
	if p.Size > 0 {
		v.Set("size", fmt.Sprint(p.Size))
	}
	return v
}

func set(v url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		v.Set(key, value)
	}
}

// APIError is a non-2xx answer from the monitor.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("monitor returned %d: %s (request id %s)", e.Status, msg, e.RequestID)
	}
	return fmt.Sprintf("monitor returned %d: %s", e.Status, msg)
}

type MonitorClient struct {
	baseURL string
	client  *http.Client
}

func NewMonitorClient(baseURL string) *MonitorClient {
	return &MonitorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MonitorClient) Search(ctx context.Context, p SearchParams) (*Page, error) {
	var page Page
	if err := c.get(ctx, "/api/exceptions", p.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns the exception with id, or nil when the monitor has none.
func (c *MonitorClient) Get(ctx context.Context, id string) (*Exception, error) {
	var ex *Exception
	if err := c.get(ctx, "/api/exceptions/"+url.PathEscape(id), nil, &ex); err != nil {
		return nil, err
	}
	return ex, nil
}

func (c *MonitorClient) Dashboard(ctx context.Context, r Range) (*Dashboard, error) {
	var d Dashboard
	if err := c.get(ctx, "/api/dashboard", rangeValues(r), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *MonitorClient) Components(ctx context.Context, r Range) (*ComponentBreakdown, error) {
	var b ComponentBreakdown
	if err := c.get(ctx, "/api/stats/components", rangeValues(r), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *MonitorClient) Projects(ctx context.Context, r Range) (*ProjectBreakdown, error) {
	var b ProjectBreakdown
	if err := c.get(ctx, "/api/stats/projects", rangeValues(r), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *MonitorClient) Environments(ctx context.Context, r Range) (*EnvironmentBreakdown, error) {
	var b EnvironmentBreakdown
	if err := c.get(ctx, "/api/stats/environments", rangeValues(r), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *MonitorClient) Filters(ctx context.Context) (*Filters, error) {
	var f Filters
	if err := c.get(ctx, "/api/filters", nil, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func rangeValues(r Range) url.Values {
	v := url.Values{}
	r.apply(v)
	return v
}

func (c *MonitorClient) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		var e struct {
			Error     string `json:"error"`
			RequestID string `json:"requestId"`
		}
		if json.Unmarshal(body, &e) == nil {
			apiErr.Message = e.Error
			apiErr.RequestID = e.RequestID
		}
		return apiErr
	}

	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
