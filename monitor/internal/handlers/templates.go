package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/exception-monitor/common/events"
	"github.com/telhawk-systems/exception-monitor/monitor/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"dashboard", "exceptions", "detail", "components", "projects", "environments", "error"}

const displayLayout = "2006-01-02 15:04:05"

var templateFuncs = template.FuncMap{
	"ts": func(t events.LocalDateTime) string {
		if !t.Valid() {
			return ""
		}
		return t.Time.UTC().Format(displayLayout)
	},
	"keyOr": func(key string) string {
		if key == "" {
			return "(none)"
		}
		return key
	},
	"truncate": func(s string, n int) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "…"
	},
	"counts": func(label string, counts any) map[string]any {
		return map[string]any{"Label": label, "Counts": counts}
	},
	"windowText": windowText,
	"pageURL":    pageURL,
	"join":       strings.Join,
	"add":        func(a, b int) int { return a + b },
	"sub":        func(a, b int) int { return a - b },
	"max": func(a, b int) int {
		if a > b {
			return a
		}
		return b
	},
}

func windowText(w models.TimeWindow) string {
	switch {
	case w.Start == nil && w.End == nil:
		return "All time"
	case w.Start == nil:
		return "Until " + w.End.UTC().Format(displayLayout)
	case w.End == nil:
		return "Since " + w.Start.UTC().Format(displayLayout)
	default:
		return w.Start.UTC().Format(displayLayout) + " to " + w.End.UTC().Format(displayLayout)
	}
}

// pageURL rewrites the page parameter of q, keeping every other parameter.
func pageURL(q url.Values, page int) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Set("page", strconv.Itoa(page))
	return "/exceptions?" + next.Encode()
}

func parseTemplates() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

// view is the data of every page. Only the fields of the rendered page are
// set.
type view struct {
	Title     string
	Version   string
	RequestID string

	Window      models.TimeWindow
	TimeRanges  []string
	CustomStart string
	CustomEnd   string
	Hidden      map[string]string

	Dashboard    *models.Dashboard
	Components   *models.ComponentBreakdown
	Projects     *models.ProjectBreakdown
	Environments *models.EnvironmentBreakdown

	Page          *models.Page
	Options       *models.FilterOptions
	Filters       models.Filters
	AdvancedQuery string
	Query         url.Values

	Record     *models.Record
	Details    events.AdditionalData
	ParseError bool

	Message string
}

// render executes the page into a buffer first so a template failure can
// still produce a clean error response.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, v *view) {
	t, ok := h.pages[name]
	if !ok {
		h.logger.ErrorContext(r.Context(), "Unknown template", "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	v.Version = h.version
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", v); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to render page", "template", name, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// formatInput renders t for a datetime-local input.
func formatInput(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05")
}
