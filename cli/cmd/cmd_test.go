package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/exception-monitor/cli/internal/config"
)

func init() {
	color.NoColor = true
}

// resetFlags restores every flag to its default; cobra keeps parsed values
// between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgFile = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fakeMonitor(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/exceptions":
			q := r.URL.Query()
			if q.Get("environment") == "NONE" {
				_, _ = w.Write([]byte(`{"items":[],"total":0,"page":0,"size":20,"totalPages":0}`))
				return
			}
			assert.Equal(t, "PROD", q.Get("environment"))
			assert.Equal(t, `message:"disk"`, q.Get("advancedQuery"))
			assert.Equal(t, "custom", q.Get("timeRange"))
			assert.Equal(t, "2024-06-01T09:00", q.Get("customStartDate"))
			_, _ = w.Write([]byte(`{"items":[{"id":"e1","exceptionType":"IOException","message":"disk full","timestamp":"2024-06-01T10:00:00","projectName":"shop","environment":"PROD"}],"total":1,"page":0,"size":20,"totalPages":1}`))
		case "/api/exceptions/e1":
			_, _ = w.Write([]byte(`{"id":"e1","exceptionType":"IOException","message":"disk full","stackTrace":"IOException: disk full\n\tat Store.write","timestamp":"2024-06-01T10:00:00","additionalData":"{\"httpHeaders\":{\"Authorization\":\"***MASKED***\"},\"requestParameters\":{\"id\":[\"1\",\"2\"]},\"remoteAddress\":\"10.0.0.9\",\"remoteHost\":\"10.0.0.9\",\"remotePort\":\"5000\",\"orderId\":\"o-7\"}"}`))
		case "/api/exceptions/missing":
			_, _ = w.Write([]byte(`null`))
		case "/api/dashboard":
			assert.Equal(t, "7d", r.URL.Query().Get("timeRange"))
			_, _ = w.Write([]byte(`{"totalExceptions":12,"exceptionsLast24h":5,"exceptionsLastHour":1,"exceptionsInRange":9,"exceptionTypeStats":[{"key":"IOException","count":9}],"projectStats":[{"key":"","count":9}],"componentStats":[],"environmentStats":[],"recentExceptions":[]}`))
		case "/api/stats/components":
			_, _ = w.Write([]byte(`{"componentStats":[{"key":"checkout","count":3}],"selectedComponent":"checkout","componentPods":[{"podName":"checkout-1","podIp":"10.0.0.1","count":3}]}`))
		case "/api/stats/environments":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"exception store unavailable","requestId":"req-1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"search", "filters", "get", "stats", "seed", "profile"} {
		assert.True(t, names[want], "command %s", want)
	}

	stats := map[string]bool{}
	for _, c := range statsCmd.Commands() {
		stats[c.Name()] = true
		assert.NotNil(t, c.Flags().Lookup("range"))
	}
	assert.Equal(t, map[string]bool{"dashboard": true, "components": true, "projects": true, "environments": true}, stats)
}

func TestSearchCommand(t *testing.T) {
	server := fakeMonitor(t)

	out, err := run(t, "--url", server.URL, "search", `message:"disk"`, "--env", "PROD", "--start", "2024-06-01T09:00")
	require.NoError(t, err)
	assert.Contains(t, out, "IOException")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "1 exceptions, page 1 of 1")

	out, err = run(t, "--url", server.URL, "search", "--env", "NONE")
	require.NoError(t, err)
	assert.Contains(t, out, "No exceptions")
}

func TestSearchCommand_JSON(t *testing.T) {
	server := fakeMonitor(t)

	out, err := run(t, "--url", server.URL, "-o", "json", "search", `message:"disk"`, "--env", "PROD", "--start", "2024-06-01T09:00")
	require.NoError(t, err)

	var page struct {
		Total int64 `json:"total"`
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "e1", page.Items[0].ID)
}

func TestGetCommand(t *testing.T) {
	server := fakeMonitor(t)

	out, err := run(t, "--url", server.URL, "get", "e1")
	require.NoError(t, err)
	assert.Contains(t, out, "IOException")
	assert.Contains(t, out, "HTTP headers")
	assert.Contains(t, out, "Authorization: ***MASKED***")
	assert.Contains(t, out, "id: 1, 2")
	assert.Contains(t, out, "10.0.0.9 (10.0.0.9) port 5000")
	assert.Contains(t, out, "orderId: o-7")
	assert.Contains(t, out, "at Store.write")

	_, err = run(t, "--url", server.URL, "get", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestStatsCommands(t *testing.T) {
	server := fakeMonitor(t)

	out, err := run(t, "--url", server.URL, "stats", "dashboard", "--range", "7d")
	require.NoError(t, err)
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "IOException")
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "No exceptions")

	out, err = run(t, "--url", server.URL, "stats", "components")
	require.NoError(t, err)
	assert.Contains(t, out, "Pods of checkout")
	assert.Contains(t, out, "checkout-1")

	_, err = run(t, "--url", server.URL, "stats", "environments")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exception store unavailable")
	assert.Contains(t, err.Error(), "req-1")
}

func TestProfileCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	exec := func(args ...string) (string, error) {
		resetFlags(rootCmd)
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(append([]string{"--config", path}, args...))
		err := rootCmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	_, err := exec("profile", "set", "uat", "--url", "http://uat:8080", "--partitions", "3")
	require.NoError(t, err)
	_, err = exec("profile", "set", "prod", "--url", "http://prod:8080")
	require.NoError(t, err)
	_, err = exec("profile", "use", "uat")
	require.NoError(t, err)

	out, err := exec("profile", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "http://uat:8080")
	assert.Contains(t, out, "http://prod:8080")

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "uat", saved.CurrentProfile)
	assert.Equal(t, 3, saved.Profiles["uat"].Partitions)

	_, err = exec("profile", "use", "missing")
	assert.Error(t, err)
}

func TestParseSpread(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"90m", 90 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"xd", 0, true},
		{"-1h", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := parseSpread(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
