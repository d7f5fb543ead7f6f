package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.Migrate)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "exceptions", cfg.Ingest.Topic)
	assert.Equal(t, "exception-monitor-group", cfg.Ingest.Group)
	assert.Equal(t, "EXCEPTIONS", cfg.Ingest.Stream)
	assert.Equal(t, 1, cfg.Ingest.Partitions)
	assert.Equal(t, 10*time.Second, cfg.Ingest.ShutdownGrace())
	assert.Equal(t, 20, cfg.Query.DefaultPageSize)
	assert.Equal(t, 200, cfg.Query.MaxPageSize)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.False(t, cfg.OpenSearch.Enabled)
	assert.Equal(t, "exceptions", cfg.OpenSearch.IndexPrefix)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
ingest:
  partitions: 4
  shutdown_grace_seconds: 3
opensearch:
  enabled: true
  index_prefix: exmon
logging:
  format: text
`), 0o600))

	t.Setenv("MONITOR_SERVER_PORT", "9191")
	t.Setenv("MONITOR_DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("MONITOR_RATELIMIT_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.URL)
	assert.Equal(t, 4, cfg.Ingest.Partitions)
	assert.Equal(t, 3*time.Second, cfg.Ingest.ShutdownGrace())
	assert.True(t, cfg.OpenSearch.Enabled)
	assert.Equal(t, "exmon", cfg.OpenSearch.IndexPrefix)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MONITOR_INGEST_PARTITIONS", "0")
	t.Setenv("MONITOR_SERVER_PORT", "70000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.partitions")
	assert.Contains(t, err.Error(), "server.port")
}
