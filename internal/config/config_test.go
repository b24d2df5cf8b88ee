package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/twstocklab/stockboard/internal/stocks"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http://localhost:5003", cfg.Upstream.BaseURL)
	require.Equal(t, 30*time.Second, cfg.UpstreamTimeout())
	require.Equal(t, 5, cfg.Engine.BatchSize)
	require.Equal(t, 3, cfg.Engine.Concurrency)
	require.Equal(t, "none", cfg.Archive.Provider)
	require.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
upstream:
  base_url: https://stocks.example.com
  rps: 2.5
engine:
  batch_size: 10
  days: 60
db:
  dsn: postgres://localhost/stockboard
archive:
  provider: local
  local_dir: /tmp/reports
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://stocks.example.com", cfg.Upstream.BaseURL)
	require.InDelta(t, 2.5, cfg.Upstream.RPS, 1e-9)
	require.Equal(t, 10, cfg.Engine.BatchSize)
	require.Equal(t, 60, cfg.Engine.Days)
	require.Equal(t, "postgres://localhost/stockboard", cfg.DB.DSN)
	require.Equal(t, "local", cfg.Archive.Provider)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad port", content: "server:\n  port: 0\n"},
		{name: "missing base url", content: "upstream:\n  base_url: \"\"\n"},
		{name: "bad batch size", content: "engine:\n  batch_size: 500\n"},
		{name: "unknown archive provider", content: "archive:\n  provider: ftp\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestJobDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	job := cfg.JobDefaults()
	require.NoError(t, job.Validate())
	require.Equal(t, 5, job.BatchSize)
	require.Equal(t, 3, job.Concurrency)
	require.Equal(t, time.Second, job.InterBatchDelay)
	require.Equal(t, 30, job.Days)
	require.Equal(t, stocks.ScopeAll, job.Scope.Kind)
}
