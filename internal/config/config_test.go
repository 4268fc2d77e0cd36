package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "./data/lookup_engine.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 20*time.Second, cfg.Limits.MinDelay())
	assert.Equal(t, 30, cfg.Limits.GlobalRatePerMinute)
	assert.Equal(t, 1, cfg.Limits.GlobalBurst, "默认不允许突发超出分钟上限")
	assert.Equal(t, 200, cfg.Limits.RotationThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Limits.CoolingPeriod())
	assert.Equal(t, 3, cfg.Limits.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Limits.BackoffBase())
	assert.Equal(t, 5*time.Minute, cfg.Limits.BackoffCap())
	assert.Equal(t, 8, cfg.Limits.MaxInFlight)
	assert.Equal(t, 20*time.Second, cfg.Directory.Timeout())
	assert.NotEmpty(t, cfg.Directory.UserAgent)
}

func TestLoad_ExplicitValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":9000"
storage:
  sqlitePath: /tmp/x.db
limits:
  minDelaySeconds: 45
  globalRatePerMinute: 12
  rotationThreshold: 50
  coolingPeriodSeconds: 600
  maxAttempts: 5
directory:
  baseURL: https://directory.example.com
  timeoutMs: 5000
  retry:
    count: 2
    waitMs: 100
    maxWaitMs: 800
sink:
  jsonlPath: ./results.jsonl
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/x.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 45*time.Second, cfg.Limits.MinDelay())
	assert.Equal(t, 12, cfg.Limits.GlobalRatePerMinute)
	assert.Equal(t, 50, cfg.Limits.RotationThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Limits.CoolingPeriod())
	assert.Equal(t, 5, cfg.Limits.MaxAttempts)
	assert.Equal(t, "https://directory.example.com", cfg.Directory.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Directory.Timeout())
	assert.Equal(t, 2, cfg.Directory.Retry.Count)
	assert.Equal(t, 100*time.Millisecond, cfg.Directory.Retry.Wait())
	assert.Equal(t, 800*time.Millisecond, cfg.Directory.Retry.MaxWait())
	assert.Equal(t, "./results.jsonl", cfg.Sink.JSONLPath)
}

func TestLoad_RejectsExcessiveMaxAttempts(t *testing.T) {
	_, err := Load(writeConfig(t, "limits:\n  maxAttempts: 11\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
