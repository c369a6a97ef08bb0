package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	goSession "github.com/MrEthical07/goSession"
)

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	return p
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

const sampleYAML = `
gateway:
  base_url: "https://id.example.com/api"
  timeout: "3s"
  paths:
    refresh: "/session/refresh"
session:
  refresh_attempts: 3
  proactive_refresh_skew: "0s"
recovery:
  enabled: true
  delay: "2s"
store:
  backend: "sqlite"
  scope: "clinic-7"
  sqlite_path: "/tmp/creds.db"
audit:
  enabled: true
  buffer_size: 32
  drop_if_full: false
`

const brokenYAML = `
gateway: [unclosed
`

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://id.example.com/api", cfg.Gateway.BaseURL)
	require.Equal(t, 3*time.Second, cfg.Gateway.Timeout)
	require.Equal(t, "/session/refresh", cfg.Gateway.Paths.Refresh)
	require.Equal(t, "/auth/login", cfg.Gateway.Paths.Login)
	require.Equal(t, 3, cfg.Session.RefreshAttempts)
	require.Zero(t, cfg.Session.ProactiveRefreshSkew)
	require.Equal(t, 2*time.Second, cfg.Recovery.Delay)
	require.Equal(t, goSession.StoreSQLite, cfg.Store.Backend)
	require.Equal(t, "clinic-7", cfg.Store.Scope)
	require.True(t, cfg.Audit.Enabled)
	require.False(t, cfg.Audit.DropIfFull)

	// Untouched sections keep their defaults.
	require.Equal(t, 8, cfg.Password.MinLength)
	require.Equal(t, 64, cfg.Broadcast.BufferSize)
}

func TestLoadEnvOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", sampleYAML)

	t.Setenv("GOSESSION_GATEWAY_BASE_URL", "https://override.example.com")
	t.Setenv("GOSESSION_RECOVERY_DELAY", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://override.example.com", cfg.Gateway.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Recovery.Delay)
}

func TestLoadConfigPathEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "from-env.yaml", sampleYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "clinic-7", cfg.Store.Scope)
}

func TestLoadLocalYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "local.yaml", sampleYAML)
	chdir(t, dir)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, goSession.StoreSQLite, cfg.Store.Backend)
}

func TestLoadEnvOnly(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("GOSESSION_GATEWAY_BASE_URL", "http://localhost:4000")
	t.Setenv("GOSESSION_STORE_BACKEND", "redis")
	t.Setenv("GOSESSION_STORE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:4000", cfg.Gateway.BaseURL)
	require.Equal(t, goSession.StoreRedis, cfg.Store.Backend)
	require.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	require.Equal(t, time.Second, cfg.Recovery.Delay)
	require.True(t, cfg.Recovery.Enabled)
}

func TestLoadEnvOnlyWithoutBaseURLFailsValidation(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("GOSESSION_GATEWAY_BASE_URL", "")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "BaseURL")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "stat failed")
}

func TestLoadBrokenYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.yaml", brokenYAML)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config")
}

func TestMustLoadPanics(t *testing.T) {
	require.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestUsageListsVariables(t *testing.T) {
	require.Contains(t, Usage(), "GOSESSION_GATEWAY_BASE_URL")
}
