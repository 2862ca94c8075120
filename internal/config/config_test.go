package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1200*time.Millisecond, cfg.DismissDelay)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "margin:state", cfg.Redis.Key)
	assert.Contains(t, cfg.StatePath, filepath.Join(".config", "margin", "state.json"))
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "config.yaml", `
state: /tmp/margin-state.json
addr: ":9000"
dismiss_delay: 2s
ai:
  provider: gemini
  model: gemini-2.5-pro
  rps: 0.5
log:
  level: debug
  format: json
`)
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/margin-state.json", cfg.StatePath)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.DismissDelay)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.AI.Model)
	assert.Equal(t, 0.5, cfg.AI.RPS)
	assert.Equal(t, "g-key", cfg.AI.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, t.TempDir(), "config.yaml", "addr: \":9000\"\n")
	t.Setenv("MARGIN_ADDR", ":7000")
	t.Setenv("MARGIN_DISMISS_DELAY_MS", "300")
	t.Setenv("OPENAI_API_KEY", "o-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 300*time.Millisecond, cfg.DismissDelay)
	assert.Equal(t, "o-key", cfg.AI.APIKey)
}

func TestDotEnvFillsUnsetVariables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "MARGIN_REDIS_URL=redis://localhost:6379/2\nMARGIN_LOG_LEVEL=warn\n")
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MARGIN_LOG_LEVEL", "error")
	t.Cleanup(func() { os.Unsetenv("MARGIN_REDIS_URL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Redis.URL)
	assert.Equal(t, "error", cfg.Log.Level, "process environment wins over .env")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "shouty"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.StatePath = ""
	assert.Error(t, cfg.Validate())

	cfg.Redis.URL = "redis://localhost:6379"
	assert.NoError(t, cfg.Validate())
}
