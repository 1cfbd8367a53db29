package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "app:\n  env: dev\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9980", cfg.App.HTTPAddr)
	assert.Equal(t, "data", cfg.Data.Root)
	assert.Equal(t, "https://api.binance.com", cfg.Binance.RESTBaseURL)
	assert.Equal(t, "1d", cfg.Binance.Interval)
	assert.Equal(t, "2023-01-01", cfg.Binance.StartDate)
	assert.Equal(t, 0.0001, cfg.Binance.Spread)
	assert.Equal(t, 1000, cfg.Binance.PageLimit)
	assert.Equal(t, 30, cfg.Binance.TimeoutSeconds)
	assert.Equal(t, 600, cfg.Binance.RateLimitPerMin)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, "24h", cfg.Sync.AlignInterval)
	assert.Equal(t, 300, cfg.Sync.OffsetSeconds)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "data/db/runs.db", cfg.Journal.Path)
	assert.Equal(t, "configs/watchlist.yaml", cfg.Watchlist.Path)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, []int{20, 50}, cfg.Server.ChartMA)
}

func TestLoadExplicitValuesWin(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", `
app:
  log_level: debug
binance:
  spread: 0
journal:
  enabled: false
server:
  chart_ma: []
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	// 显式写 0 表示买卖同价，不回填默认点差。
	assert.Equal(t, 0.0, cfg.Binance.Spread)
	assert.False(t, cfg.Journal.Enabled)
	assert.Empty(t, cfg.Server.ChartMA)
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
app:
  log_level: warn
data:
  root: /srv/base
`)
	path := writeConfig(t, dir, "config.yaml", `
include:
  - base.yaml
data:
  root: /srv/override
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// base 先合并，主文件后合并并覆盖。
	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Equal(t, "/srv/override", cfg.Data.Root)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"bad log level":  "app:\n  log_level: chatty\n",
		"bad spread":     "binance:\n  spread: 1.5\n",
		"bad page limit": "binance:\n  page_limit: 5000\n",
		"bad start date": "binance:\n  start_date: 01/01/2023\n",
		"bad interval":   "binance:\n  interval: fortnight\n",
		"zero workers":   "sync:\n  workers: 0\n",
		"bad chart ma":   "server:\n  chart_ma: [20, -5]\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, "config.yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestIsValidInterval(t *testing.T) {
	assert.True(t, IsValidInterval("1d"))
	assert.True(t, IsValidInterval("15m"))
	assert.True(t, IsValidInterval("24h"))
	assert.True(t, IsValidInterval("1w"))
	assert.False(t, IsValidInterval(""))
	assert.False(t, IsValidInterval("d"))
	assert.False(t, IsValidInterval("1x"))
	assert.False(t, IsValidInterval("h1"))
}

func TestBinanceConfigAccessors(t *testing.T) {
	b := BinanceConfig{StartDate: "2023-01-01", TimeoutSeconds: 30}
	assert.Equal(t, int64(30), int64(b.Timeout().Seconds()))
	st := b.StartTime()
	assert.Equal(t, 2023, st.Year())
	assert.Equal(t, "2023-01-01", st.Format("2006-01-02"))
}
