package config

import (
	"strings"
	"time"
)

// Config 是 LeanData 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Data      DataConfig      `toml:"data"`
	Binance   BinanceConfig   `toml:"binance"`
	Sync      SyncConfig      `toml:"sync"`
	Journal   JournalConfig   `toml:"journal"`
	Watchlist WatchlistConfig `toml:"watchlist"`
	Server    ServerConfig    `toml:"server"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// DataConfig 指定归档数据根目录，归档固定落在
// <root>/crypto/binance/daily 下。
type DataConfig struct {
	Root string `toml:"root"`
}

// BinanceConfig 描述现货行情源与报价合成参数。
type BinanceConfig struct {
	RESTBaseURL     string  `toml:"rest_base_url"`
	Interval        string  `toml:"interval"`
	StartDate       string  `toml:"start_date"`
	Spread          float64 `toml:"spread"`
	PageLimit       int     `toml:"page_limit"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	RateLimitPerMin int     `toml:"rate_limit_per_min"`
}

// Timeout 返回单次 REST 请求超时。
func (b BinanceConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// StartTime 返回默认回补起点（UTC 零点）；start_date 已在加载期校验。
func (b BinanceConfig) StartTime() time.Time {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(b.StartDate))
	if err != nil {
		t, _ = time.Parse("2006-01-02", defaultStartDate)
	}
	return t.UTC()
}

// SyncConfig 控制并发同步与定时自动同步。
type SyncConfig struct {
	Workers        int    `toml:"workers"`
	Auto           bool   `toml:"auto"`
	AlignInterval  string `toml:"align_interval"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
}

// Offset 返回对齐点之后的延迟执行时长。
func (s SyncConfig) Offset() time.Duration {
	return time.Duration(s.OffsetSeconds) * time.Second
}

// JournalConfig 控制同步流水账的落盘。
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// WatchlistConfig 指向关注列表文件；groups 为空表示启用全部分组。
type WatchlistConfig struct {
	Path   string   `toml:"path"`
	Groups []string `toml:"groups"`
}

// ServerConfig 控制数据管理 HTTP 服务。
type ServerConfig struct {
	Enabled bool  `toml:"enabled"`
	ChartMA []int `toml:"chart_ma"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
