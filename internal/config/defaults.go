package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9980"
	defaultDataRoot        = "data"
	defaultRESTBaseURL     = "https://api.binance.com"
	defaultInterval        = "1d"
	defaultStartDate       = "2023-01-01"
	defaultSpread          = 0.0001
	defaultPageLimit       = 1000
	defaultTimeoutSeconds  = 30
	defaultRateLimitPerMin = 600
	defaultSyncWorkers     = 4
	defaultAlignInterval   = "24h"
	defaultOffsetSeconds   = 300
	defaultJournalPath     = "data/db/runs.db"
	defaultWatchlistPath   = "configs/watchlist.yaml"
)

func defaultChartMA() []int { return []int{20, 50} }

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.Sync.applyDefaults(keys)
	c.Journal.applyDefaults(keys)
	c.Watchlist.applyDefaults(keys)
	c.Server.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.root", &d.Root, defaultDataRoot),
	)
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("binance.rest_base_url", &b.RESTBaseURL, defaultRESTBaseURL),
		stringFieldDefault("binance.interval", &b.Interval, defaultInterval),
		stringFieldDefault("binance.start_date", &b.StartDate, defaultStartDate),
		fieldDefault{
			key:   "binance.spread",
			need:  func() bool { return b.Spread <= 0 },
			apply: func() { b.Spread = defaultSpread },
		},
		fieldDefault{
			key:   "binance.page_limit",
			need:  func() bool { return b.PageLimit <= 0 },
			apply: func() { b.PageLimit = defaultPageLimit },
		},
		fieldDefault{
			key:   "binance.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultTimeoutSeconds },
		},
	)
	if b.RateLimitPerMin <= 0 {
		b.RateLimitPerMin = defaultRateLimitPerMin
	}
	b.Interval = strings.ToLower(strings.TrimSpace(b.Interval))
}

func (s *SyncConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("sync.align_interval", &s.AlignInterval, defaultAlignInterval),
		fieldDefault{
			key:   "sync.workers",
			need:  func() bool { return s.Workers <= 0 },
			apply: func() { s.Workers = defaultSyncWorkers },
		},
		fieldDefault{
			key:   "sync.offset_seconds",
			need:  func() bool { return s.OffsetSeconds <= 0 },
			apply: func() { s.OffsetSeconds = defaultOffsetSeconds },
		},
	)
}

func (j *JournalConfig) applyDefaults(keys keySet) {
	if j == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("journal.enabled", &j.Enabled, true),
		stringFieldDefault("journal.path", &j.Path, defaultJournalPath),
	)
}

func (w *WatchlistConfig) applyDefaults(keys keySet) {
	if w == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("watchlist.path", &w.Path, defaultWatchlistPath),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("server.enabled", &s.Enabled, true),
	)
	if len(s.ChartMA) == 0 && !keys.isSet("server.chart_ma") {
		s.ChartMA = defaultChartMA()
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
