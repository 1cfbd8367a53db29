package config

import (
	"fmt"
	"strings"
	"time"
)

var logLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Binance.validate(); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	if err := c.Journal.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	level := strings.ToLower(strings.TrimSpace(a.LogLevel))
	if _, ok := logLevels[level]; !ok {
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %s", a.LogLevel)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (b *BinanceConfig) validate() error {
	if strings.TrimSpace(b.RESTBaseURL) == "" {
		return fmt.Errorf("binance.rest_base_url cannot be empty")
	}
	if !IsValidInterval(b.Interval) {
		return fmt.Errorf("binance.interval %q is not a valid interval", b.Interval)
	}
	if _, err := time.Parse("2006-01-02", strings.TrimSpace(b.StartDate)); err != nil {
		return fmt.Errorf("binance.start_date must be YYYY-MM-DD: %w", err)
	}
	if b.Spread < 0 || b.Spread >= 1 {
		return fmt.Errorf("binance.spread must be in [0, 1)")
	}
	if b.PageLimit < 1 || b.PageLimit > 1000 {
		return fmt.Errorf("binance.page_limit must be in [1, 1000]")
	}
	if b.TimeoutSeconds <= 0 {
		return fmt.Errorf("binance.timeout_seconds must be > 0")
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("sync.workers must be >= 1")
	}
	if !IsValidInterval(s.AlignInterval) {
		return fmt.Errorf("sync.align_interval %q is not a valid interval", s.AlignInterval)
	}
	if s.OffsetSeconds < 0 {
		return fmt.Errorf("sync.offset_seconds must be >= 0")
	}
	return nil
}

func (j *JournalConfig) validate() error {
	if j.Enabled && strings.TrimSpace(j.Path) == "" {
		return fmt.Errorf("journal enabled but journal.path is empty")
	}
	return nil
}

func (s *ServerConfig) validate() error {
	for _, n := range s.ChartMA {
		if n <= 0 {
			return fmt.Errorf("server.chart_ma entries must be > 0, got %d", n)
		}
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
