package binance

import (
	"strings"
	"time"
)

// Config 控制现货 REST 行情源的行为。
type Config struct {
	RESTBaseURL     string
	HTTPTimeout     time.Duration
	Interval        string
	PageLimit       int
	RateLimitPerMin int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://api.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 30 * time.Second
	}
	out.Interval = strings.ToLower(strings.TrimSpace(out.Interval))
	if out.Interval == "" {
		out.Interval = "1d"
	}
	if out.PageLimit <= 0 || out.PageLimit > maxPageLimit {
		out.PageLimit = maxPageLimit
	}
	if out.RateLimitPerMin <= 0 {
		out.RateLimitPerMin = 600
	}
	return out
}
