// Package binance 基于 go-binance SDK 的现货 K 线历史行情源。
package binance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leandata/internal/logger"
	"leandata/internal/market"
	symbolpkg "leandata/internal/pkg/symbol"
	"leandata/internal/scheduler"

	gobinance "github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"
)

// 现货 /api/v3/klines 单页上限。
const maxPageLimit = 1000

// Source 按页拉取闭区间内的历史 K 线，翻页游标取最后一根的
// open_time + 1 毫秒。
type Source struct {
	cfg     Config
	client  *gobinance.Client
	limiter *rate.Limiter
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(float64(final.RateLimitPerMin)/60.0), final.PageLimit),
	}
}

// FetchRange 拉取 [start, end) 的全部 K 线。某一页请求失败时记一条
// 警告并返回已累计的部分结果；只有上下文取消会以错误形式上抛。
func (s *Source) FetchRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Candle, error) {
	sym := symbolpkg.Normalize(symbol)
	if sym == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		interval = s.cfg.Interval
	}

	startMs := start.UnixMilli()
	endMs := end.UnixMilli()
	out := make([]market.Candle, 0, s.cfg.PageLimit)

	cursor := startMs
	for cursor < endMs {
		if err := s.limiter.Wait(ctx); err != nil {
			return out, err
		}
		kls, err := s.client.NewKlinesService().
			Symbol(sym).
			Interval(interval).
			StartTime(cursor).
			EndTime(endMs).
			Limit(s.cfg.PageLimit).
			Do(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logger.Warnf("[binance] %s %s 翻页拉取失败，保留已得 %d 根: %v", sym, interval, len(out), err)
			return sanitize(out, interval), nil
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			// 接口按 openTime <= endTime 含端点返回，区间语义收紧为左闭右开。
			if kl.OpenTime >= endMs {
				break
			}
			out = append(out, market.Candle{
				OpenTime: kl.OpenTime,
				Open:     parseFloat(kl.Open),
				High:     parseFloat(kl.High),
				Low:      parseFloat(kl.Low),
				Close:    parseFloat(kl.Close),
				Volume:   parseFloat(kl.Volume),
			})
		}
		cursor = kls[len(kls)-1].OpenTime + 1
	}
	return sanitize(out, interval), nil
}

// 尾部未收盘的 K 线不进缓存，避免归档里出现半成品数据。
func sanitize(out []market.Candle, interval string) []market.Candle {
	if dur, ok := scheduler.ParseIntervalDuration(interval); ok {
		return scheduler.DropUnclosedKline(out, dur)
	}
	return out
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
