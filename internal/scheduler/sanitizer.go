package scheduler

import (
	"time"

	"leandata/internal/market"
)

// 收盘后给交易所留出的数据落稳时间。
const DefaultKlineGrace = 10 * time.Second

// DropUnclosedKline 去掉尾部尚未收盘的那根 K 线。Binance 风格的
// 历史接口会把当前进行中的 K 线一并返回，缓存它会让归档里出现
// 半成品数据。
func DropUnclosedKline(klines []market.Candle, interval time.Duration) []market.Candle {
	return dropUnclosedKlineAt(klines, interval, time.Now().UTC(), DefaultKlineGrace)
}

func dropUnclosedKlineAt(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	if grace < 0 {
		grace = 0
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	closeMs := last.OpenTime + interval.Milliseconds()
	if now.UnixMilli() < closeMs+grace.Milliseconds() {
		return klines[:len(klines)-1]
	}
	return klines
}
