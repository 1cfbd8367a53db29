package market

import "time"

// Candle 表示一根固定周期的 OHLCV K 线，OpenTime 为毫秒时间戳。
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// OpenAt 返回 K 线开盘的 UTC 时间。
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}
