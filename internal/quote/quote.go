// Package quote 定义归档行使用的买卖报价记录：bid 取自 K 线原价，
// ask 由固定点差合成。
package quote

import (
	"time"

	"leandata/internal/market"

	"github.com/shopspring/decimal"
)

// DefaultSpread 是合成 ask 价时使用的默认比例点差。
const DefaultSpread = 0.0001

// OHLC 单边报价的开高低收。
type OHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Record 归档中的一行：一根 K 线对应的买卖双边报价。
type Record struct {
	Time time.Time // bar 开盘时间，UTC，分钟精度
	Bid  OHLC
	Ask  OHLC
}

// Mid 返回买卖中间价的 OHLC。
func (r Record) Mid() OHLC {
	return OHLC{
		Open:  (r.Bid.Open + r.Ask.Open) / 2,
		High:  (r.Bid.High + r.Ask.High) / 2,
		Low:   (r.Bid.Low + r.Ask.Low) / 2,
		Close: (r.Bid.Close + r.Ask.Close) / 2,
	}
}

// MidClose 返回中间收盘价，与原始价格序列消费端保持一致。
func (r Record) MidClose() float64 {
	return (r.Bid.Close + r.Ask.Close) / 2
}

// Synthesizer 按固定点差从 K 线合成报价记录。
// 用 decimal 做乘法，避免 0.0001 点差在二进制浮点下引入长尾。
type Synthesizer struct {
	factor decimal.Decimal
}

func NewSynthesizer(spread float64) Synthesizer {
	if spread < 0 {
		spread = 0
	}
	one := decimal.NewFromInt(1)
	return Synthesizer{factor: one.Add(decimal.NewFromFloat(spread))}
}

// FromCandle 将一根 K 线转换为报价记录：bid=原价，ask=原价*(1+spread)。
func (s Synthesizer) FromCandle(c market.Candle) Record {
	return Record{
		Time: c.OpenAt().Truncate(time.Minute),
		Bid:  OHLC{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close},
		Ask: OHLC{
			Open:  s.markup(c.Open),
			High:  s.markup(c.High),
			Low:   s.markup(c.Low),
			Close: s.markup(c.Close),
		},
	}
}

// FromCandles 批量转换，保持输入顺序。
func (s Synthesizer) FromCandles(candles []market.Candle) []Record {
	if len(candles) == 0 {
		return nil
	}
	out := make([]Record, 0, len(candles))
	for _, c := range candles {
		out = append(out, s.FromCandle(c))
	}
	return out
}

func (s Synthesizer) markup(v float64) float64 {
	return decimal.NewFromFloat(v).Mul(s.factor).InexactFloat64()
}
