// Package chart 把归档报价渲染成可交互的 K 线 HTML 页面，可选叠加
// 若干条简单均线。
package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"leandata/internal/quote"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"

	chartWidthPx  = 1400
	chartHeightPx = 640
)

var maColors = []string{"#3b82f6", "#fbbf24", "#f472b6", "#22d3ee"}

// Options 控制单个交易对页面的渲染。
type Options struct {
	Symbol   string
	Interval string
	MA       []int
}

// RenderQuotePage 以 bid 序列（交易所原价）画 K 线并输出整页 HTML。
func RenderQuotePage(w io.Writer, opt Options, records []quote.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to render for %s", opt.Symbol)
	}
	interval := opt.Interval
	if interval == "" {
		interval = "1d"
	}

	xAxis := make([]string, len(records))
	klineData := make([]opts.KlineData, len(records))
	closes := make([]float64, len(records))
	for i, r := range records {
		xAxis[i] = r.Time.UTC().Format("2006-01-02")
		klineData[i] = opts.KlineData{Value: [4]float64{r.Bid.Open, r.Bid.Close, r.Bid.Low, r.Bid.High}}
		closes[i] = r.Bid.Close
	}

	minAxis, maxAxis := priceBounds(records)
	padding := (maxAxis - minAxis) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxAxis)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(opt.Symbol), interval),
			Subtitle:      fmt.Sprintf("%s ~ %s · %d bars", xAxis[0], xAxis[len(xAxis)-1], len(records)),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minAxis-padding, 4),
			Max:       round(maxAxis+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)
	kline.SetXAxis(xAxis)
	kline.AddSeries(fmt.Sprintf("Price_%s", interval), klineData)

	if maLine := buildMALine(xAxis, closes, opt.MA); maLine != nil {
		kline.Overlap(maLine)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(kline)
	return page.Render(w)
}

// buildMALine 用收盘价算简单均线；窗口未满的前段留空不画。
func buildMALine(xAxis []string, closes []float64, windows []int) *charts.Line {
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	added := 0
	for i, n := range windows {
		if n <= 1 || n > len(closes) {
			continue
		}
		ma := talib.Sma(closes, n)
		data := make([]opts.LineData, len(ma))
		for j, v := range ma {
			if j < n-1 || math.IsNaN(v) {
				data[j] = opts.LineData{Value: nil}
				continue
			}
			data[j] = opts.LineData{Value: round(v, 4)}
		}
		color := maColors[i%len(maColors)]
		line.AddSeries(fmt.Sprintf("MA%d", n), data, charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
		added++
	}
	if added == 0 {
		return nil
	}
	line.SetXAxis(xAxis)
	return line
}

func priceBounds(records []quote.Record) (minVal, maxVal float64) {
	minVal = records[0].Bid.Low
	maxVal = records[0].Bid.High
	for _, r := range records {
		if r.Bid.Low < minVal {
			minVal = r.Bid.Low
		}
		if r.Bid.High > maxVal {
			maxVal = r.Bid.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
