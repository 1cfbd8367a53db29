package datahttp

import (
	"time"

	"leandata/internal/quote"
	"leandata/internal/watchlist"
)

// syncRequest 是同步类接口的统一请求体；日期格式 2006-01-02，
// 省略时由 manager 取默认区间。
type syncRequest struct {
	Symbols   []string `json:"symbols"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
}

type ohlcView struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// seriesPoint 是报价记录的 API 视图。
type seriesPoint struct {
	Time     string   `json:"time"`
	Bid      ohlcView `json:"bid"`
	Ask      ohlcView `json:"ask"`
	MidClose float64  `json:"mid_close"`
}

func toSeriesPoints(records []quote.Record) []seriesPoint {
	out := make([]seriesPoint, 0, len(records))
	for _, r := range records {
		out = append(out, seriesPoint{
			Time:     r.Time.UTC().Format("2006-01-02 15:04"),
			Bid:      ohlcView(r.Bid),
			Ask:      ohlcView(r.Ask),
			MidClose: r.MidClose(),
		})
	}
	return out
}

type watchGroupView struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Symbols     []string `json:"symbols"`
	Paused      bool     `json:"paused,omitempty"`
}

type watchlistView struct {
	Version  int64            `json:"version"`
	LoadedAt time.Time        `json:"loaded_at"`
	Groups   []watchGroupView `json:"groups"`
}

func toWatchlistView(snap watchlist.Snapshot, names []string) watchlistView {
	view := watchlistView{
		Version:  snap.Version,
		LoadedAt: snap.LoadedAt,
		Groups:   make([]watchGroupView, 0, len(names)),
	}
	for _, name := range names {
		g := snap.Groups[name]
		view.Groups = append(view.Groups, watchGroupView{
			Name:        g.Name,
			Description: g.Description,
			Symbols:     g.Symbols,
			Paused:      g.Paused,
		})
	}
	return view
}
