package app

import (
	"fmt"
	"sort"
	"strings"

	"leandata/internal/config"
	"leandata/internal/watchlist"
)

type StartupSummary struct {
	Archive ArchiveSummary
	Sync    SyncSummary
	Journal JournalSummary
	HTTP    HTTPSummary
	Groups  []GroupSummary
}

type ArchiveSummary struct {
	Root      string
	Interval  string
	StartDate string
	Spread    float64
}

type SyncSummary struct {
	Workers        int
	Auto           bool
	AlignInterval  string
	OffsetSeconds  int
	RunImmediately bool
}

type JournalSummary struct {
	Enabled bool
	Path    string
}

type HTTPSummary struct {
	Enabled bool
	Addr    string
	ChartMA []int
}

type GroupSummary struct {
	Name    string
	Paused  bool
	Active  bool
	Symbols []string
}

func buildStartupSummary(cfg *config.Config, watch *watchlist.Registry) *StartupSummary {
	s := &StartupSummary{
		Archive: ArchiveSummary{
			Root:      cfg.Data.Root,
			Interval:  cfg.Binance.Interval,
			StartDate: cfg.Binance.StartTime().Format("2006-01-02"),
			Spread:    cfg.Binance.Spread,
		},
		Sync: SyncSummary{
			Workers:        cfg.Sync.Workers,
			Auto:           cfg.Sync.Auto,
			AlignInterval:  cfg.Sync.AlignInterval,
			OffsetSeconds:  cfg.Sync.OffsetSeconds,
			RunImmediately: cfg.Sync.RunImmediately,
		},
		Journal: JournalSummary{
			Enabled: cfg.Journal.Enabled,
			Path:    cfg.Journal.Path,
		},
		HTTP: HTTPSummary{
			Enabled: cfg.Server.Enabled,
			Addr:    cfg.App.HTTPAddr,
			ChartMA: cfg.Server.ChartMA,
		},
	}
	if watch == nil {
		return s
	}
	// groups 过滤为空视为全部启用。
	selected := make(map[string]bool, len(cfg.Watchlist.Groups))
	for _, name := range cfg.Watchlist.Groups {
		selected[strings.TrimSpace(name)] = true
	}
	snap := watch.Snapshot()
	names := make([]string, 0, len(snap.Groups))
	for name := range snap.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		g := snap.Groups[name]
		active := !g.Paused && (len(selected) == 0 || selected[name])
		s.Groups = append(s.Groups, GroupSummary{
			Name:    name,
			Paused:  g.Paused,
			Active:  active,
			Symbols: append([]string(nil), g.Symbols...),
		})
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[行情归档 (QUOTE ARCHIVE)]")
	fmt.Printf("  数据目录: %s\n", s.Archive.Root)
	fmt.Printf("  K线周期: %s\n", s.Archive.Interval)
	fmt.Printf("  回补起点: %s\n", s.Archive.StartDate)
	fmt.Printf("  买卖价差: %g\n", s.Archive.Spread)
	fmt.Println()

	fmt.Println("[同步策略 (SYNC)]")
	fmt.Printf("  并发数: %d\n", s.Sync.Workers)
	if s.Sync.Auto {
		fmt.Printf("  自动同步: 每 %s + %ds（立即执行一轮: %v）\n",
			s.Sync.AlignInterval, s.Sync.OffsetSeconds, s.Sync.RunImmediately)
	} else {
		fmt.Println("  自动同步: 关闭")
	}
	if s.Journal.Enabled {
		fmt.Printf("  流水账: %s\n", s.Journal.Path)
	} else {
		fmt.Println("  流水账: 关闭")
	}
	fmt.Println()

	fmt.Println("[HTTP 服务 (DATA API)]")
	if s.HTTP.Enabled {
		fmt.Printf("  监听地址: %s\n", s.HTTP.Addr)
		fmt.Printf("  图表均线: %s\n", formatInts(s.HTTP.ChartMA))
	} else {
		fmt.Println("  (未启用)")
	}
	fmt.Println()

	fmt.Println("[盯盘清单 (WATCHLIST)]")
	if len(s.Groups) == 0 {
		fmt.Println("  (未配置)")
	} else {
		for _, g := range s.Groups {
			state := "启用"
			switch {
			case g.Paused:
				state = "暂停"
			case !g.Active:
				state = "未选中"
			}
			fmt.Printf("  > %s [%s]: %s\n", g.Name, state, formatList(g.Symbols))
		}
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func formatInts(items []int) string {
	if len(items) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(items))
	for _, n := range items {
		parts = append(parts, fmt.Sprintf("%d", n))
	}
	return strings.Join(parts, ", ")
}
