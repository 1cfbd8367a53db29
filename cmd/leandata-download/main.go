// leandata-download 一次性补齐指定交易对的历史报价归档。
//
//	leandata-download [flags] [SYMBOL ...]
//
// 不带参数时优先读 -watchlist 指定的清单，清单也没有就用内置的
// 十个主流币种。已存在的归档直接跳过，只下载缺失的。
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"leandata/internal/binance"
	"leandata/internal/logger"
	"leandata/internal/manager"
	"leandata/internal/watchlist"
)

var defaultSymbols = []string{
	"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
	"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "DOTUSDT", "LINKUSDT",
}

func main() {
	var (
		root      = flag.String("root", "data", "数据根目录，归档写入 <root>/crypto/binance/daily")
		startStr  = flag.String("start", "2023-01-01", "回补起始日期 (YYYY-MM-DD)")
		endStr    = flag.String("end", "", "回补结束日期，留空表示到今天")
		interval  = flag.String("interval", "1d", "K线周期")
		spread    = flag.Float64("spread", 0.0001, "买卖价差比例")
		baseURL   = flag.String("base-url", "", "Binance REST 地址，留空用官方默认")
		workers   = flag.Int("workers", 4, "并发下载数")
		watchPath = flag.String("watchlist", "", "盯盘清单文件，未给出交易对时从这里取")
		verbose   = flag.Bool("v", false, "输出调试日志")
	)
	flag.Parse()

	if *verbose {
		logger.SetLevel("debug")
	}

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("无法解析 -start: %v", err)
	}
	var end time.Time
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("无法解析 -end: %v", err)
		}
	}

	symbols := flag.Args()
	if len(symbols) == 0 && *watchPath != "" {
		reg, err := watchlist.NewRegistry(*watchPath)
		if err != nil {
			log.Fatalf("读取盯盘清单失败: %v", err)
		}
		symbols = reg.ActiveSymbols()
	}
	if len(symbols) == 0 {
		symbols = defaultSymbols
	}

	mgr, err := manager.NewManager(manager.Config{
		DataRoot:  *root,
		Interval:  *interval,
		StartDate: start.UTC(),
		Spread:    *spread,
		Workers:   *workers,
		Source: binance.New(binance.Config{
			RESTBaseURL: *baseURL,
			Interval:    *interval,
		}),
	})
	if err != nil {
		log.Fatalf("初始化同步管理器失败: %v", err)
	}

	logger.Infof("开始下载 %d 个交易对 → %s", len(symbols), *root)
	report, err := mgr.DownloadMissing(context.Background(), symbols, start.UTC(), end)
	if err != nil {
		log.Fatalf("下载失败: %v", err)
	}

	for _, sym := range report.AlreadyAvailable {
		fmt.Printf("  = %s 已存在，跳过\n", sym)
	}
	for _, sym := range report.Downloaded {
		if st, err := mgr.Status(sym); err == nil {
			fmt.Printf("  + %s %d 行 (%s ~ %s)\n", sym, st.RowCount, st.StartDate, st.EndDate)
		} else {
			fmt.Printf("  + %s\n", sym)
		}
	}
	for _, res := range report.Failed {
		fmt.Printf("  ! %s 失败: %s\n", res.Symbol, res.Error)
	}
	fmt.Printf("完成：下载 %d，跳过 %d，失败 %d\n",
		len(report.Downloaded), len(report.AlreadyAvailable), len(report.Failed))

	if len(report.Failed) > 0 {
		os.Exit(1)
	}
}
