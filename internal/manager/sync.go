package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"leandata/internal/archive"
	"leandata/internal/logger"
	symbolpkg "leandata/internal/pkg/symbol"
	"leandata/internal/quote"
)

// DownloadOne 全量拉取一个交易对并整体重写归档。start/end 为零值时
// 分别取配置的回补起点与当前 UTC 日期；end 含当日。
func (m *Manager) DownloadOne(ctx context.Context, symbol string, start, end time.Time) (SymbolResult, error) {
	sym := symbolpkg.Normalize(symbol)
	started := m.nowFn()
	res := m.downloadOne(ctx, sym, start, end)
	var opErr error
	if res.Error != "" {
		opErr = fmt.Errorf("%s", res.Error)
	}
	m.record(ctx, "download_one", []string{sym}, res.TotalRows, started, opErr, map[string]any{"action": res.Action})
	return res, opErr
}

func (m *Manager) downloadOne(ctx context.Context, sym string, start, end time.Time) SymbolResult {
	if sym == "" {
		return SymbolResult{Error: "symbol is required"}
	}
	if start.IsZero() {
		start = m.startDate
	}
	if end.IsZero() {
		end = m.today()
	}
	// 终点按日含端点：请求窗口推进到当日结束。
	endExclusive := end.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	logger.Infof("[sync] %s 开始下载 %s ~ %s", sym,
		start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))

	candles, err := m.source.FetchRange(ctx, sym, m.interval, start.UTC(), endExclusive)
	if err != nil {
		return SymbolResult{Symbol: sym, Error: err.Error()}
	}
	if len(candles) == 0 {
		logger.Warnf("[sync] %s 区间内没有任何 K 线", sym)
		return SymbolResult{Symbol: sym, Action: ActionNoData}
	}

	rows := quote.EncodeCurrentRows(m.synth.FromCandles(candles))
	if _, err := m.store.Write(sym, rows); err != nil {
		return SymbolResult{Symbol: sym, Error: err.Error()}
	}
	logger.Infof("[sync] %s 下载完成，共 %d 行", sym, len(rows))
	return SymbolResult{Symbol: sym, Action: ActionDownloaded, AddedRows: len(rows), TotalRows: len(rows)}
}

// DownloadMissing 只补没有归档的交易对，已有归档的原样跳过。
func (m *Manager) DownloadMissing(ctx context.Context, symbols []string, start, end time.Time) (DownloadReport, error) {
	started := m.nowFn()
	syms := symbolpkg.NormalizeList(symbols)
	report, rows := m.downloadMissing(ctx, syms, start, end)
	m.record(ctx, "download_missing", syms, rows, started, nil, map[string]any{
		"downloaded":        report.Downloaded,
		"already_available": report.AlreadyAvailable,
		"failed":            len(report.Failed),
	})
	return report, nil
}

func (m *Manager) downloadMissing(ctx context.Context, syms []string, start, end time.Time) (DownloadReport, int) {
	check := m.Check(syms)
	report := DownloadReport{
		Downloaded:       []string{},
		AlreadyAvailable: check.Available,
	}
	results := m.forEachSymbol(ctx, check.Missing, func(sym string) SymbolResult {
		return m.downloadOne(ctx, sym, start, end)
	})
	rows := 0
	for _, res := range results {
		switch {
		case res.Error != "" || res.Action == ActionNoData:
			report.Failed = append(report.Failed, res)
		default:
			report.Downloaded = append(report.Downloaded, res.Symbol)
			rows += res.TotalRows
		}
	}
	return report, rows
}

// UpdateOne 增量更新：从归档最后一根之后拉到当前，和旧数据按
// K 线开盘时间合并去重（新数据优先），整体按当前编码重写。归档
// 缺失或损坏时退化为全量下载。
func (m *Manager) UpdateOne(ctx context.Context, symbol string) (SymbolResult, error) {
	sym := symbolpkg.Normalize(symbol)
	started := m.nowFn()
	res := m.updateOne(ctx, sym)
	var opErr error
	if res.Error != "" {
		opErr = fmt.Errorf("%s", res.Error)
	}
	m.record(ctx, "update_one", []string{sym}, res.AddedRows, started, opErr, map[string]any{"action": res.Action})
	return res, opErr
}

func (m *Manager) updateOne(ctx context.Context, sym string) SymbolResult {
	if sym == "" {
		return SymbolResult{Error: "symbol is required"}
	}
	insp := m.store.Inspect(sym)
	switch insp.State {
	case archive.StateAbsent:
		logger.Infof("[sync] %s 没有归档，转为全量下载", sym)
		return m.downloadOne(ctx, sym, time.Time{}, time.Time{})
	case archive.StateCorrupt:
		logger.Warnf("[sync] %s 归档损坏(%s)，转为全量下载", sym, insp.Reason)
		return m.downloadOne(ctx, sym, time.Time{}, time.Time{})
	}

	existing, err := m.readRecords(sym)
	if err != nil {
		return SymbolResult{Symbol: sym, Error: err.Error()}
	}
	if len(existing) == 0 {
		return m.downloadOne(ctx, sym, time.Time{}, time.Time{})
	}

	lastOpen := existing[len(existing)-1].Time
	start := lastOpen.Add(m.step).Truncate(time.Minute)
	endExclusive := m.today().Add(24 * time.Hour)

	candles, err := m.source.FetchRange(ctx, sym, m.interval, start, endExclusive)
	if err != nil {
		return SymbolResult{Symbol: sym, Error: err.Error()}
	}
	if len(candles) == 0 {
		logger.Infof("[sync] %s 已是最新（截至 %s）", sym, lastOpen.Format("2006-01-02"))
		return SymbolResult{Symbol: sym, Action: ActionUpToDate, TotalRows: len(existing)}
	}

	merged := mergeRecords(existing, m.synth.FromCandles(candles))
	if _, err := m.store.Write(sym, quote.EncodeCurrentRows(merged)); err != nil {
		return SymbolResult{Symbol: sym, Error: err.Error()}
	}
	added := len(merged) - len(existing)
	logger.Infof("[sync] %s 更新完成，新增 %d 行，共 %d 行", sym, added, len(merged))
	return SymbolResult{Symbol: sym, Action: ActionUpdated, AddedRows: added, TotalRows: len(merged)}
}

// UpdateAll 并发更新一组交易对；symbols 为空时取目录下全部归档。
// 结果与输入顺序一一对应。
func (m *Manager) UpdateAll(ctx context.Context, symbols []string) ([]SymbolResult, error) {
	started := m.nowFn()
	syms := symbolpkg.NormalizeList(symbols)
	if len(syms) == 0 {
		all, err := m.store.Symbols()
		if err != nil {
			return nil, err
		}
		syms = all
	}
	results := m.forEachSymbol(ctx, syms, func(sym string) SymbolResult {
		return m.updateOne(ctx, sym)
	})

	rows, failed := 0, 0
	for _, res := range results {
		rows += res.AddedRows
		if res.Error != "" {
			failed++
		}
	}
	m.record(ctx, "update_all", syms, rows, started, nil, map[string]any{"failed": failed})
	logger.Infof("[sync] 批量更新结束：%d 个交易对，新增 %d 行，失败 %d", len(syms), rows, failed)
	return results, nil
}

// Ensure 先补齐缺失归档再整体复查，下载失败的交易对保持缺失。
func (m *Manager) Ensure(ctx context.Context, symbols []string) (EnsureReport, error) {
	started := m.nowFn()
	syms := symbolpkg.NormalizeList(symbols)
	report, rows := m.downloadMissing(ctx, syms, time.Time{}, time.Time{})
	final := m.Check(syms)
	out := EnsureReport{
		Available:  final.Available,
		Missing:    final.Missing,
		Downloaded: report.Downloaded,
	}
	m.record(ctx, "ensure", syms, rows, started, nil, map[string]any{
		"available": len(out.Available),
		"missing":   out.Missing,
	})
	return out, nil
}

// forEachSymbol 用有界工作池并发执行，结果槽位与输入一一对应，
// 单个交易对的失败不会波及同批其它交易对。
func (m *Manager) forEachSymbol(ctx context.Context, symbols []string, fn func(string) SymbolResult) []SymbolResult {
	results := make([]SymbolResult, len(symbols))
	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = SymbolResult{Symbol: sym, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()
			results[i] = fn(sym)
		}(i, sym)
	}
	wg.Wait()
	return results
}

// mergeRecords 按开盘时间合并两段报价，重叠时间点以 fresh 为准。
func mergeRecords(existing, fresh []quote.Record) []quote.Record {
	merged := make(map[int64]quote.Record, len(existing)+len(fresh))
	for _, r := range existing {
		merged[r.Time.UnixMilli()] = r
	}
	for _, r := range fresh {
		merged[r.Time.UnixMilli()] = r
	}
	keys := make([]int64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]quote.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, merged[k])
	}
	return out
}
