// Package manager 是数据同步的编排层：检查归档可用性、补齐缺口、
// 增量合并更新，并把每次同步写入流水账。
package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"leandata/internal/archive"
	"leandata/internal/logger"
	"leandata/internal/market"
	symbolpkg "leandata/internal/pkg/symbol"
	"leandata/internal/quote"
	"leandata/internal/runstore"
	"leandata/internal/scheduler"
)

// ErrSymbolNotFound 表示该交易对没有归档。
var ErrSymbolNotFound = errors.New("symbol not found")

// KlineSource 拉取 [start, end) 的历史 K 线。
type KlineSource interface {
	FetchRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]market.Candle, error)
}

// RunRecorder 落盘一条同步流水；注入 nil 表示不记账。
type RunRecorder interface {
	AppendRun(ctx context.Context, run runstore.Run) error
}

// Config 在构造期注入全部运行参数，Manager 自身不读任何全局状态。
type Config struct {
	DataRoot  string
	Interval  string
	StartDate time.Time
	Spread    float64
	Workers   int
	Source    KlineSource
	Journal   RunRecorder
}

// 单个交易对同步后的动作结论。
const (
	ActionDownloaded = "downloaded"
	ActionUpdated    = "updated"
	ActionUpToDate   = "up_to_date"
	ActionNoData     = "no_data"
)

// SymbolResult 是并发同步中单个交易对的结果；失败只体现在自己的
// Error 字段上，不影响同批其它交易对。
type SymbolResult struct {
	Symbol    string `json:"symbol"`
	Action    string `json:"action,omitempty"`
	AddedRows int    `json:"added_rows"`
	TotalRows int    `json:"total_rows"`
	Error     string `json:"error,omitempty"`
}

// CheckResult 按输入顺序划分有无归档文件的交易对。
type CheckResult struct {
	Available []string `json:"available"`
	Missing   []string `json:"missing"`
}

// DownloadReport 汇总一次批量补数的去向。
type DownloadReport struct {
	Downloaded       []string       `json:"downloaded"`
	AlreadyAvailable []string       `json:"already_available"`
	Failed           []SymbolResult `json:"failed,omitempty"`
}

// EnsureReport 是先补后验的最终可用性结论。
type EnsureReport struct {
	Available  []string `json:"available"`
	Missing    []string `json:"missing"`
	Downloaded []string `json:"downloaded"`
}

type Manager struct {
	store   *archive.Store
	source  KlineSource
	synth   quote.Synthesizer
	journal RunRecorder

	interval  string
	step      time.Duration
	startDate time.Time
	workers   int

	nowFn func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("kline source 不能为空")
	}
	interval := strings.ToLower(strings.TrimSpace(cfg.Interval))
	if interval == "" {
		interval = "1d"
	}
	step, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("interval %q 无法解析", cfg.Interval)
	}
	startDate := cfg.StartDate
	if startDate.IsZero() {
		startDate = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Manager{
		store:     archive.NewStore(cfg.DataRoot),
		source:    cfg.Source,
		synth:     quote.NewSynthesizer(cfg.Spread),
		journal:   cfg.Journal,
		interval:  interval,
		step:      step,
		startDate: startDate.UTC(),
		workers:   workers,
		nowFn:     time.Now,
	}, nil
}

// Store 暴露归档定位能力给只读消费方（图表、HTTP 层）。
func (m *Manager) Store() *archive.Store { return m.store }

// Check 只看归档文件是否存在，不校验内容。
func (m *Manager) Check(symbols []string) CheckResult {
	res := CheckResult{Available: []string{}, Missing: []string{}}
	for _, sym := range symbolpkg.NormalizeList(symbols) {
		if m.store.Exists(sym) {
			res.Available = append(res.Available, sym)
		} else {
			res.Missing = append(res.Missing, sym)
		}
	}
	return res
}

// Status 返回单个交易对的对外状态；损坏归档在日志里留痕，对外折叠
// 为不可用。
func (m *Manager) Status(symbol string) archive.SymbolStatus {
	insp := m.store.Inspect(symbol)
	if insp.State == archive.StateCorrupt {
		logger.Warnf("[sync] %s 归档损坏: %s", insp.Symbol, insp.Reason)
	}
	return insp.Collapse()
}

// Statuses 返回目录下全部归档的状态，按符号升序。
func (m *Manager) Statuses() ([]archive.SymbolStatus, error) {
	syms, err := m.store.Symbols()
	if err != nil {
		return nil, err
	}
	out := make([]archive.SymbolStatus, 0, len(syms))
	for _, sym := range syms {
		out = append(out, m.Status(sym))
	}
	return out, nil
}

// ArchivedSymbols 枚举已有归档的交易对。
func (m *Manager) ArchivedSymbols() ([]string, error) {
	return m.store.Symbols()
}

// Delete 移除交易对的归档；没有归档时返回 ErrSymbolNotFound。
func (m *Manager) Delete(ctx context.Context, symbol string) error {
	sym := symbolpkg.Normalize(symbol)
	started := m.nowFn()
	err := m.store.Delete(sym)
	if errors.Is(err, os.ErrNotExist) {
		err = fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
	}
	m.record(ctx, "delete", []string{sym}, 0, started, err, nil)
	if err != nil {
		return err
	}
	logger.Infof("[sync] 已删除 %s 的归档", sym)
	return nil
}

// LoadSeries 读取归档并解析为报价序列，limit>0 时只保留最近的
// limit 根；解析失败的行跳过并告警。
func (m *Manager) LoadSeries(symbol string, limit int) ([]quote.Record, error) {
	sym := symbolpkg.Normalize(symbol)
	if !m.store.Exists(sym) {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, sym)
	}
	records, err := m.readRecords(sym)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (m *Manager) readRecords(symbol string) ([]quote.Record, error) {
	rows, err := m.store.ReadRows(symbol)
	if err != nil {
		return nil, err
	}
	records := make([]quote.Record, 0, len(rows))
	for i, row := range rows {
		rec, err := quote.ParseRow(row)
		if err != nil {
			logger.Warnf("[sync] %s 第 %d 行无法解析，跳过: %v", symbol, i+1, err)
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records, nil
}

// today 返回当前 UTC 日零点，作为默认下载终点。
func (m *Manager) today() time.Time {
	return m.nowFn().UTC().Truncate(24 * time.Hour)
}

func (m *Manager) record(ctx context.Context, kind string, symbols []string, rows int, started time.Time, opErr error, details map[string]any) {
	if m.journal == nil {
		return
	}
	run := runstore.Run{
		Kind:      kind,
		Symbols:   symbols,
		Details:   details,
		Rows:      rows,
		Duration:  m.nowFn().Sub(started),
		StartedAt: started.UTC(),
	}
	if opErr != nil {
		run.Error = opErr.Error()
	}
	if err := m.journal.AppendRun(ctx, run); err != nil {
		logger.Warnf("[sync] 流水账写入失败: %v", err)
	}
}
