package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"leandata/internal/archive"
	"leandata/internal/market"
	"leandata/internal/quote"
	"leandata/internal/runstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2023, 11, 20, 10, 30, 0, 0, time.UTC)

type fetchCall struct {
	symbol string
	start  time.Time
	end    time.Time
}

// fakeSource 按 [start, end) 过滤预置序列，fail 中的交易对直接报错。
type fakeSource struct {
	mu      sync.Mutex
	candles map[string][]market.Candle
	fail    map[string]bool
	calls   []fetchCall
}

func (f *fakeSource) FetchRange(_ context.Context, symbol, _ string, start, end time.Time) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{symbol: symbol, start: start, end: end})
	if f.fail[symbol] {
		return nil, errors.New("remote boom")
	}
	var out []market.Candle
	for _, c := range f.candles[symbol] {
		open := time.UnixMilli(c.OpenTime).UTC()
		if open.Before(start) || !open.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeSource) lastCall() (fetchCall, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return fetchCall{}, false
	}
	return f.calls[len(f.calls)-1], true
}

type fakeJournal struct {
	mu   sync.Mutex
	runs []runstore.Run
}

func (f *fakeJournal) AppendRun(_ context.Context, run runstore.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeJournal) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, r.Kind)
	}
	return out
}

func day(d int) time.Time {
	return time.Date(2023, 11, d, 0, 0, 0, 0, time.UTC)
}

func dayCandle(d int) market.Candle {
	return market.Candle{OpenTime: day(d).UnixMilli(), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12}
}

func candleRange(from, to int) []market.Candle {
	out := make([]market.Candle, 0, to-from+1)
	for d := from; d <= to; d++ {
		out = append(out, dayCandle(d))
	}
	return out
}

func legacyRowAt(d int) string {
	return fmt.Sprintf("%d,100,101,99,100.5,100.01,101.01,99.01,100.51", day(d).UnixMilli())
}

func newTestManager(t *testing.T, src KlineSource, journal RunRecorder) (*Manager, *archive.Store) {
	t.Helper()
	root := t.TempDir()
	mgr, err := NewManager(Config{
		DataRoot:  root,
		Interval:  "1d",
		StartDate: day(1),
		Spread:    0.0001,
		Workers:   2,
		Source:    src,
		Journal:   journal,
	})
	require.NoError(t, err)
	mgr.nowFn = func() time.Time { return testToday }
	return mgr, archive.NewStore(root)
}

func seedLegacy(t *testing.T, store *archive.Store, symbol string, days ...int) {
	t.Helper()
	rows := make([]string, 0, len(days))
	for _, d := range days {
		rows = append(rows, legacyRowAt(d))
	}
	_, err := store.Write(symbol, rows)
	require.NoError(t, err)
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(Config{})
	assert.Error(t, err)

	_, err = NewManager(Config{Source: &fakeSource{}, Interval: "fortnight"})
	assert.Error(t, err)
}

func TestCheckPartitionsByFileExistence(t *testing.T) {
	mgr, store := newTestManager(t, &fakeSource{}, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15)

	res := mgr.Check([]string{"btc/usdt", "ethusdt", "BTCUSDT"})
	assert.Equal(t, []string{"BTCUSDT"}, res.Available)
	assert.Equal(t, []string{"ETHUSDT"}, res.Missing)
}

func TestDownloadOneWritesCurrentFormat(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{"BTCUSDT": candleRange(14, 16)}}
	mgr, store := newTestManager(t, src, nil)

	res, err := mgr.DownloadOne(context.Background(), "btcusdt", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ActionDownloaded, res.Action)
	assert.Equal(t, 3, res.TotalRows)

	// 默认区间：配置起点到「今天」（含当日）。
	call, ok := src.lastCall()
	require.True(t, ok)
	assert.Equal(t, day(1), call.start)
	assert.Equal(t, day(21), call.end)

	rows, err := store.ReadRows("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "20231114 00:00,100,101,99,100.5,0,100.01,101.0101,99.0099,100.51005,0", rows[0])

	st := mgr.Status("BTCUSDT")
	assert.True(t, st.Available)
	assert.Equal(t, 3, st.RowCount)
	assert.Equal(t, "2023-11-14", st.StartDate)
	assert.Equal(t, "2023-11-16", st.EndDate)
}

func TestDownloadOneNoData(t *testing.T) {
	src := &fakeSource{}
	mgr, store := newTestManager(t, src, nil)

	res, err := mgr.DownloadOne(context.Background(), "BTCUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, ActionNoData, res.Action)
	assert.False(t, store.Exists("BTCUSDT"))
}

func TestDownloadMissingSkipsExisting(t *testing.T) {
	src := &fakeSource{
		candles: map[string][]market.Candle{"ETHUSDT": candleRange(14, 16)},
		fail:    map[string]bool{"DOGEUSDT": true},
	}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14)

	report, err := mgr.DownloadMissing(context.Background(), []string{"BTCUSDT", "ETHUSDT", "DOGEUSDT"}, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, report.AlreadyAvailable)
	assert.Equal(t, []string{"ETHUSDT"}, report.Downloaded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "DOGEUSDT", report.Failed[0].Symbol)
	assert.Contains(t, report.Failed[0].Error, "remote boom")

	// 已有归档的交易对不应触发任何拉取。
	src.mu.Lock()
	for _, call := range src.calls {
		assert.NotEqual(t, "BTCUSDT", call.symbol)
	}
	src.mu.Unlock()
}

func TestUpdateOneMergesAndReencodes(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{"BTCUSDT": candleRange(14, 18)}}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15, 16)
	mgr.nowFn = func() time.Time { return time.Date(2023, 11, 19, 8, 0, 0, 0, time.UTC) }

	res, err := mgr.UpdateOne(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, 2, res.AddedRows)
	assert.Equal(t, 5, res.TotalRows)

	// 增量窗口从最后一根之后开始。
	call, ok := src.lastCall()
	require.True(t, ok)
	assert.Equal(t, day(17), call.start)

	rows, err := store.ReadRows("BTCUSDT")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	// 整体重编码成当前格式：旧的 epoch 毫秒行也变成日期键行。
	for _, row := range rows {
		assert.False(t, quote.IsLegacyRow(row), "row %q still legacy", row)
	}
	first, err := quote.RowOpenTime(rows[0])
	require.NoError(t, err)
	last, err := quote.RowOpenTime(rows[4])
	require.NoError(t, err)
	assert.Equal(t, day(14), first)
	assert.Equal(t, day(18), last)
}

func TestUpdateOneUpToDateLeavesArchiveUntouched(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{"BTCUSDT": candleRange(14, 16)}}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15, 16)
	mgr.nowFn = func() time.Time { return time.Date(2023, 11, 17, 8, 0, 0, 0, time.UTC) }

	before, err := os.ReadFile(store.Path("BTCUSDT"))
	require.NoError(t, err)

	res, err := mgr.UpdateOne(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ActionUpToDate, res.Action)
	assert.Equal(t, 0, res.AddedRows)
	assert.Equal(t, 3, res.TotalRows)

	after, err := os.ReadFile(store.Path("BTCUSDT"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdateOneMissingOrCorruptFallsBackToDownload(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{"BTCUSDT": candleRange(14, 16)}}
	mgr, store := newTestManager(t, src, nil)

	res, err := mgr.UpdateOne(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ActionDownloaded, res.Action)
	assert.Equal(t, 3, res.TotalRows)

	// 归档损坏同样整体重建。
	require.NoError(t, os.WriteFile(store.Path("BTCUSDT"), []byte("not a zip"), 0o644))
	res, err = mgr.UpdateOne(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, ActionDownloaded, res.Action)
	assert.True(t, mgr.Status("BTCUSDT").Available)
}

func TestMergeRecordsOverlapNewWins(t *testing.T) {
	synth := quote.NewSynthesizer(0)
	existing := synth.FromCandles(candleRange(14, 16))
	overlap := dayCandle(16)
	overlap.Close = 200
	fresh := synth.FromCandles([]market.Candle{overlap, dayCandle(17)})

	merged := mergeRecords(existing, fresh)
	require.Len(t, merged, 4)
	for i := 0; i < len(merged)-1; i++ {
		assert.True(t, merged[i].Time.Before(merged[i+1].Time))
	}
	assert.Equal(t, 200.0, merged[2].Bid.Close)
}

func TestUpdateAllIsolatesFailures(t *testing.T) {
	src := &fakeSource{
		candles: map[string][]market.Candle{
			"BTCUSDT": candleRange(14, 18),
			"ETHUSDT": candleRange(14, 18),
		},
		fail: map[string]bool{"XRPUSDT": true},
	}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15, 16)
	seedLegacy(t, store, "ETHUSDT", 14, 15, 16)
	seedLegacy(t, store, "XRPUSDT", 14, 15, 16)
	mgr.nowFn = func() time.Time { return time.Date(2023, 11, 19, 8, 0, 0, 0, time.UTC) }

	results, err := mgr.UpdateAll(context.Background(), []string{"BTCUSDT", "XRPUSDT", "ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	// 结果顺序与输入一致。
	assert.Equal(t, "BTCUSDT", results[0].Symbol)
	assert.Equal(t, "XRPUSDT", results[1].Symbol)
	assert.Equal(t, "ETHUSDT", results[2].Symbol)
	assert.Equal(t, ActionUpdated, results[0].Action)
	assert.Contains(t, results[1].Error, "remote boom")
	assert.Equal(t, ActionUpdated, results[2].Action)
}

func TestUpdateAllDefaultsToArchivedSymbols(t *testing.T) {
	src := &fakeSource{candles: map[string][]market.Candle{
		"BTCUSDT": candleRange(14, 16),
		"ETHUSDT": candleRange(14, 16),
	}}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15, 16)
	seedLegacy(t, store, "ETHUSDT", 14, 15, 16)
	mgr.nowFn = func() time.Time { return time.Date(2023, 11, 17, 8, 0, 0, 0, time.UTC) }

	results, err := mgr.UpdateAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEnsureRechecksAfterDownload(t *testing.T) {
	src := &fakeSource{
		candles: map[string][]market.Candle{"ETHUSDT": candleRange(14, 16)},
		fail:    map[string]bool{"DOGEUSDT": true},
	}
	mgr, store := newTestManager(t, src, nil)
	seedLegacy(t, store, "BTCUSDT", 14)

	report, err := mgr.Ensure(context.Background(), []string{"BTCUSDT", "ETHUSDT", "DOGEUSDT"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, report.Available)
	// 下载失败的交易对复查后仍是缺失。
	assert.Equal(t, []string{"DOGEUSDT"}, report.Missing)
	assert.Equal(t, []string{"ETHUSDT"}, report.Downloaded)
}

func TestDeleteArchive(t *testing.T) {
	mgr, store := newTestManager(t, &fakeSource{}, nil)
	seedLegacy(t, store, "BTCUSDT", 14)

	require.NoError(t, mgr.Delete(context.Background(), "btcusdt"))
	assert.False(t, store.Exists("BTCUSDT"))

	err := mgr.Delete(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestLoadSeries(t *testing.T) {
	mgr, store := newTestManager(t, &fakeSource{}, nil)
	seedLegacy(t, store, "BTCUSDT", 14, 15, 16)

	records, err := mgr.LoadSeries("btcusdt", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, day(14), records[0].Time)

	records, err = mgr.LoadSeries("BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, day(15), records[0].Time)

	_, err = mgr.LoadSeries("ETHUSDT", 0)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestJournalHooks(t *testing.T) {
	journal := &fakeJournal{}
	src := &fakeSource{candles: map[string][]market.Candle{"BTCUSDT": candleRange(14, 16)}}
	mgr, _ := newTestManager(t, src, journal)

	_, err := mgr.DownloadOne(context.Background(), "BTCUSDT", time.Time{}, time.Time{})
	require.NoError(t, err)
	_, err = mgr.UpdateAll(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	err = mgr.Delete(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, []string{"download_one", "update_all", "delete"}, journal.kinds())

	journal.mu.Lock()
	defer journal.mu.Unlock()
	assert.Equal(t, []string{"BTCUSDT"}, journal.runs[0].Symbols)
	assert.Equal(t, 3, journal.runs[0].Rows)
}
