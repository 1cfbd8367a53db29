package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndListRoundtrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := Run{
		Kind:      "update_all",
		Symbols:   []string{"BTCUSDT", "ETHUSDT"},
		Details:   map[string]any{"failed": float64(0)},
		Rows:      12,
		Duration:  1500 * time.Millisecond,
		StartedAt: time.Date(2023, 11, 14, 22, 13, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendRun(ctx, run))

	runs, err := store.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "update_all", got.Kind)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got.Symbols)
	assert.Equal(t, map[string]any{"failed": float64(0)}, got.Details)
	assert.Equal(t, 12, got.Rows)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Empty(t, got.Error)
}

func TestListRunsFiltersBySymbol(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.AppendRun(ctx, Run{Kind: "download_one", Symbols: []string{"BTCUSDT"}, StartedAt: base}))
	require.NoError(t, store.AppendRun(ctx, Run{Kind: "download_one", Symbols: []string{"ETHUSDT"}, StartedAt: base.Add(time.Minute)}))
	require.NoError(t, store.AppendRun(ctx, Run{Kind: "update_all", Symbols: []string{"BTCUSDT", "ETHUSDT"}, StartedAt: base.Add(2 * time.Minute)}))

	runs, err := store.ListRuns(ctx, "btcusdt", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// 倒序：最近的在前。
	assert.Equal(t, "update_all", runs[0].Kind)
	assert.Equal(t, "download_one", runs[1].Kind)
	assert.Equal(t, []string{"BTCUSDT"}, runs[1].Symbols)

	runs, err = store.ListRuns(ctx, "DOGEUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListRunsLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendRun(ctx, Run{
			Kind:      "update_one",
			Symbols:   []string{"BTCUSDT"},
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := store.ListRuns(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))

	runs, err = store.ListRuns(ctx, "BTCUSDT", 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestAppendRunFillsDefaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendRun(ctx, Run{Kind: "delete", Symbols: []string{"BTCUSDT"}, Error: "symbol not found: BTCUSDT"}))
	runs, err := store.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
	assert.False(t, runs[0].StartedAt.IsZero())
	assert.Equal(t, "symbol not found: BTCUSDT", runs[0].Error)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("   ")
	assert.Error(t, err)
}
