package app

import (
	"context"
	"fmt"
	"sort"

	"leandata/internal/config"
	"leandata/internal/logger"
	"leandata/internal/manager"
	symbolpkg "leandata/internal/pkg/symbol"
	"leandata/internal/runstore"
	"leandata/internal/scheduler"
	datahttp "leandata/internal/transport/http/data"
	"leandata/internal/watchlist"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→装配依赖→启动 HTTP 服务与自动同步。
type App struct {
	cfg    *config.Config
	mgr    *manager.Manager
	runs   *runstore.Store
	watch  *watchlist.Registry
	server *datahttp.Server

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Manager 暴露底层同步管理器，命令行工具复用。
func (a *App) Manager() *manager.Manager {
	if a == nil {
		return nil
	}
	return a.mgr
}

// Watchlist 暴露盯盘清单（可能为 nil）。
func (a *App) Watchlist() *watchlist.Registry {
	if a == nil {
		return nil
	}
	return a.watch
}

// Run 启动已启用的子系统并阻塞到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	if a.server == nil && !a.cfg.Sync.Auto {
		return fmt.Errorf("HTTP 服务与自动同步均未启用，无事可做")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("data http server error: %w", err)
			}
			return nil
		})
	}

	if a.cfg.Sync.Auto {
		align, ok := scheduler.ParseIntervalDuration(a.cfg.Sync.AlignInterval)
		if !ok {
			return fmt.Errorf("无法解析 sync.align_interval=%q", a.cfg.Sync.AlignInterval)
		}
		sched := scheduler.NewAlignedScheduler(ctx, align, a.cfg.Sync.Offset())
		sched.RunImmediately = a.cfg.Sync.RunImmediately
		group.Go(func() error {
			sched.Start(func() { a.autoSync(ctx) })
			return nil
		})
	}

	// 清单热更新后立刻补齐新增交易对，不用等下一个对齐点。
	if a.watch != nil {
		a.watch.OnChange(func(watchlist.Snapshot) {
			symbols := a.watchSymbols()
			if len(symbols) == 0 {
				return
			}
			logger.Infof("盯盘清单更新，检查 %d 个交易对", len(symbols))
			report, err := a.mgr.Ensure(ctx, symbols)
			if err != nil {
				logger.Errorf("盯盘清单补齐失败: %v", err)
				return
			}
			if len(report.Downloaded) > 0 {
				logger.Infof("盯盘清单补齐完成，新下载 %v", report.Downloaded)
			}
		})
	}

	return group.Wait()
}

// autoSync 是定时任务主体：先按清单补齐缺口，再增量更新全部归档。
func (a *App) autoSync(ctx context.Context) {
	if symbols := a.watchSymbols(); len(symbols) > 0 {
		report, err := a.mgr.Ensure(ctx, symbols)
		if err != nil {
			logger.Errorf("自动同步：清单补齐失败: %v", err)
		} else if len(report.Downloaded) > 0 {
			logger.Infof("自动同步：新下载 %v", report.Downloaded)
		}
	}

	results, err := a.mgr.UpdateAll(ctx, nil)
	if err != nil {
		logger.Errorf("自动同步失败: %v", err)
		return
	}
	var updated, failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
			logger.Errorf("自动同步 %s 失败: %s", r.Symbol, r.Error)
			continue
		}
		if r.Action == manager.ActionUpdated || r.Action == manager.ActionDownloaded {
			updated++
		}
	}
	logger.Infof("自动同步完成: %d 个归档，%d 个有更新，%d 个失败", len(results), updated, failed)
}

// watchSymbols 返回盯盘清单解析出的交易对，受 watchlist.groups 过滤。
func (a *App) watchSymbols() []string {
	if a.watch == nil {
		return nil
	}
	if len(a.cfg.Watchlist.Groups) == 0 {
		return a.watch.ActiveSymbols()
	}
	var all []string
	for _, name := range a.cfg.Watchlist.Groups {
		g, ok := a.watch.Group(name)
		if !ok {
			logger.Warnf("watchlist.groups 中的 %q 不在清单里", name)
			continue
		}
		if g.Paused {
			continue
		}
		all = append(all, g.Symbols...)
	}
	out := symbolpkg.NormalizeList(all)
	sort.Strings(out)
	return out
}

// Close 释放持有的资源，Run 退出时自动调用。
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			logger.Warnf("关闭流水账失败: %v", err)
		}
	}
}
