package app

import (
	"context"
	"fmt"
	"strings"

	"leandata/internal/binance"
	"leandata/internal/config"
	"leandata/internal/logger"
	"leandata/internal/manager"
	"leandata/internal/runstore"
	datahttp "leandata/internal/transport/http/data"
	"leandata/internal/watchlist"
)

// AppBuilder 按配置装配各子系统；Fn 字段留作测试注入点。
type AppBuilder struct {
	cfg *config.Config

	sourceFn    func(config.BinanceConfig) manager.KlineSource
	runStoreFn  func(string) (*runstore.Store, error)
	watchlistFn func(string) (*watchlist.Registry, error)
	serverFn    func(datahttp.ServerConfig) (*datahttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		sourceFn:    buildKlineSource,
		runStoreFn:  runstore.Open,
		watchlistFn: watchlist.NewRegistry,
		serverFn:    datahttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithKlineSource 替换行情源，测试用。
func WithKlineSource(src manager.KlineSource) AppBuilderOption {
	return func(b *AppBuilder) {
		if src != nil {
			b.sourceFn = func(config.BinanceConfig) manager.KlineSource { return src }
		}
	}
}

func WithRunStore(fn func(string) (*runstore.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.runStoreFn = fn
		}
	}
}

func WithWatchlist(fn func(string) (*watchlist.Registry, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.watchlistFn = fn
		}
	}
}

func WithServer(fn func(datahttp.ServerConfig) (*datahttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.serverFn = fn
		}
	}
}

func buildKlineSource(cfg config.BinanceConfig) manager.KlineSource {
	return binance.New(binance.Config{
		RESTBaseURL:     cfg.RESTBaseURL,
		HTTPTimeout:     cfg.Timeout(),
		Interval:        cfg.Interval,
		PageLimit:       cfg.PageLimit,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	source := b.sourceFn(cfg.Binance)

	var runs *runstore.Store
	if cfg.Journal.Enabled {
		store, err := b.runStoreFn(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("初始化流水账失败: %w", err)
		}
		runs = store
		logger.Infof("✓ 同步流水账: %s", cfg.Journal.Path)
	}

	// 盯盘清单是可选增强，文件有问题只降级不拦启动。
	var watch *watchlist.Registry
	if path := strings.TrimSpace(cfg.Watchlist.Path); path != "" {
		reg, err := b.watchlistFn(path)
		if err != nil {
			logger.Warnf("盯盘清单不可用（%v），相关功能停用", err)
		} else {
			watch = reg
			logger.Infof("✓ 盯盘清单: %s（%d 组）", path, len(reg.Snapshot().Groups))
		}
	}

	// runs 为 nil 时不能直接塞进接口字段，否则接口值非 nil。
	var recorder manager.RunRecorder
	if runs != nil {
		recorder = runs
	}
	mgr, err := manager.NewManager(manager.Config{
		DataRoot:  cfg.Data.Root,
		Interval:  cfg.Binance.Interval,
		StartDate: cfg.Binance.StartTime(),
		Spread:    cfg.Binance.Spread,
		Workers:   cfg.Sync.Workers,
		Source:    source,
		Journal:   recorder,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化同步管理器失败: %w", err)
	}
	logger.Infof("✓ 行情归档目录: %s (interval=%s)", cfg.Data.Root, cfg.Binance.Interval)

	var server *datahttp.Server
	if cfg.Server.Enabled {
		var lister datahttp.RunLister
		if runs != nil {
			lister = runs
		}
		srv, err := b.serverFn(datahttp.ServerConfig{
			Addr:      cfg.App.HTTPAddr,
			Manager:   mgr,
			Runs:      lister,
			Watchlist: watch,
			ChartMA:   cfg.Server.ChartMA,
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 data HTTP 服务失败: %w", err)
		}
		server = srv
		logger.Infof("✓ Data HTTP 服务监听 %s", srv.Addr())
	}

	app := &App{
		cfg:    cfg,
		mgr:    mgr,
		runs:   runs,
		watch:  watch,
		server: server,
	}
	app.Summary = buildStartupSummary(cfg, watch)
	return app, nil
}
