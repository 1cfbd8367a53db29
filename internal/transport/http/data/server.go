package datahttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leandata/internal/logger"
	"leandata/internal/manager"
	"leandata/internal/watchlist"

	"github.com/gin-gonic/gin"
)

// Server 提供 /api/data HTTP 服务：归档状态查询、同步触发与图表。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 data HTTP 服务依赖。
type ServerConfig struct {
	Addr      string
	Manager   *manager.Manager
	Runs      RunLister
	Watchlist *watchlist.Registry
	ChartMA   []int
}

// NewServer 构建 data HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("data http server requires manager")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	dataRouter := NewRouter(cfg.Manager, cfg.Runs, cfg.Watchlist, cfg.ChartMA)
	dataRouter.Register(router.Group("/api/data"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪人工触发的同步。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
