package datahttp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"leandata/internal/chart"
	"leandata/internal/logger"
	"leandata/internal/manager"
	"leandata/internal/runstore"
	"leandata/internal/watchlist"

	"github.com/gin-gonic/gin"
)

// RunLister 查询同步流水账，*runstore.Store 是默认实现。
type RunLister interface {
	ListRuns(ctx context.Context, symbol string, limit int) ([]runstore.Run, error)
}

// Router 暴露行情归档的查询与同步接口。
type Router struct {
	mgr     *manager.Manager
	runs    RunLister
	watch   *watchlist.Registry
	chartMA []int
}

// NewRouter 构造 data HTTP router。runs 与 watch 可为 nil，对应
// 接口返回 503。
func NewRouter(mgr *manager.Manager, runs RunLister, watch *watchlist.Registry, chartMA []int) *Router {
	return &Router{mgr: mgr, runs: runs, watch: watch, chartMA: chartMA}
}

// Register 将 /api/data 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/symbols", r.handleSymbols)
	group.GET("/symbols/:symbol", r.handleSymbolStatus)
	group.GET("/symbols/:symbol/series", r.handleSeries)
	group.GET("/symbols/:symbol/chart", r.handleChart)
	group.DELETE("/symbols/:symbol", r.handleDelete)
	group.POST("/check", r.handleCheck)
	group.POST("/download", r.handleDownload)
	group.POST("/update", r.handleUpdateAll)
	group.POST("/update/:symbol", r.handleUpdateOne)
	group.POST("/ensure", r.handleEnsure)
	group.GET("/runs", r.handleRuns)
	group.GET("/watchlist", r.handleWatchlist)
}

func (r *Router) handleStatus(c *gin.Context) {
	statuses, err := r.mgr.Statuses()
	if err != nil {
		logger.Errorf("[api] status list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": statuses, "count": len(statuses)})
}

func (r *Router) handleSymbols(c *gin.Context) {
	syms, err := r.mgr.ArchivedSymbols()
	if err != nil {
		logger.Errorf("[api] symbols list failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": syms, "count": len(syms)})
}

func (r *Router) handleSymbolStatus(c *gin.Context) {
	status := r.mgr.Status(c.Param("symbol"))
	c.JSON(http.StatusOK, status)
}

func (r *Router) handleSeries(c *gin.Context) {
	symbol := c.Param("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if limit < 0 {
		limit = 0
	}
	records, err := r.mgr.LoadSeries(symbol, limit)
	if err != nil {
		if errors.Is(err, manager.ErrSymbolNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] series failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  strings.ToUpper(strings.TrimSpace(symbol)),
		"count":   len(records),
		"records": toSeriesPoints(records),
	})
}

func (r *Router) handleChart(c *gin.Context) {
	symbol := c.Param("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "180"))
	if limit < 0 {
		limit = 0
	}
	ma := r.chartMA
	if raw := strings.TrimSpace(c.Query("ma")); raw != "" {
		ma = parseMAWindows(raw)
	}
	records, err := r.mgr.LoadSeries(symbol, limit)
	if err != nil {
		if errors.Is(err, manager.ErrSymbolNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] chart failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	opt := chart.Options{Symbol: strings.ToUpper(strings.TrimSpace(symbol)), Interval: "1d", MA: ma}
	if err := chart.RenderQuotePage(&buf, opt, records); err != nil {
		logger.Errorf("[api] chart render failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (r *Router) handleCheck(c *gin.Context) {
	req, ok := bindSyncRequest(c)
	if !ok {
		return
	}
	syms := r.resolveSymbols(req.Symbols)
	if len(syms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols 必填（或配置盯盘清单）"})
		return
	}
	c.JSON(http.StatusOK, r.mgr.Check(syms))
}

func (r *Router) handleDownload(c *gin.Context) {
	req, ok := bindSyncRequest(c)
	if !ok {
		return
	}
	syms := r.resolveSymbols(req.Symbols)
	if len(syms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols 必填（或配置盯盘清单）"})
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] download ip=%s symbols=%d", c.ClientIP(), len(syms))
	report, err := r.mgr.DownloadMissing(c.Request.Context(), syms, start, end)
	if err != nil {
		logger.Errorf("[api] download failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) handleUpdateAll(c *gin.Context) {
	req, ok := bindSyncRequest(c)
	if !ok {
		return
	}
	// symbols 为空时更新目录下全部归档，不走盯盘清单。
	logger.Infof("[api] update ip=%s symbols=%d", c.ClientIP(), len(req.Symbols))
	results, err := r.mgr.UpdateAll(c.Request.Context(), req.Symbols)
	if err != nil {
		logger.Errorf("[api] update failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	failed := 0
	added := 0
	for _, res := range results {
		added += res.AddedRows
		if res.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"added_rows": added,
		"failed":     failed,
	})
}

func (r *Router) handleUpdateOne(c *gin.Context) {
	symbol := c.Param("symbol")
	res, err := r.mgr.UpdateOne(c.Request.Context(), symbol)
	if err != nil {
		logger.Errorf("[api] update one failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (r *Router) handleEnsure(c *gin.Context) {
	req, ok := bindSyncRequest(c)
	if !ok {
		return
	}
	syms := r.resolveSymbols(req.Symbols)
	if len(syms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols 必填（或配置盯盘清单）"})
		return
	}
	logger.Infof("[api] ensure ip=%s symbols=%d", c.ClientIP(), len(syms))
	report, err := r.mgr.Ensure(c.Request.Context(), syms)
	if err != nil {
		logger.Errorf("[api] ensure failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (r *Router) handleDelete(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := r.mgr.Delete(c.Request.Context(), symbol); err != nil {
		if errors.Is(err, manager.ErrSymbolNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		logger.Errorf("[api] delete failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "symbol": strings.ToUpper(strings.TrimSpace(symbol))})
}

func (r *Router) handleRuns(c *gin.Context) {
	if r.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "流水账未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	symbol := strings.TrimSpace(c.Query("symbol"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	runs, err := r.runs.ListRuns(ctx, symbol, limit)
	if err != nil {
		logger.Errorf("[api] runs failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (r *Router) handleWatchlist(c *gin.Context) {
	if r.watch == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "盯盘清单未启用"})
		return
	}
	snap := r.watch.Snapshot()
	names := make([]string, 0, len(snap.Groups))
	for name := range snap.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, toWatchlistView(snap, names))
}

// bindSyncRequest 解析可选请求体：空 body 等价于全默认参数。
func bindSyncRequest(c *gin.Context) (syncRequest, bool) {
	var req syncRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return req, false
		}
	}
	return req, true
}

func (r *Router) resolveSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 && r.watch != nil {
		out = r.watch.ActiveSymbols()
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func parseMAWindows(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
