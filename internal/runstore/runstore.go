// Package runstore 用 Gorm + SQLite 持久化同步流水账，供排障和
// HTTP 查询使用。
package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Run 是一次同步操作的流水记录。
type Run struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Symbols   []string       `json:"symbols"`
	Details   map[string]any `json:"details,omitempty"`
	Rows      int            `json:"rows"`
	Duration  time.Duration  `json:"duration"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
}

type runModel struct {
	ID         string         `gorm:"column:id;primaryKey"`
	Kind       string         `gorm:"column:kind;index"`
	Symbols    datatypes.JSON `gorm:"column:symbols"`
	Details    datatypes.JSON `gorm:"column:details"`
	Rows       int            `gorm:"column:rows"`
	DurationMs int64          `gorm:"column:duration_ms"`
	Error      string         `gorm:"column:error"`
	StartedAt  time.Time      `gorm:"column:started_at;index"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
}

func (runModel) TableName() string { return "sync_runs" }

// Store 是流水账的 SQLite 存储。
type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）流水账数据库并完成建表。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("runstore: 流水账路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：给 HTTP 并发读留一点余量，同时压低锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AppendRun 追加一条流水；ID 和 StartedAt 缺省时自动补齐。
func (s *Store) AppendRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("runstore 未初始化")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	symbols, err := json.Marshal(run.Symbols)
	if err != nil {
		return fmt.Errorf("marshal symbols: %w", err)
	}
	var details datatypes.JSON
	if len(run.Details) > 0 {
		raw, err := json.Marshal(run.Details)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		details = raw
	}
	model := runModel{
		ID:         run.ID,
		Kind:       run.Kind,
		Symbols:    symbols,
		Details:    details,
		Rows:       run.Rows,
		DurationMs: run.Duration.Milliseconds(),
		Error:      run.Error,
		StartedAt:  run.StartedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListRuns 按开始时间倒序返回流水。symbol 非空时只保留涉及该交易
// 对的记录（symbols 列是 JSON 数组，用 gjson 过滤）。
func (s *Store) ListRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("runstore 未初始化")
	}
	if limit <= 0 {
		limit = 50
	}
	query := s.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if symbol == "" {
		query = query.Limit(limit)
	}
	var models []runModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, limit)
	for _, m := range models {
		if symbol != "" && !symbolsContain(m.Symbols, symbol) {
			continue
		}
		out = append(out, toRun(m))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func symbolsContain(raw datatypes.JSON, symbol string) bool {
	found := false
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		if strings.EqualFold(v.String(), symbol) {
			found = true
			return false
		}
		return true
	})
	return found
}

func toRun(m runModel) Run {
	run := Run{
		ID:        m.ID,
		Kind:      m.Kind,
		Rows:      m.Rows,
		Duration:  time.Duration(m.DurationMs) * time.Millisecond,
		Error:     m.Error,
		StartedAt: m.StartedAt,
	}
	if len(m.Symbols) > 0 {
		_ = json.Unmarshal(m.Symbols, &run.Symbols)
	}
	if len(m.Details) > 0 {
		_ = json.Unmarshal(m.Details, &run.Details)
	}
	return run
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
