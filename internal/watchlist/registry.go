// Package watchlist 管理盯盘清单：按组声明要保持同步的交易对，
// 文件变更时热加载，加载失败保留旧快照。
package watchlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"leandata/internal/logger"
	symbolpkg "leandata/internal/pkg/symbol"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Group 描述一组盯盘交易对。Paused 的组保留在清单里但不参与自动同步。
type Group struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	Description string   `mapstructure:"description" yaml:"description"`
	Symbols     []string `mapstructure:"symbols" yaml:"symbols"`
	Paused      bool     `mapstructure:"paused" yaml:"paused"`
}

// FileConfig 映射盯盘清单文件。
type FileConfig struct {
	Version int              `mapstructure:"version" yaml:"version"`
	Groups  map[string]Group `mapstructure:"groups" yaml:"groups"`
}

// Snapshot 公开的清单快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Groups   map[string]Group
}

// ChangeListener 在清单重载成功后触发。
type ChangeListener func(Snapshot)

// Registry 管理盯盘清单文件。
type Registry struct {
	path   string
	v      *viper.Viper
	schema *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// 清单文件的固定结构约束，加载前先过一遍 schema。
var watchlistSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"groups"},
	"properties": map[string]interface{}{
		"version": map[string]interface{}{"type": "integer", "minimum": 1},
		"groups": map[string]interface{}{
			"type":          "object",
			"minProperties": 1,
			"additionalProperties": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"symbols"},
				"properties": map[string]interface{}{
					"name":        map[string]interface{}{"type": "string"},
					"description": map[string]interface{}{"type": "string"},
					"paused":      map[string]interface{}{"type": "boolean"},
					"symbols": map[string]interface{}{
						"type":     "array",
						"minItems": 1,
						"items":    map[string]interface{}{"type": "string", "minLength": 1},
					},
				},
			},
		},
	},
}

// NewRegistry 读取清单文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("watchlist registry requires path")
	}
	schema, err := compileSchema(watchlistSchema)
	if err != nil {
		return nil, fmt.Errorf("compile watchlist schema failed: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read watchlist failed: %w", err)
	}
	r := &Registry{path: path, v: v, schema: schema}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("watchlist reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Path 返回清单文件路径。
func (r *Registry) Path() string { return r.path }

// Snapshot 返回当前清单快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Group 返回指定名称的组。
func (r *Registry) Group(name string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.snapshot.Groups[strings.TrimSpace(name)]
	return g, ok
}

// ActiveSymbols 返回所有未暂停组的交易对并集，去重后升序。
func (r *Registry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []string
	for _, g := range r.snapshot.Groups {
		if g.Paused {
			continue
		}
		all = append(all, g.Symbols...)
	}
	out := symbolpkg.NormalizeList(all)
	sort.Strings(out)
	return out
}

// OnChange 注册重载回调；回调在独立 goroutine 内执行，panic 不外泄。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readWatchlistFile(r.path, r.schema)
	if err != nil {
		return err
	}
	groups := make(map[string]Group, len(cfg.Groups))
	for name, g := range cfg.Groups {
		norm := normalizeGroup(name, g)
		if len(norm.Symbols) == 0 {
			logger.Warnf("watchlist group %s 没有有效交易对，忽略", norm.Name)
			continue
		}
		groups[norm.Name] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Groups:   groups,
	}
	r.mu.Unlock()
	logger.Infof("watchlist loaded %d groups from %s", len(groups), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("watchlist listener")
			cb(snap)
		}(fn)
	}
}

func normalizeGroup(name string, g Group) Group {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		g.Name = strings.TrimSpace(name)
	}
	g.Description = strings.TrimSpace(g.Description)
	g.Symbols = symbolpkg.NormalizeList(g.Symbols)
	return g
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Groups:   make(map[string]Group, len(src.Groups)),
	}
	for name, g := range src.Groups {
		dst.Groups[name] = g
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

// readWatchlistFile 严格解码清单：未知字段报错，结构先过 schema 再映射。
func readWatchlistFile(path string, schema *jsonschema.Schema) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read watchlist failed: %w", err)
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return FileConfig{}, fmt.Errorf("parse watchlist failed: %w", err)
	}
	if err := validateDoc(schema, doc); err != nil {
		return FileConfig{}, fmt.Errorf("watchlist schema: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse watchlist failed: %w", err)
	}
	return cfg, nil
}

// validateDoc 把 yaml 解码结果经 JSON 规整后交给 schema 校验，
// 避免 yaml 整型与 json 浮点的类型差异。
func validateDoc(schema *jsonschema.Schema, doc map[string]interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return err
	}
	return schema.Validate(normalized)
}
