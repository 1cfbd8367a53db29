package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并合并配置：先按 include 声明深度优先展开，再逐个合并，
// 后出现的文件覆盖先出现的；未显式设置的字段补默认值，最后整体校验。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	chain := newIncludeChain()
	if err := chain.expand(path); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range chain.merged {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	setKeys := make(keySet)
	markSetKeys("", v.AllSettings(), setKeys)
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	one := viper.New()
	one.SetConfigFile(path)
	if err := one.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(one.AllSettings())
}

// includeChain 把 include 声明展开成自底向上的合并顺序：被包含的文件
// 排在包含者前面，同一文件只展开一次。
type includeChain struct {
	merged  []string
	done    map[string]bool
	opening map[string]bool // 递归栈，命中即成环
}

func newIncludeChain() *includeChain {
	return &includeChain{done: map[string]bool{}, opening: map[string]bool{}}
}

func (c *includeChain) expand(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	if c.opening[abs] {
		return fmt.Errorf("include cycle detected: %s", abs)
	}
	if c.done[abs] {
		return nil
	}
	c.opening[abs] = true
	defer delete(c.opening, abs)

	includes, err := readIncludeList(abs)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", abs, err)
	}
	dir := filepath.Dir(abs)
	for _, inc := range includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		if err := c.expand(inc); err != nil {
			return err
		}
	}
	c.done[abs] = true
	c.merged = append(c.merged, abs)
	return nil
}

func readIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.GetStringSlice("include"), nil
}

// markSetKeys 把显式出现过的配置键压成小写点分路径，供默认值回填时
// 区分「没写」和「写了零值」。
func markSetKeys(prefix string, node any, keys keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		if prefix != "" {
			keys.mark(prefix)
		}
		return
	}
	for k, child := range m {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		key := k
		if prefix != "" {
			key = prefix + "." + key
		}
		markSetKeys(key, child, keys)
	}
}
