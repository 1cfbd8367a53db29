// Package migrate 把旧编码（epoch 毫秒行）的报价归档升级为当前
// 日期键编码：单文件转换或整目录批量扫描，重写前留 .bak 备份。
package migrate

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"leandata/internal/archive"
	"leandata/internal/logger"
	"leandata/internal/quote"
)

// Converter 执行归档编码升级。backup 控制重写前是否保留原件副本。
type Converter struct {
	backup bool
}

func NewConverter(backup bool) *Converter {
	return &Converter{backup: backup}
}

// Result 是单个归档的转换结论。
type Result struct {
	File        string `json:"file"`
	Symbol      string `json:"symbol,omitempty"`
	Converted   bool   `json:"converted"`
	Rows        int    `json:"rows"`
	SkippedRows int    `json:"skipped_rows,omitempty"`
	BackupPath  string `json:"backup_path,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ConvertArchive 转换单个归档。首行已是当前编码时原样跳过，重复
// 执行是 no-op；无法转换的行跳过并告警，原 zip 条目名保持不变。
func (c *Converter) ConvertArchive(path string) (Result, error) {
	res := Result{File: path, Symbol: archive.SymbolFromFile(path)}
	entryName, rows, err := archive.ReadArchive(path)
	if err != nil {
		return res, err
	}
	res.Rows = len(rows)
	if len(rows) == 0 || !quote.IsLegacyRow(rows[0]) {
		logger.Infof("[migrate] %s 已是当前编码，跳过", filepath.Base(path))
		return res, nil
	}

	converted := make([]string, 0, len(rows))
	for i, row := range rows {
		out, convErr := quote.ConvertLegacyRow(row)
		if convErr != nil {
			logger.Warnf("[migrate] %s 第 %d 行无法转换，跳过: %v", filepath.Base(path), i+1, convErr)
			res.SkippedRows++
			continue
		}
		converted = append(converted, out)
	}
	if len(converted) == 0 {
		return res, fmt.Errorf("%s: 没有任何行能转换", filepath.Base(path))
	}

	if c.backup {
		backupPath := path + ".bak"
		if err := copyFile(path, backupPath); err != nil {
			return res, fmt.Errorf("backup %s: %w", filepath.Base(path), err)
		}
		res.BackupPath = backupPath
	}
	if err := archive.WriteArchive(path, entryName, converted); err != nil {
		return res, err
	}
	res.Converted = true
	res.Rows = len(converted)
	logger.Infof("[migrate] %s 转换完成：%d 行，跳过 %d 行", filepath.Base(path), len(converted), res.SkippedRows)
	return res, nil
}

// ConvertDir 递归扫描 root 下所有报价归档并逐个转换；单个文件失败
// 只记入结果，不中断整批。
func (c *Converter) ConvertDir(root string) ([]Result, error) {
	var results []Result
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !archive.IsArchiveFile(path) {
			return nil
		}
		res, convErr := c.ConvertArchive(path)
		if convErr != nil {
			res.Error = convErr.Error()
			logger.Warnf("[migrate] %s 转换失败: %v", filepath.Base(path), convErr)
		}
		results = append(results, res)
		return nil
	})
	if err != nil {
		return results, err
	}

	converted := 0
	for _, r := range results {
		if r.Converted {
			converted++
		}
	}
	logger.Infof("[migrate] 扫描完成：共 %d 个归档，转换 %d 个", len(results), converted)
	return results, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
