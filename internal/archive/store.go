// Package archive 管理每个交易对一份的压缩报价归档：
// <root>/crypto/binance/daily/<symbol小写>_quote.zip，内含唯一一个
// <symbol小写>.csv 条目。
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	marketSubdir  = "crypto/binance/daily"
	archiveSuffix = "_quote.zip"
)

// ErrUnreadable 表示归档打不开或没有任何条目。
var ErrUnreadable = errors.New("archive unreadable")

// FileName 返回交易对对应的归档文件名。
func FileName(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + archiveSuffix
}

// EntryName 返回归档内 CSV 条目名。
func EntryName(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + ".csv"
}

// SymbolFromFile 从归档文件名反推交易对（大写）；不匹配时返回空串。
func SymbolFromFile(name string) string {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, archiveSuffix) {
		return ""
	}
	sym := strings.TrimSuffix(base, archiveSuffix)
	if sym == "" {
		return ""
	}
	return strings.ToUpper(sym)
}

// IsArchiveFile 判断路径是否符合归档命名约定。
func IsArchiveFile(name string) bool {
	return SymbolFromFile(name) != ""
}

// Store 定位并读写某个数据根目录下的全部归档。
type Store struct {
	dir string
}

// NewStore 以数据根目录构造 Store，归档集中在 crypto/binance/daily 子目录。
func NewStore(dataRoot string) *Store {
	return &Store{dir: filepath.Join(strings.TrimSpace(dataRoot), filepath.FromSlash(marketSubdir))}
}

// Dir 返回归档目录。
func (s *Store) Dir() string { return s.dir }

// Path 返回交易对归档的确定性路径。
func (s *Store) Path(symbol string) string {
	return filepath.Join(s.dir, FileName(symbol))
}

// Exists 只检查归档文件是否存在，不校验内容。
func (s *Store) Exists(symbol string) bool {
	info, err := os.Stat(s.Path(symbol))
	return err == nil && !info.IsDir()
}

// Symbols 枚举目录下已有归档的交易对，升序返回大写符号。
func (s *Store) Symbols() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+archiveSuffix))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if sym := SymbolFromFile(m); sym != "" {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Write 将行集合写入交易对归档并返回最终路径。空行集是显式 no-op，
// 既不创建也不覆盖任何文件。
func (s *Store) Write(symbol string, rows []string) (string, error) {
	if len(rows) == 0 {
		return "", nil
	}
	path := s.Path(symbol)
	if err := WriteArchive(path, EntryName(symbol), rows); err != nil {
		return "", err
	}
	return path, nil
}

// ReadRows 读取交易对归档的全部非空行。
func (s *Store) ReadRows(symbol string) ([]string, error) {
	_, rows, err := ReadArchive(s.Path(symbol))
	return rows, err
}

// Delete 移除交易对归档；文件不存在时返回 os.ErrNotExist 系错误。
func (s *Store) Delete(symbol string) error {
	return os.Remove(s.Path(symbol))
}

// WriteArchive 原子写入单条目 zip：先写同目录临时文件，成功后 rename
// 到目标路径，读者不会观察到半写状态。
func WriteArchive(path, entryName string, rows []string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("stage archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	entry, err := zw.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", entryName, err)
	}
	if _, err = io.WriteString(entry, strings.Join(rows, "\n")); err != nil {
		return fmt.Errorf("write entry %s: %w", entryName, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close staged archive: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("publish archive: %w", err)
	}
	return nil
}

// ReadArchive 打开归档并返回首个条目的条目名与非空行。零条目归档
// 归为 ErrUnreadable。
func ReadArchive(path string) (string, []string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer zr.Close()
	if len(zr.File) == 0 {
		return "", nil, fmt.Errorf("%w: no entries in %s", ErrUnreadable, filepath.Base(path))
	}
	entry := zr.File[0]
	rc, err := entry.Open()
	if err != nil {
		return "", nil, fmt.Errorf("%w: open entry %s: %v", ErrUnreadable, entry.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read entry %s: %v", ErrUnreadable, entry.Name, err)
	}
	return entry.Name, splitRows(string(raw)), nil
}

func splitRows(content string) []string {
	lines := strings.Split(content, "\n")
	rows := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}
