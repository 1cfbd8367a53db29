package archive

import (
	"fmt"
	"os"
	"strings"

	"leandata/internal/quote"
)

// State 是归档体检的内部三态结论。
type State int

const (
	// StateAbsent 归档文件不存在。
	StateAbsent State = iota
	// StateAvailable 归档存在且首尾行可解析。
	StateAvailable
	// StateCorrupt 归档存在但打不开、为空或首尾行解析失败。
	StateCorrupt
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateAvailable:
		return "available"
	case StateCorrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SymbolStatus 是对外暴露的归档状态视图。不可用时只保留
// Symbol 与 Available 两个字段，其余为零值。
type SymbolStatus struct {
	Symbol       string `json:"symbol"`
	Available    bool   `json:"available"`
	FilePath     string `json:"file_path,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
	RowCount     int    `json:"row_count,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Inspection 保留三态结论与损坏原因，日志和诊断用；对外序列化
// 前经 Collapse 折叠成二态。
type Inspection struct {
	Symbol string
	State  State
	Reason string
	Status SymbolStatus
}

// Collapse 将三态折叠为二态视图：Corrupt 对外等价于不可用。
func (i Inspection) Collapse() SymbolStatus {
	if i.State == StateAvailable {
		return i.Status
	}
	return SymbolStatus{Symbol: i.Symbol, Available: false}
}

// Inspect 对归档做轻量体检：统计非空行数并从首尾行取日期区间，
// 不反序列化整个序列。任何一步失败都归为 StateCorrupt 并记下原因。
func (s *Store) Inspect(symbol string) Inspection {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	path := s.Path(sym)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Inspection{Symbol: sym, State: StateAbsent}
	}
	if err != nil {
		return corrupt(sym, fmt.Sprintf("stat: %v", err))
	}

	_, rows, err := ReadArchive(path)
	if err != nil {
		return corrupt(sym, err.Error())
	}
	if len(rows) == 0 {
		return corrupt(sym, "archive entry is empty")
	}

	start, err := quote.RowOpenTime(rows[0])
	if err != nil {
		return corrupt(sym, fmt.Sprintf("first row: %v", err))
	}
	end, err := quote.RowOpenTime(rows[len(rows)-1])
	if err != nil {
		return corrupt(sym, fmt.Sprintf("last row: %v", err))
	}

	return Inspection{
		Symbol: sym,
		State:  StateAvailable,
		Status: SymbolStatus{
			Symbol:       sym,
			Available:    true,
			FilePath:     path,
			FileSize:     info.Size(),
			RowCount:     len(rows),
			StartDate:    start.Format("2006-01-02"),
			EndDate:      end.Format("2006-01-02"),
			LastModified: info.ModTime().UTC().Format("2006-01-02 15:04"),
		},
	}
}

func corrupt(symbol, reason string) Inspection {
	return Inspection{Symbol: symbol, State: StateCorrupt, Reason: reason}
}
