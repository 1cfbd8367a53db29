package quote

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 两种在盘行编码：
//   legacy:  epochMs,bidO,bidH,bidL,bidC,askO,askH,askL,askC
//   current: 20060102 15:04,bidO,bidH,bidL,bidC,0,askO,askH,askL,askC,0
const (
	// DateKeyLayout 当前编码时间字段的固定格式（UTC，无时区标记）。
	DateKeyLayout = "20060102 15:04"

	legacyFieldCount  = 9
	currentFieldCount = 11
)

// IsLegacyRow 通过第一个字段是否为纯数字判断行是否为旧编码。
func IsLegacyRow(row string) bool {
	field, _, _ := strings.Cut(strings.TrimSpace(row), ",")
	return isAllDigits(field)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// EncodeCurrentRow 以当前编码输出一行，报价字段取最短可往返的十进制表示。
func EncodeCurrentRow(r Record) string {
	fields := []string{
		r.Time.UTC().Format(DateKeyLayout),
		formatPrice(r.Bid.Open),
		formatPrice(r.Bid.High),
		formatPrice(r.Bid.Low),
		formatPrice(r.Bid.Close),
		"0",
		formatPrice(r.Ask.Open),
		formatPrice(r.Ask.High),
		formatPrice(r.Ask.Low),
		formatPrice(r.Ask.Close),
		"0",
	}
	return strings.Join(fields, ",")
}

// EncodeCurrentRows 批量编码。
func EncodeCurrentRows(records []Record) []string {
	if len(records) == 0 {
		return nil
	}
	rows := make([]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, EncodeCurrentRow(r))
	}
	return rows
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseRow 解析任一编码的行为 Record。
func ParseRow(row string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(row), ",")
	if isAllDigits(fields[0]) {
		return parseLegacyFields(fields)
	}
	return parseCurrentFields(fields)
}

func parseLegacyFields(fields []string) (Record, error) {
	if len(fields) < legacyFieldCount {
		return Record{}, fmt.Errorf("legacy row needs %d fields, got %d", legacyFieldCount, len(fields))
	}
	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("legacy timestamp %q: %w", fields[0], err)
	}
	bid, err := parseOHLC(fields[1:5])
	if err != nil {
		return Record{}, fmt.Errorf("legacy bid: %w", err)
	}
	ask, err := parseOHLC(fields[5:9])
	if err != nil {
		return Record{}, fmt.Errorf("legacy ask: %w", err)
	}
	return Record{Time: time.UnixMilli(ms).UTC().Truncate(time.Minute), Bid: bid, Ask: ask}, nil
}

func parseCurrentFields(fields []string) (Record, error) {
	if len(fields) < currentFieldCount {
		return Record{}, fmt.Errorf("current row needs %d fields, got %d", currentFieldCount, len(fields))
	}
	ts, err := time.Parse(DateKeyLayout, fields[0])
	if err != nil {
		return Record{}, fmt.Errorf("date key %q: %w", fields[0], err)
	}
	bid, err := parseOHLC(fields[1:5])
	if err != nil {
		return Record{}, fmt.Errorf("current bid: %w", err)
	}
	ask, err := parseOHLC(fields[6:10])
	if err != nil {
		return Record{}, fmt.Errorf("current ask: %w", err)
	}
	return Record{Time: ts.UTC(), Bid: bid, Ask: ask}, nil
}

func parseOHLC(fields []string) (OHLC, error) {
	vals := [4]float64{}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return OHLC{}, fmt.Errorf("field %q: %w", f, err)
		}
		vals[i] = v
	}
	return OHLC{Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}, nil
}

// RowOpenTime 只解析行的时间字段，供状态扫描使用，不触碰报价字段。
func RowOpenTime(row string) (time.Time, error) {
	field, _, _ := strings.Cut(strings.TrimSpace(row), ",")
	if isAllDigits(field) {
		ms, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp %q: %w", field, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(DateKeyLayout, field)
	if err != nil {
		return time.Time{}, fmt.Errorf("date key %q: %w", field, err)
	}
	return ts.UTC(), nil
}

// ConvertLegacyRow 将旧编码逐字段原样搬到当前编码：时间戳换成日期键，
// 报价字符串不重新解析，插入 bidSize/askSize 两个 0 字段。
func ConvertLegacyRow(row string) (string, error) {
	fields := strings.Split(strings.TrimSpace(row), ",")
	if len(fields) < legacyFieldCount {
		return "", fmt.Errorf("legacy row needs %d fields, got %d", legacyFieldCount, len(fields))
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("legacy timestamp %q: %w", fields[0], err)
	}
	out := make([]string, 0, currentFieldCount)
	out = append(out, time.UnixMilli(ms).UTC().Format(DateKeyLayout))
	out = append(out, fields[1:5]...)
	out = append(out, "0")
	out = append(out, fields[5:9]...)
	out = append(out, "0")
	return strings.Join(out, ","), nil
}
