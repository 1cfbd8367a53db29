package symbol

import (
	"strings"
)

// Symbol 拆出的交易对两腿。
type Symbol struct {
	Base  string
	Quote string
}

// Slash 返回 BASE/QUOTE 展示形式。
func (s Symbol) Slash() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Exchange 返回交易所形式（直接拼接，如 BTCUSDT）。
func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

// Parse 接受 BTC/USDT、btcusdt、BTCUSDT:PERP 等写法，按常见计价
// 币后缀拆解；认不出来时返回零值。
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	quoteCurrencies := []string{"USDT", "BUSD", "USDC", "TUSD", "BTC", "ETH", "BNB"}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize 归一到交易所形式。拆不出两腿时退化为去空白、去斜杠、
// 转大写，保证任何非空输入都有稳定的归一结果。
func Normalize(s string) string {
	if norm := Parse(s).Exchange(); norm != "" {
		return norm
	}
	raw := strings.ToUpper(strings.TrimSpace(s))
	return strings.ReplaceAll(raw, "/", "")
}

// NormalizeList 逐个归一并去重，保持首次出现的顺序。
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// IsValid 报告字符串能否拆成 base/quote 两腿。
func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}
