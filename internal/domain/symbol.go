package domain

import (
	"strings"
)

var symbolSeparators = strings.NewReplacer("/", "", "_", "", "-", "", " ", "")

// NormalizeSymbol converts user input such as "eth/usdt" or "ETH_USDT" to the
// exchange pair form "ETHUSDT".
func NormalizeSymbol(symbol string) string {
	return symbolSeparators.Replace(strings.ToUpper(strings.TrimSpace(symbol)))
}

// StreamName is the ticker stream name for a pair, e.g. "ethusdt@ticker".
func StreamName(symbol string) string {
	return strings.ToLower(NormalizeSymbol(symbol)) + "@ticker"
}

// StreamURL joins a streaming endpoint base and the ticker stream of symbol.
func StreamURL(endpoint, symbol string) string {
	return strings.TrimRight(endpoint, "/") + "/ws/" + StreamName(symbol)
}

// AllowList is the fixed set of symbols a client will service.
type AllowList struct {
	symbols []string
	index   map[string]struct{}
}

func NewAllowList(symbols []string) *AllowList {
	a := &AllowList{index: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		n := NormalizeSymbol(s)
		if n == "" {
			continue
		}
		if _, ok := a.index[n]; ok {
			continue
		}
		a.index[n] = struct{}{}
		a.symbols = append(a.symbols, n)
	}
	return a
}

// Validate returns the normalized symbol, or an *InvalidSymbolError when the
// symbol is not allowed.
func (a *AllowList) Validate(symbol string) (string, error) {
	n := NormalizeSymbol(symbol)
	if _, ok := a.index[n]; !ok {
		return "", &InvalidSymbolError{Symbol: symbol}
	}
	return n, nil
}

func (a *AllowList) Contains(symbol string) bool {
	_, ok := a.index[NormalizeSymbol(symbol)]
	return ok
}

func (a *AllowList) Symbols() []string {
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}
