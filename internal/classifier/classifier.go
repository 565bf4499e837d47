// Package classifier maps raw symbol strings to asset classes.
package classifier

import (
	"regexp"
	"strings"

	"ohlcvhub/internal/model"
)

// Quote assets that make any BASE+QUOTE string a crypto pair. Longer codes
// come first so FDUSD is not read as ...USD.
var pairQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// Fiat quotes only count as crypto when the base is a known coin, otherwise
// EURUSD would never reach the forex rule.
var fiatQuotes = []string{"USD", "EUR"}

var knownCoins = setOf(
	"BTC", "ETH", "BNB", "SOL", "XRP", "ADA", "DOGE", "DOT", "AVAX", "LTC", "LINK",
	"MATIC", "POL", "TRX", "SHIB", "BCH", "XLM", "ATOM", "UNI", "ETC", "FIL", "NEAR",
	"APT", "ARB", "OP", "SUI", "TON", "PEPE", "USDT", "USDC",
)

var currencies = setOf(
	"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "CAD", "NZD", "CNY", "CNH", "HKD", "SGD",
	"SEK", "NOK", "DKK", "PLN", "CZK", "HUF", "TRY", "ZAR", "MXN", "BRL", "INR", "KRW",
	"TWD", "THB", "IDR", "MYR", "PHP", "ILS", "RUB",
)

var (
	baseRe     = regexp.MustCompile(`^[A-Z0-9]{2,}$`)
	tickerRe   = regexp.MustCompile(`^[A-Z0-9]{1,7}$`)
	suffixRe   = regexp.MustCompile(`^[A-Z]{1,3}$`)
	usEquityRe = regexp.MustCompile(`^(\^[A-Z0-9]+|[A-Z]{1,5})$`)
)

type rule struct {
	class model.AssetClass
	match func(string) bool
}

// Order matters: first match wins.
var rules = []rule{
	{model.Crypto, isCrypto},
	{model.IntlEquity, isIntlEquity},
	{model.Forex, isForex},
	{model.USEquity, usEquityRe.MatchString},
}

// Classify returns the asset class of symbol. Anything unrecognised is
// treated as a US equity.
func Classify(symbol string) model.AssetClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, r := range rules {
		if r.match(s) {
			return r.class
		}
	}
	return model.USEquity
}

// Normalize returns the provider-facing form of symbol for class.
func Normalize(symbol string, class model.AssetClass) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch class {
	case model.Crypto:
		return compact(s)
	case model.Forex:
		return strings.TrimSuffix(s, "=X")
	default:
		return s
	}
}

// SplitPair splits a crypto pair such as BTCUSDT or BTC/USDT into base and quote.
func SplitPair(symbol string) (base, quote string, ok bool) {
	s := compact(strings.ToUpper(strings.TrimSpace(symbol)))
	for _, q := range pairQuotes {
		if b, found := strings.CutSuffix(s, q); found && baseRe.MatchString(b) {
			return b, q, true
		}
	}
	for _, q := range fiatQuotes {
		if b, found := strings.CutSuffix(s, q); found && knownCoins[b] {
			return b, q, true
		}
	}
	return "", "", false
}

func isCrypto(s string) bool {
	if strings.Contains(s, ".") || strings.HasPrefix(s, "^") {
		return false
	}
	_, _, ok := SplitPair(s)
	return ok
}

func isIntlEquity(s string) bool {
	i := strings.LastIndex(s, ".")
	if i <= 0 {
		return false
	}
	return tickerRe.MatchString(s[:i]) && suffixRe.MatchString(s[i+1:])
}

func isForex(s string) bool {
	s = strings.TrimSuffix(s, "=X")
	if len(s) != 6 {
		return false
	}
	return currencies[s[:3]] && currencies[s[3:]]
}

func compact(s string) string {
	return strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
}

func setOf(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
