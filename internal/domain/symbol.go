package domain

import "strings"

// quoteSuffixes are recognised by strip_quote_suffix, checked longest-first
// so a separator-joined suffix ("-USDT") is preferred over its bare tail
// ("USDT") when both would match.
var quoteSuffixes = []string{"-USDT", "-USDC", "-USD", "_USDT", "_USDC", "_USD", "USDT", "USDC", "USD"}

// perpSuffixes are recognised by strip_perp_suffix, applied after
// separators have already been removed. Note ".P" (e.g. dYdX-style
// "BTC-USD.P") keeps its dot since separatorReplacer never touches ".",
// which avoids accidentally truncating legitimate symbols that happen to
// end in "P" (e.g. "OP").
var perpSuffixes = []string{"PERP", "SWAP", ".P"}

var separatorReplacer = strings.NewReplacer("-", "", "_", "", "/", "", ":", "")

// BaseSymbol consolidates the symbol-normalisation logic design note §9
// calls out as scattered through the original system into a single function
// with a defined grammar: strip_quote_suffix → strip_separators →
// strip_perp_suffix, all uppercase. It must be used everywhere a raw
// exchange symbol needs to be compared against the canonical Ticker symbol.
func BaseSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	for _, suf := range quoteSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}

	s = separatorReplacer.Replace(s)

	for _, suf := range perpSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}

	// A second quote-suffix pass catches the case where the perp suffix was
	// glued directly onto the quote currency (e.g. "BTC-USD.P": the ".P"
	// only becomes visible to strip_perp_suffix after separators are gone,
	// which leaves "USD" exposed afterwards).
	for _, suf := range quoteSuffixes {
		if strings.HasSuffix(s, suf) && len(s) > len(suf) {
			s = strings.TrimSuffix(s, suf)
			break
		}
	}

	return s
}
