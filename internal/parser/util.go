package parser

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Currency amounts: $, C$, CAD$ or CAD $ followed by an amount with
// optional thousands separators.
var moneyPattern = regexp.MustCompile(
	`(?i)(C\$|CAD\s*\$|\$)\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{2})?|[0-9]+(?:\.[0-9]{2})?)`,
)

var punctuationFolder = strings.NewReplacer(
	"\u2010", "-", // hyphen
	"\u2011", "-", // non-breaking hyphen
	"\u2012", "-", // figure dash
	"\u2013", "-", // en dash
	"\u2014", "-", // em dash
	"\u2212", "-", // minus sign
	"\u2044", "/", // fraction slash
	"\u00a0", " ",
	"\u2009", " ",
	"\u202f", " ",
	"\r\n", "\n",
	"\r", "\n",
)

// normalizeText folds Unicode punctuation variants to ASCII so the
// patterns only need to handle one spelling.
func normalizeText(s string) string {
	return punctuationFolder.Replace(norm.NFKC.String(s))
}

// splitLines normalizes text and splits it into trimmed, non-empty lines.
// Item and price indices refer to this slice, so blank lines never count
// against a proximity window.
func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(normalizeText(text), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// moneyMatch is one currency amount found in a line.
type moneyMatch struct {
	Start, End int
	Amount     float64
	Currency   string
}

// findMoney returns every currency amount in the line, left to right.
func findMoney(line string) []moneyMatch {
	var out []moneyMatch
	for _, loc := range moneyPattern.FindAllStringSubmatchIndex(line, -1) {
		amount, err := parseAmount(line[loc[4]:loc[5]])
		if err != nil {
			continue
		}
		out = append(out, moneyMatch{
			Start:    loc[0],
			End:      loc[1],
			Amount:   amount,
			Currency: normalizeCurrency(line[loc[2]:loc[3]]),
		})
	}
	return out
}

// parseAmount converts a string like "1,234.56" or "$1,234.56" to a float64.
func parseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseFloat(s, 64)
}

// normalizeCurrency maps every CAD spelling to "C$".
func normalizeCurrency(symbol string) string {
	if strings.Contains(strings.ToUpper(symbol), "C") {
		return "C$"
	}
	return "$"
}

// DetectCurrency returns the symbol of the first amount in the text.
func DetectCurrency(text string) (string, bool) {
	for _, line := range splitLines(text) {
		if m := findMoney(line); len(m) > 0 {
			return m[0].Currency, true
		}
	}
	return "", false
}

// neighbours yields line indices ordered by distance from idx, trying the
// following line before the preceding one at each step.
func neighbours(idx, n, before, after int) []int {
	out := make([]int, 0, before+after+1)
	if idx >= 0 && idx < n {
		out = append(out, idx)
	}
	reach := before
	if after > reach {
		reach = after
	}
	for d := 1; d <= reach; d++ {
		if d <= after && idx+d < n {
			out = append(out, idx+d)
		}
		if d <= before && idx-d >= 0 {
			out = append(out, idx-d)
		}
	}
	return out
}

// formatOz renders an ounce value without trailing zeros.
func formatOz(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func atoiInRange(s string, lo, hi int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}
