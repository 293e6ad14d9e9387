package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// defaultPriceReach is how many lines either side of an item are searched.
const defaultPriceReach = 12

// Anchored-mode spans.
const (
	anchorSpan = 200
	amountSpan = 80
)

var (
	totalsLinePattern  = regexp.MustCompile(`(?i)\b(subtotal|shipping|tax|order number|order #)`)
	totalsBetween      = regexp.MustCompile(`(?i)(subtotal|shipping|tax|total)`)
	unitKeywordPattern = regexp.MustCompile(`(?i)\b(unit|each|ea|per)\b`)
	lineTotalPattern   = regexp.MustCompile(`(?i)\b(total price|line total|item total)\b`)
	totalWordPattern   = regexp.MustCompile(`(?i)\btotal\b`)
	priceWordPattern   = regexp.MustCompile(`(?i)\bprice\b`)
	priceKeywords      = regexp.MustCompile(`(?i)\b(price|unit price|each|ea|per|item total|line total|total price)\b`)
	qtyPrefixPattern   = regexp.MustCompile(`(?i)(\bx\s*\d{1,3}\b|\b\d{1,3}\s*x\b)`)

	metalWords = map[string]*regexp.Regexp{
		string(models.MetalGold):   regexp.MustCompile(`\bgold\b`),
		string(models.MetalSilver): regexp.MustCompile(`\bsilver\b`),
	}
)

// PriceOptions tunes the resolver for a vendor's layout.
type PriceOptions struct {
	// Anchored tries "size ... metal ... $amount" on one line before the
	// generic per-line rules.
	Anchored bool
	// QtyPrefixKind is the kind given to an anchored amount preceded by a
	// quantity marker and no unit keyword.
	QtyPrefixKind models.PriceKind
	// Reach overrides the number of lines searched either side.
	Reach int
}

// PriceBand returns the plausible price range for one unit of the metal.
func PriceBand(metal models.Metal, unitOz float64) (lo, hi float64) {
	if metal == models.MetalGold {
		switch {
		case unitOz <= 0.11:
			return 150, 2000
		case unitOz <= 0.26:
			return 300, 4000
		case unitOz <= 0.6:
			return 600, 7000
		default:
			return 1200, 20000
		}
	}
	return 10, 50000
}

// InBand reports whether amount is plausible for the metal and unit size.
func InBand(metal models.Metal, unitOz, amount float64) bool {
	lo, hi := PriceBand(metal, unitOz)
	return amount >= lo && amount <= hi
}

// FindPrice searches lines outwards from the item for the first plausible
// amount. Candidates outside the price band are skipped.
func FindPrice(lines []string, item models.LineItem, opts PriceOptions) (models.PriceHit, bool) {
	reach := opts.Reach
	if reach <= 0 {
		reach = defaultPriceReach
	}
	uoz := unitSizePattern(item.UnitOz)
	metal := string(item.Metal)

	for _, j := range neighbours(item.Line, len(lines), reach, reach) {
		line := lines[j]
		if opts.Anchored {
			if hit, ok := anchoredPrice(line, uoz, metal, opts); ok && InBand(item.Metal, item.UnitOz, hit.Amount) {
				hit.Line = j
				return hit, true
			}
		}
		if totalsLinePattern.MatchString(line) {
			continue
		}
		money := findMoney(line)
		if len(money) == 0 {
			continue
		}
		kind := classifyKind(line, uoz)
		if totalWordPattern.MatchString(line) && kind != models.PriceTotal {
			continue
		}
		if !priceContext(lines, j, line, uoz, metal) {
			continue
		}
		for _, m := range money {
			if InBand(item.Metal, item.UnitOz, m.Amount) {
				return models.PriceHit{Amount: m.Amount, Kind: kind, Line: j}, true
			}
		}
	}
	return models.PriceHit{}, false
}

// anchoredPrice takes the first amount after "size ... metal" (or the
// reverse) on the line, unless a totals keyword sits in between.
func anchoredPrice(line string, uoz *regexp.Regexp, metal string, opts PriceOptions) (models.PriceHit, bool) {
	end, ok := anchorEnd(line, uoz, metal)
	if !ok {
		return models.PriceHit{}, false
	}
	tail := line[end:]
	money := findMoney(tail)
	if len(money) == 0 || money[0].Start > amountSpan {
		return models.PriceHit{}, false
	}
	m := money[0]
	between := tail[:m.Start]
	if totalsBetween.MatchString(between) {
		return models.PriceHit{}, false
	}

	after := tail[m.End:]
	if len(after) > 24 {
		after = after[:24]
	}
	kind := models.PriceUnknown
	switch {
	case unitKeywordPattern.MatchString(between) || unitKeywordPattern.MatchString(after):
		kind = models.PriceUnit
	case qtyPrefixPattern.MatchString(line[:end+m.Start]) && opts.QtyPrefixKind != "":
		kind = opts.QtyPrefixKind
	}
	return models.PriceHit{Amount: m.Amount, Kind: kind}, true
}

func anchorEnd(line string, uoz *regexp.Regexp, metal string) (int, bool) {
	metalRe, ok := metalWords[metal]
	if !ok {
		return 0, false
	}
	low := strings.ToLower(line)

	if loc := uoz.FindStringIndex(low); loc != nil {
		rest := low[loc[1]:]
		if m := metalRe.FindStringIndex(rest); m != nil && m[0] <= anchorSpan {
			return loc[1] + m[1], true
		}
	}
	if loc := metalRe.FindStringIndex(low); loc != nil {
		rest := low[loc[1]:]
		if m := uoz.FindStringIndex(rest); m != nil && m[0] <= anchorSpan {
			return loc[1] + m[1], true
		}
	}
	return 0, false
}

// classifyKind decides whether a line's amount is a unit price or a line total.
func classifyKind(line string, uoz *regexp.Regexp) models.PriceKind {
	switch {
	case unitKeywordPattern.MatchString(line):
		return models.PriceUnit
	case lineTotalPattern.MatchString(line):
		return models.PriceTotal
	case totalWordPattern.MatchString(line) && (priceWordPattern.MatchString(line) || uoz.MatchString(line)):
		return models.PriceTotal
	}
	return models.PriceUnknown
}

// priceContext accepts a line when it names the metal, carries the unit
// size (here or on an adjacent line) or uses a price keyword.
func priceContext(lines []string, j int, line string, uoz *regexp.Regexp, metal string) bool {
	low := strings.ToLower(line)
	if metal != "" && metal != string(models.MetalUnknown) && strings.Contains(low, metal) {
		return true
	}
	for _, k := range []int{j, j - 1, j + 1} {
		if k >= 0 && k < len(lines) && uoz.MatchString(lines[k]) {
			return true
		}
	}
	return priceKeywords.MatchString(line)
}

// unitSizePattern matches the textual unit size of an item, e.g. "0.1 oz"
// or "1/10 oz" for a tenth.
func unitSizePattern(unitOz float64) *regexp.Regexp {
	alts := []string{regexp.QuoteMeta(formatOz(unitOz))}
	if unitOz > 0 && unitOz < 1 {
		inv := 1 / unitOz
		rounded := float64(int(inv + 0.5))
		if d := inv - rounded; d < 1e-6 && d > -1e-6 {
			alts = append(alts, `1\s*/\s*`+formatOz(rounded))
		}
		if s := formatOz(unitOz); strings.HasPrefix(s, "0.") {
			alts = append(alts, regexp.QuoteMeta(s[1:]))
		}
	}
	return regexp.MustCompile(`(?i)(?:^|[^\d./])(?:` + strings.Join(alts, "|") + `)\s*[- ]?oz\b`)
}
