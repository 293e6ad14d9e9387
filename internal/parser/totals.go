package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

var (
	subtotalWordPattern = regexp.MustCompile(`(?i)\bsubtotal\b`)

	// "Total $350.00 CAD" as printed per item on mint confirmations.
	totalSequencePattern = regexp.MustCompile(
		`(?i)\btotal\b[^\n]*?(?:C\$|CAD\s*\$|\$)\s*([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]{2})?|[0-9]+(?:\.[0-9]{2})?)\s*CAD\b`,
	)
	totalSequenceBan = regexp.MustCompile(`(?i)(orders?\s+over|threshold|free\s+shipping|subtotal|savings)`)
)

// OrderTotal finds the order-level amount: the first line mentioning
// "total" (amount after the keyword, else the last on the line), then a
// "subtotal" line, then the largest amount anywhere.
func OrderTotal(text string) (float64, bool) {
	lines := splitLines(text)
	if v, ok := keywordAmount(lines, totalWordPattern); ok {
		return v, true
	}
	if v, ok := keywordAmount(lines, subtotalWordPattern); ok {
		return v, true
	}
	best, found := 0.0, false
	for _, line := range lines {
		for _, m := range findMoney(line) {
			if m.Amount > best {
				best, found = m.Amount, true
			}
		}
	}
	return best, found
}

func keywordAmount(lines []string, kw *regexp.Regexp) (float64, bool) {
	for _, line := range lines {
		loc := kw.FindStringIndex(line)
		if loc == nil {
			continue
		}
		money := findMoney(line)
		if len(money) == 0 {
			continue
		}
		for _, m := range money {
			if m.Start >= loc[1] {
				return m.Amount, true
			}
		}
		return money[len(money)-1].Amount, true
	}
	return 0, false
}

// totalSequence returns the "Total $X CAD" amounts in document order,
// skipping free-shipping thresholds and savings lines.
func totalSequence(text string) []float64 {
	var out []float64
	for _, line := range splitLines(text) {
		if totalSequenceBan.MatchString(line) {
			continue
		}
		for _, m := range totalSequencePattern.FindAllStringSubmatch(line, -1) {
			if v, err := parseAmount(m[1]); err == nil {
				out = append(out, v)
			}
		}
	}
	return out
}

// forwardTotal looks only at the item line and the lines after it,
// preferring the nearest in-band "total" amount and falling back to the
// nearest in-band unit amount.
func forwardTotal(lines []string, item models.LineItem, reach int, ban *regexp.Regexp) (models.PriceHit, bool) {
	var fallback *models.PriceHit
	for j := item.Line; j < len(lines) && j <= item.Line+reach; j++ {
		line := lines[j]
		if ban.MatchString(line) {
			continue
		}
		low := strings.ToLower(line)
		for _, m := range findMoney(line) {
			if !InBand(item.Metal, item.UnitOz, m.Amount) {
				continue
			}
			if totalWordPattern.MatchString(low) {
				return models.PriceHit{Amount: m.Amount, Kind: models.PriceTotal, Line: j}, true
			}
			if fallback == nil {
				kind := models.PriceUnknown
				if unitKeywordPattern.MatchString(low) {
					kind = models.PriceUnit
				}
				fallback = &models.PriceHit{Amount: m.Amount, Kind: kind, Line: j}
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.PriceHit{}, false
}
