package parser

import (
	"math"
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// RCMParser handles Royal Canadian Mint order mail.
//
// Mint confirmations list each product across several lines, with its
// price on a following "Total $X CAD" line:
//
//	1/10 oz Pure Gold Maple Leaf Coin
//	Quantity: 2
//	Total $700.00 CAD
//
// The metal is often missing from the product line, so it is taken from
// nearby lines and defaults to gold. Everything after the legal and
// returns boilerplate is ignored.
type RCMParser struct{}

const (
	rcmQtyReach   = 6
	rcmPriceReach = 20
)

var (
	rcmOrderIDPattern = regexp.MustCompile(`(?i)\b(PO\d{3,})\b`)
	rcmPriceBan       = regexp.MustCompile(`(?i)(subtotal|shipping|handling|tax|gst|hst|pst|savings|free\s+shipping|orders?\s+over|threshold)`)
	rcmBoilerplate    = []string{"exceptions:", "customer service solutions centre", "returns", "refund"}
)

func (p *RCMParser) Name() string {
	return VendorRCM
}

func (p *RCMParser) Matches(sender string) bool {
	return containsAny(senderAddress(sender), []string{"email.mint.ca", "mint.ca", "royalcanadianmint.ca"})
}

func (p *RCMParser) LineItems(text string) ([]models.LineItem, []string) {
	text = trimBoilerplate(text)
	items, lines := ExtractLineItems(text)
	guess := guessMetal(text)
	win := Window{Before: rcmQtyReach, After: rcmQtyReach}

	for i := range items {
		if items[i].Metal == models.MetalUnknown {
			if m, ok := metalNear(lines, items[i].Line, 2); ok {
				items[i].Metal = m
			} else {
				items[i].Metal = guess
			}
		}
		items[i].Qty, items[i].UnitOz = ResolveQuantity(lines, items[i], win, DefaultTables)
	}
	return dedupeItems(items), lines
}

func (p *RCMParser) FindPrice(lines []string, item models.LineItem) (models.PriceHit, bool) {
	return forwardTotal(lines, item, rcmPriceReach, rcmPriceBan)
}

func (p *RCMParser) OrderID(subject, body string) (string, bool) {
	return firstSubmatch(rcmOrderIDPattern, subject, body)
}

func (p *RCMParser) TotalSequence(text string) []float64 {
	return totalSequence(trimBoilerplate(text))
}

func (p *RCMParser) Currency() string {
	return "C$"
}

func (p *RCMParser) Quirks() Quirks {
	return Quirks{}
}

// trimBoilerplate cuts the body at the first legal or returns section.
func trimBoilerplate(text string) string {
	low := strings.ToLower(text)
	cut := len(text)
	for _, marker := range rcmBoilerplate {
		if i := strings.Index(low, marker); i >= 0 && i < cut {
			cut = i
		}
	}
	return text[:cut]
}

// guessMetal picks silver only when the text mentions silver and never gold.
func guessMetal(text string) models.Metal {
	low := strings.ToLower(text)
	if strings.Contains(low, "silver") && !strings.Contains(low, "gold") {
		return models.MetalSilver
	}
	return models.MetalGold
}

// dedupeItems keeps one item per (unit size, line), with the larger quantity.
func dedupeItems(items []models.LineItem) []models.LineItem {
	type key struct {
		milliOz int64
		line    int
	}
	pos := make(map[key]int)
	var out []models.LineItem
	for _, it := range items {
		k := key{int64(math.Round(it.UnitOz * 1000)), it.Line}
		if i, ok := pos[k]; ok {
			if it.Qty > out[i].Qty {
				out[i] = it
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}
