package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

var genericOrderIDPattern = regexp.MustCompile(`(?i)\border\s*(?:number|no\.?|#)?\s*[:#]?\s*(\d{6,})\b`)

// GenericParser handles mail from senders that match no vendor profile.
// Items are extracted with the default window and priced by proximity.
type GenericParser struct{}

func (p *GenericParser) Name() string {
	return VendorOther
}

func (p *GenericParser) Matches(string) bool {
	return true
}

func (p *GenericParser) LineItems(text string) ([]models.LineItem, []string) {
	return resolveItems(text, DefaultWindow)
}

func (p *GenericParser) FindPrice(lines []string, item models.LineItem) (models.PriceHit, bool) {
	return FindPrice(lines, item, PriceOptions{})
}

func (p *GenericParser) OrderID(subject, body string) (string, bool) {
	return firstSubmatch(genericOrderIDPattern, subject, body)
}

func (p *GenericParser) TotalSequence(string) []float64 {
	return nil
}

func (p *GenericParser) Currency() string {
	return ""
}

func (p *GenericParser) Quirks() Quirks {
	return Quirks{}
}

// resolveItems extracts items and refines default quantities.
func resolveItems(text string, win Window) ([]models.LineItem, []string) {
	items, lines := ExtractLineItems(text)
	for i := range items {
		items[i].Qty, items[i].UnitOz = ResolveQuantity(lines, items[i], win, DefaultTables)
	}
	return items, lines
}

// firstSubmatch returns the first capture of re in any of the texts.
func firstSubmatch(re *regexp.Regexp, texts ...string) (string, bool) {
	for _, t := range texts {
		if m := re.FindStringSubmatch(normalizeText(t)); m != nil {
			return strings.ToUpper(m[len(m)-1]), true
		}
	}
	return "", false
}
