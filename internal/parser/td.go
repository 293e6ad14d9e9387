package parser

import (
	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// TDParser handles TD Precious Metals order mail.
//
// TD prints each product on one compact line with the price right after
// the description:
//
//	1 oz Gold Maple Leaf Coin x 2 $5,210.00
//
// An amount after an "x N" multiplier with no "each" is the line total.
// TD silver lines are the less reliable ones in mixed orders, so any gap
// between the order total and the item sum is booked to silver.
type TDParser struct{}

func (p *TDParser) Name() string {
	return VendorTD
}

func (p *TDParser) Matches(sender string) bool {
	return containsAny(senderAddress(sender), []string{"td.com", "tdsecurities.com", "preciousmetals.td.com"})
}

func (p *TDParser) LineItems(text string) ([]models.LineItem, []string) {
	return resolveItems(text, Window{Before: 3, After: 3})
}

func (p *TDParser) FindPrice(lines []string, item models.LineItem) (models.PriceHit, bool) {
	return FindPrice(lines, item, PriceOptions{Anchored: true, QtyPrefixKind: models.PriceTotal})
}

func (p *TDParser) OrderID(subject, body string) (string, bool) {
	return firstSubmatch(genericOrderIDPattern, subject, body)
}

func (p *TDParser) TotalSequence(string) []float64 {
	return nil
}

func (p *TDParser) Currency() string {
	return "C$"
}

func (p *TDParser) Quirks() Quirks {
	return Quirks{RemainderMetal: models.MetalSilver}
}
