package parser

import (
	"regexp"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

var costcoOrderIDPattern = regexp.MustCompile(`(?i)costco\.ca\s+order\D*(\d{6,})`)

// CostcoParser handles Costco.ca order mail.
//
// Costco lists items as "Item # 3796875 ... 1 oz Silver Maple Leaf ... $1,050.00".
// Unlike TD, an amount after a quantity marker is still the unit price,
// except for bulk silver where the amount is clearly a tube or box total.
type CostcoParser struct{}

func (p *CostcoParser) Name() string {
	return VendorCostco
}

func (p *CostcoParser) Matches(sender string) bool {
	return containsAny(senderAddress(sender), []string{"costco"})
}

func (p *CostcoParser) LineItems(text string) ([]models.LineItem, []string) {
	return resolveItems(text, Window{Before: 3, After: 3})
}

func (p *CostcoParser) FindPrice(lines []string, item models.LineItem) (models.PriceHit, bool) {
	return FindPrice(lines, item, PriceOptions{Anchored: true, QtyPrefixKind: models.PriceUnit})
}

func (p *CostcoParser) OrderID(subject, body string) (string, bool) {
	if id, ok := firstSubmatch(costcoOrderIDPattern, subject, body); ok {
		return id, true
	}
	return firstSubmatch(genericOrderIDPattern, subject, body)
}

func (p *CostcoParser) TotalSequence(string) []float64 {
	return nil
}

func (p *CostcoParser) Currency() string {
	return "C$"
}

func (p *CostcoParser) Quirks() Quirks {
	return Quirks{BulkSilverTotals: true}
}
