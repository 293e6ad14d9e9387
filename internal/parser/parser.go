package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// Vendor names produced by the classifier.
const (
	VendorTD     = "TD"
	VendorCostco = "Costco"
	VendorRCM    = "RCM"
	VendorOther  = "Other"
)

// Vendor defines the interface for vendor-specific email parsers.
type Vendor interface {
	// Name returns the vendor name written to the ledger.
	Name() string
	// Matches reports whether a sender address belongs to this vendor.
	Matches(sender string) bool
	// LineItems extracts items with quantities resolved. The returned lines
	// are the normalized body lines that item indices refer to.
	LineItems(text string) ([]models.LineItem, []string)
	// FindPrice resolves the price of one item.
	FindPrice(lines []string, item models.LineItem) (models.PriceHit, bool)
	// OrderID extracts the vendor order id from subject or body.
	OrderID(subject, body string) (string, bool)
	// TotalSequence returns per-item "Total $X CAD" amounts in document
	// order, or nil when the vendor has no such layout.
	TotalSequence(text string) []float64
	// Currency is the fixed output currency, or "" to use the detected one.
	Currency() string
	// Quirks returns the vendor's allocation adjustments.
	Quirks() Quirks
}

// Quirks are vendor-specific cost adjustments applied after extraction.
type Quirks struct {
	// RemainderMetal receives the gap between order total and line-item
	// costs in multi-metal orders.
	RemainderMetal models.Metal
	// BulkSilverTotals treats large per-ounce silver amounts on bulk
	// quantities as line totals.
	BulkSilverTotals bool
}

// registry is the ordered vendor list; first match wins.
var registry = []Vendor{
	&TDParser{},
	&CostcoParser{},
	&RCMParser{},
}

// Vendors returns the registered vendor parsers in match order.
func Vendors() []Vendor {
	return append([]Vendor(nil), registry...)
}

// New returns the parser for a vendor name. Unknown names get the generic parser.
func New(name string) (Vendor, error) {
	for _, v := range registry {
		if strings.EqualFold(v.Name(), name) {
			return v, nil
		}
	}
	if strings.EqualFold(name, VendorOther) {
		return &GenericParser{}, nil
	}
	return nil, fmt.Errorf("unsupported vendor: %q", name)
}

// Detect returns the parser matching the sender, falling back to the generic one.
func Detect(sender string) Vendor {
	for _, v := range registry {
		if v.Matches(sender) {
			return v
		}
	}
	return &GenericParser{}
}

// Classify maps a sender address to a vendor name, or "Other".
func Classify(sender string) string {
	return Detect(sender).Name()
}

var angleAddr = regexp.MustCompile(`<([^>]+)>`)

// senderAddress pulls the address out of "Name <addr>" forms.
func senderAddress(sender string) string {
	if m := angleAddr.FindStringSubmatch(sender); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	return strings.ToLower(strings.TrimSpace(sender))
}

func containsAny(text string, needles []string) bool {
	text = strings.ToLower(text)
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
