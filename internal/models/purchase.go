package models

import "time"

// GramsPerTroyOunce converts gram weights to troy ounces.
const GramsPerTroyOunce = 31.1035

// RawMessage is a single email as delivered by a message source.
type RawMessage struct {
	ID       string    `json:"id"`
	Subject  string    `json:"subject"`
	Sender   string    `json:"sender"`
	Body     string    `json:"body"`
	Received time.Time `json:"received"`
}

// Metal identifies the precious metal of a line item.
type Metal string

const (
	MetalGold    Metal = "gold"
	MetalSilver  Metal = "silver"
	MetalUnknown Metal = "unknown"
)

// Metals lists the metals that can carry cost, in output order.
var Metals = []Metal{MetalGold, MetalSilver}

// LineItem is one product entry found in a message body.
type LineItem struct {
	Metal    Metal   `json:"metal"`
	UnitOz   float64 `json:"unitOz"`
	Qty      float64 `json:"qty"`
	Line     int     `json:"line"`               // index into the normalized body lines
	Offset   int     `json:"offset"`             // byte offset of the size match within the line
	Explicit bool    `json:"explicit,omitempty"` // trailing "x N" was present
}

// TotalOz returns the item's weight in troy ounces.
func (li LineItem) TotalOz() float64 {
	return li.UnitOz * li.Qty
}

// PriceKind classifies what a matched amount represents.
type PriceKind string

const (
	PriceUnit    PriceKind = "unit"
	PriceTotal   PriceKind = "total"
	PriceUnknown PriceKind = "unknown"
)

// PriceHit is the amount resolved for a line item.
type PriceHit struct {
	Amount float64   `json:"amount"`
	Kind   PriceKind `json:"kind"`
	Line   int       `json:"line"`
}

// Category is the subject-derived message category.
type Category string

const (
	CategoryConfirmation Category = "confirmation"
	CategoryShipping     Category = "shipping"
	CategoryRequest      Category = "request"
	CategoryOther        Category = "other"
)

// Priority orders categories; higher wins.
func (c Category) Priority() int {
	switch c {
	case CategoryConfirmation:
		return 3
	case CategoryShipping:
		return 2
	case CategoryRequest:
		return 1
	default:
		return 0
	}
}

// Order collects every message that carries the same order id.
type Order struct {
	OrderID           string       `json:"orderId"`
	Vendor            string       `json:"vendor"`
	Messages          []RawMessage `json:"messages"`
	Categories        []Category   `json:"categories"`
	Canonical         int          `json:"canonical"`
	CanonicalCategory Category     `json:"canonicalCategory"`
	Cancelled         bool         `json:"cancelled,omitempty"`
	Seq               int          `json:"seq"`
}

// CanonicalMessage returns the authoritative message of the order.
func (o *Order) CanonicalMessage() RawMessage {
	return o.Messages[o.Canonical]
}

// Authoritative returns the messages whose category matches the canonical
// category. Orders made only of uncategorized mail use every message.
func (o *Order) Authoritative() []RawMessage {
	if o.CanonicalCategory == CategoryOther {
		return o.Messages
	}
	var out []RawMessage
	for i, m := range o.Messages {
		if o.Categories[i] == o.CanonicalCategory {
			out = append(out, m)
		}
	}
	return out
}

// AllocStrategy names how a metal's cost was derived.
type AllocStrategy string

const (
	AllocOrderSingleMetal    AllocStrategy = "order-single-metal"
	AllocLineItem            AllocStrategy = "line-item"
	AllocOrderProportional   AllocStrategy = "order-proportional"
	AllocConfirmationDerived AllocStrategy = "confirmation-derived"
)

// CostRecord is one ledger row: the cost of one metal within one order.
type CostRecord struct {
	Vendor         string        `json:"vendor"`
	Date           string        `json:"date"` // YYYY-MM-DD
	Metal          Metal         `json:"metal"`
	Currency       string        `json:"currency"`
	CostTotal      float64       `json:"costTotal"`
	CostPerOz      float64       `json:"costPerOz"`
	OrderID        string        `json:"orderId"`
	Subject        string        `json:"subject"`
	TotalOz        float64       `json:"totalOz"`
	UnitCount      float64       `json:"unitCount"`
	UnitsBreakdown string        `json:"unitsBreakdown"`
	Alloc          AllocStrategy `json:"alloc"`
}
