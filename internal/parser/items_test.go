package parser

import (
	"math"
	"testing"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

func TestExtractLineItems(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []models.LineItem
	}{
		{
			name: "fractional gold",
			text: "1/10 oz Gold Maple Leaf",
			expected: []models.LineItem{
				{Metal: models.MetalGold, UnitOz: 0.1, Qty: 1, Line: 0, Offset: 0},
			},
		},
		{
			name: "decimal silver with multiplier",
			text: "Order details\n10oz Silver Bar x 3",
			expected: []models.LineItem{
				{Metal: models.MetalSilver, UnitOz: 10, Qty: 3, Line: 1, Offset: 0, Explicit: true},
			},
		},
		{
			name: "metal before size",
			text: "Gold Philharmonic 1 oz",
			expected: []models.LineItem{
				{Metal: models.MetalGold, UnitOz: 1, Qty: 1, Line: 0, Offset: 18},
			},
		},
		{
			name: "no metal keyword",
			text: "Display case for 1 oz coins",
			expected: []models.LineItem{
				{Metal: models.MetalUnknown, UnitOz: 1, Qty: 1, Line: 0, Offset: 17},
			},
		},
		{
			name: "two items on one line",
			text: "1 oz gold x 2, 10 oz silver x 4",
			expected: []models.LineItem{
				{Metal: models.MetalGold, UnitOz: 1, Qty: 2, Line: 0, Offset: 0, Explicit: true},
				{Metal: models.MetalSilver, UnitOz: 10, Qty: 4, Line: 0, Offset: 15, Explicit: true},
			},
		},
		{
			name: "unicode dash before oz",
			text: "1\u2011oz Silver Maple",
			expected: []models.LineItem{
				{Metal: models.MetalSilver, UnitOz: 1, Qty: 1, Line: 0, Offset: 0},
			},
		},
		{
			name:     "empty text",
			text:     "   \n  ",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := ExtractLineItems(tt.text)
			if len(got) != len(tt.expected) {
				t.Fatalf("items: got %d, want %d (%+v)", len(got), len(tt.expected), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("item[%d]: got %+v, want %+v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestExtractGrams(t *testing.T) {
	items, _ := ExtractLineItems("31.1035 g Gold Bar")
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if math.Abs(items[0].UnitOz-1) > 1e-9 {
		t.Errorf("unit oz: got %v, want 1", items[0].UnitOz)
	}
	if items[0].Metal != models.MetalGold {
		t.Errorf("metal: got %q, want gold", items[0].Metal)
	}
}

func TestFractionIsNotAlsoDecimal(t *testing.T) {
	for _, text := range []string{"1/10 oz Gold", "1 / 10 oz Gold", "1/10-oz Gold"} {
		items, _ := ExtractLineItems(text)
		if len(items) != 1 {
			t.Fatalf("%q: got %d items, want 1 (%+v)", text, len(items), items)
		}
		if items[0].UnitOz != 0.1 {
			t.Errorf("%q: unit oz got %v, want 0.1", text, items[0].UnitOz)
		}
	}
}
