package parser

import (
	"testing"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

func TestResolveQuantity(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantQty    float64
		wantUnitOz float64
	}{
		{
			name:       "explicit multiplier wins over bundle phrase",
			text:       "1 oz Silver Maple Leaf x 5 tube of 25",
			wantQty:    5,
			wantUnitOz: 1,
		},
		{
			name:       "leading count",
			text:       "2 x 1 oz Gold Maple Leaf",
			wantQty:    2,
			wantUnitOz: 1,
		},
		{
			name:       "qty marker on next line",
			text:       "1 oz Silver Maple Leaf\nQty: 3",
			wantQty:    3,
			wantUnitOz: 1,
		},
		{
			name:       "quantity marker on previous line",
			text:       "Quantity: 4\n1 oz Gold Buffalo",
			wantQty:    4,
			wantUnitOz: 1,
		},
		{
			name:       "tube of 25 one ounce coins",
			text:       "1 oz Silver Maple Leaf\nTube of 25",
			wantQty:    25,
			wantUnitOz: 1,
		},
		{
			name:       "bundle phrase ignored for fractional gold",
			text:       "1/10 oz Gold Maple Leaf\n10-pack gift box",
			wantQty:    1,
			wantUnitOz: 0.1,
		},
		{
			name:       "bundle SKU",
			text:       "Item # 3796875\n1 oz Silver Maple Leaf",
			wantQty:    25,
			wantUnitOz: 1,
		},
		{
			name:       "unit size SKU override",
			text:       "1 oz Silver Coin\nItem #: 2796876",
			wantQty:    1,
			wantUnitOz: 10,
		},
		{
			name:       "count out of range ignored",
			text:       "1 oz Silver Round\nQty: 500",
			wantQty:    1,
			wantUnitOz: 1,
		},
		{
			name:       "no rule fires",
			text:       "1 oz Gold Kangaroo",
			wantQty:    1,
			wantUnitOz: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, lines := ExtractLineItems(tt.text)
			if len(items) == 0 {
				t.Fatal("expected an item")
			}
			qty, unitOz := ResolveQuantity(lines, items[0], DefaultWindow, DefaultTables)
			if qty != tt.wantQty {
				t.Errorf("qty: got %v, want %v", qty, tt.wantQty)
			}
			if unitOz != tt.wantUnitOz {
				t.Errorf("unit oz: got %v, want %v", unitOz, tt.wantUnitOz)
			}
		})
	}
}

func TestResolveQuantityPhraseOverride(t *testing.T) {
	lines := []string{"2024 Magnificent Maple Leaves Silver Coin", "1 oz"}
	item := models.LineItem{Metal: models.MetalSilver, UnitOz: 1, Qty: 1, Line: 1}

	qty, unitOz := ResolveQuantity(lines, item, DefaultWindow, DefaultTables)
	if qty != 1 {
		t.Errorf("qty: got %v, want 1", qty)
	}
	if unitOz != 10 {
		t.Errorf("unit oz: got %v, want 10", unitOz)
	}
}

func TestResolveQuantityOutOfRangeLine(t *testing.T) {
	item := models.LineItem{Metal: models.MetalGold, UnitOz: 1, Qty: 1, Line: 7}
	qty, unitOz := ResolveQuantity([]string{"1 oz Gold"}, item, DefaultWindow, DefaultTables)
	if qty != 1 || unitOz != 1 {
		t.Errorf("got (%v, %v), want (1, 1)", qty, unitOz)
	}
}
