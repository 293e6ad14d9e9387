package parser

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		expected string
	}{
		{
			name:     "detects TD by domain",
			sender:   "TD Precious Metals <orders@preciousmetals.td.com>",
			expected: VendorTD,
		},
		{
			name:     "detects Costco",
			sender:   "Costco.ca <noreply@Costco.ca>",
			expected: VendorCostco,
		},
		{
			name:     "detects RCM marketing domain",
			sender:   "Royal Canadian Mint <no-reply@email.mint.ca>",
			expected: VendorRCM,
		},
		{
			name:     "bare address",
			sender:   "orders@royalcanadianmint.ca",
			expected: VendorRCM,
		},
		{
			name:     "unknown sender falls back",
			sender:   "Some Dealer <sales@example.com>",
			expected: VendorOther,
		},
		{
			name:     "empty sender",
			sender:   "",
			expected: VendorOther,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.sender)
			if got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		vendor   string
		wantName string
		wantErr  bool
	}{
		{"TD", VendorTD, false},
		{"costco", VendorCostco, false},
		{"RCM", VendorRCM, false},
		{"Other", VendorOther, false},
		{"unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			p, err := New(tt.vendor)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("got %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestOrderID(t *testing.T) {
	tests := []struct {
		name    string
		vendor  Vendor
		subject string
		body    string
		want    string
		wantOK  bool
	}{
		{
			name:    "mint purchase order in subject",
			vendor:  &RCMParser{},
			subject: "Confirmation for order number PO123",
			want:    "PO123",
			wantOK:  true,
		},
		{
			name:   "mint purchase order in body",
			vendor: &RCMParser{},
			body:   "Thank you.\nYour order po4455667 has shipped.",
			want:   "PO4455667",
			wantOK: true,
		},
		{
			name:    "costco order number",
			vendor:  &CostcoParser{},
			subject: "Your Costco.ca Order Number 1122334455 has been received",
			want:    "1122334455",
			wantOK:  true,
		},
		{
			name:   "generic order number",
			vendor: &TDParser{},
			body:   "Order Number: 7788990",
			want:   "7788990",
			wantOK: true,
		},
		{
			name:    "short numbers are not order ids",
			vendor:  &TDParser{},
			subject: "Order 123",
			wantOK:  false,
		},
		{
			name:    "newsletter has no id",
			vendor:  &RCMParser{},
			subject: "New coins this month",
			body:    "Discover our latest releases",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.vendor.OrderID(tt.subject, tt.body)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRCMLineItems(t *testing.T) {
	p := &RCMParser{}
	body := `Order Summary
1/10 oz Pure Gold Maple Leaf Coin
Quantity: 2
Total $700.00 CAD
1/4 oz Maple Leaf Coin 1/4 oz
Total $900.00 CAD
Returns
Items may be returned within 30 days. 1 oz Silver refund policy applies.`

	items, lines := p.LineItems(body)
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2 (%+v)", len(items), items)
	}
	if items[0].Metal != "gold" || items[0].UnitOz != 0.1 || items[0].Qty != 2 {
		t.Errorf("item[0]: got %+v", items[0])
	}
	if items[1].Metal != "gold" || items[1].UnitOz != 0.25 {
		t.Errorf("item[1]: got %+v", items[1])
	}

	hit, ok := p.FindPrice(lines, items[0])
	if !ok {
		t.Fatal("expected a price for the first item")
	}
	if hit.Amount != 700 || hit.Kind != "total" {
		t.Errorf("price: got %+v", hit)
	}

	seq := p.TotalSequence(body)
	if len(seq) != 2 || seq[0] != 700 || seq[1] != 900 {
		t.Errorf("total sequence: got %v", seq)
	}
}

func TestTrimBoilerplate(t *testing.T) {
	got := trimBoilerplate("1 oz Gold\nTotal $3,000.00 CAD\nExceptions: none\n1 oz Silver")
	want := "1 oz Gold\nTotal $3,000.00 CAD\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestGenericWindowsSkipBlankLines(t *testing.T) {
	p := &GenericParser{}

	t.Run("quantity below item", func(t *testing.T) {
		items, _ := p.LineItems("1/10 oz Gold Maple Leaf\n\n\nQty: 3")
		if len(items) != 1 {
			t.Fatalf("items: got %d, want 1 (%+v)", len(items), items)
		}
		if items[0].Qty != 3 {
			t.Errorf("qty: got %v, want 3", items[0].Qty)
		}
	})

	t.Run("price after double spacing", func(t *testing.T) {
		body := "1 oz Gold Maple Leaf" + strings.Repeat("\n", 13) + "Price: $2,900.00"
		items, lines := p.LineItems(body)
		if len(items) != 1 {
			t.Fatalf("items: got %d, want 1 (%+v)", len(items), items)
		}
		if len(lines) != 2 {
			t.Fatalf("lines: got %q, want 2 non-empty lines", lines)
		}
		hit, ok := p.FindPrice(lines, items[0])
		if !ok {
			t.Fatal("expected a price")
		}
		if hit.Amount != 2900 {
			t.Errorf("amount: got %v, want 2900", hit.Amount)
		}
	})
}
