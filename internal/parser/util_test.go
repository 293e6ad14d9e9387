package parser

import (
	"reflect"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"25.99", 25.99, false},
		{"1,234.56", 1234.56, false},
		{"$25.99", 25.99, false},
		{"1,234,567.89", 1234567.89, false},
		{"0.00", 0.00, false},
		{" 25.99 ", 25.99, false},
		{"", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseAmount(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("got %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestFindMoney(t *testing.T) {
	tests := []struct {
		line       string
		amounts    []float64
		currencies []string
	}{
		{"Total $350.00 CAD", []float64{350}, []string{"$"}},
		{"Price C$1,234.50 each", []float64{1234.5}, []string{"C$"}},
		{"CAD $99 and CAD$12.34", []float64{99, 12.34}, []string{"C$", "C$"}},
		{"$1,050 for the tube", []float64{1050}, []string{"$"}},
		{"no money here", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			var amounts []float64
			var currencies []string
			for _, m := range findMoney(tt.line) {
				amounts = append(amounts, m.Amount)
				currencies = append(currencies, m.Currency)
			}
			if !reflect.DeepEqual(amounts, tt.amounts) {
				t.Errorf("amounts: got %v, want %v", amounts, tt.amounts)
			}
			if !reflect.DeepEqual(currencies, tt.currencies) {
				t.Errorf("currencies: got %v, want %v", currencies, tt.currencies)
			}
		})
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"plain", "a\nb", []string{"a", "b"}},
		{"blank lines dropped", "a\n\n  \n\tb\n", []string{"a", "b"}},
		{"crlf and padding", "  1 oz Gold \r\n\r\nTotal $5.00", []string{"1 oz Gold", "Total $5.00"}},
		{"only whitespace", " \n \n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitLines(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1\u2011oz Gold", "1-oz Gold"},
		{"1 oz\u2013Silver", "1 oz-Silver"},
		{"1\u20444 oz", "1/4 oz"},
		{"\u00bd oz", "1/2 oz"},
		{"line1\r\nline2", "line1\nline2"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			got := normalizeText(tt.input)
			if got != tt.expected {
				t.Errorf("normalizeText(%q): got %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNeighbours(t *testing.T) {
	tests := []struct {
		name          string
		idx, n        int
		before, after int
		expected      []int
	}{
		{"middle", 5, 10, 1, 2, []int{5, 6, 4, 7}},
		{"start of text", 0, 10, 2, 2, []int{0, 1, 2}},
		{"end of text", 9, 10, 2, 2, []int{9, 8, 7}},
		{"symmetric", 3, 10, 2, 2, []int{3, 4, 2, 5, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := neighbours(tt.idx, tt.n, tt.before, tt.after)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestOrderTotal(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected float64
		wantOK   bool
	}{
		{"total line", "Subtotal: $300.00\nShipping $10.00\nOrder Total: $310.00", 310, true},
		{"amount after keyword", "$5.00 off, total $95.00", 95, true},
		{"subtotal only", "Item $40.00\nSubtotal $80.00", 80, true},
		{"largest amount", "Item $40.00\nItem $120.00", 120, true},
		{"no amounts", "thanks for your order", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OrderTotal(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}
