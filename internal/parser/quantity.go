package parser

import (
	"regexp"
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// Item counts accepted from nearby text.
const (
	minQty    = 1
	maxQty    = 200
	minBundle = 2
)

var (
	leadingQtyPattern = regexp.MustCompile(`(?i)\b(\d{1,3})\s*x\s*$`)

	explicitQtyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bqty\s*[:#]?\s*(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\bquantity\s*[:#]?\s*(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\bx\s*(\d{1,3})\b`),
	}

	bundlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*[- ]?pack\b`),
		regexp.MustCompile(`(?i)\bpack\s*of\s*(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(?:roll|tube)\s*of\s*(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*coins?\b`),
		regexp.MustCompile(`(?i)\b(\d{1,3})\s*ct\b`),
	}

	skuPattern = regexp.MustCompile(`(?i)\bitem(?:\s*(?:#|number))?\s*:?\s*(\d{5,})\b`)
)

// Tables holds the SKU and phrase lookups used to correct quantities and
// unit sizes that the product text leaves out.
type Tables struct {
	// SKUBundle maps an item number to the units in its package.
	SKUBundle map[string]float64
	// SKUUnitOz maps an item number to its true unit size, per metal.
	SKUUnitOz map[models.Metal]map[string]float64
	// PhraseUnitOz maps a lowercase product phrase to its unit size, per metal.
	PhraseUnitOz map[models.Metal]map[string]float64
}

// DefaultTables are the lookups for known vendor SKUs.
var DefaultTables = Tables{
	SKUBundle: map[string]float64{
		"3796875": 25,
	},
	SKUUnitOz: map[models.Metal]map[string]float64{
		models.MetalSilver: {"2796876": 10},
		models.MetalGold:   {"5882020": 0.25},
	},
	PhraseUnitOz: map[models.Metal]map[string]float64{
		models.MetalSilver: {"magnificent maple leaves silver coin": 10},
	},
}

// Window is how many lines around an item are searched for quantity hints.
type Window struct {
	Before, After int
}

// DefaultWindow searches the item line, the next two lines and the previous one.
var DefaultWindow = Window{Before: 1, After: 2}

// ResolveQuantity refines a default quantity from nearby text and applies
// any unit-size override. The first rule that fires wins:
//  1. "N x" immediately before the size on the same line
//  2. "x N", "Qty: N" or "Quantity: N" within the window
//  3. a bundle phrase within the window, for 1 oz pieces only
//  4. a known bundle SKU within the window
func ResolveQuantity(lines []string, item models.LineItem, win Window, t Tables) (qty, unitOz float64) {
	qty, unitOz = item.Qty, item.UnitOz
	if item.Line < 0 || item.Line >= len(lines) {
		return qty, unitOz
	}

	if !item.Explicit && qty == 1 {
		if n, ok := leadingQty(lines[item.Line], item.Offset); ok {
			qty = n
		} else if n, ok := explicitQtyNear(lines, item.Line, win); ok {
			qty = n
		} else if n, ok := bundleNear(lines, item.Line, win); ok && isOneOunce(unitOz) {
			qty = n
		} else if n, ok := skuBundleNear(lines, item.Line, win, t); ok {
			qty = n
		}
	}

	if u, ok := unitOverride(lines, item.Line, win, item.Metal, t); ok {
		unitOz = u
	}
	return qty, unitOz
}

func leadingQty(line string, offset int) (float64, bool) {
	if offset > len(line) {
		offset = len(line)
	}
	start := offset - 120
	if start < 0 {
		start = 0
	}
	m := leadingQtyPattern.FindStringSubmatch(line[start:offset])
	if m == nil {
		return 0, false
	}
	n, ok := atoiInRange(m[1], minQty, maxQty)
	return float64(n), ok
}

func explicitQtyNear(lines []string, idx int, win Window) (float64, bool) {
	for _, j := range neighbours(idx, len(lines), win.Before, win.After) {
		for _, re := range explicitQtyPatterns {
			if m := re.FindStringSubmatch(lines[j]); m != nil {
				if n, ok := atoiInRange(m[1], minQty, maxQty); ok {
					return float64(n), true
				}
			}
		}
	}
	return 0, false
}

func bundleNear(lines []string, idx int, win Window) (float64, bool) {
	for _, j := range neighbours(idx, len(lines), win.Before, win.After) {
		for _, re := range bundlePatterns {
			if m := re.FindStringSubmatch(lines[j]); m != nil {
				if n, ok := atoiInRange(m[1], minBundle, maxQty); ok {
					return float64(n), true
				}
			}
		}
	}
	return 0, false
}

func skuBundleNear(lines []string, idx int, win Window, t Tables) (float64, bool) {
	for _, sku := range skusNear(lines, idx, win) {
		if n, ok := t.SKUBundle[sku]; ok {
			return n, true
		}
	}
	return 0, false
}

func unitOverride(lines []string, idx int, win Window, metal models.Metal, t Tables) (float64, bool) {
	for _, sku := range skusNear(lines, idx, win) {
		if u, ok := t.SKUUnitOz[metal][sku]; ok {
			return u, true
		}
	}
	phrases := t.PhraseUnitOz[metal]
	if len(phrases) == 0 {
		return 0, false
	}
	for _, j := range neighbours(idx, len(lines), win.Before, win.After) {
		low := strings.ToLower(lines[j])
		for phrase, u := range phrases {
			if strings.Contains(low, phrase) {
				return u, true
			}
		}
	}
	return 0, false
}

func skusNear(lines []string, idx int, win Window) []string {
	var out []string
	for _, j := range neighbours(idx, len(lines), win.Before, win.After) {
		for _, m := range skuPattern.FindAllStringSubmatch(lines[j], -1) {
			out = append(out, m[1])
		}
	}
	return out
}

// isOneOunce reports whether a unit size is within 2% of one ounce.
func isOneOunce(unitOz float64) bool {
	return unitOz >= 0.98 && unitOz <= 1.02
}
