package costs

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/parser"
)

// RowInput is everything known about one order after allocation.
type RowInput struct {
	Vendor   string
	OrderID  string
	Subject  string
	Currency string
	Date     time.Time

	Units    map[models.Metal]map[float64]float64
	Costs    map[models.Metal]float64
	Strategy models.AllocStrategy

	// Items and Sequence drive confirmation matching: the canonical
	// message's items in extraction order and its per-item totals.
	Items    []models.LineItem
	Sequence []float64
}

// BuildRows emits one record per metal with ounces and a positive cost.
func BuildRows(in RowInput) []models.CostRecord {
	costs, strategies := applySequence(in)

	var rows []models.CostRecord
	for _, metal := range models.Metals {
		units := in.Units[metal]
		totalOz, unitCount := 0.0, 0.0
		for u, q := range units {
			totalOz += u * q
			unitCount += q
		}
		if totalOz <= 0 {
			continue
		}
		// Ounces without a cost are an extraction miss: no row.
		cost := RoundCents(costs[metal])
		if cost <= 0 {
			continue
		}
		rows = append(rows, models.CostRecord{
			Vendor:         in.Vendor,
			Date:           formatDate(in.Date),
			Metal:          metal,
			Currency:       in.Currency,
			CostTotal:      cost,
			CostPerOz:      cost / totalOz,
			OrderID:        in.OrderID,
			Subject:        in.Subject,
			TotalOz:        totalOz,
			UnitCount:      unitCount,
			UnitsBreakdown: FormatBreakdown(units),
			Alloc:          strategies[metal],
		})
	}
	return rows
}

// applySequence walks gold and silver items in order, giving each the next
// sequence amount inside its price band. Amounts that do not fit are
// skipped. A metal whose items all matched is costed from the matches.
func applySequence(in RowInput) (map[models.Metal]float64, map[models.Metal]models.AllocStrategy) {
	costs := make(map[models.Metal]float64, len(in.Costs))
	strategies := make(map[models.Metal]models.AllocStrategy)
	for _, m := range models.Metals {
		costs[m] = in.Costs[m]
		strategies[m] = in.Strategy
	}
	if len(in.Sequence) == 0 {
		return costs, strategies
	}

	items := make(map[models.Metal]int)
	matched := make(map[models.Metal]int)
	sums := make(map[models.Metal]float64)
	pos := 0
	for _, it := range in.Items {
		if it.Metal != models.MetalGold && it.Metal != models.MetalSilver {
			continue
		}
		items[it.Metal]++
		for pos < len(in.Sequence) {
			amt := in.Sequence[pos]
			pos++
			if parser.InBand(it.Metal, it.UnitOz, amt) {
				matched[it.Metal]++
				sums[it.Metal] += amt
				break
			}
		}
	}
	for _, m := range models.Metals {
		if items[m] > 0 && matched[m] == items[m] {
			costs[m] = sums[m]
			strategies[m] = models.AllocConfirmationDerived
		}
	}
	return costs, strategies
}

// FormatBreakdown renders unit sizes and counts as "0.1ozx2;1.0ozx3",
// sorted by unit size.
func FormatBreakdown(units map[float64]float64) string {
	sizes := make([]float64, 0, len(units))
	for u := range units {
		sizes = append(sizes, u)
	}
	sort.Float64s(sizes)

	parts := make([]string, 0, len(sizes))
	for _, u := range sizes {
		parts = append(parts, formatUnit(u)+"ozx"+FormatQty(units[u]))
	}
	return strings.Join(parts, ";")
}

func formatUnit(u float64) string {
	s := strconv.FormatFloat(u, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatQty prints whole counts without a decimal part.
func FormatQty(q float64) string {
	if q == math.Trunc(q) {
		return strconv.FormatFloat(q, 'f', 0, 64)
	}
	return strconv.FormatFloat(q, 'f', -1, 64)
}

// RoundCents rounds a currency amount to two decimals.
func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
