package costs

import (
	"math"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// Costco-style bulk silver: an amount this far above a plausible unit
// price on a tube or box quantity is the line total.
const (
	bulkSilverMaxUnitOz  = 1.05
	bulkSilverMinQty     = 10
	bulkSilverPerOzLimit = 150
)

// UnitKey identifies a product size within one metal.
type UnitKey struct {
	Metal  models.Metal
	UnitOz float64
}

func keyFor(item models.LineItem) UnitKey {
	return UnitKey{Metal: item.Metal, UnitOz: math.Round(item.UnitOz*10000) / 10000}
}

// Tally accumulates quantities and price hits across an order's messages.
// Within a message, quantities of the same size add up; across messages
// the largest count wins, since later mail repeats the same items.
type Tally struct {
	qty  map[UnitKey]float64
	hits map[UnitKey][]models.PriceHit
	keys []UnitKey
}

// NewTally returns an empty tally.
func NewTally() *Tally {
	return &Tally{
		qty:  make(map[UnitKey]float64),
		hits: make(map[UnitKey][]models.PriceHit),
	}
}

// AddMessage records one message's items. hits[i] is the price found for
// items[i], if any.
func (t *Tally) AddMessage(items []models.LineItem, hits []*models.PriceHit) {
	local := make(map[UnitKey]float64)
	var order []UnitKey
	for i, it := range items {
		if it.Metal != models.MetalGold && it.Metal != models.MetalSilver {
			continue
		}
		k := keyFor(it)
		if _, ok := local[k]; !ok {
			order = append(order, k)
		}
		local[k] += it.Qty
		if i < len(hits) && hits[i] != nil {
			t.hits[k] = append(t.hits[k], *hits[i])
		}
	}
	for _, k := range order {
		if _, seen := t.qty[k]; !seen {
			t.keys = append(t.keys, k)
		}
		if q := local[k]; q > t.qty[k] {
			t.qty[k] = q
		}
	}
}

// Empty reports whether no gold or silver item was recorded.
func (t *Tally) Empty() bool {
	return len(t.qty) == 0
}

// OzByMetal sums ounces per metal.
func (t *Tally) OzByMetal() map[models.Metal]float64 {
	out := make(map[models.Metal]float64)
	for k, q := range t.qty {
		out[k.Metal] += k.UnitOz * q
	}
	return out
}

// Units returns unit size to quantity per metal.
func (t *Tally) Units() map[models.Metal]map[float64]float64 {
	out := make(map[models.Metal]map[float64]float64)
	for k, q := range t.qty {
		if out[k.Metal] == nil {
			out[k.Metal] = make(map[float64]float64)
		}
		out[k.Metal][k.UnitOz] += q
	}
	return out
}

// LineCosts prices each size and sums per metal. A total hit is used as
// it is; otherwise the largest unit or unknown amount is multiplied by
// the quantity.
func (t *Tally) LineCosts(bulkSilverTotals bool) map[models.Metal]float64 {
	out := make(map[models.Metal]float64)
	for _, k := range t.keys {
		hits := t.hits[k]
		if len(hits) == 0 {
			continue
		}
		qty := t.qty[k]
		if v, ok := firstTotal(hits); ok {
			out[k.Metal] += v
			continue
		}
		best := 0.0
		for _, h := range hits {
			if h.Amount > best {
				best = h.Amount
			}
		}
		if bulkSilverTotals && isBulkSilver(k, qty, best) {
			out[k.Metal] += best
			continue
		}
		out[k.Metal] += best * qty
	}
	return out
}

func firstTotal(hits []models.PriceHit) (float64, bool) {
	for _, h := range hits {
		if h.Kind == models.PriceTotal {
			return h.Amount, true
		}
	}
	return 0, false
}

func isBulkSilver(k UnitKey, qty, amount float64) bool {
	return k.Metal == models.MetalSilver &&
		k.UnitOz <= bulkSilverMaxUnitOz &&
		qty >= bulkSilverMinQty &&
		amount/k.UnitOz > bulkSilverPerOzLimit
}
