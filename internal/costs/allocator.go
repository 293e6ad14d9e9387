// Package costs turns extracted items and prices into per-metal order costs.
package costs

import (
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
)

// remainderTolerance is the smallest order-total gap booked to the
// remainder metal.
const remainderTolerance = 0.01

// Options carries the vendor adjustments applied during allocation.
type Options struct {
	RemainderMetal models.Metal
}

// Allocate assigns a cost to every metal with ounces in the order:
//  1. a single-metal order with an order total takes the whole total
//  2. otherwise positive line-item sums are used as they are
//  3. otherwise the order total is split by ounce share
//
// orderTotal <= 0 means no order-level amount was found.
func Allocate(ozByMetal, lineCostByMetal map[models.Metal]float64, orderTotal float64, opts Options) (map[models.Metal]float64, models.AllocStrategy) {
	present := presentMetals(ozByMetal)
	out := make(map[models.Metal]float64, len(present))

	if len(present) == 1 && orderTotal > 0 {
		out[present[0]] = orderTotal
		return out, models.AllocOrderSingleMetal
	}

	lineSum := 0.0
	for _, m := range present {
		if v := lineCostByMetal[m]; v > 0 {
			out[m] = v
			lineSum += v
		}
	}
	if lineSum > 0 {
		if opts.RemainderMetal != "" && len(present) > 1 && orderTotal > 0 && ozByMetal[opts.RemainderMetal] > 0 {
			if gap := orderTotal - lineSum; gap > remainderTolerance {
				out[opts.RemainderMetal] += gap
			}
		}
		return out, models.AllocLineItem
	}

	return proportional(present, ozByMetal, orderTotal), models.AllocOrderProportional
}

// proportional splits total by ounce share in cents; the last metal takes
// the rounding remainder so the parts add up to the total.
func proportional(present []models.Metal, ozByMetal map[models.Metal]float64, total float64) map[models.Metal]float64 {
	out := make(map[models.Metal]float64, len(present))
	sumOz := decimal.Zero
	for _, m := range present {
		sumOz = sumOz.Add(decimal.NewFromFloat(ozByMetal[m]))
	}
	if sumOz.IsZero() || total <= 0 {
		for _, m := range present {
			out[m] = 0
		}
		return out
	}

	dt := decimal.NewFromFloat(total).Round(2)
	left := dt
	for i, m := range present {
		if i == len(present)-1 {
			out[m] = left.InexactFloat64()
			break
		}
		share := dt.Mul(decimal.NewFromFloat(ozByMetal[m])).Div(sumOz).Round(2)
		out[m] = share.InexactFloat64()
		left = left.Sub(share)
	}
	return out
}

// presentMetals returns the metals with positive ounces in output order.
func presentMetals(ozByMetal map[models.Metal]float64) []models.Metal {
	var out []models.Metal
	for _, m := range models.Metals {
		if ozByMetal[m] > 0 {
			out = append(out, m)
		}
	}
	return out
}
