// Package ledger persists cost records and merges new runs into them.
package ledger

import (
	"strings"

	"github.com/insightdelivered/metals-cost-ledger/internal/models"
	"github.com/insightdelivered/metals-cost-ledger/internal/writer"
)

const confirmationPhrase = "confirmation for order"

type groupKey struct {
	vendor, orderID, metal string
}

func groupKeyOf(r models.CostRecord) groupKey {
	return groupKey{
		vendor:  strings.ToUpper(r.Vendor),
		orderID: r.OrderID,
		metal:   strings.ToLower(string(r.Metal)),
	}
}

// DedupKey is the composite identity of a ledger row. Vendor and metal
// compare case-insensitively, as groups do.
func DedupKey(r models.CostRecord) string {
	g := groupKeyOf(r)
	return strings.Join([]string{
		g.vendor,
		g.orderID,
		g.metal,
		writer.FormatAmount(r.CostTotal),
		r.UnitsBreakdown,
	}, "|")
}

// IsConfirmation reports whether the row came from an order confirmation.
func IsConfirmation(r models.CostRecord) bool {
	return strings.Contains(strings.ToLower(r.Subject), confirmationPhrase)
}

// Merge combines existing and new rows. Within each (vendor, order,
// metal) group, confirmation rows replace everything else when present.
// Remaining rows are deduplicated by DedupKey: each key keeps its first
// position and its last-seen content. Merging the same rows again is a
// no-op.
func Merge(existing, incoming []models.CostRecord) []models.CostRecord {
	all := make([]models.CostRecord, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)

	var groupOrder []groupKey
	groups := make(map[groupKey][]models.CostRecord)
	for _, r := range all {
		k := groupKeyOf(r)
		if _, ok := groups[k]; !ok {
			groupOrder = append(groupOrder, k)
		}
		groups[k] = append(groups[k], r)
	}

	var keyOrder []string
	latest := make(map[string]models.CostRecord)
	for _, k := range groupOrder {
		rows := groups[k]
		if confirmed := filterConfirmations(rows); len(confirmed) > 0 {
			rows = confirmed
		}
		for _, r := range rows {
			dk := DedupKey(r)
			if _, ok := latest[dk]; !ok {
				keyOrder = append(keyOrder, dk)
			}
			latest[dk] = r
		}
	}

	out := make([]models.CostRecord, 0, len(keyOrder))
	for _, dk := range keyOrder {
		out = append(out, latest[dk])
	}
	return out
}

func filterConfirmations(rows []models.CostRecord) []models.CostRecord {
	var out []models.CostRecord
	for _, r := range rows {
		if IsConfirmation(r) {
			out = append(out, r)
		}
	}
	return out
}
