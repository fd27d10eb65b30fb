// Package costing allocates cost of goods sold across cost lots.
package costing

import (
	"slices"

	"kiosco/backend/internal/domain"
)

// Allocate drains lots oldest first for qty units. Any quantity the lots
// cannot cover is priced at referenceCostCents. It never fails: the caller
// always gets a definite cost.
//
// lots is not modified. Apply the returned takes to persist the consumption.
func Allocate(productID string, lots []domain.CostLot, qty int, referenceCostCents int64) domain.Allocation {
	alloc := domain.Allocation{
		ProductID: productID,
		Quantity:  qty,
		Takes:     make([]domain.LotTake, 0, 4),
	}
	if qty <= 0 {
		return alloc
	}

	ordered := make([]domain.CostLot, 0, len(lots))
	for _, lot := range lots {
		if lot.CurrentQuantity > 0 {
			ordered = append(ordered, lot)
		}
	}
	slices.SortStableFunc(ordered, CompareLotsFIFO)

	remaining := qty
	for _, lot := range ordered {
		if remaining == 0 {
			break
		}
		taking := min(remaining, lot.CurrentQuantity)
		alloc.Takes = append(alloc.Takes, domain.LotTake{
			LotID:         lot.ID,
			Quantity:      taking,
			UnitCostCents: lot.UnitCostCents,
		})
		alloc.ExactCostCents += int64(taking) * lot.UnitCostCents
		remaining -= taking
	}

	if remaining > 0 {
		alloc.FallbackQuantity = remaining
		alloc.FallbackCostCents = int64(remaining) * referenceCostCents
	}
	return alloc
}

// Apply returns a copy of lots with the allocation's takes subtracted.
func Apply(lots []domain.CostLot, alloc domain.Allocation) []domain.CostLot {
	taken := make(map[string]int, len(alloc.Takes))
	for _, take := range alloc.Takes {
		taken[take.LotID] += take.Quantity
	}
	result := make([]domain.CostLot, len(lots))
	copy(result, lots)
	for i := range result {
		if qty, ok := taken[result[i].ID]; ok {
			result[i].CurrentQuantity -= qty
		}
	}
	return result
}

// CompareLotsFIFO orders lots by creation time, then by id.
func CompareLotsFIFO(a domain.CostLot, b domain.CostLot) int {
	if a.CreatedAt.Before(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}
