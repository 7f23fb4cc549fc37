package storage

import (
	"sort"

	"github.com/raykavin/matchbook/core"
	"github.com/samber/lo"
)

// applyFilters narrows a result set in memory. The SQL backend pushes the
// heavy predicates (user, pair, status) into WHERE clauses and only uses this
// for the optional core.OrderFilter arguments.
func applyFilters(orders []*core.Order, filters []core.OrderFilter) []*core.Order {
	if len(filters) == 0 {
		return orders
	}
	return lo.Filter(orders, func(order *core.Order, _ int) bool {
		for _, filter := range filters {
			if !filter(*order) {
				return false
			}
		}
		return true
	})
}

// sortPriceTime orders candidates by price-time priority for the given side:
// best price first (descending for BUY, ascending for SELL), ties broken by
// created_at then id ascending.
func sortPriceTime(orders []*core.Order, side core.SideType) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if cmp := a.Price.Cmp(b.Price); cmp != 0 {
			if side == core.SideTypeBuy {
				return cmp > 0
			}
			return cmp < 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// sortNewestFirst orders a user's history by created_at descending, ties by
// id descending.
func sortNewestFirst(orders []*core.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
