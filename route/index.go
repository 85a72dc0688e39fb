// Package route holds the per-route registries shared by stream handlers:
// topic interning, fanout tables, partition leaders and client budgets.
//
// Everything here is owned by a single goroutine and does no locking.
package route

// Index bundles the registries of one route.
type Index struct {
	RouteID int64
	Topics  *Topics
	Leaders *Leaders
	Budgets *Budgets
}

// NewIndex creates the registries for routeID.
func NewIndex(routeID int64, allocator BudgetAllocator) *Index {
	return &Index{
		RouteID: routeID,
		Topics:  NewTopics(),
		Leaders: NewLeaders(),
		Budgets: NewBudgets(routeID, allocator),
	}
}

// Indexes holds one Index per route id.
type Indexes struct {
	allocator BudgetAllocator
	byRoute   map[int64]*Index
}

// NewIndexes creates an empty set of indexes sharing allocator.
func NewIndexes(allocator BudgetAllocator) *Indexes {
	return &Indexes{
		allocator: allocator,
		byRoute:   make(map[int64]*Index),
	}
}

// Supply returns the index for routeID, creating it on first use.
func (x *Indexes) Supply(routeID int64) *Index {
	index, ok := x.byRoute[routeID]
	if !ok {
		index = NewIndex(routeID, x.allocator)
		x.byRoute[routeID] = index
	}
	return index
}

// Lookup returns the index for routeID without creating it.
func (x *Indexes) Lookup(routeID int64) (*Index, bool) {
	index, ok := x.byRoute[routeID]
	return index, ok
}

// Remove drops the index for routeID.
func (x *Indexes) Remove(routeID int64) {
	delete(x.byRoute, routeID)
}

// Len returns the number of routes with an index.
func (x *Indexes) Len() int {
	return len(x.byRoute)
}
