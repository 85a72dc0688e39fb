package route

import "github.com/CefBoud/kafkamux/metrics"

type heldBudget struct {
	route int64
	topic TopicKey
}

// LocalAllocator hands out budget ids in process and tracks which are held.
type LocalAllocator struct {
	next BudgetID
	held map[BudgetID]heldBudget
}

// NewLocalAllocator creates an allocator with no budgets held.
func NewLocalAllocator() *LocalAllocator {
	return &LocalAllocator{held: make(map[BudgetID]heldBudget)}
}

// Acquire returns a fresh budget id for topic on route.
func (a *LocalAllocator) Acquire(route int64, topic TopicKey) BudgetID {
	a.next++
	a.held[a.next] = heldBudget{route: route, topic: topic}
	metrics.Gauge(metrics.BudgetsHeld, float32(len(a.held)))
	return a.next
}

// Release returns id. Unknown ids are ignored.
func (a *LocalAllocator) Release(id BudgetID) {
	if _, ok := a.held[id]; !ok {
		return
	}
	delete(a.held, id)
	metrics.Gauge(metrics.BudgetsHeld, float32(len(a.held)))
}

// Held returns the number of budgets currently held.
func (a *LocalAllocator) Held() int {
	return len(a.held)
}
