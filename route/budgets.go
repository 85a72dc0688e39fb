package route

// BudgetID identifies a client budget handed out by a BudgetAllocator.
type BudgetID int64

// NoBudget is the id of an absent budget.
const NoBudget BudgetID = 0

// BudgetAllocator hands out and reclaims client budgets. Credit accounting
// itself lives behind this interface.
type BudgetAllocator interface {
	Acquire(route int64, topic TopicKey) BudgetID
	Release(id BudgetID)
}

type budget struct {
	id   BudgetID
	refs int
}

// Budgets shares one client budget per topic of a route between all its users.
type Budgets struct {
	route     int64
	allocator BudgetAllocator
	budgets   map[TopicKey]*budget
}

// NewBudgets creates an empty set. A nil allocator hands out NoBudget.
func NewBudgets(route int64, allocator BudgetAllocator) *Budgets {
	return &Budgets{
		route:     route,
		allocator: allocator,
		budgets:   make(map[TopicKey]*budget),
	}
}

// Acquire returns the budget for topic, allocating it for the first user.
func (b *Budgets) Acquire(topic TopicKey) BudgetID {
	bud, ok := b.budgets[topic]
	if !ok {
		bud = &budget{id: NoBudget}
		if b.allocator != nil {
			bud.id = b.allocator.Acquire(b.route, topic)
		}
		b.budgets[topic] = bud
	}
	bud.refs++
	return bud.id
}

// Release drops one user of the budget for topic, returning it to the allocator after the last.
func (b *Budgets) Release(topic TopicKey) {
	bud, ok := b.budgets[topic]
	if !ok {
		return
	}
	bud.refs--
	if bud.refs > 0 {
		return
	}
	delete(b.budgets, topic)
	if b.allocator != nil && bud.id != NoBudget {
		b.allocator.Release(bud.id)
	}
}
