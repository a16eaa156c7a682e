package memory

import "fmt"

// Budget caps the number of payload bytes the heap may hold. A nil budget
// or a zero limit is unlimited.
type Budget struct {
	limit int64
	used  int64
}

// NewBudget returns a budget of limit bytes.
func NewBudget(limit int64) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

func (b *Budget) Limit() int64 {
	if b == nil {
		return 0
	}
	return b.limit
}

func (b *Budget) Used() int64 {
	if b == nil {
		return 0
	}
	return b.used
}

// MaxHeapError reports a heap write that would exceed the budget.
type MaxHeapError struct {
	Limit int64
	Need  int64
}

func (e MaxHeapError) Error() string {
	return fmt.Sprintf("max heap exceeded (%d bytes, %d requested)", e.Limit, e.Need)
}

// Charge adjusts usage by delta bytes. Releases (negative delta) always
// succeed.
func (b *Budget) Charge(delta int64) error {
	if b == nil {
		return nil
	}
	if delta <= 0 {
		b.used = max(b.used+delta, 0)
		return nil
	}
	if b.limit > 0 && b.used+delta > b.limit {
		return MaxHeapError{Limit: b.limit, Need: delta}
	}
	b.used += delta
	return nil
}
