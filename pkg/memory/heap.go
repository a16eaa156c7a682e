package memory

import (
	"slices"
	"sync"

	"github.com/chazu/regvm/pkg/value"
)

// HeapMemory maps addresses to heap values. Addresses are assigned by the
// loader or by instructions that name them explicitly; nothing is allocated
// or reused implicitly. Access is serialized so several logical threads may
// share one heap.
type HeapMemory struct {
	mu      sync.RWMutex
	entries map[uint64]value.RawType
	budget  *Budget
}

// NewHeapMemory returns an empty heap. budget may be nil.
func NewHeapMemory(budget *Budget) *HeapMemory {
	return &HeapMemory{
		entries: make(map[uint64]value.RawType),
		budget:  budget,
	}
}

// Get returns the value stored at addr. The returned value shares its
// payload with the heap; callers that mutate it must Set it back.
func (h *HeapMemory) Get(addr uint64) (value.RawType, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.entries[addr]
	return v, ok
}

// Set stores v at addr, replacing any previous value. It fails with a
// MaxHeapError when the budget would be exceeded.
func (h *HeapMemory) Set(addr uint64, v value.RawType) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	delta := int64(len(v.Data))
	if old, ok := h.entries[addr]; ok {
		delta -= int64(len(old.Data))
	}
	if err := h.budget.Charge(delta); err != nil {
		return err
	}
	h.entries[addr] = v
	return nil
}

// Delete removes addr. Lifetime management is up to the embedder.
func (h *HeapMemory) Delete(addr uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.entries[addr]; ok {
		h.budget.Charge(-int64(len(old.Data)))
		delete(h.entries, addr)
	}
}

// Len returns the number of live entries.
func (h *HeapMemory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Addresses returns the live addresses in ascending order.
func (h *HeapMemory) Addresses() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	addrs := make([]uint64, 0, len(h.entries))
	for a := range h.entries {
		addrs = append(addrs, a)
	}
	slices.Sort(addrs)
	return addrs
}

// Budget returns the heap's byte budget (possibly nil).
func (h *HeapMemory) Budget() *Budget { return h.budget }
