// Package memory implements the two VM memory regions: a fixed-size stack of
// 8-byte slots addressed by absolute position, and a heap of variable-length
// values keyed by externally assigned addresses.
package memory

import "github.com/chazu/regvm/pkg/value"

// StackMemory is a linear array of static slots. A Void slot holds no value.
type StackMemory struct {
	slots []value.StaticRawType
}

// NewStackMemory allocates size Void slots.
func NewStackMemory(size int) *StackMemory {
	s := &StackMemory{slots: make([]value.StaticRawType, size)}
	s.Clear(0, size)
	return s
}

// Len returns the number of slots.
func (s *StackMemory) Len() int { return len(s.slots) }

// Get returns the slot at an absolute position. ok is false when pos is out
// of range.
func (s *StackMemory) Get(pos uint64) (value.StaticRawType, bool) {
	if pos >= uint64(len(s.slots)) {
		return value.StaticRawType{}, false
	}
	return s.slots[pos], true
}

// Set writes the slot at an absolute position and reports whether pos was in
// range.
func (s *StackMemory) Set(pos uint64, v value.StaticRawType) bool {
	if pos >= uint64(len(s.slots)) {
		return false
	}
	s.slots[pos] = v
	return true
}

// Clear resets n slots starting at from to Void. The range is clamped to the
// stack bounds.
func (s *StackMemory) Clear(from, n int) {
	if from < 0 {
		n += from
		from = 0
	}
	end := min(from+n, len(s.slots))
	for i := from; i < end; i++ {
		s.slots[i] = value.VoidValue()
	}
}

// Snapshot copies the slots in [from, from+n) for tooling. The range is
// clamped to the stack bounds.
func (s *StackMemory) Snapshot(from, n int) []value.StaticRawType {
	from = max(from, 0)
	end := min(from+n, len(s.slots))
	if from >= end {
		return nil
	}
	out := make([]value.StaticRawType, end-from)
	copy(out, s.slots[from:end])
	return out
}
