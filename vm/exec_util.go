package vm

import (
	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

func execNop(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	return Continue, nil
}

// execPushA pushes A onto the auxiliary stack.
func execPushA(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	m.Aux = append(m.Aux, m.Regs.Get(bytecode.RegA))
	return Continue, nil
}

// execPopS pops the auxiliary stack into the operand target.
func execPopS(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	loc, err := m.target(addr)
	if err != nil {
		return Result{}, err
	}
	if len(m.Aux) == 0 {
		return Result{}, m.fail(NullReference, "auxiliary stack is empty")
	}
	v := m.Aux[len(m.Aux)-1]
	m.Aux = m.Aux[:len(m.Aux)-1]
	if err := m.store(loc, v); err != nil {
		return Result{}, err
	}
	return Continue, nil
}

// execCopy duplicates the heap value referenced by A at the operand address
// and points A at the copy.
func execCopy(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	a := m.Regs.Get(bytecode.RegA)
	if a.Kind() != value.HeapReference {
		return Result{}, m.failAt(UnexpectedType, a.Kind(), 0, "ACP source holds %s, want HeapReference", a.Kind())
	}
	src, err := m.heapValue(a.Uint())
	if err != nil {
		return Result{}, err
	}
	dst, err := m.address(addr)
	if err != nil {
		return Result{}, err
	}
	if err := m.heapSet(dst, src.Clone()); err != nil {
		return Result{}, err
	}
	m.Regs.Set(bytecode.RegA, value.NewHeapRef(dst, m.Arch))
	return Continue, nil
}

// maxArrayEntries caps a single AOL allocation.
const maxArrayEntries = 1 << 24

// execAllocate places an Array of B Void entries at the operand address and
// points A at it.
func execAllocate(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	b := m.Regs.Get(bytecode.RegB)
	if b.Kind() != value.Integer {
		return Result{}, m.failAt(UnexpectedType, b.Kind(), 0, "AOL length holds %s, want Integer", b.Kind())
	}
	if b.Int() < 0 {
		return Result{}, m.failAt(CannotIndexWithNegative, value.Integer, 0, "AOL length %d is negative", b.Int())
	}
	dst, err := m.address(addr)
	if err != nil {
		return Result{}, err
	}

	n := b.Int()
	limit := int64(maxArrayEntries)
	if budget := m.Heap.Budget(); budget != nil && budget.Limit() > 0 {
		limit = min(limit, budget.Limit()/int64(value.StaticLen(m.Arch)))
	}
	if n > limit {
		return Result{}, m.failAt(MemoryAccessViolation, value.Array, dst, "AOL of %d entries exceeds the limit of %d", n, limit)
	}
	entries := make([]value.StaticRawType, n)
	for i := range entries {
		entries[i] = value.VoidValue()
	}
	if err := m.heapSet(dst, value.NewArray(entries, m.Arch)); err != nil {
		return Result{}, err
	}
	m.Regs.Set(bytecode.RegA, value.NewHeapRef(dst, m.Arch))
	return Continue, nil
}

// execLen sets A to the length of the operand's array, class, string or
// stack-resident static array.
func execLen(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if addr.Mode == bytecode.ModeAbsolute {
		abs, err := m.framePos(addr.Pos)
		if err != nil {
			return Result{}, err
		}
		if slot, ok := m.Stack.Get(abs); ok && slot.Kind() == value.StaticArray {
			n, err := m.staticLength(slot)
			if err != nil {
				return Result{}, err
			}
			m.Regs.Set(bytecode.RegA, value.NewInt(int64(n)))
			return Continue, nil
		}
	}

	v, err := m.resolve(addr)
	if err != nil {
		return Result{}, err
	}
	if v.Kind() != value.HeapReference {
		return Result{}, m.failAt(UnexpectedType, v.Kind(), 0, "LEN operand holds %s, want a reference", v.Kind())
	}
	raw, err := m.heapValue(v.Uint())
	if err != nil {
		return Result{}, err
	}

	var n int
	switch raw.Kind() {
	case value.String:
		n = raw.CharCount()
	case value.Array, value.Class:
		if n, err = raw.EntryCount(m.Arch); err != nil {
			return Result{}, m.failAt(ArraySizeCorruption, raw.Kind(), v.Uint(), "%v", err)
		}
	default:
		return Result{}, m.failAt(UnexpectedType, raw.Kind(), v.Uint(), "%s has no length", raw.Kind())
	}
	m.Regs.Set(bytecode.RegA, value.NewInt(int64(n)))
	return Continue, nil
}
