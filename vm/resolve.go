package vm

import (
	"errors"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// locationKind says where a store lands.
type locationKind uint8

const (
	locRegister locationKind = iota
	locStack
	locHeapEntry
	locHeapValue
)

// Location is a resolved store target.
type Location struct {
	kind  locationKind
	reg   bytecode.Register
	pos   uint64 // absolute stack position or heap address
	index uint64 // entry index for locHeapEntry
}

// resolve turns an operand into a register value.
func (m *Machine) resolve(addr bytecode.AddressingValue) (value.StaticRawType, error) {
	v, err := m.resolveValue(addr)
	if err == nil && m.tracer != nil {
		m.tracer.TraceResolve(addr, v)
	}
	return v, err
}

func (m *Machine) resolveValue(addr bytecode.AddressingValue) (value.StaticRawType, error) {
	switch addr.Mode {
	case bytecode.ModeImmediate:
		return m.immediate(addr.Value)

	case bytecode.ModeAbsolute:
		slot, abs, err := m.frameSlot(addr.Pos)
		if err != nil {
			return value.StaticRawType{}, err
		}
		return m.promote(slot, abs), nil

	case bytecode.ModeAbsoluteIndex:
		raw, index, err := m.indexedArray(addr)
		if err != nil {
			return value.StaticRawType{}, err
		}
		entry, err := m.entry(raw, index)
		if err != nil {
			return value.StaticRawType{}, err
		}
		return m.promote(entry, raw.addr), nil

	case bytecode.ModeAbsoluteProperty:
		return m.property(addr)

	case bytecode.ModeAbsoluteStatic:
		in, ok := m.Program.At(addr.Pos)
		if !ok {
			return value.StaticRawType{}, m.failAt(IllegalAddressingValue, 0, addr.Pos,
				"static operand refers to instruction %d beyond the program", addr.Pos)
		}
		if in.Addr.Mode != bytecode.ModeImmediate {
			return value.StaticRawType{}, m.failAt(IllegalAddressingValue, 0, addr.Pos,
				"instruction %d has %s operand, want Immediate", addr.Pos, in.Addr.Mode)
		}
		return m.immediate(in.Addr.Value)
	}

	if r, ok := addr.IndirectRegister(); ok {
		return m.Regs.Get(r), nil
	}
	return value.StaticRawType{}, m.fail(IllegalAddressingValue, "%s operand cannot be read", addr.Mode)
}

func (m *Machine) immediate(v value.StaticRawType) (value.StaticRawType, error) {
	if !v.Kind().RegisterStorable() {
		return value.StaticRawType{}, m.failAt(ImmediateUseViolation, v.Kind(), 0,
			"immediate of kind %s is not register storable", v.Kind())
	}
	return v, nil
}

// framePos resolves a frame-relative operand to an absolute stack position.
func (m *Machine) framePos(rel uint64) (uint64, error) {
	abs, ok := m.Calls.CalculateFramePos(rel)
	if !ok {
		return 0, m.failAt(MemoryAccessViolation, 0, rel,
			"frame offset $%d overflows the address space", rel)
	}
	return abs, nil
}

// frameSlot reads a frame-relative stack slot.
func (m *Machine) frameSlot(rel uint64) (value.StaticRawType, uint64, error) {
	abs, err := m.framePos(rel)
	if err != nil {
		return value.StaticRawType{}, 0, err
	}
	slot, err := m.stackSlot(abs, rel)
	return slot, abs, err
}

// stackSlot reads an absolute stack position; rel is the operand as written,
// for diagnostics.
func (m *Machine) stackSlot(abs, rel uint64) (value.StaticRawType, error) {
	slot, ok := m.Stack.Get(abs)
	if !ok {
		return value.StaticRawType{}, m.failAt(MemoryAccessViolation, 0, abs,
			"stack position %d is outside stack memory", abs)
	}
	if slot.IsVoid() {
		return value.StaticRawType{}, m.failAt(NullReference, value.Void, rel, "stack slot $%d is empty", rel)
	}
	return slot, nil
}

// promote turns a value that cannot live in a register into a heap
// reference. A Class value already names its heap entry; any other kind is
// referenced through where it was found: its absolute stack position, or
// the address of the containing heap value.
func (m *Machine) promote(v value.StaticRawType, where uint64) value.StaticRawType {
	if v.Kind().RegisterStorable() {
		return v
	}
	if v.Kind() == value.Class {
		return value.NewHeapRef(v.Uint(), m.Arch)
	}
	return value.NewHeapRef(where, m.Arch)
}

// heapValue dereferences a heap address.
func (m *Machine) heapValue(addr uint64) (value.RawType, error) {
	raw, ok := m.Heap.Get(addr)
	if !ok {
		return value.RawType{}, m.failAt(MemoryAccessViolation, value.HeapReference, addr,
			"heap address 0x%X is not live", addr)
	}
	return raw, nil
}

// index reads a frame-relative slot that must hold a non-negative Integer.
func (m *Machine) index(rel uint64) (uint64, error) {
	slot, _, err := m.frameSlot(rel)
	if err != nil {
		return 0, err
	}
	if slot.Kind() != value.Integer {
		return 0, m.failAt(UnexpectedType, slot.Kind(), rel, "index slot $%d holds %s, want Integer", rel, slot.Kind())
	}
	if slot.Int() < 0 {
		return 0, m.failAt(CannotIndexWithNegative, value.Integer, rel, "index %d is negative", slot.Int())
	}
	return uint64(slot.Int()), nil
}

// indexedArray resolves the two slots of an AbsoluteIndex operand to the
// heap array and the entry index.
func (m *Machine) indexedArray(addr bytecode.AddressingValue) (heapRef, uint64, error) {
	index, err := m.index(addr.Index)
	if err != nil {
		return heapRef{}, 0, err
	}
	ptr, _, err := m.frameSlot(addr.Pos)
	if err != nil {
		return heapRef{}, 0, err
	}
	if ptr.Kind() != value.HeapReference {
		return heapRef{}, 0, m.failAt(UnexpectedType, ptr.Kind(), addr.Pos,
			"slot $%d holds %s, want HeapReference", addr.Pos, ptr.Kind())
	}
	raw, err := m.heapValue(ptr.Uint())
	if err != nil {
		return heapRef{}, 0, err
	}
	if raw.Kind() != value.Array {
		return heapRef{}, 0, m.failAt(UnexpectedType, raw.Kind(), ptr.Uint(),
			"heap value at 0x%X is %s, want Array", ptr.Uint(), raw.Kind())
	}
	return heapRef{addr: ptr.Uint(), raw: raw}, index, nil
}

type heapRef struct {
	addr uint64
	raw  value.RawType
}

// entry decodes one entry of a heap Array or Class with bounds and width
// checks.
func (m *Machine) entry(ref heapRef, index uint64) (value.StaticRawType, error) {
	count, err := ref.raw.EntryCount(m.Arch)
	if err != nil {
		return value.StaticRawType{}, m.failAt(ArraySizeCorruption, ref.raw.Kind(), ref.addr, "%v", err)
	}
	if index >= uint64(count) {
		return value.StaticRawType{}, m.failAt(IndexOutOfBounds, ref.raw.Kind(), index,
			"index %d out of bounds for %s of %d entries at 0x%X", index, ref.raw.Kind(), count, ref.addr)
	}
	v, err := ref.raw.Entry(index, m.Arch)
	if err != nil {
		if errors.Is(err, value.ErrIndexOutOfRange) {
			return value.StaticRawType{}, m.failAt(IndexOutOfBounds, ref.raw.Kind(), index, "%v", err)
		}
		return value.StaticRawType{}, m.failAt(ArraySizeCorruption, ref.raw.Kind(), ref.addr, "%v", err)
	}
	return v, nil
}

// property resolves an AbsoluteProperty read.
func (m *Machine) property(addr bytecode.AddressingValue) (value.StaticRawType, error) {
	ptr, _, err := m.frameSlot(addr.Pos)
	if err != nil {
		return value.StaticRawType{}, err
	}

	switch ptr.Kind() {
	case value.Class, value.HeapReference:
		ref := heapRef{addr: ptr.Uint()}
		if ref.raw, err = m.heapValue(ref.addr); err != nil {
			return value.StaticRawType{}, err
		}
		switch ref.raw.Kind() {
		case value.Array, value.Class:
			v, err := m.entry(ref, addr.Index)
			if err != nil {
				return value.StaticRawType{}, err
			}
			return m.promote(v, ref.addr), nil
		}
		if addr.Index != 0 {
			return value.StaticRawType{}, m.failAt(IndexOutOfBounds, ref.raw.Kind(), addr.Index,
				"%s value has only property 0", ref.raw.Kind())
		}
		return value.NewHeapRef(ref.addr, m.Arch), nil

	case value.StaticArray:
		pos, err := m.staticElement(ptr, addr.Index)
		if err != nil {
			return value.StaticRawType{}, err
		}
		slot, err := m.stackSlot(pos, pos)
		if err != nil {
			return value.StaticRawType{}, err
		}
		return m.promote(slot, pos), nil
	}

	return value.StaticRawType{}, m.failAt(UnexpectedType, ptr.Kind(), addr.Pos,
		"slot $%d holds %s, want Class, HeapReference or StaticArray", addr.Pos, ptr.Kind())
}

// staticLength reads the element count of a stack-resident static array.
func (m *Machine) staticLength(ptr value.StaticRawType) (uint64, error) {
	start := ptr.Uint()
	count, ok := m.Stack.Get(start + 1)
	if !ok {
		return 0, m.failAt(MemoryAccessViolation, value.StaticArray, start+1,
			"static array header at %d is outside stack memory", start+1)
	}
	if count.Kind() != value.Integer || count.Int() < 0 {
		return 0, m.failAt(ArraySizeCorruption, count.Kind(), start+1,
			"static array at %d has count slot %v", start, count)
	}
	return uint64(count.Int()), nil
}

// staticElement returns the absolute stack position of element index of
// the static array described by ptr.
func (m *Machine) staticElement(ptr value.StaticRawType, index uint64) (uint64, error) {
	n, err := m.staticLength(ptr)
	if err != nil {
		return 0, err
	}
	if index >= n {
		return 0, m.failAt(IndexOutOfBounds, value.StaticArray, index,
			"index %d out of bounds for static array of %d elements", index, n)
	}
	return ptr.Uint() + 2 + index, nil
}

// ---------------------------------------------------------------------------
// Store targets
// ---------------------------------------------------------------------------

// target resolves an operand into a store location.
func (m *Machine) target(addr bytecode.AddressingValue) (Location, error) {
	switch addr.Mode {
	case bytecode.ModeAbsolute:
		abs, err := m.framePos(addr.Pos)
		if err != nil {
			return Location{}, err
		}
		if abs >= uint64(m.Stack.Len()) {
			return Location{}, m.failAt(MemoryAccessViolation, 0, abs,
				"stack position %d is outside stack memory", abs)
		}
		return Location{kind: locStack, pos: abs}, nil

	case bytecode.ModeAbsoluteIndex:
		ref, index, err := m.indexedArray(addr)
		if err != nil {
			return Location{}, err
		}
		if _, err := m.entry(ref, index); err != nil {
			return Location{}, err
		}
		return Location{kind: locHeapEntry, pos: ref.addr, index: index}, nil

	case bytecode.ModeAbsoluteProperty:
		return m.propertyTarget(addr)
	}

	if r, ok := addr.IndirectRegister(); ok {
		return Location{kind: locRegister, reg: r}, nil
	}
	return Location{}, m.fail(IllegalAddressingValue, "%s operand cannot be written", addr.Mode)
}

func (m *Machine) propertyTarget(addr bytecode.AddressingValue) (Location, error) {
	ptr, _, err := m.frameSlot(addr.Pos)
	if err != nil {
		return Location{}, err
	}

	switch ptr.Kind() {
	case value.Class, value.HeapReference:
		ref := heapRef{addr: ptr.Uint()}
		if ref.raw, err = m.heapValue(ref.addr); err != nil {
			return Location{}, err
		}
		switch ref.raw.Kind() {
		case value.Array, value.Class:
			if _, err := m.entry(ref, addr.Index); err != nil {
				return Location{}, err
			}
			return Location{kind: locHeapEntry, pos: ref.addr, index: addr.Index}, nil
		}
		if addr.Index != 0 {
			return Location{}, m.failAt(IndexOutOfBounds, ref.raw.Kind(), addr.Index,
				"%s value has only property 0", ref.raw.Kind())
		}
		return Location{kind: locHeapValue, pos: ref.addr}, nil

	case value.StaticArray:
		pos, err := m.staticElement(ptr, addr.Index)
		if err != nil {
			return Location{}, err
		}
		if pos >= uint64(m.Stack.Len()) {
			return Location{}, m.failAt(MemoryAccessViolation, value.StaticArray, pos,
				"static array element at %d is outside stack memory", pos)
		}
		return Location{kind: locStack, pos: pos}, nil
	}

	return Location{}, m.failAt(UnexpectedType, ptr.Kind(), addr.Pos,
		"slot $%d holds %s, want Class, HeapReference or StaticArray", addr.Pos, ptr.Kind())
}

// store writes v to a resolved location.
func (m *Machine) store(loc Location, v value.StaticRawType) error {
	switch loc.kind {
	case locRegister:
		m.Regs.Set(loc.reg, v)
	case locStack:
		if !m.Stack.Set(loc.pos, v) {
			return m.failAt(MemoryAccessViolation, v.Kind(), loc.pos, "stack position %d is outside stack memory", loc.pos)
		}
	case locHeapEntry:
		raw, err := m.heapValue(loc.pos)
		if err != nil {
			return err
		}
		raw = raw.Clone()
		if err := raw.SetEntry(loc.index, v, m.Arch); err != nil {
			return m.failAt(ArraySizeCorruption, raw.Kind(), loc.pos, "%v", err)
		}
		return m.heapSet(loc.pos, raw)
	case locHeapValue:
		return m.heapSet(loc.pos, v.Widen(m.Arch))
	}
	return nil
}

// address reads an operand that names a heap address: an Integer or a
// HeapReference.
func (m *Machine) address(addr bytecode.AddressingValue) (uint64, error) {
	v, err := m.resolve(addr)
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case value.HeapReference:
		return v.Uint(), nil
	case value.Integer:
		if v.Int() < 0 {
			return 0, m.failAt(CannotIndexWithNegative, value.Integer, 0, "heap address %d is negative", v.Int())
		}
		return uint64(v.Int()), nil
	}
	return 0, m.failAt(UnexpectedType, v.Kind(), 0, "operand holds %s, want an address", v.Kind())
}
