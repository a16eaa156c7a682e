package bytecode

import (
	"fmt"

	"github.com/chazu/regvm/pkg/value"
)

// Register names one of the five register slots.
type Register uint8

const (
	RegA Register = iota
	RegB
	RegC
	RegX
	RegY

	NumRegisters = 5
)

var registerNames = [NumRegisters]string{"A", "B", "C", "X", "Y"}

func (r Register) String() string {
	if r < NumRegisters {
		return registerNames[r]
	}
	return fmt.Sprintf("Register(%d)", uint8(r))
}

// ParseRegister parses "A".."Y".
func ParseRegister(s string) (Register, bool) {
	for i, n := range registerNames {
		if n == s {
			return Register(i), true
		}
	}
	return 0, false
}

// AllRegisters returns A, B, C, X, Y in order.
func AllRegisters() []Register {
	return []Register{RegA, RegB, RegC, RegX, RegY}
}

// AddressingMode is the operand resolution strategy of an instruction.
type AddressingMode uint8

const (
	ModeImplicit AddressingMode = iota
	ModeImmediate
	ModeAbsolute
	ModeAbsoluteIndex
	ModeAbsoluteProperty
	ModeAbsoluteStatic
	ModeIndirectA
	ModeIndirectB
	ModeIndirectC
	ModeIndirectX
	ModeIndirectY

	modeCount
)

var modeNames = [modeCount]string{
	ModeImplicit:         "Implicit",
	ModeImmediate:        "Immediate",
	ModeAbsolute:         "Absolute",
	ModeAbsoluteIndex:    "AbsoluteIndex",
	ModeAbsoluteProperty: "AbsoluteProperty",
	ModeAbsoluteStatic:   "AbsoluteStatic",
	ModeIndirectA:        "IndirectA",
	ModeIndirectB:        "IndirectB",
	ModeIndirectC:        "IndirectC",
	ModeIndirectX:        "IndirectX",
	ModeIndirectY:        "IndirectY",
}

func (m AddressingMode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return fmt.Sprintf("AddressingMode(%d)", uint8(m))
}

// AddressingValue is an instruction operand. Which fields are meaningful
// depends on Mode:
//
//	Immediate         Value
//	Absolute          Pos (frame-relative slot)
//	AbsoluteIndex     Pos (slot holding the array reference), Index (slot holding the index)
//	AbsoluteProperty  Pos (slot holding the reference), Index (literal entry index)
//	AbsoluteStatic    Pos (instruction index whose Immediate is read)
type AddressingValue struct {
	Mode  AddressingMode
	Value value.StaticRawType
	Pos   uint64
	Index uint64
}

// Implicit is the operand of instructions that take none.
func Implicit() AddressingValue {
	return AddressingValue{Mode: ModeImplicit}
}

// Immediate embeds a constant.
func Immediate(v value.StaticRawType) AddressingValue {
	return AddressingValue{Mode: ModeImmediate, Value: v}
}

// Absolute addresses a frame-relative stack slot.
func Absolute(pos uint64) AddressingValue {
	return AddressingValue{Mode: ModeAbsolute, Pos: pos}
}

// AbsoluteIndex addresses entry stack[index] of the heap array referenced by
// stack[ptr]; both slots are frame-relative.
func AbsoluteIndex(ptr, index uint64) AddressingValue {
	return AddressingValue{Mode: ModeAbsoluteIndex, Pos: ptr, Index: index}
}

// AbsoluteProperty addresses the fixed entry index of the value referenced
// by stack[ptr].
func AbsoluteProperty(ptr, index uint64) AddressingValue {
	return AddressingValue{Mode: ModeAbsoluteProperty, Pos: ptr, Index: index}
}

// AbsoluteStatic reads the Immediate operand of another instruction.
func AbsoluteStatic(instruction uint64) AddressingValue {
	return AddressingValue{Mode: ModeAbsoluteStatic, Pos: instruction}
}

// Indirect copies from (or into) a register.
func Indirect(r Register) AddressingValue {
	return AddressingValue{Mode: ModeIndirectA + AddressingMode(r)}
}

// IndirectRegister returns the register named by an Indirect mode.
func (a AddressingValue) IndirectRegister() (Register, bool) {
	if a.Mode >= ModeIndirectA && a.Mode <= ModeIndirectY {
		return Register(a.Mode - ModeIndirectA), true
	}
	return 0, false
}

// String renders the operand in assembler syntax.
func (a AddressingValue) String() string {
	switch a.Mode {
	case ModeImplicit:
		return ""
	case ModeImmediate:
		return "#" + a.Value.String()
	case ModeAbsolute:
		return fmt.Sprintf("$%d", a.Pos)
	case ModeAbsoluteIndex:
		return fmt.Sprintf("$%d[$%d]", a.Pos, a.Index)
	case ModeAbsoluteProperty:
		return fmt.Sprintf("$%d.%d", a.Pos, a.Index)
	case ModeAbsoluteStatic:
		return fmt.Sprintf("@%d", a.Pos)
	}
	if r, ok := a.IndirectRegister(); ok {
		return "%" + r.String()
	}
	return a.Mode.String()
}

// appendBytes appends the mode byte and its operands.
func (a AddressingValue) appendBytes(buf []byte, arch value.Architecture) []byte {
	buf = append(buf, byte(a.Mode))
	switch a.Mode {
	case ModeImmediate:
		buf = a.Value.AppendBytes(buf, arch)
	case ModeAbsolute, ModeAbsoluteStatic:
		buf = arch.AppendPointer(buf, a.Pos)
	case ModeAbsoluteIndex, ModeAbsoluteProperty:
		buf = arch.AppendPointer(buf, a.Pos)
		buf = arch.AppendPointer(buf, a.Index)
	}
	return buf
}

// decodeAddressing reads a mode byte and its operands.
func decodeAddressing(data []byte, arch value.Architecture) (AddressingValue, int, error) {
	if len(data) < 1 {
		return AddressingValue{}, 0, fmt.Errorf("unexpected end of bytecode reading addressing mode")
	}
	a := AddressingValue{Mode: AddressingMode(data[0])}
	if a.Mode >= modeCount {
		return AddressingValue{}, 0, fmt.Errorf("unknown addressing mode %d", data[0])
	}
	pos := 1
	pw := arch.PointerWidth()

	switch a.Mode {
	case ModeImmediate:
		v, n, err := value.DecodeStatic(data[pos:], arch)
		if err != nil {
			return AddressingValue{}, 0, fmt.Errorf("immediate operand: %w", err)
		}
		a.Value = v
		pos += n
	case ModeAbsolute, ModeAbsoluteStatic:
		if len(data) < pos+pw {
			return AddressingValue{}, 0, fmt.Errorf("unexpected end of bytecode reading %s operand", a.Mode)
		}
		a.Pos = arch.ReadPointer(data[pos:])
		pos += pw
	case ModeAbsoluteIndex, ModeAbsoluteProperty:
		if len(data) < pos+2*pw {
			return AddressingValue{}, 0, fmt.Errorf("unexpected end of bytecode reading %s operands", a.Mode)
		}
		a.Pos = arch.ReadPointer(data[pos:])
		a.Index = arch.ReadPointer(data[pos+pw:])
		pos += 2 * pw
	}
	return a, pos, nil
}
