package vm

import (
	"math"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// arithFunc computes b op c for two values of the same kind.
type arithFunc func(m *Machine, b, c value.StaticRawType) (value.StaticRawType, error)

var binaryArithmetic = map[bytecode.Opcode]arithFunc{
	bytecode.OpADD: numeric(checkedAdd, func(b, c float64) float64 { return b + c }),
	bytecode.OpSUB: numeric(checkedSub, func(b, c float64) float64 { return b - c }),
	bytecode.OpMUL: numeric(checkedMul, func(b, c float64) float64 { return b * c }),
	bytecode.OpDIV: numeric(checkedDiv, func(b, c float64) float64 { return b / c }),
	bytecode.OpMOD: numeric(checkedMod, math.Mod),
	bytecode.OpEXP: numeric(checkedExp, math.Pow),
	bytecode.OpAND: logical(func(b, c bool) bool { return b && c }, func(b, c uint64) uint64 { return b & c }),
	bytecode.OpOR:  logical(func(b, c bool) bool { return b || c }, func(b, c uint64) uint64 { return b | c }),
}

// binaryExecutor implements A = B op C.
type binaryExecutor struct {
	op bytecode.Opcode
	fn arithFunc
}

func (e binaryExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	b, c := m.Regs.Get(bytecode.RegB), m.Regs.Get(bytecode.RegC)
	if !b.Type.Equal(c.Type) {
		return Result{}, m.failAt(UnexpectedType, c.Kind(), 0, "%s of %s and %s", e.op, b.Kind(), c.Kind())
	}
	v, err := e.fn(m, b, c)
	if err != nil {
		return Result{}, err
	}
	m.Regs.Set(bytecode.RegA, v)
	return Continue, nil
}

// stepExecutor implements INC and DEC on A.
type stepExecutor struct {
	delta int64
}

func (e stepExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	a := m.Regs.Get(bytecode.RegA)
	var one value.StaticRawType
	switch a.Kind() {
	case value.Integer:
		one = value.NewInt(1)
	case value.Byte:
		one = value.NewByte(1)
	case value.Float:
		one = value.NewFloat(1)
	case value.Double:
		one = value.NewDouble(1)
	default:
		return Result{}, m.failAt(UnexpectedType, a.Kind(), 0, "%s of %s", m.op, a.Kind())
	}

	fn := binaryArithmetic[bytecode.OpADD]
	if e.delta < 0 {
		fn = binaryArithmetic[bytecode.OpSUB]
	}
	v, err := fn(m, a, one)
	if err != nil {
		return Result{}, err
	}
	m.Regs.Set(bytecode.RegA, v)
	return Continue, nil
}

// ---------------------------------------------------------------------------
// Numeric kernels
// ---------------------------------------------------------------------------

type intOp func(b, c int64) (int64, PanicReason, bool)

// numeric builds an arithFunc: integers and bytes use the checked integer
// kernel, floats and doubles use IEEE arithmetic.
func numeric(ints intOp, floats func(b, c float64) float64) arithFunc {
	return func(m *Machine, b, c value.StaticRawType) (value.StaticRawType, error) {
		switch b.Kind() {
		case value.Integer:
			r, reason, ok := ints(b.Int(), c.Int())
			if !ok {
				return value.StaticRawType{}, m.failAt(reason, value.Integer, 0, "%s(%d, %d)", m.op, b.Int(), c.Int())
			}
			return value.NewInt(r), nil
		case value.Byte:
			r, reason, ok := ints(int64(b.Byte()), int64(c.Byte()))
			if ok && (r < 0 || r > math.MaxUint8) {
				reason, ok = IntegerOverflow, false
			}
			if !ok {
				return value.StaticRawType{}, m.failAt(reason, value.Byte, 0, "%s(%d, %d)", m.op, b.Byte(), c.Byte())
			}
			return value.NewByte(byte(r)), nil
		case value.Float:
			return value.NewFloat(float32(floats(float64(b.Float()), float64(c.Float())))), nil
		case value.Double:
			return value.NewDouble(floats(b.Double(), c.Double())), nil
		}
		return value.StaticRawType{}, m.failAt(UnexpectedType, b.Kind(), 0, "%s is not defined on %s", m.op, b.Kind())
	}
}

// logical builds AND/OR: logical on Bool, bitwise on Integer and Byte.
func logical(bools func(b, c bool) bool, bits func(b, c uint64) uint64) arithFunc {
	return func(m *Machine, b, c value.StaticRawType) (value.StaticRawType, error) {
		switch b.Kind() {
		case value.Bool:
			return value.NewBool(bools(b.Bool(), c.Bool())), nil
		case value.Integer:
			return value.NewInt(int64(bits(b.Uint(), c.Uint()))), nil
		case value.Byte:
			return value.NewByte(byte(bits(uint64(b.Byte()), uint64(c.Byte())))), nil
		}
		return value.StaticRawType{}, m.failAt(UnexpectedType, b.Kind(), 0, "%s is not defined on %s", m.op, b.Kind())
	}
}

func checkedAdd(b, c int64) (int64, PanicReason, bool) {
	r := b + c
	if (c > 0 && r < b) || (c < 0 && r > b) {
		return 0, IntegerOverflow, false
	}
	return r, 0, true
}

func checkedSub(b, c int64) (int64, PanicReason, bool) {
	r := b - c
	if (c > 0 && r > b) || (c < 0 && r < b) {
		return 0, IntegerOverflow, false
	}
	return r, 0, true
}

func checkedMul(b, c int64) (int64, PanicReason, bool) {
	if b == 0 || c == 0 {
		return 0, 0, true
	}
	r := b * c
	if r/c != b || (b == -1 && c == math.MinInt64) || (c == -1 && b == math.MinInt64) {
		return 0, IntegerOverflow, false
	}
	return r, 0, true
}

func checkedDiv(b, c int64) (int64, PanicReason, bool) {
	if c == 0 {
		return 0, DivisionByZero, false
	}
	if b == math.MinInt64 && c == -1 {
		return 0, IntegerOverflow, false
	}
	return b / c, 0, true
}

func checkedMod(b, c int64) (int64, PanicReason, bool) {
	if c == 0 {
		return 0, DivisionByZero, false
	}
	if c == -1 {
		return 0, 0, true
	}
	return b % c, 0, true
}

func checkedExp(b, c int64) (int64, PanicReason, bool) {
	if c < 0 {
		return 0, NegativeExponent, false
	}
	result := int64(1)
	for c > 0 {
		if c&1 == 1 {
			var ok bool
			if result, _, ok = checkedMul(result, b); !ok {
				return 0, IntegerOverflow, false
			}
		}
		c >>= 1
		if c > 0 {
			var ok bool
			if b, _, ok = checkedMul(b, b); !ok {
				return 0, IntegerOverflow, false
			}
		}
	}
	return result, 0, true
}
