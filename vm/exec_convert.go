package vm

import (
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// convFunc converts A, or reports why it cannot.
type convFunc func(a value.StaticRawType) (v value.StaticRawType, reason PanicReason, ok bool)

var conversions = map[bytecode.Opcode]convFunc{
	bytecode.OpA2I: toInteger,
	bytecode.OpA2F: toFloat,
	bytecode.OpA2D: toDouble,
	bytecode.OpA2B: toBool,
	bytecode.OpA2C: toChar,
	bytecode.OpA2O: toByte,
}

// convertExecutor rewrites register A as another kind.
type convertExecutor struct {
	conv convFunc
}

func (e convertExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	a := m.Regs.Get(bytecode.RegA)
	v, reason, ok := e.conv(a)
	if !ok {
		return Result{}, m.failAt(reason, a.Kind(), 0, "%s cannot convert %v", m.op, a)
	}
	m.Regs.Set(bytecode.RegA, v)
	return Continue, nil
}

var failConv = value.StaticRawType{}

// asInt reads the integral kinds as int64.
func asInt(a value.StaticRawType) (int64, bool) {
	switch a.Kind() {
	case value.Integer:
		return a.Int(), true
	case value.Byte:
		return int64(a.Byte()), true
	case value.Char:
		return int64(a.Char()), true
	case value.Bool:
		if a.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// asFloat reads the numeric kinds as float64.
func asFloat(a value.StaticRawType) (float64, bool) {
	switch a.Kind() {
	case value.Float:
		return float64(a.Float()), true
	case value.Double:
		return a.Double(), true
	}
	n, ok := asInt(a)
	return float64(n), ok
}

// truncate converts a float toward zero, failing outside [lo, hi].
func truncate(f float64, lo, hi float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < lo || t > hi {
		return 0, false
	}
	return int64(t), true
}

func toInteger(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	if n, ok := asInt(a); ok {
		return value.NewInt(n), 0, true
	}
	f, ok := asFloat(a)
	if !ok {
		return failConv, UnexpectedType, false
	}
	// 2^63 itself is not representable, so the upper bound is exclusive.
	if f >= math.MaxInt64 {
		return failConv, IntegerOverflow, false
	}
	n, ok := truncate(f, math.MinInt64, math.MaxInt64)
	if !ok {
		return failConv, IntegerOverflow, false
	}
	return value.NewInt(n), 0, true
}

func toFloat(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	f, ok := asFloat(a)
	if !ok {
		return failConv, UnexpectedType, false
	}
	return value.NewFloat(float32(f)), 0, true
}

func toDouble(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	f, ok := asFloat(a)
	if !ok {
		return failConv, UnexpectedType, false
	}
	return value.NewDouble(f), 0, true
}

func toBool(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	switch a.Kind() {
	case value.Integer, value.Byte, value.Char, value.Bool, value.Float, value.Double:
		return value.NewBool(a.Truthy()), 0, true
	}
	return failConv, UnexpectedType, false
}

func toChar(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	n, ok := asInt(a)
	if !ok || a.Kind() == value.Bool {
		return failConv, UnexpectedType, false
	}
	if n < 0 || n > utf8.MaxRune {
		return failConv, IntegerOverflow, false
	}
	return value.NewChar(rune(n)), 0, true
}

func toByte(a value.StaticRawType) (value.StaticRawType, PanicReason, bool) {
	n, ok := asInt(a)
	if !ok {
		f, isFloat := asFloat(a)
		if !isFloat {
			return failConv, UnexpectedType, false
		}
		if n, ok = truncate(f, 0, math.MaxUint8); !ok {
			return failConv, IntegerOverflow, false
		}
	}
	if n < 0 || n > math.MaxUint8 {
		return failConv, IntegerOverflow, false
	}
	return value.NewByte(byte(n)), 0, true
}

// execToString renders A as text, stores it as a String at the operand's
// heap address and leaves a reference to it in A.
func execToString(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	dst, err := m.address(addr)
	if err != nil {
		return Result{}, err
	}
	text, err := m.text(m.Regs.Get(bytecode.RegA))
	if err != nil {
		return Result{}, err
	}
	if err := m.heapSet(dst, value.NewString(text)); err != nil {
		return Result{}, err
	}
	m.Regs.Set(bytecode.RegA, value.NewHeapRef(dst, m.Arch))
	return Continue, nil
}

// text renders a register value. A HeapReference renders the referenced
// heap value.
func (m *Machine) text(a value.StaticRawType) (string, error) {
	switch a.Kind() {
	case value.Integer:
		return strconv.FormatInt(a.Int(), 10), nil
	case value.Float:
		return strconv.FormatFloat(float64(a.Float()), 'g', -1, 32), nil
	case value.Double:
		return strconv.FormatFloat(a.Double(), 'g', -1, 64), nil
	case value.Byte:
		return strconv.Itoa(int(a.Byte())), nil
	case value.Bool:
		return strconv.FormatBool(a.Bool()), nil
	case value.Char:
		return string(a.Char()), nil
	case value.Void, value.Null:
		return a.Kind().String(), nil
	case value.HeapReference:
		raw, err := m.heapValue(a.Uint())
		if err != nil {
			return "", err
		}
		if raw.Kind() == value.String {
			return raw.Text(), nil
		}
		return raw.String(), nil
	}
	return a.String(), nil
}
