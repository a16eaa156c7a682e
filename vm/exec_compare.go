package vm

import (
	"cmp"
	"math"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// comparisons maps each comparison opcode to its predicate over the
// three-way ordering of B and C.
var comparisons = map[bytecode.Opcode]func(order int) bool{
	bytecode.OpEQ: func(o int) bool { return o == 0 },
	bytecode.OpNE: func(o int) bool { return o != 0 },
	bytecode.OpGT: func(o int) bool { return o > 0 },
	bytecode.OpLT: func(o int) bool { return o < 0 },
	bytecode.OpGQ: func(o int) bool { return o >= 0 },
	bytecode.OpLQ: func(o int) bool { return o <= 0 },
}

// compareExecutor writes Integer 1 or 0 into A for B ? C.
type compareExecutor struct {
	op  bytecode.Opcode
	cmp func(order int) bool
}

func (e compareExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	b, c := m.Regs.Get(bytecode.RegB), m.Regs.Get(bytecode.RegC)
	if !b.Type.Equal(c.Type) {
		return Result{}, m.failAt(UnexpectedType, c.Kind(), 0, "cannot compare %s with %s", b.Kind(), c.Kind())
	}

	var result int64
	if unordered(b) || unordered(c) {
		// NaN compares unequal to everything, itself included.
		if e.op == bytecode.OpNE {
			result = 1
		}
		m.Regs.Set(bytecode.RegA, value.NewInt(result))
		return Continue, nil
	}

	equalityOnly := e.op == bytecode.OpEQ || e.op == bytecode.OpNE
	order, ok := compareValues(b, c, equalityOnly)
	if !ok {
		return Result{}, m.failAt(UnexpectedType, b.Kind(), 0, "%s values have no ordering", b.Kind())
	}
	if e.cmp(order) {
		result = 1
	}
	m.Regs.Set(bytecode.RegA, value.NewInt(result))
	return Continue, nil
}

func unordered(v value.StaticRawType) bool {
	switch v.Kind() {
	case value.Float:
		return math.IsNaN(float64(v.Float()))
	case value.Double:
		return math.IsNaN(v.Double())
	}
	return false
}

// compareValues orders two values of the same kind. Kinds without an
// ordering only support equality, reported as 0 or 1.
func compareValues(b, c value.StaticRawType, equalityOnly bool) (int, bool) {
	switch b.Kind() {
	case value.Integer:
		return cmp.Compare(b.Int(), c.Int()), true
	case value.Float:
		return cmp.Compare(b.Float(), c.Float()), true
	case value.Double:
		return cmp.Compare(b.Double(), c.Double()), true
	case value.Byte:
		return cmp.Compare(b.Byte(), c.Byte()), true
	case value.Char:
		return cmp.Compare(b.Char(), c.Char()), true
	}
	if !equalityOnly {
		return 0, false
	}
	if b.Equal(c) {
		return 0, true
	}
	return 1, true
}
