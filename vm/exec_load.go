package vm

import (
	"github.com/chazu/regvm/pkg/bytecode"
)

// loadExecutor implements LDA..LDY.
type loadExecutor struct {
	reg bytecode.Register
}

func (e loadExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.rejectSelf(e.reg, addr); err != nil {
		return Result{}, err
	}
	v, err := m.resolve(addr)
	if err != nil {
		return Result{}, err
	}
	m.Regs.Set(e.reg, v)
	return Continue, nil
}

// storeExecutor implements STA..STY.
type storeExecutor struct {
	reg bytecode.Register
}

func (e storeExecutor) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.rejectSelf(e.reg, addr); err != nil {
		return Result{}, err
	}
	loc, err := m.target(addr)
	if err != nil {
		return Result{}, err
	}
	if err := m.store(loc, m.Regs.Get(e.reg)); err != nil {
		return Result{}, err
	}
	return Continue, nil
}

// rejectSelf forbids an instruction from addressing its own register
// through the matching Indirect mode.
func (m *Machine) rejectSelf(reg bytecode.Register, addr bytecode.AddressingValue) error {
	if r, ok := addr.IndirectRegister(); ok && r == reg {
		return m.fail(IllegalAddressingValue, "%s cannot address its own register through %s", m.op, addr.Mode)
	}
	return nil
}
