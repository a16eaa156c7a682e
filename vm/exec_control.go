package vm

import (
	"errors"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// jumpTarget resolves a CALL/JMP operand to an instruction index. An
// Integer is the index itself; a HeapReference must name a Function.
func (m *Machine) jumpTarget(addr bytecode.AddressingValue) (uint64, error) {
	v, err := m.resolve(addr)
	if err != nil {
		return 0, err
	}
	switch v.Kind() {
	case value.Integer:
		if v.Int() < 0 {
			return 0, m.failAt(CannotIndexWithNegative, value.Integer, 0, "jump target %d is negative", v.Int())
		}
		return uint64(v.Int()), nil
	case value.HeapReference:
		fn, err := m.heapValue(v.Uint())
		if err != nil {
			return 0, err
		}
		if fn.Kind() != value.Function {
			return 0, m.failAt(UnexpectedType, fn.Kind(), v.Uint(), "heap value at 0x%X is %s, want Function", v.Uint(), fn.Kind())
		}
		return fn.Uint(), nil
	}
	return 0, m.failAt(UnexpectedType, v.Kind(), 0, "jump target holds %s", v.Kind())
}

// execCall advances the caller past the call, then pushes a frame at the
// target whose window starts cleared.
func execCall(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	target, err := m.jumpTarget(addr)
	if err != nil {
		return Result{}, err
	}

	caller := m.Calls.Top()
	caller.PC++

	name := m.frameName(target)
	frame, err := m.Calls.Push(name, target)
	if err != nil {
		caller.PC--
		if errors.Is(err, ErrStackOverflow) {
			return Result{}, m.fail(StackOverflow, "%v", err)
		}
		return Result{}, err
	}
	m.Stack.Clear(int(frame.Base), int(m.Calls.FrameSize()))
	if m.profiler != nil {
		m.profiler.RecordCall(name, target)
	}
	return Jumped, nil
}

// execRet pops the current frame. Returning from the outermost frame ends
// the thread successfully.
func execRet(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	m.Calls.Pop()
	if m.Calls.Depth() == 0 {
		return Halt(ExitSuccess), nil
	}
	return Jumped, nil
}

func execJmp(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	target, err := m.jumpTarget(addr)
	if err != nil {
		return Result{}, err
	}
	m.Calls.Top().PC = target
	return Jumped, nil
}

// execJmpA jumps when A is truthy.
func execJmpA(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	target, err := m.jumpTarget(addr)
	if err != nil {
		return Result{}, err
	}
	if !m.Regs.Get(bytecode.RegA).Truthy() {
		return Continue, nil
	}
	m.Calls.Top().PC = target
	return Jumped, nil
}

func execBrk(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	if err := m.requireImplicit(addr); err != nil {
		return Result{}, err
	}
	return Break, nil
}

// execCallNative invokes a registered native function by id.
func execCallNative(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	v, err := m.resolve(addr)
	if err != nil {
		return Result{}, err
	}
	if v.Kind() != value.Integer {
		return Result{}, m.failAt(UnexpectedType, v.Kind(), 0, "native id holds %s, want Integer", v.Kind())
	}
	native, ok := m.Natives.Lookup(v.Int())
	if !ok {
		return Result{}, m.failAt(NativeFailure, value.Integer, uint64(v.Int()), "no native function with id %d", v.Int())
	}
	if err := native.Fn(m); err != nil {
		var p *ThreadPanic
		if errors.As(err, &p) {
			return Result{}, p
		}
		return Result{}, m.fail(NativeFailure, "%s: %v", native.Name, err)
	}
	return Continue, nil
}
