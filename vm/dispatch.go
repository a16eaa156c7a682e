package vm

import (
	"github.com/chazu/regvm/pkg/bytecode"
)

// Action tells the loop what to do after an executor returns.
type Action uint8

const (
	// ActionContinue advances the program counter.
	ActionContinue Action = iota
	// ActionJumped leaves the program counter as the executor set it.
	ActionJumped
	// ActionBreak advances the program counter and pauses the thread.
	ActionBreak
	// ActionHalt terminates the thread with Result.Exit.
	ActionHalt
)

// Result is an executor's continuation.
type Result struct {
	Action Action
	Exit   ExitCode
}

var (
	Continue = Result{Action: ActionContinue}
	Jumped   = Result{Action: ActionJumped}
	Break    = Result{Action: ActionBreak}
)

// Halt returns a result that stops the thread with code.
func Halt(code ExitCode) Result {
	return Result{Action: ActionHalt, Exit: code}
}

// Executor implements one opcode.
type Executor interface {
	Execute(m *Machine, addr bytecode.AddressingValue) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(m *Machine, addr bytecode.AddressingValue) (Result, error)

func (f ExecutorFunc) Execute(m *Machine, addr bytecode.AddressingValue) (Result, error) {
	return f(m, addr)
}

// Handler is a dispatch table entry. Location is reported in panics raised
// by the executor.
type Handler struct {
	Location string
	Exec     Executor
}

// DispatchTable maps every opcode byte to its executor.
type DispatchTable [256]*Handler

// Lookup returns the executor for op, or nil.
func (d *DispatchTable) Lookup(op bytecode.Opcode) *Handler {
	return d[op]
}

func (d *DispatchTable) register(op bytecode.Opcode, location string, exec Executor) {
	d[op] = &Handler{Location: location, Exec: exec}
}

// defaultDispatch is shared by all threads; it is never mutated after init.
var defaultDispatch = newDispatchTable()

func newDispatchTable() *DispatchTable {
	d := &DispatchTable{}

	d.register(bytecode.OpNop, "exec_util.go:NOP", ExecutorFunc(execNop))

	for _, r := range bytecode.AllRegisters() {
		d.register(bytecode.OpLDA+bytecode.Opcode(r), "exec_load.go:LD"+r.String(), loadExecutor{reg: r})
		d.register(bytecode.OpSTA+bytecode.Opcode(r), "exec_load.go:ST"+r.String(), storeExecutor{reg: r})
	}

	for op, cmp := range comparisons {
		d.register(op, "exec_compare.go:"+op.String(), compareExecutor{op: op, cmp: cmp})
	}

	for op, fn := range binaryArithmetic {
		d.register(op, "exec_arith.go:"+op.String(), binaryExecutor{op: op, fn: fn})
	}
	d.register(bytecode.OpINC, "exec_arith.go:INC", stepExecutor{delta: 1})
	d.register(bytecode.OpDEC, "exec_arith.go:DEC", stepExecutor{delta: -1})

	d.register(bytecode.OpCALL, "exec_control.go:CALL", ExecutorFunc(execCall))
	d.register(bytecode.OpRET, "exec_control.go:RET", ExecutorFunc(execRet))
	d.register(bytecode.OpJMP, "exec_control.go:JMP", ExecutorFunc(execJmp))
	d.register(bytecode.OpJMPA, "exec_control.go:JMPA", ExecutorFunc(execJmpA))
	d.register(bytecode.OpBRK, "exec_control.go:BRK", ExecutorFunc(execBrk))
	d.register(bytecode.OpCALLN, "exec_control.go:CALLN", ExecutorFunc(execCallNative))

	for op, conv := range conversions {
		d.register(op, "exec_convert.go:"+op.String(), convertExecutor{conv: conv})
	}
	d.register(bytecode.OpA2S, "exec_convert.go:A2S", ExecutorFunc(execToString))

	d.register(bytecode.OpPUSHA, "exec_util.go:PUSHA", ExecutorFunc(execPushA))
	d.register(bytecode.OpPOPS, "exec_util.go:POPS", ExecutorFunc(execPopS))
	d.register(bytecode.OpACP, "exec_util.go:ACP", ExecutorFunc(execCopy))
	d.register(bytecode.OpAOL, "exec_util.go:AOL", ExecutorFunc(execAllocate))
	d.register(bytecode.OpLEN, "exec_util.go:LEN", ExecutorFunc(execLen))

	return d
}

// requireImplicit rejects any operand on instructions that take none.
func (m *Machine) requireImplicit(addr bytecode.AddressingValue) error {
	if addr.Mode != bytecode.ModeImplicit {
		return m.fail(IllegalAddressingValue, "%s takes no operand, got %s", m.op, addr.Mode)
	}
	return nil
}
