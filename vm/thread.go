package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
)

// Status is the scheduling state of a thread.
type Status uint8

const (
	StatusReady Status = iota
	StatusRunning
	StatusPaused
	StatusReturned
	StatusPanicked
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusReturned:
		return "returned"
	case StatusPanicked:
		return "panicked"
	case StatusExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Terminated reports whether the thread can no longer step.
func (s Status) Terminated() bool {
	return s == StatusReturned || s == StatusPanicked || s == StatusExhausted
}

var (
	// ErrBreakpoint is returned by Run when a BRK instruction pauses the
	// thread. Calling Run again resumes after the BRK.
	ErrBreakpoint = errors.New("breakpoint")

	// ErrHalted is returned when stepping a terminated thread.
	ErrHalted = errors.New("thread has halted")
)

// Thread is one executing context. Threads created over the same heap
// share it; everything else (stack memory, call stack, registers and the
// auxiliary stack) is owned by the thread. A thread is not safe for use
// from several goroutines at once.
type Thread struct {
	ID uuid.UUID

	m        *Machine
	opts     Options
	dispatch *DispatchTable

	status Status
	exit   ExitCode
	panic  *ThreadPanic
	steps  uint64
}

// NewThread prepares a thread positioned at opts.Entry. A nil heap gets a
// fresh, unlimited heap.
func NewThread(program *bytecode.Program, heap *memory.HeapMemory, opts Options) (*Thread, error) {
	if program == nil {
		return nil, errors.New("vm: nil program")
	}
	if heap == nil {
		heap = memory.NewHeapMemory(nil)
	}
	opts = opts.withDefaults()
	if opts.FrameSize > opts.StackSize {
		return nil, fmt.Errorf("vm: frame size %d exceeds stack size %d", opts.FrameSize, opts.StackSize)
	}

	t := &Thread{
		ID:       uuid.New(),
		opts:     opts,
		dispatch: defaultDispatch,
		m: &Machine{
			Program:  program,
			Arch:     program.Arch,
			Heap:     heap,
			Debug:    opts.Debug,
			Natives:  opts.Natives,
			Output:   opts.Output,
			tracer:   opts.Tracer,
			profiler: opts.Profiler,
		},
	}
	if err := t.Reset(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reset discards the thread's own state and repositions it at the entry
// point. The shared heap is left untouched.
func (t *Thread) Reset() error {
	m := t.m
	m.Stack = memory.NewStackMemory(t.opts.StackSize)
	m.Calls = NewCallStack(uint64(t.opts.FrameSize), t.opts.MaxCallDepth, uint64(t.opts.StackSize))
	m.Regs = NewRegisters()
	m.Aux = nil

	name := t.opts.EntryName
	if sym, ok := t.opts.Debug.FunctionAt(t.opts.Entry); ok {
		name = sym
	}
	if _, err := m.Calls.Push(name, t.opts.Entry); err != nil {
		return fmt.Errorf("vm: push entry frame: %w", err)
	}

	t.status = StatusReady
	t.exit = ExitNone
	t.panic = nil
	t.steps = 0
	return nil
}

// Step executes one instruction. It returns the resulting status, and the
// panic when the instruction raised one.
func (t *Thread) Step() (Status, error) {
	if t.status.Terminated() {
		return t.status, ErrHalted
	}
	t.status = StatusRunning

	m := t.m
	pc := m.Calls.Top().PC
	in, ok := m.Program.At(pc)
	if !ok {
		t.halt(ExitOutOfInstructions, nil)
		return t.status, nil
	}

	m.op = in.Op
	var (
		res Result
		err error
	)
	if h := t.dispatch.Lookup(in.Op); h == nil {
		m.loc = "dispatch.go"
		err = m.fail(InvalidOpcode, "no executor for opcode 0x%02X", byte(in.Op))
	} else {
		m.loc = h.Location
		if m.tracer != nil {
			m.tracer.TraceInstruction(t, pc, in)
		}
		if m.profiler != nil {
			m.profiler.RecordInstruction(in.Op)
		}
		res, err = h.Exec.Execute(m, in.Addr)
	}
	t.steps++

	if err != nil {
		var p *ThreadPanic
		if !errors.As(err, &p) {
			p = m.fail(NativeFailure, "%v", err)
		}
		p.PC = pc
		p.Op = in.Op
		p.Frames = m.Calls.Frames()
		m.Calls.Clear()

		code := ExitPanicked
		if p.Reason == StackOverflow {
			code = ExitStackOverflow
		}
		t.halt(code, p)
		return t.status, p
	}

	switch res.Action {
	case ActionContinue:
		m.Calls.Top().PC++
	case ActionBreak:
		m.Calls.Top().PC++
		t.status = StatusPaused
	case ActionJumped:
	case ActionHalt:
		t.halt(res.Exit, nil)
	}
	return t.status, nil
}

func (t *Thread) halt(code ExitCode, p *ThreadPanic) {
	t.exit = code
	t.panic = p
	switch code {
	case ExitSuccess:
		t.status = StatusReturned
	case ExitOutOfInstructions:
		t.status = StatusExhausted
	default:
		t.status = StatusPanicked
	}
	if t.m.tracer != nil {
		t.m.tracer.TraceExit(t, code, p)
	}
}

// Run steps until the thread terminates, hits a BRK or ctx is done. The
// context is checked between instructions.
func (t *Thread) Run(ctx context.Context) (ExitCode, error) {
	for {
		if err := ctx.Err(); err != nil {
			return t.exit, err
		}
		status, err := t.Step()
		if err != nil {
			if errors.Is(err, ErrHalted) {
				return t.exit, t.panicErr()
			}
			return t.exit, err
		}
		switch {
		case status == StatusPaused:
			return t.exit, ErrBreakpoint
		case status.Terminated():
			return t.exit, nil
		}
	}
}

func (t *Thread) panicErr() error {
	if t.panic == nil {
		return nil
	}
	return t.panic
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

func (t *Thread) Status() Status       { return t.status }
func (t *Thread) ExitCode() ExitCode   { return t.exit }
func (t *Thread) Panic() *ThreadPanic  { return t.panic }
func (t *Thread) Steps() uint64        { return t.steps }
func (t *Thread) Depth() int           { return t.m.Calls.Depth() }
func (t *Thread) Machine() *Machine    { return t.m }
func (t *Thread) Registers() Registers { return t.m.Regs }

// Register returns the value of one register.
func (t *Thread) Register(r bytecode.Register) value.StaticRawType {
	return t.m.Regs.Get(r)
}

// PC returns the program counter of the executing frame.
func (t *Thread) PC() (uint64, bool) {
	top := t.m.Calls.Top()
	if top == nil {
		return 0, false
	}
	return top.PC, true
}

// Frames returns the active frames, outermost first.
func (t *Thread) Frames() []Frame {
	return t.m.Calls.Frames()
}

// StackSlot reads an absolute stack position.
func (t *Thread) StackSlot(pos uint64) (value.StaticRawType, bool) {
	return t.m.Stack.Get(pos)
}

// FrameSlot reads a slot relative to the executing frame.
func (t *Thread) FrameSlot(offset uint64) (value.StaticRawType, bool) {
	abs, ok := t.m.Calls.CalculateFramePos(offset)
	if !ok {
		return value.StaticRawType{}, false
	}
	return t.m.Stack.Get(abs)
}

// SetFrameSlot writes a slot relative to the executing frame.
func (t *Thread) SetFrameSlot(offset uint64, v value.StaticRawType) bool {
	abs, ok := t.m.Calls.CalculateFramePos(offset)
	return ok && t.m.Stack.Set(abs, v)
}

// HeapSlot reads the shared heap.
func (t *Thread) HeapSlot(addr uint64) (value.RawType, bool) {
	return t.m.Heap.Get(addr)
}

// AuxStack returns a copy of the auxiliary stack, bottom first.
func (t *Thread) AuxStack() []value.StaticRawType {
	out := make([]value.StaticRawType, len(t.m.Aux))
	copy(out, t.m.Aux)
	return out
}
