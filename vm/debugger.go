package vm

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoints and stepping over a single thread
// ---------------------------------------------------------------------------

// Debugger drives a thread one instruction at a time, stopping at
// instruction breakpoints and at BRK.
type Debugger struct {
	thread      *Thread
	breakpoints map[uint64]bool
	events      chan DebugEvent
	mu          sync.Mutex
}

// StepMode selects how far a step runs.
type StepMode int

const (
	StepNone StepMode = iota
	StepOver
	StepInto
	StepOut
)

func (m StepMode) String() string {
	switch m {
	case StepOver:
		return "over"
	case StepInto:
		return "into"
	case StepOut:
		return "out"
	default:
		return "none"
	}
}

// DebugEvent reports why the debugger stopped.
type DebugEvent struct {
	Type   string // "stopped", "breakpointHit", "exited", "panicked"
	Reason string
	PC     uint64
}

// StackFrame is a frame annotated with source positions.
type StackFrame struct {
	ID     uint64
	Name   string
	PC     uint64
	Base   uint64
	Line   uint32 // 0 when unmapped
	Column uint16
}

// NewDebugger attaches a debugger to t.
func NewDebugger(t *Thread) *Debugger {
	return &Debugger{
		thread:      t,
		breakpoints: make(map[uint64]bool),
		events:      make(chan DebugEvent, 16),
	}
}

// Thread returns the debugged thread.
func (d *Debugger) Thread() *Thread { return d.thread }

// Events returns the event channel. Events are dropped when it is full.
func (d *Debugger) Events() <-chan DebugEvent {
	return d.events
}

func (d *Debugger) sendEvent(ev DebugEvent) {
	select {
	case d.events <- ev:
	default:
	}
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// SetBreakpoint stops execution before the instruction at pc.
func (d *Debugger) SetBreakpoint(pc uint64) error {
	if pc >= uint64(d.thread.m.Program.Len()) {
		return fmt.Errorf("breakpoint %04d is past the end of the program (%d instructions)", pc, d.thread.m.Program.Len())
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints[pc] = true
	return nil
}

// SetBreakpointAtFunction stops execution at a named function's entry.
func (d *Debugger) SetBreakpointAtFunction(name string) error {
	debug := d.thread.m.Debug
	if debug != nil {
		for _, fn := range debug.Functions {
			if fn.Name == name {
				return d.SetBreakpoint(fn.Entry)
			}
		}
	}
	return fmt.Errorf("function not found: %s", name)
}

// RemoveBreakpoint removes the breakpoint at pc.
func (d *Debugger) RemoveBreakpoint(pc uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.breakpoints[pc] {
		return fmt.Errorf("no breakpoint at %04d", pc)
	}
	delete(d.breakpoints, pc)
	return nil
}

// Breakpoints returns the breakpoint positions in ascending order.
func (d *Debugger) Breakpoints() []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint64, 0, len(d.breakpoints))
	for pc := range d.breakpoints {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasBreakpoint reports whether pc has a breakpoint.
func (d *Debugger) HasBreakpoint(pc uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.breakpoints[pc]
}

// ClearAllBreakpoints removes all breakpoints.
func (d *Debugger) ClearAllBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[uint64]bool)
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Step runs according to mode. StepInto executes one instruction. StepOver
// also runs any call it enters to completion. StepOut runs until the
// current frame returns. Breakpoints interrupt StepOver and StepOut.
func (d *Debugger) Step(ctx context.Context, mode StepMode) (Status, error) {
	t := d.thread
	depth := t.Depth()

	status, err := d.stepOnce()
	if err != nil || mode == StepInto || mode == StepNone {
		return d.stopped(status, err, "step")
	}

	for !status.Terminated() && status != StatusPaused {
		switch mode {
		case StepOver:
			if t.Depth() <= depth {
				return d.stopped(status, nil, "step")
			}
		case StepOut:
			if t.Depth() < depth {
				return d.stopped(status, nil, "step")
			}
		}
		if d.atBreakpoint() {
			return d.stopped(status, nil, "breakpoint")
		}
		if err := ctx.Err(); err != nil {
			return status, err
		}
		if status, err = d.stepOnce(); err != nil {
			break
		}
	}
	return d.stopped(status, err, "step")
}

// Continue runs until a breakpoint, a BRK or termination. The instruction
// at the current position always executes, so continuing from a
// breakpoint moves past it.
func (d *Debugger) Continue(ctx context.Context) (Status, error) {
	status, err := d.stepOnce()
	for err == nil && !status.Terminated() && status != StatusPaused {
		if d.atBreakpoint() {
			return d.stopped(status, nil, "breakpoint")
		}
		if err = ctx.Err(); err != nil {
			return status, err
		}
		status, err = d.stepOnce()
	}
	return d.stopped(status, err, "continue")
}

func (d *Debugger) stepOnce() (Status, error) {
	return d.thread.Step()
}

func (d *Debugger) atBreakpoint() bool {
	pc, ok := d.thread.PC()
	return ok && d.HasBreakpoint(pc)
}

func (d *Debugger) stopped(status Status, err error, reason string) (Status, error) {
	pc, _ := d.thread.PC()
	switch {
	case status == StatusPanicked:
		ev := DebugEvent{Type: "panicked", Reason: "panic"}
		if p := d.thread.Panic(); p != nil {
			ev.Reason = p.Reason.String()
			ev.PC = p.PC
		}
		d.sendEvent(ev)
	case status.Terminated():
		d.sendEvent(DebugEvent{Type: "exited", Reason: d.thread.ExitCode().String(), PC: pc})
	case reason == "breakpoint":
		d.sendEvent(DebugEvent{Type: "breakpointHit", Reason: reason, PC: pc})
	case status == StatusPaused:
		d.sendEvent(DebugEvent{Type: "stopped", Reason: "BRK", PC: pc})
	default:
		d.sendEvent(DebugEvent{Type: "stopped", Reason: reason, PC: pc})
	}
	return status, err
}

// ---------------------------------------------------------------------------
// Call stack inspection
// ---------------------------------------------------------------------------

// StackTrace returns the active frames, innermost first, with source
// positions from the thread's debug info.
func (d *Debugger) StackTrace() []StackFrame {
	frames := d.thread.Frames()
	debug := d.thread.m.Debug
	out := make([]StackFrame, 0, len(frames))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		sf := StackFrame{ID: f.ID, Name: f.Name, PC: f.PC, Base: f.Base}
		sf.Line, sf.Column = debug.Lookup(f.PC)
		out = append(out, sf)
	}
	return out
}
