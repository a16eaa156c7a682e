package vm

import (
	"context"
	"testing"

	"github.com/chazu/regvm/pkg/bytecode"
)

const debugProgram = `
main:
    LDA #Integer(1)
    CALL f
    LDB #Integer(2)
    RET
f:
    LDC #Integer(3)
    NOP
    RET
`

func newDebugger(t *testing.T) *Debugger {
	t.Helper()
	return NewDebugger(newTestThread(t, debugProgram, nil, Options{}))
}

func pcOf(t *testing.T, d *Debugger) uint64 {
	t.Helper()
	pc, ok := d.Thread().PC()
	if !ok {
		t.Fatal("thread has no frames")
	}
	return pc
}

// ============ Breakpoint Tests ============

func TestBreakpointManagement(t *testing.T) {
	d := newDebugger(t)

	if err := d.SetBreakpoint(100); err == nil {
		t.Error("expected error for breakpoint past the program")
	}
	if err := d.SetBreakpoint(5); err != nil {
		t.Fatalf("SetBreakpoint failed: %v", err)
	}
	if err := d.SetBreakpointAtFunction("f"); err != nil {
		t.Fatalf("SetBreakpointAtFunction failed: %v", err)
	}
	if err := d.SetBreakpointAtFunction("missing"); err == nil {
		t.Error("expected error for unknown function")
	}

	bps := d.Breakpoints()
	if len(bps) != 2 || bps[0] != 4 || bps[1] != 5 {
		t.Fatalf("Breakpoints() = %v, want [4 5]", bps)
	}
	if err := d.RemoveBreakpoint(4); err != nil {
		t.Errorf("RemoveBreakpoint failed: %v", err)
	}
	if err := d.RemoveBreakpoint(4); err == nil {
		t.Error("removing twice should fail")
	}
	d.ClearAllBreakpoints()
	if d.HasBreakpoint(5) {
		t.Error("ClearAllBreakpoints left a breakpoint")
	}
}

func TestContinueStopsAtBreakpoint(t *testing.T) {
	d := newDebugger(t)
	ctx := context.Background()
	d.SetBreakpoint(5)

	status, err := d.Continue(ctx)
	if err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if status.Terminated() {
		t.Fatalf("thread terminated with %s", d.Thread().ExitCode())
	}
	if pc := pcOf(t, d); pc != 5 {
		t.Fatalf("stopped at %d, want 5", pc)
	}
	expectInt(t, d.Thread(), bytecode.RegC, 3)

	ev := <-d.Events()
	if ev.Type != "breakpointHit" || ev.PC != 5 {
		t.Errorf("event = %+v", ev)
	}

	// Continuing from a breakpoint moves past it.
	status, err = d.Continue(ctx)
	if err != nil || status != StatusReturned {
		t.Fatalf("second Continue = %s, %v", status, err)
	}
	expectInt(t, d.Thread(), bytecode.RegB, 2)
}

// ============ Stepping Tests ============

func TestStepInto(t *testing.T) {
	d := newDebugger(t)
	ctx := context.Background()

	d.Step(ctx, StepInto)
	d.Step(ctx, StepInto)
	if pc := pcOf(t, d); pc != 4 {
		t.Fatalf("pc = %d, want 4 inside f", pc)
	}
	if d.Thread().Depth() != 2 {
		t.Errorf("depth = %d, want 2", d.Thread().Depth())
	}
}

func TestStepOver(t *testing.T) {
	d := newDebugger(t)
	ctx := context.Background()

	d.Step(ctx, StepInto)
	if _, err := d.Step(ctx, StepOver); err != nil {
		t.Fatalf("StepOver failed: %v", err)
	}
	if pc := pcOf(t, d); pc != 2 {
		t.Fatalf("pc = %d, want 2 after stepping over the call", pc)
	}
	if d.Thread().Depth() != 1 {
		t.Errorf("depth = %d, want 1", d.Thread().Depth())
	}
	expectInt(t, d.Thread(), bytecode.RegC, 3)
}

func TestStepOverStopsAtBreakpoint(t *testing.T) {
	d := newDebugger(t)
	ctx := context.Background()
	d.SetBreakpoint(5)

	d.Step(ctx, StepInto)
	d.Step(ctx, StepOver)
	if pc := pcOf(t, d); pc != 5 {
		t.Fatalf("pc = %d, want breakpoint at 5", pc)
	}
}

func TestStepOut(t *testing.T) {
	d := newDebugger(t)
	ctx := context.Background()
	d.SetBreakpoint(5)
	d.Continue(ctx)

	if _, err := d.Step(ctx, StepOut); err != nil {
		t.Fatalf("StepOut failed: %v", err)
	}
	if pc := pcOf(t, d); pc != 2 {
		t.Fatalf("pc = %d, want 2 after stepping out of f", pc)
	}
	if d.Thread().Depth() != 1 {
		t.Errorf("depth = %d, want 1", d.Thread().Depth())
	}
}

func TestStepReportsPanic(t *testing.T) {
	d := NewDebugger(newTestThread(t, "LDA $1", nil, Options{}))
	status, err := d.Step(context.Background(), StepInto)
	expectPanic(t, err, NullReference)
	if status != StatusPanicked {
		t.Errorf("status = %s, want panicked", status)
	}
	ev := <-d.Events()
	if ev.Type != "panicked" || ev.Reason != "NullReference" {
		t.Errorf("event = %+v", ev)
	}
}

// ============ Stack Trace Tests ============

func TestStackTrace(t *testing.T) {
	d := newDebugger(t)
	d.SetBreakpoint(5)
	d.Continue(context.Background())

	trace := d.StackTrace()
	if len(trace) != 2 {
		t.Fatalf("StackTrace() has %d frames, want 2", len(trace))
	}
	if trace[0].Name != "f" || trace[0].PC != 5 {
		t.Errorf("innermost = %+v", trace[0])
	}
	if trace[1].Name != "main" || trace[1].PC != 2 {
		t.Errorf("outermost = %+v", trace[1])
	}
	if trace[0].Line != 9 || trace[1].Line != 5 {
		t.Errorf("lines = %d, %d; want 9, 5", trace[0].Line, trace[1].Line)
	}
}
