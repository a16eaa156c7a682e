package vm

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/chazu/regvm/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Stack Overflow Protection and Recursion Depth Tests
// ---------------------------------------------------------------------------
//
// A thread overflows either when the call depth limit is reached or when
// the next frame window would extend past the end of stack memory. Both
// end the thread with ExitStackOverflow and a StackOverflow panic.
// ---------------------------------------------------------------------------

const unboundedRecursion = `
main:
    CALL main
    RET
`

func TestRecursionHitsDepthLimit(t *testing.T) {
	th := newTestThread(t, unboundedRecursion, nil, Options{MaxCallDepth: 10})
	code, err := th.Run(context.Background())

	p := expectPanic(t, err, StackOverflow)
	if code != ExitStackOverflow {
		t.Errorf("exit = %s, want StackOverflow", code)
	}
	if th.Status() != StatusPanicked {
		t.Errorf("status = %s, want panicked", th.Status())
	}
	if len(p.Frames) != 10 {
		t.Errorf("panic captured %d frames, want 10", len(p.Frames))
	}
	if th.Depth() != 0 {
		t.Errorf("frames were not discarded: depth %d", th.Depth())
	}
	if !strings.Contains(p.Error(), "depth limit 10") {
		t.Errorf("Error() = %q", p.Error())
	}
	if p.CodeLocation != "exec_control.go:CALL" {
		t.Errorf("CodeLocation = %q", p.CodeLocation)
	}
}

func TestRecursionExhaustsStackMemory(t *testing.T) {
	th := newTestThread(t, unboundedRecursion, nil, Options{
		StackSize:    1024,
		FrameSize:    256,
		MaxCallDepth: -1,
	})
	code, err := th.Run(context.Background())

	p := expectPanic(t, err, StackOverflow)
	if code != ExitStackOverflow {
		t.Errorf("exit = %s, want StackOverflow", code)
	}
	if len(p.Frames) != 4 {
		t.Fatalf("panic captured %d frames, want 4", len(p.Frames))
	}
	for i, f := range p.Frames {
		if f.Base != uint64(i)*256 {
			t.Errorf("frame %d base = %d, want %d", i, f.Base, i*256)
		}
		if f.Name != "main" {
			t.Errorf("frame %d name = %q", i, f.Name)
		}
	}
	if bt := p.Backtrace(); strings.Count(bt, "main") != 4 {
		t.Errorf("Backtrace() = %q", bt)
	}
}

// The caller's program counter is left on the failing CALL.
func TestOverflowLeavesCallerOnCall(t *testing.T) {
	th := newTestThread(t, unboundedRecursion, nil, Options{MaxCallDepth: 3})
	_, err := th.Run(context.Background())
	p := expectPanic(t, err, StackOverflow)
	if top := p.Frames[len(p.Frames)-1]; top.PC != 0 {
		t.Errorf("innermost frame pc = %d, want 0", top.PC)
	}
	if p.PC != 0 {
		t.Errorf("panic pc = %d, want 0", p.PC)
	}
}

// Bounded recursion well below the limit completes.
func TestBoundedRecursion(t *testing.T) {
	th := newTestThread(t, `
main:
    LDA #Integer(50)
    CALL countdown
    RET
countdown:
    DEC
    JMPA recurse
    RET
recurse:
    CALL countdown
    RET
`, nil, Options{MaxCallDepth: 64})
	code, err := th.Run(context.Background())
	if err != nil || code != ExitSuccess {
		t.Fatalf("Run = %s, %v", code, err)
	}
	expectInt(t, th, bytecode.RegA, 0)
	if th.Panic() != nil {
		t.Errorf("unexpected panic %v", th.Panic())
	}
}

func TestCallStackPushPop(t *testing.T) {
	cs := NewCallStack(16, 0, 64)
	for i := 0; i < 4; i++ {
		f, err := cs.Push("f", uint64(i))
		if err != nil {
			t.Fatalf("Push %d failed: %v", i, err)
		}
		if f.Base != uint64(i)*16 {
			t.Errorf("frame %d base = %d", i, f.Base)
		}
	}
	if _, err := cs.Push("f", 9); err == nil {
		t.Fatal("expected overflow pushing a fifth frame")
	}
	if pos, ok := cs.CalculateFramePos(3); !ok || pos != 51 {
		t.Errorf("CalculateFramePos(3) = %d, %v; want 51", pos, ok)
	}
	if _, ok := cs.CalculateFramePos(math.MaxUint64); ok {
		t.Error("CalculateFramePos accepted an offset that wraps past the frame base")
	}
	top, _ := cs.Pop()
	if top.Caller != 2 || !top.HasCaller {
		t.Errorf("popped frame caller = %d/%v", top.Caller, top.HasCaller)
	}
	if cs.Depth() != 3 {
		t.Errorf("Depth = %d, want 3", cs.Depth())
	}
	cs.Clear()
	if cs.Top() != nil {
		t.Error("Top after Clear should be nil")
	}
	if _, ok := cs.Pop(); ok {
		t.Error("Pop on empty stack should fail")
	}
}
