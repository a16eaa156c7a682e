package main

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func newTestREPL(t *testing.T, source string) (*repl, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return newREPL(newTestSession(t, source, sessionOptions{}), &out), &out
}

// run executes each line, failing on any command error.
func (r *repl) run(t *testing.T, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if _, err := r.exec(line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
}

func expectOutput(t *testing.T, out *bytes.Buffer, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	out.Reset()
}

// ============ Command Dispatch Tests ============

func TestREPLCommandLookup(t *testing.T) {
	r, _ := newTestREPL(t, callProgram)

	if quit, err := r.exec("q"); !quit || err != nil {
		t.Errorf("q = %v, %v; want quit", quit, err)
	}
	if quit, err := r.exec("   "); quit || err != nil {
		t.Errorf("blank line = %v, %v", quit, err)
	}
	if _, err := r.exec("frobnicate"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("unknown command error = %v", err)
	}

	tests := []struct {
		line string
		want string
	}{
		{"step x", "positive integer"},
		{"step 0", "positive integer"},
		{"break", "usage"},
		{"break 99", "past"},
		{"break nowhere", "nowhere"},
		{"delete zz", "invalid instruction index"},
		{"list -1", "invalid line count"},
	}
	for _, tt := range tests {
		_, err := r.exec(tt.line)
		if err == nil {
			t.Errorf("%q: expected error", tt.line)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: error %q does not mention %q", tt.line, err, tt.want)
		}
	}
}

func TestCompleteCommand(t *testing.T) {
	got := completeCommand("br")
	if want := []string{"break", "breaks"}; !reflect.DeepEqual(got, want) {
		t.Errorf("completeCommand(br) = %v, want %v", got, want)
	}
	if got := completeCommand("zz"); len(got) != 0 {
		t.Errorf("completeCommand(zz) = %v", got)
	}
}

// ============ Execution Tests ============

func TestREPLBreakAndContinue(t *testing.T) {
	r, out := newTestREPL(t, callProgram)

	r.run(t, "break f")
	expectOutput(t, out, "breakpoint set at f")

	r.run(t, "c")
	expectOutput(t, out, "breakpoint at 0004", "=>*0004")

	r.run(t, "bt")
	expectOutput(t, out, "main", "f", "prog.rvs:8", "prog.rvs:5")

	r.run(t, "regs")
	expectOutput(t, out, "Integer(1)")

	r.run(t, "c")
	expectOutput(t, out, "exit Success")

	if _, err := r.exec("step"); err == nil || !strings.Contains(err.Error(), "returned") {
		t.Errorf("step after exit = %v", err)
	}
}

func TestREPLStepping(t *testing.T) {
	r, out := newTestREPL(t, callProgram)

	r.run(t, "s 2")
	if pc, _ := r.s.thread.PC(); pc != 4 || r.s.thread.Depth() != 2 {
		t.Fatalf("after s 2: pc %d depth %d", pc, r.s.thread.Depth())
	}
	expectOutput(t, out, "f:", "=> 0004")

	r.run(t, "out")
	if pc, _ := r.s.thread.PC(); pc != 2 || r.s.thread.Depth() != 1 {
		t.Fatalf("after out: pc %d depth %d", pc, r.s.thread.Depth())
	}
	expectOutput(t, out, "0002")

	r.run(t, "next")
	if pc, _ := r.s.thread.PC(); pc != 3 {
		t.Fatalf("after next: pc %d", pc)
	}
}

func TestREPLResetKeepsBreakpoints(t *testing.T) {
	r, out := newTestREPL(t, callProgram)
	r.run(t, "b 5", "c")
	old := r.s.thread.ID

	r.run(t, "reset")
	if r.s.thread.ID == old {
		t.Fatal("reset did not build a new thread")
	}
	if pc, _ := r.s.thread.PC(); pc != 0 {
		t.Errorf("pc after reset = %d", pc)
	}
	if bps := r.dbg.Breakpoints(); len(bps) != 1 || bps[0] != 5 {
		t.Errorf("breakpoints after reset = %v", bps)
	}
	out.Reset()

	r.run(t, "breaks")
	expectOutput(t, out, "*0005", "NOP")

	r.run(t, "delete")
	if len(r.dbg.Breakpoints()) != 0 {
		t.Error("delete without arguments left breakpoints")
	}
}

func TestREPLPanicReport(t *testing.T) {
	r, out := newTestREPL(t, "LDA $1")
	r.run(t, "s")
	expectOutput(t, out, "NullReference")
	if !r.s.thread.Status().Terminated() {
		t.Errorf("status = %s", r.s.thread.Status())
	}
}

func TestREPLInspection(t *testing.T) {
	r, out := newTestREPL(t, `
main:
    LDA #Integer(7)
    STA $2
    PUSHA
    NOP
    RET
`)
	r.run(t, "s 3")

	r.run(t, "frame")
	expectOutput(t, out, "Offset", "Integer(7)")

	r.run(t, "aux")
	expectOutput(t, out, "Depth", "Integer(7)")

	r.run(t, "heap")
	expectOutput(t, out, "Address")

	r.run(t, "list 1")
	expectOutput(t, out, "0002", "=> 0003", "0004")

	r.run(t, "help")
	expectOutput(t, out, "continue, c", "run until a breakpoint or exit")
}

func TestREPLLoad(t *testing.T) {
	r, out := newTestREPL(t, "LDA #Integer(1)\nRET")
	path := writeSource(t, t.TempDir(), "other.rvs", callProgram)

	r.run(t, "b 0", "load "+path)
	expectOutput(t, out, "loaded", "main:")
	if r.s.path != path {
		t.Errorf("session path = %q", r.s.path)
	}
	if len(r.dbg.Breakpoints()) != 0 {
		t.Error("breakpoints carried over to a different program")
	}

	r.run(t, "run")
	expectOutput(t, out, "exit Success")

	if _, err := r.exec("load"); err == nil {
		t.Error("expected usage error")
	}
}
