package vm

import (
	"sync"
	"testing"

	"github.com/chazu/regvm/pkg/bytecode"
)

func TestProfilerHotFunction(t *testing.T) {
	p := NewProfiler()
	p.HotThreshold = 3

	var hot []CallProfile
	p.OnHot = func(cp CallProfile) { hot = append(hot, cp) }

	for i := 0; i < 5; i++ {
		became := p.RecordCall("fib", 12)
		if became != (i == 2) {
			t.Errorf("call %d: RecordCall = %v", i, became)
		}
	}
	p.RecordCall("main", 0)

	if len(hot) != 1 || hot[0].Name != "fib" || !hot[0].IsHot {
		t.Fatalf("OnHot saw %+v", hot)
	}
	if p.HotCount() != 1 {
		t.Errorf("HotCount = %d, want 1", p.HotCount())
	}

	calls := p.Calls()
	if len(calls) != 2 || calls[0].Name != "fib" || calls[0].Count != 5 || calls[1].Count != 1 {
		t.Errorf("Calls() = %+v", calls)
	}
}

func TestProfilerConcurrentRecording(t *testing.T) {
	p := NewProfiler()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p.RecordInstruction(bytecode.OpADD)
				p.RecordCall("f", 1)
			}
		}()
	}
	wg.Wait()

	if n := p.OpcodeCount(bytecode.OpADD); n != 8000 {
		t.Errorf("ADD count = %d, want 8000", n)
	}
	if calls := p.Calls(); calls[0].Count != 8000 {
		t.Errorf("f count = %d, want 8000", calls[0].Count)
	}
	if p.HotCount() != 1 {
		t.Errorf("HotCount = %d, want 1", p.HotCount())
	}
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler()
	p.RecordInstruction(bytecode.OpNop)
	p.RecordCall("f", 1)
	p.Reset()
	if p.TotalInstructions() != 0 || len(p.Calls()) != 0 || len(p.OpcodeCounts()) != 0 {
		t.Errorf("Reset left data: %d instructions, %v", p.TotalInstructions(), p.Calls())
	}
}
