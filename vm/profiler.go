package vm

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chazu/regvm/pkg/bytecode"
)

// CallProfile holds profiling data for one function entry point.
type CallProfile struct {
	Name  string
	Entry uint64
	Count uint64 // Atomic counter for calls
	IsHot bool
}

// Profiler counts executed opcodes and function entries for every thread it
// is attached to. A function whose call count reaches HotThreshold is
// reported once through OnHot. Counters are atomic so one profiler may be
// shared by several threads.
type Profiler struct {
	opcodes [256]atomic.Uint64
	calls   sync.Map // uint64 entry -> *CallProfile
	mu      sync.Mutex

	// HotThreshold is the call count at which a function becomes hot.
	HotThreshold uint64

	// OnHot is called once per function when it becomes hot.
	OnHot func(profile CallProfile)

	hotCount atomic.Uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 100}
}

// RecordInstruction counts one executed instruction.
func (p *Profiler) RecordInstruction(op bytecode.Opcode) {
	p.opcodes[op].Add(1)
}

// RecordCall counts a call to the function at entry. Returns true if this
// call made the function hot.
func (p *Profiler) RecordCall(name string, entry uint64) bool {
	val, _ := p.calls.LoadOrStore(entry, &CallProfile{Name: name, Entry: entry})
	profile := val.(*CallProfile)

	count := atomic.AddUint64(&profile.Count, 1)
	if count != p.HotThreshold || p.HotThreshold == 0 {
		return false
	}

	p.mu.Lock()
	profile.IsHot = true
	snapshot := *profile
	p.mu.Unlock()

	p.hotCount.Add(1)
	if p.OnHot != nil {
		p.OnHot(snapshot)
	}
	return true
}

// OpcodeCount returns how many times op has executed.
func (p *Profiler) OpcodeCount(op bytecode.Opcode) uint64 {
	return p.opcodes[op].Load()
}

// OpcodeCounts returns the non-zero opcode counters.
func (p *Profiler) OpcodeCounts() map[bytecode.Opcode]uint64 {
	out := make(map[bytecode.Opcode]uint64)
	for i := range p.opcodes {
		if n := p.opcodes[i].Load(); n > 0 {
			out[bytecode.Opcode(i)] = n
		}
	}
	return out
}

// TotalInstructions returns the number of instructions recorded.
func (p *Profiler) TotalInstructions() uint64 {
	var total uint64
	for i := range p.opcodes {
		total += p.opcodes[i].Load()
	}
	return total
}

// Calls returns a snapshot of the call profiles, most called first.
func (p *Profiler) Calls() []CallProfile {
	var out []CallProfile
	p.mu.Lock()
	p.calls.Range(func(_, v any) bool {
		cp := v.(*CallProfile)
		out = append(out, CallProfile{
			Name:  cp.Name,
			Entry: cp.Entry,
			Count: atomic.LoadUint64(&cp.Count),
			IsHot: cp.IsHot,
		})
		return true
	})
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Entry < out[j].Entry
	})
	return out
}

// HotCount returns the number of functions that became hot.
func (p *Profiler) HotCount() uint64 {
	return p.hotCount.Load()
}

// Reset clears all counters.
func (p *Profiler) Reset() {
	for i := range p.opcodes {
		p.opcodes[i].Store(0)
	}
	p.calls.Range(func(k, _ any) bool {
		p.calls.Delete(k)
		return true
	})
	p.hotCount.Store(0)
}
