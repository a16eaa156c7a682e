package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
)

// Default machine limits.
const (
	DefaultStackSize    = 1 << 16
	DefaultFrameSize    = 256
	DefaultMaxCallDepth = 128
)

// Options configures a thread. The zero value uses the defaults above.
type Options struct {
	StackSize    int
	FrameSize    int
	MaxCallDepth int

	// Entry is the instruction index of the outermost frame.
	Entry uint64

	// EntryName names the outermost frame when debug info has no symbol.
	EntryName string

	Debug    *bytecode.DebugInfo
	Natives  *NativeTable
	Tracer   Tracer
	Profiler *Profiler

	// Output receives native print output. Defaults to os.Stdout.
	Output io.Writer
}

func (o Options) withDefaults() Options {
	if o.StackSize <= 0 {
		o.StackSize = DefaultStackSize
	}
	if o.FrameSize <= 0 {
		o.FrameSize = DefaultFrameSize
	}
	if o.MaxCallDepth == 0 {
		o.MaxCallDepth = DefaultMaxCallDepth
	}
	if o.EntryName == "" {
		o.EntryName = "main"
	}
	if o.Natives == nil {
		o.Natives = DefaultNatives()
	}
	if o.Output == nil {
		o.Output = os.Stdout
	}
	return o
}

// Machine is the state an executor operates on: the shared program and
// heap, plus the thread-owned call stack, stack memory, registers and
// auxiliary stack.
type Machine struct {
	Program *bytecode.Program
	Arch    value.Architecture
	Heap    *memory.HeapMemory
	Stack   *memory.StackMemory
	Calls   *CallStack
	Regs    Registers

	// Aux is the auxiliary value stack used by PUSHA and POPS.
	Aux []value.StaticRawType

	Debug   *bytecode.DebugInfo
	Natives *NativeTable
	Output  io.Writer

	tracer   Tracer
	profiler *Profiler

	// Set by the loop before each executor runs.
	op  bytecode.Opcode
	loc string
}

// fail builds a panic attributed to the running executor.
func (m *Machine) fail(reason PanicReason, format string, args ...any) *ThreadPanic {
	return &ThreadPanic{
		Reason:       reason,
		CodeLocation: m.loc,
		Detail:       fmt.Sprintf(format, args...),
	}
}

// failAt is fail with an offending kind and position.
func (m *Machine) failAt(reason PanicReason, kind value.Kind, pos uint64, format string, args ...any) *ThreadPanic {
	p := m.fail(reason, format, args...)
	p.Kind = kind
	p.Pos = pos
	return p
}

// frameName returns the debug symbol for an entry point, or a synthetic
// name.
func (m *Machine) frameName(entry uint64) string {
	if name, ok := m.Debug.FunctionAt(entry); ok {
		return name
	}
	return fmt.Sprintf("fn@%04d", entry)
}

// heapSet stores into the heap and reports budget exhaustion as a panic.
func (m *Machine) heapSet(addr uint64, v value.RawType) error {
	if err := m.Heap.Set(addr, v); err != nil {
		return m.failAt(MemoryAccessViolation, v.Kind(), addr, "heap write at 0x%X: %v", addr, err)
	}
	return nil
}
