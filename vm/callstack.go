package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// ---------------------------------------------------------------------------
// Registers
// ---------------------------------------------------------------------------

// Registers is the per-thread register file, indexed by bytecode.Register.
type Registers [bytecode.NumRegisters]value.StaticRawType

// NewRegisters returns a register file with every register Void.
func NewRegisters() Registers {
	var r Registers
	r.Reset()
	return r
}

// Get returns the value of register reg.
func (r *Registers) Get(reg bytecode.Register) value.StaticRawType {
	return r[reg]
}

// Set writes register reg.
func (r *Registers) Set(reg bytecode.Register, v value.StaticRawType) {
	r[reg] = v
}

// Reset sets every register to Void.
func (r *Registers) Reset() {
	for i := range r {
		r[i] = value.VoidValue()
	}
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// Frame is one call-stack entry. PC is the frame's program counter and Base
// the absolute stack position of its slot 0.
type Frame struct {
	ID        uint64
	Name      string
	Caller    uint64
	HasCaller bool
	PC        uint64
	Base      uint64
}

// ErrStackOverflow is returned by Push when the depth limit or the end of
// stack memory is reached.
var ErrStackOverflow = errors.New("stack overflow")

// CallStack is the chain of active frames. Each frame owns a window of
// frameSize stack slots directly above its caller's window.
type CallStack struct {
	frames    []Frame
	nextID    uint64
	frameSize uint64
	maxDepth  int
	stackLen  uint64
}

// NewCallStack creates an empty call stack. maxDepth <= 0 means the only
// limit is stack memory itself.
func NewCallStack(frameSize uint64, maxDepth int, stackLen uint64) *CallStack {
	return &CallStack{
		frames:    make([]Frame, 0, 16),
		frameSize: frameSize,
		maxDepth:  maxDepth,
		stackLen:  stackLen,
	}
}

// Push adds a frame that starts executing at pc. The caller is the current
// top frame, if any.
func (cs *CallStack) Push(name string, pc uint64) (*Frame, error) {
	if cs.maxDepth > 0 && len(cs.frames) >= cs.maxDepth {
		return nil, fmt.Errorf("%w: depth limit %d reached calling %s", ErrStackOverflow, cs.maxDepth, name)
	}

	f := Frame{ID: cs.nextID, Name: name, PC: pc}
	if top := cs.Top(); top != nil {
		f.Caller = top.ID
		f.HasCaller = true
		f.Base = top.Base + cs.frameSize
	}
	if f.Base+cs.frameSize > cs.stackLen {
		return nil, fmt.Errorf("%w: frame window %d..%d exceeds stack memory of %d slots",
			ErrStackOverflow, f.Base, f.Base+cs.frameSize, cs.stackLen)
	}

	cs.nextID++
	cs.frames = append(cs.frames, f)
	return &cs.frames[len(cs.frames)-1], nil
}

// Pop removes the top frame.
func (cs *CallStack) Pop() (Frame, bool) {
	if len(cs.frames) == 0 {
		return Frame{}, false
	}
	f := cs.frames[len(cs.frames)-1]
	cs.frames = cs.frames[:len(cs.frames)-1]
	return f, true
}

// Top returns the executing frame, or nil when the stack is empty.
func (cs *CallStack) Top() *Frame {
	if len(cs.frames) == 0 {
		return nil
	}
	return &cs.frames[len(cs.frames)-1]
}

// Depth returns the number of active frames.
func (cs *CallStack) Depth() int { return len(cs.frames) }

// FrameSize returns the slot window of each frame.
func (cs *CallStack) FrameSize() uint64 { return cs.frameSize }

// CalculateFramePos converts a frame-relative offset into an absolute stack
// position. This is the only place frame-relative addressing is resolved.
// It reports false when Base+offset does not fit in a uint64.
func (cs *CallStack) CalculateFramePos(offset uint64) (uint64, bool) {
	top := cs.Top()
	if top == nil {
		return offset, true
	}
	if offset > math.MaxUint64-top.Base {
		return 0, false
	}
	return top.Base + offset, true
}

// Frames returns a copy of the active frames, outermost first.
func (cs *CallStack) Frames() []Frame {
	out := make([]Frame, len(cs.frames))
	copy(out, cs.frames)
	return out
}

// Clear drops every frame and restarts frame ids.
func (cs *CallStack) Clear() {
	cs.frames = cs.frames[:0]
	cs.nextID = 0
}
