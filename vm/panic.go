package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// PanicReason classifies a fatal thread error.
type PanicReason uint8

const (
	ImmediateUseViolation PanicReason = iota
	NullReference
	MemoryAccessViolation
	CannotIndexWithNegative
	UnexpectedType
	IndexOutOfBounds
	ArraySizeCorruption
	IllegalAddressingValue
	IntegerOverflow
	DivisionByZero
	NegativeExponent
	StackOverflow
	InvalidOpcode
	NativeFailure
)

var panicReasonNames = [...]string{
	ImmediateUseViolation:   "ImmediateUseViolation",
	NullReference:           "NullReference",
	MemoryAccessViolation:   "MemoryAccessViolation",
	CannotIndexWithNegative: "CannotIndexWithNegative",
	UnexpectedType:          "UnexpectedType",
	IndexOutOfBounds:        "IndexOutOfBounds",
	ArraySizeCorruption:     "ArraySizeCorruption",
	IllegalAddressingValue:  "IllegalAddressingValue",
	IntegerOverflow:         "IntegerOverflow",
	DivisionByZero:          "DivisionByZero",
	NegativeExponent:        "NegativeExponent",
	StackOverflow:           "StackOverflow",
	InvalidOpcode:           "InvalidOpcode",
	NativeFailure:           "NativeFailure",
}

func (r PanicReason) String() string {
	if int(r) < len(panicReasonNames) {
		return panicReasonNames[r]
	}
	return fmt.Sprintf("PanicReason(%d)", uint8(r))
}

// ExitCode is the termination signal of a thread's execution loop.
type ExitCode uint8

const (
	// ExitNone means the thread has not terminated.
	ExitNone ExitCode = iota
	ExitSuccess
	ExitOutOfInstructions
	ExitStackOverflow
	ExitPanicked
)

func (c ExitCode) String() string {
	switch c {
	case ExitNone:
		return "None"
	case ExitSuccess:
		return "Success"
	case ExitOutOfInstructions:
		return "OutOfInstructions"
	case ExitStackOverflow:
		return "StackOverflow"
	case ExitPanicked:
		return "Panicked"
	default:
		return fmt.Sprintf("ExitCode(%d)", uint8(c))
	}
}

// ThreadPanic is the error that terminates a thread. CodeLocation names the
// executor that raised it; the loop fills in PC, Op and Frames.
type ThreadPanic struct {
	Reason       PanicReason
	CodeLocation string
	Detail       string

	// Offending kind and position/address/index, when the reason has one.
	Kind value.Kind
	Pos  uint64

	PC     uint64
	Op     bytecode.Opcode
	Frames []Frame
}

func (p *ThreadPanic) Error() string {
	var sb strings.Builder
	sb.WriteString("thread panicked: ")
	sb.WriteString(p.Reason.String())
	if p.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(p.Detail)
	}
	fmt.Fprintf(&sb, " (at %04d %s, %s)", p.PC, p.Op, p.CodeLocation)
	return sb.String()
}

// Backtrace renders the frame stack, innermost first.
func (p *ThreadPanic) Backtrace() string {
	var sb strings.Builder
	for i := len(p.Frames) - 1; i >= 0; i-- {
		f := p.Frames[i]
		fmt.Fprintf(&sb, "  #%d %s pc=%04d base=%d\n", f.ID, f.Name, f.PC, f.Base)
	}
	return sb.String()
}

// IsPanic reports whether err is a *ThreadPanic with the given reason.
func IsPanic(err error, reason PanicReason) bool {
	var p *ThreadPanic
	return errors.As(err, &p) && p.Reason == reason
}
