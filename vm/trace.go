package vm

import (
	"github.com/tliron/commonlog"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
)

// Tracer observes execution. All hooks run synchronously on the executing
// thread; a nil Tracer costs a single branch per instruction.
type Tracer interface {
	TraceInstruction(t *Thread, pc uint64, in bytecode.Instruction)
	TraceResolve(addr bytecode.AddressingValue, v value.StaticRawType)
	TraceExit(t *Thread, code ExitCode, p *ThreadPanic)
}

// LogTracer writes trace events to a commonlog logger at debug level.
type LogTracer struct {
	log commonlog.Logger
}

// NewLogTracer returns a tracer logging under name, e.g. "regvm.trace".
func NewLogTracer(name string) *LogTracer {
	return &LogTracer{log: commonlog.GetLogger(name)}
}

func (l *LogTracer) TraceInstruction(t *Thread, pc uint64, in bytecode.Instruction) {
	l.log.Debug("exec",
		"thread", t.ID.String(),
		"depth", t.Depth(),
		"pc", pc,
		"instruction", in.String())
}

func (l *LogTracer) TraceResolve(addr bytecode.AddressingValue, v value.StaticRawType) {
	l.log.Debug("resolve", "mode", addr.Mode.String(), "operand", addr.String(), "value", v.String())
}

func (l *LogTracer) TraceExit(t *Thread, code ExitCode, p *ThreadPanic) {
	if p != nil {
		l.log.Error("thread panicked",
			"thread", t.ID.String(),
			"reason", p.Reason.String(),
			"location", p.CodeLocation,
			"pc", p.PC,
			"detail", p.Detail)
		return
	}
	l.log.Info("thread exited", "thread", t.ID.String(), "exit", code.String(), "steps", t.Steps())
}
