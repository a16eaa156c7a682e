package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	return p.DisassembleWithDebug("", nil)
}

// DisassembleWithDebug returns a listing with a name header, function labels
// and source coordinates taken from debug (which may be nil).
func (p *Program) DisassembleWithDebug(name string, debug *DebugInfo) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; regvm bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; arch: %s-bit\n", p.Arch))
	if debug != nil && debug.File != "" {
		sb.WriteString(fmt.Sprintf("; source: %s\n", debug.File))
	}
	sb.WriteString(fmt.Sprintf("; instructions: %d\n\n", len(p.Instructions)))

	for i := range p.Instructions {
		idx := uint64(i)
		if fn, ok := debug.FunctionAt(idx); ok {
			sb.WriteString(fmt.Sprintf("%s:\n", fn))
		}
		line := p.DisassembleInstruction(i)
		if srcLine, srcCol := debug.Lookup(idx); srcLine > 0 {
			sb.WriteString(fmt.Sprintf("%04d  %-30s ; line %d:%d\n", i, line, srcLine, srcCol))
		} else {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", i, line))
		}
	}

	return sb.String()
}

// DisassembleInstruction returns a single instruction in assembler syntax.
// Jump targets given as immediates are annotated with the target index.
func (p *Program) DisassembleInstruction(idx int) string {
	if idx < 0 || idx >= len(p.Instructions) {
		return "<end of code>"
	}
	in := p.Instructions[idx]
	text := in.String()
	if in.Op == OpCALL || in.Op == OpJMP || in.Op == OpJMPA {
		if in.Addr.Mode == ModeImmediate {
			text += fmt.Sprintf(" ; -> %04d", in.Addr.Value.Uint())
		}
	}
	return text
}

// DisassembleToLines returns the listing as a slice of lines without header.
func (p *Program) DisassembleToLines() []string {
	lines := make([]string, 0, len(p.Instructions))
	for i := range p.Instructions {
		lines = append(lines, fmt.Sprintf("%04d  %s", i, p.DisassembleInstruction(i)))
	}
	return lines
}
