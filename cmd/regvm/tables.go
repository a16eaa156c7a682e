package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/chazu/regvm/debuginfo"
	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/vm"
)

var (
	errColor    = color.New(color.FgRed, color.Bold)
	okColor     = color.New(color.FgGreen)
	noticeColor = color.New(color.FgYellow)
	pcColor     = color.New(color.FgCyan)
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// writeExit reports how a thread terminated.
func writeExit(w io.Writer, t *vm.Thread) {
	p := t.Panic()
	if p == nil {
		okColor.Fprintf(w, "exit %s after %d steps\n", t.ExitCode(), t.Steps())
		return
	}
	writePanic(w, p, t.Machine().Debug)
}

// writePanic prints a panic and its backtrace, with source lines when
// debug info is available.
func writePanic(w io.Writer, p *vm.ThreadPanic, debug *bytecode.DebugInfo) {
	errColor.Fprintf(w, "%s\n", p.Error())
	if line, col := debug.Lookup(p.PC); line > 0 {
		fmt.Fprintf(w, "  at %s:%d:%d\n", debugFile(debug), line, col)
	}
	if len(p.Frames) == 0 {
		return
	}
	fmt.Fprintln(w, "backtrace:")
	fmt.Fprint(w, p.Backtrace())
}

func debugFile(debug *bytecode.DebugInfo) string {
	if debug == nil || debug.File == "" {
		return "<unknown>"
	}
	return debug.File
}

func writeRegisters(w io.Writer, t *vm.Thread) {
	tbl := newTable(w, "Register", "Kind", "Value")
	regs := t.Registers()
	for r := bytecode.Register(0); r < bytecode.NumRegisters; r++ {
		v := regs.Get(r)
		tbl.Append([]string{r.String(), v.Kind().String(), v.String()})
	}
	tbl.Render()
}

func writeFrames(w io.Writer, frames []vm.StackFrame, debug *bytecode.DebugInfo) {
	tbl := newTable(w, "#", "Function", "PC", "Base", "Source")
	for _, f := range frames {
		src := ""
		if f.Line > 0 {
			src = fmt.Sprintf("%s:%d:%d", debugFile(debug), f.Line, f.Column)
		}
		tbl.Append([]string{
			strconv.FormatUint(f.ID, 10),
			f.Name,
			fmt.Sprintf("%04d", f.PC),
			strconv.FormatUint(f.Base, 10),
			src,
		})
	}
	tbl.Render()
}

// writeFrameSlots lists the non-void slots of the current frame window.
func writeFrameSlots(w io.Writer, t *vm.Thread) {
	tbl := newTable(w, "Offset", "Kind", "Value")
	frameSize := t.Machine().Calls.FrameSize()
	for off := uint64(0); off < frameSize; off++ {
		v, ok := t.FrameSlot(off)
		if !ok || v.IsVoid() {
			continue
		}
		tbl.Append([]string{strconv.FormatUint(off, 10), v.Kind().String(), v.String()})
	}
	tbl.Render()
}

func writeHeap(w io.Writer, t *vm.Thread) {
	heap := t.Machine().Heap
	tbl := newTable(w, "Address", "Kind", "Value")
	for _, addr := range heap.Addresses() {
		v, _ := heap.Get(addr)
		tbl.Append([]string{fmt.Sprintf("0x%x", addr), v.Kind().String(), v.String()})
	}
	tbl.Render()
	if b := heap.Budget(); b != nil {
		fmt.Fprintf(w, "heap budget: %d/%d bytes\n", b.Used(), b.Limit())
	}
}

func writeAux(w io.Writer, t *vm.Thread) {
	aux := t.AuxStack()
	if len(aux) == 0 {
		fmt.Fprintln(w, "aux stack is empty")
		return
	}
	tbl := newTable(w, "Depth", "Kind", "Value")
	for i := len(aux) - 1; i >= 0; i-- {
		tbl.Append([]string{strconv.Itoa(len(aux) - 1 - i), aux[i].Kind().String(), aux[i].String()})
	}
	tbl.Render()
}

// writeProfile renders call counts, hottest first, then opcode counts.
func writeProfile(w io.Writer, p *vm.Profiler) {
	calls := newTable(w, "Function", "Entry", "Calls", "Hot")
	for _, c := range p.Calls() {
		hot := ""
		if c.IsHot {
			hot = "yes"
		}
		calls.Append([]string{c.Name, fmt.Sprintf("%04d", c.Entry), strconv.FormatUint(c.Count, 10), hot})
	}
	calls.Render()

	counts := p.OpcodeCounts()
	ops := make([]bytecode.Opcode, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool {
		if counts[ops[i]] != counts[ops[j]] {
			return counts[ops[i]] > counts[ops[j]]
		}
		return ops[i] < ops[j]
	})

	opTable := newTable(w, "Opcode", "Count")
	for _, op := range ops {
		opTable.Append([]string{op.String(), strconv.FormatUint(counts[op], 10)})
	}
	opTable.SetFooter([]string{"total", strconv.FormatUint(p.TotalInstructions(), 10)})
	opTable.Render()
}

func writeSymbols(w io.Writer, entries []debuginfo.Entry) {
	tbl := newTable(w, "Program", "File", "Functions", "Locations", "Saved")
	for _, e := range entries {
		tbl.Append([]string{
			e.ID,
			e.File,
			strconv.Itoa(e.Functions),
			strconv.Itoa(e.Locations),
			e.SavedAt.Format("2006-01-02 15:04:05"),
		})
	}
	tbl.Render()
}
