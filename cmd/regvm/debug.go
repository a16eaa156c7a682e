package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/chazu/regvm/vm"
)

var debugCommand = cli.Command{
	Name:      "debug",
	Usage:     "step through a program interactively",
	ArgsUsage: "[program]",
	Flags: []cli.Flag{
		archFlag,
		dbFlag,
		entryFlag,
		cli.StringSliceFlag{Name: "break, b", Usage: "set a breakpoint at an instruction index or function"},
	},
	Action: debugAction,
}

func debugAction(ctx *cli.Context) error {
	s, err := newSession(ctx, sessionOptions{entry: ctx.String("entry")})
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	r := newREPL(s, ctx.App.Writer)
	for _, bp := range ctx.StringSlice("break") {
		if err := r.setBreakpoint(bp); err != nil {
			return cli.NewExitError(err.Error(), 2)
		}
	}
	return r.loop()
}

// replCommand is one debugger command.
type replCommand struct {
	names []string
	args  string
	help  string
	run   func(r *repl, args []string) error
}

var replCommands []replCommand

func init() {
	replCommands = []replCommand{
		{[]string{"step", "s"}, "[n]", "execute n instructions, entering calls", (*repl).cmdStep},
		{[]string{"next", "n"}, "", "execute one instruction, running calls to completion", (*repl).cmdNext},
		{[]string{"out", "finish"}, "", "run until the current function returns", (*repl).cmdOut},
		{[]string{"continue", "c", "run"}, "", "run until a breakpoint or exit", (*repl).cmdContinue},
		{[]string{"reset"}, "", "restart the program, keeping breakpoints", (*repl).cmdReset},
		{[]string{"load"}, "<program>", "load another image or source file", (*repl).cmdLoad},
		{[]string{"regs", "r"}, "", "show registers", (*repl).cmdRegs},
		{[]string{"frame", "stack"}, "", "show the current frame's slots", (*repl).cmdFrame},
		{[]string{"heap"}, "", "show heap memory", (*repl).cmdHeap},
		{[]string{"aux"}, "", "show the auxiliary stack", (*repl).cmdAux},
		{[]string{"bt", "frames"}, "", "show the call stack", (*repl).cmdBacktrace},
		{[]string{"break", "b"}, "<pc|function>", "set a breakpoint", (*repl).cmdBreak},
		{[]string{"delete", "d"}, "[pc]", "remove one breakpoint, or all", (*repl).cmdDelete},
		{[]string{"breaks"}, "", "list breakpoints", (*repl).cmdBreaks},
		{[]string{"list", "l"}, "[n]", "disassemble around the current instruction", (*repl).cmdList},
		{[]string{"where", "w"}, "", "show the current instruction", (*repl).cmdWhere},
		{[]string{"help", "h", "?"}, "", "show this help", (*repl).cmdHelp},
		{[]string{"quit", "q", "exit"}, "", "leave the debugger", nil},
	}
}

func lookupCommand(name string) (replCommand, bool) {
	for _, c := range replCommands {
		for _, n := range c.names {
			if n == name {
				return c, true
			}
		}
	}
	return replCommand{}, false
}

// repl drives a Debugger from text commands.
type repl struct {
	s   *session
	dbg *vm.Debugger
	out io.Writer
	ctx context.Context
}

func newREPL(s *session, out io.Writer) *repl {
	return &repl{s: s, dbg: vm.NewDebugger(s.thread), out: out, ctx: context.Background()}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".regvm_history")
}

func (r *repl) loop() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCommand)

	hist := historyPath()
	if f, err := os.Open(hist); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if hist == "" {
			return
		}
		if f, err := os.Create(hist); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	fmt.Fprintf(r.out, "debugging %s (thread %s); type help for commands\n", r.s.path, r.s.thread.ID)
	r.where()

	for {
		input, err := line.Prompt("(regvm) ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := r.exec(input)
		if err != nil {
			errColor.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func completeCommand(line string) []string {
	var out []string
	for _, c := range replCommands {
		for _, n := range c.names {
			if strings.HasPrefix(n, line) {
				out = append(out, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// exec runs one command line. It reports whether the debugger should exit.
func (r *repl) exec(input string) (bool, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, ok := lookupCommand(fields[0])
	if !ok {
		return false, fmt.Errorf("unknown command %q; type help", fields[0])
	}
	if cmd.run == nil {
		return true, nil
	}
	return false, cmd.run(r, fields[1:])
}

// interruptible returns a context cancelled by Ctrl-C while execution runs.
func (r *repl) interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(r.ctx, os.Interrupt)
}

func (r *repl) checkRunnable() error {
	if st := r.s.thread.Status(); st.Terminated() {
		return fmt.Errorf("thread has %s; use reset to start again", st)
	}
	return nil
}

// report prints the debugger events produced by the last command, then the
// current position if the thread is still live.
func (r *repl) report(err error) error {
drain:
	for {
		select {
		case ev := <-r.dbg.Events():
			r.printEvent(ev)
		default:
			break drain
		}
	}
	if err != nil && !errors.Is(err, vm.ErrHalted) {
		var p *vm.ThreadPanic
		if errors.As(err, &p) {
			return nil
		}
		return err
	}
	if !r.s.thread.Status().Terminated() {
		r.where()
	}
	return nil
}

func (r *repl) printEvent(ev vm.DebugEvent) {
	switch ev.Type {
	case "breakpointHit":
		noticeColor.Fprintf(r.out, "breakpoint at %04d\n", ev.PC)
	case "exited", "panicked":
		writeExit(r.out, r.s.thread)
	case "stopped":
		if ev.Reason == "BRK" {
			noticeColor.Fprintf(r.out, "BRK at %04d\n", ev.PC)
		}
	}
}

// where prints the instruction about to execute.
func (r *repl) where() {
	t := r.s.thread
	pc, ok := t.PC()
	if !ok {
		return
	}
	r.printInstruction(pc, true)
}

func (r *repl) printInstruction(pc uint64, current bool) {
	m := r.s.thread.Machine()
	marker := "  "
	if current {
		marker = "=>"
	}
	text := m.Program.DisassembleInstruction(int(pc))
	if name, ok := m.Debug.FunctionAt(pc); ok {
		fmt.Fprintf(r.out, "%s:\n", name)
	}
	bp := " "
	if r.dbg.HasBreakpoint(pc) {
		bp = "*"
	}
	loc := ""
	if line, _ := m.Debug.Lookup(pc); line > 0 {
		loc = fmt.Sprintf("    ; %s:%d", debugFile(m.Debug), line)
	}
	if current {
		pcColor.Fprintf(r.out, "%s%s%04d  %s%s\n", marker, bp, pc, text, loc)
		return
	}
	fmt.Fprintf(r.out, "%s%s%04d  %s%s\n", marker, bp, pc, text, loc)
}

func (r *repl) setBreakpoint(arg string) error {
	if pc, err := strconv.ParseUint(arg, 0, 64); err == nil {
		if err := r.dbg.SetBreakpoint(pc); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "breakpoint set at %04d\n", pc)
		return nil
	}
	if err := r.dbg.SetBreakpointAtFunction(arg); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "breakpoint set at %s\n", arg)
	return nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (r *repl) cmdStep(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return fmt.Errorf("step count must be a positive integer, got %q", args[0])
		}
		n = v
	}
	if err := r.checkRunnable(); err != nil {
		return err
	}
	ctx, stop := r.interruptible()
	defer stop()
	var err error
	for i := 0; i < n && err == nil && !r.s.thread.Status().Terminated(); i++ {
		_, err = r.dbg.Step(ctx, vm.StepInto)
	}
	return r.report(err)
}

func (r *repl) cmdNext(args []string) error {
	return r.stepMode(vm.StepOver)
}

func (r *repl) cmdOut(args []string) error {
	return r.stepMode(vm.StepOut)
}

func (r *repl) stepMode(mode vm.StepMode) error {
	if err := r.checkRunnable(); err != nil {
		return err
	}
	ctx, stop := r.interruptible()
	defer stop()
	_, err := r.dbg.Step(ctx, mode)
	return r.report(err)
}

func (r *repl) cmdContinue(args []string) error {
	if err := r.checkRunnable(); err != nil {
		return err
	}
	ctx, stop := r.interruptible()
	defer stop()
	_, err := r.dbg.Continue(ctx)
	return r.report(err)
}

func (r *repl) cmdReset(args []string) error {
	bps := r.dbg.Breakpoints()
	if err := r.s.reset(); err != nil {
		return err
	}
	r.dbg = vm.NewDebugger(r.s.thread)
	for _, pc := range bps {
		if err := r.dbg.SetBreakpoint(pc); err != nil {
			return err
		}
	}
	fmt.Fprintf(r.out, "restarted as thread %s\n", r.s.thread.ID)
	r.where()
	return nil
}

func (r *repl) cmdLoad(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: load <program>")
	}
	img, err := loadImage(args[0], r.s.manifest.Machine.Arch)
	if err != nil {
		return err
	}
	if err := attachDebug(img, r.s.manifest.DatabasePath()); err != nil {
		return err
	}
	s, err := buildSession(r.s.manifest, args[0], img, r.s.opts)
	if err != nil {
		return err
	}
	r.s = s
	r.dbg = vm.NewDebugger(s.thread)
	fmt.Fprintf(r.out, "loaded %s as thread %s\n", args[0], s.thread.ID)
	r.where()
	return nil
}

func (r *repl) cmdRegs(args []string) error {
	writeRegisters(r.out, r.s.thread)
	return nil
}

func (r *repl) cmdFrame(args []string) error {
	if r.s.thread.Depth() == 0 {
		return errors.New("no active frame")
	}
	writeFrameSlots(r.out, r.s.thread)
	return nil
}

func (r *repl) cmdHeap(args []string) error {
	writeHeap(r.out, r.s.thread)
	return nil
}

func (r *repl) cmdAux(args []string) error {
	writeAux(r.out, r.s.thread)
	return nil
}

func (r *repl) cmdBacktrace(args []string) error {
	if r.s.thread.Depth() == 0 {
		return errors.New("no active frames")
	}
	writeFrames(r.out, r.dbg.StackTrace(), r.s.thread.Machine().Debug)
	return nil
}

func (r *repl) cmdBreak(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: break <pc|function>")
	}
	return r.setBreakpoint(args[0])
}

func (r *repl) cmdDelete(args []string) error {
	if len(args) == 0 {
		r.dbg.ClearAllBreakpoints()
		fmt.Fprintln(r.out, "all breakpoints removed")
		return nil
	}
	pc, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid instruction index %q", args[0])
	}
	return r.dbg.RemoveBreakpoint(pc)
}

func (r *repl) cmdBreaks(args []string) error {
	bps := r.dbg.Breakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(r.out, "no breakpoints")
		return nil
	}
	for _, pc := range bps {
		r.printInstruction(pc, false)
	}
	return nil
}

func (r *repl) cmdList(args []string) error {
	n := 5
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid line count %q", args[0])
		}
		n = v
	}
	pc, ok := r.s.thread.PC()
	if !ok {
		return errors.New("no current instruction")
	}
	start := int(pc) - n
	if start < 0 {
		start = 0
	}
	end := int(pc) + n
	if last := r.s.thread.Machine().Program.Len() - 1; end > last {
		end = last
	}
	for i := start; i <= end; i++ {
		r.printInstruction(uint64(i), uint64(i) == pc)
	}
	return nil
}

func (r *repl) cmdWhere(args []string) error {
	if _, ok := r.s.thread.PC(); !ok {
		fmt.Fprintf(r.out, "thread %s\n", r.s.thread.Status())
		return nil
	}
	r.where()
	return nil
}

func (r *repl) cmdHelp(args []string) error {
	tbl := newTable(r.out, "Command", "Arguments", "Description")
	for _, c := range replCommands {
		tbl.Append([]string{strings.Join(c.names, ", "), c.args, c.help})
	}
	tbl.Render()
	return nil
}
