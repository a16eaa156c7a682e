package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/chazu/regvm/vm"
)

// Process exit statuses for run.
const (
	exitOK       = 0
	exitPanicked = 3
	exitOverflow = 4
	exitStopped  = 130
)

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "run a program until it exits",
	ArgsUsage: "[program.rvi | program.rvs]",
	Description: `Runs an image, or assembles and runs a source file. Without an
   argument the program named in regvm.toml is used. BRK instructions are
   logged and execution resumes.`,
	Flags: []cli.Flag{
		archFlag,
		dbFlag,
		entryFlag,
		cli.BoolFlag{Name: "trace, t", Usage: "log every instruction (needs debug verbosity)"},
		cli.BoolFlag{Name: "profile, p", Usage: "print call and opcode counts on exit"},
		cli.BoolFlag{Name: "regs", Usage: "print registers on exit"},
		cli.DurationFlag{Name: "timeout", Usage: "stop the thread after this long"},
	},
	Action: runAction,
}

func runAction(ctx *cli.Context) error {
	s, err := newSession(ctx, sessionOptions{
		entry:   ctx.String("entry"),
		trace:   ctx.Bool("trace"),
		profile: ctx.Bool("profile"),
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	if ctx.Bool("trace") && !commonlog.GetLogger("regvm.trace").AllowLevel(commonlog.Debug) {
		log.Warning("trace requested but debug logging is off; pass -v 6")
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if d := ctx.Duration("timeout"); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, d)
		defer cancel()
	}

	status := runSession(runCtx, s, ctx.App.ErrWriter)

	out := ctx.App.Writer
	if ctx.Bool("regs") {
		writeRegisters(out, s.thread)
	}
	if s.profiler != nil {
		writeProfile(out, s.profiler)
	}
	if status != exitOK {
		return cli.NewExitError("", status)
	}
	return nil
}

// runSession runs the thread to completion, resuming past breakpoints,
// and returns the process exit status. Exit reports go to errOut.
func runSession(ctx context.Context, s *session, errOut io.Writer) int {
	for {
		_, err := s.thread.Run(ctx)
		switch {
		case errors.Is(err, vm.ErrBreakpoint):
			pc, _ := s.thread.PC()
			log.Notice("breakpoint", "pc", pc)
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			pc, _ := s.thread.PC()
			noticeColor.Fprintf(errOut, "stopped at %04d after %d steps: %v\n", pc, s.thread.Steps(), err)
			return exitStopped
		}

		writeExit(errOut, s.thread)
		switch s.thread.ExitCode() {
		case vm.ExitSuccess, vm.ExitOutOfInstructions:
			return exitOK
		case vm.ExitStackOverflow:
			return exitOverflow
		default:
			return exitPanicked
		}
	}
}
