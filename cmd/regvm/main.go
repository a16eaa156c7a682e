// regvm runs, assembles, disassembles and debugs regvm bytecode programs.
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	cli "gopkg.in/urfave/cli.v1"
)

var log = commonlog.GetLogger("regvm.cli")

var (
	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "path to regvm.toml (default: nearest regvm.toml above the working directory)",
	}
	verboseFlag = cli.IntFlag{
		Name:  "verbose, v",
		Value: -1,
		Usage: "log verbosity 0-6, overriding trace.level",
	}
	logFileFlag = cli.StringFlag{
		Name:  "log-file",
		Usage: "write logs to this file instead of stderr",
	}
	archFlag = cli.StringFlag{
		Name:  "arch",
		Usage: "target architecture for assembly sources: 16, 32 or 64",
	}
	dbFlag = cli.StringFlag{
		Name:  "db",
		Usage: "debug info database, overriding debug.database",
	}
	entryFlag = cli.StringFlag{
		Name:  "entry, e",
		Usage: "entry function name or instruction index",
	}
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "regvm"
	app.Usage = "register bytecode virtual machine"
	app.Version = "0.1.0"
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{configFlag, verboseFlag, logFileFlag}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		runCommand,
		asmCommand,
		disasmCommand,
		debugCommand,
		symbolsCommand,
		initCommand,
	}
	return app
}

// setupLogging configures commonlog from the manifest and global flags.
func setupLogging(ctx *cli.Context) error {
	m, err := loadManifest(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	verbosity := m.Verbosity()
	if v := ctx.GlobalInt("verbose"); v >= 0 {
		verbosity = v
	}
	path := m.LogFilePath()
	if p := ctx.GlobalString("log-file"); p != "" {
		path = p
	}
	if path != "" {
		commonlog.Configure(verbosity, &path)
	} else {
		commonlog.Configure(verbosity, nil)
	}
	return nil
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
