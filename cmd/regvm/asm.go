package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/chazu/regvm/debuginfo"
	"github.com/chazu/regvm/manifest"
	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/image"
	"github.com/chazu/regvm/pkg/value"
)

var asmCommand = cli.Command{
	Name:      "asm",
	Usage:     "assemble a source file into an image",
	ArgsUsage: "<source.rvs>",
	Flags: []cli.Flag{
		archFlag,
		dbFlag,
		entryFlag,
		cli.StringFlag{Name: "output, o", Usage: "image path (default: source name with .rvi)"},
		cli.BoolFlag{Name: "strip", Usage: "leave debug info out of the image"},
	},
	Action: asmAction,
}

func asmAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.NewExitError("asm: expected exactly one source file", 2)
	}
	m, err := loadManifest(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	arch, err := resolveArch(ctx, m)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	src := ctx.Args().First()
	out := ctx.String("output")
	if out == "" {
		out = strings.TrimSuffix(src, filepath.Ext(src)) + image.FileExtension
	}
	if err := assembleFile(src, out, arch, m, assembleOptions{
		entry: ctx.String("entry"),
		db:    databasePath(ctx, m),
		strip: ctx.Bool("strip"),
	}); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "wrote %s\n", out)
	return nil
}

type assembleOptions struct {
	entry string
	db    string
	strip bool
}

// assembleFile writes src as an image at out. Debug info goes into the
// store when one is configured; strip leaves it out of the image itself.
func assembleFile(src, out string, arch value.Architecture, m *manifest.Manifest, opts assembleOptions) error {
	text, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	p, debug, err := bytecode.Assemble(string(text), arch)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	debug.File = filepath.Base(src)

	img, err := image.New(p, debug)
	if err != nil {
		return err
	}
	if opts.entry != "" {
		m.Program.Entry = opts.entry
	}
	if img.Entry, err = m.ResolveEntry(debug); err != nil {
		return err
	}

	if opts.db != "" {
		store, err := debuginfo.Open(opts.db)
		if err != nil {
			return err
		}
		id, err := store.SaveProgram(p, debug)
		store.Close()
		if err != nil {
			return err
		}
		log.Info("saved debug info", "program", id, "db", opts.db)
	}
	if opts.strip {
		img.Debug = nil
	}
	return image.Save(out, img)
}

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "print the listing of an image or source file",
	ArgsUsage: "[program]",
	Flags:     []cli.Flag{archFlag, dbFlag},
	Action:    disasmAction,
}

func disasmAction(ctx *cli.Context) error {
	m, err := loadManifest(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	path, err := programPath(ctx, m)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	listing, err := disassemble(ctx, m, path)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprint(ctx.App.Writer, listing)
	return nil
}

func disassemble(ctx *cli.Context, m *manifest.Manifest, path string) (string, error) {
	arch, err := resolveArch(ctx, m)
	if err != nil {
		return "", err
	}
	img, err := loadImage(path, arch)
	if err != nil {
		return "", err
	}
	if err := attachDebug(img, databasePath(ctx, m)); err != nil {
		return "", err
	}
	p, err := img.Program()
	if err != nil {
		return "", err
	}
	return p.DisassembleWithDebug(filepath.Base(path), img.Debug), nil
}

var symbolsCommand = cli.Command{
	Name:  "symbols",
	Usage: "list or remove programs in the debug info database",
	Flags: []cli.Flag{
		dbFlag,
		cli.StringFlag{Name: "delete", Usage: "remove the program with this id"},
	},
	Action: symbolsAction,
}

func symbolsAction(ctx *cli.Context) error {
	m, err := loadManifest(ctx)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	path := databasePath(ctx, m)
	if path == "" {
		return cli.NewExitError("symbols: no database; set debug.database or pass --db", 2)
	}
	store, err := debuginfo.Open(path)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer store.Close()

	if id := ctx.String("delete"); id != "" {
		if err := store.Delete(id); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		fmt.Fprintf(ctx.App.Writer, "deleted %s\n", id)
		return nil
	}

	entries, err := store.List()
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	writeSymbols(ctx.App.Writer, entries)
	return nil
}

var initCommand = cli.Command{
	Name:      "init",
	Usage:     "write a default regvm.toml",
	ArgsUsage: "[dir]",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "name", Usage: "project name (default: directory name)"},
		cli.BoolFlag{Name: "force, f", Usage: "overwrite an existing regvm.toml"},
	},
	Action: initAction,
}

func initAction(ctx *cli.Context) error {
	dir := ctx.Args().First()
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	if err := initProject(abs, ctx.String("name"), ctx.Bool("force")); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprintf(ctx.App.Writer, "wrote %s\n", filepath.Join(abs, manifest.FileName))
	return nil
}

// initProject writes a default manifest into dir.
func initProject(dir, name string, force bool) error {
	path := filepath.Join(dir, manifest.FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	m := manifest.Default()
	m.Project.Name = name
	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(dir)
	}
	m.Project.Version = "0.1.0"
	m.Program.Source = "main.rvs"
	m.Program.Entry = "main"
	m.Debug.Database = filepath.Join(".regvm", "debug.db")
	return m.Save(dir)
}
