package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "gopkg.in/urfave/cli.v1"

	"github.com/chazu/regvm/debuginfo"
	"github.com/chazu/regvm/manifest"
	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/image"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
	"github.com/chazu/regvm/vm"
)

// loadManifest returns the manifest named by --config, the nearest
// regvm.toml above the working directory, or the defaults.
func loadManifest(ctx *cli.Context) (*manifest.Manifest, error) {
	if path := ctx.GlobalString("config"); path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
		if m.Dir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// programPath picks the positional argument, then program.image, then
// program.source.
func programPath(ctx *cli.Context, m *manifest.Manifest) (string, error) {
	if p := ctx.Args().First(); p != "" {
		return p, nil
	}
	if p := m.ImagePath(); p != "" {
		return p, nil
	}
	if p := m.SourcePath(); p != "" {
		return p, nil
	}
	return "", errors.New("no program given and no program.image or program.source configured")
}

func resolveArch(ctx *cli.Context, m *manifest.Manifest) (value.Architecture, error) {
	if s := ctx.String("arch"); s != "" {
		return value.ParseArchitecture(s)
	}
	return m.Machine.Arch, nil
}

func databasePath(ctx *cli.Context, m *manifest.Manifest) string {
	if p := ctx.String("db"); p != "" {
		return p
	}
	return m.DatabasePath()
}

func isImage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), image.FileExtension)
}

// loadImage reads an image file, or assembles a source file into an
// in-memory image.
func loadImage(path string, arch value.Architecture) (*image.Image, error) {
	if isImage(path) {
		return image.Load(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, debug, err := bytecode.Assemble(string(src), arch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	debug.File = filepath.Base(path)
	log.Debug("assembled", "path", path, "instructions", p.Len(), "arch", arch.String())
	return image.New(p, debug)
}

// attachDebug fills in missing debug info from the store at dbPath.
func attachDebug(img *image.Image, dbPath string) error {
	if img.Debug != nil || dbPath == "" {
		return nil
	}
	store, err := debuginfo.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := img.Program()
	if err != nil {
		return err
	}
	debug, err := store.LoadProgram(p)
	if errors.Is(err, debuginfo.ErrProgramNotFound) {
		log.Info("no debug info for program", "db", dbPath)
		return nil
	}
	if err != nil {
		return err
	}
	img.Debug = debug
	return nil
}

// session is a loaded program ready to run.
type session struct {
	manifest *manifest.Manifest
	path     string
	image    *image.Image
	opts     sessionOptions
	thread   *vm.Thread
	profiler *vm.Profiler
}

type sessionOptions struct {
	entry   string
	trace   bool
	profile bool
}

// newSession loads the program named on the command line or in the
// manifest and builds its thread.
func newSession(ctx *cli.Context, so sessionOptions) (*session, error) {
	m, err := loadManifest(ctx)
	if err != nil {
		return nil, err
	}
	path, err := programPath(ctx, m)
	if err != nil {
		return nil, err
	}
	arch, err := resolveArch(ctx, m)
	if err != nil {
		return nil, err
	}
	img, err := loadImage(path, arch)
	if err != nil {
		return nil, err
	}
	if err := attachDebug(img, databasePath(ctx, m)); err != nil {
		return nil, err
	}
	return buildSession(m, path, img, so)
}

func buildSession(m *manifest.Manifest, path string, img *image.Image, so sessionOptions) (*session, error) {
	if so.entry != "" {
		m.Program.Entry = so.entry
	}
	opts, err := m.Options(img.Debug)
	if err != nil {
		return nil, err
	}
	entry := opts.Entry
	if m.Program.Entry == "" {
		entry = img.Entry
	}

	s := &session{manifest: m, path: path, image: img, opts: so}
	if so.trace || m.Trace.Enabled {
		opts.Tracer = vm.NewLogTracer("regvm.trace")
	}
	if so.profile || m.Trace.Profile {
		s.profiler = vm.NewProfiler()
		s.profiler.OnHot = func(cp vm.CallProfile) {
			log.Notice("hot function", "name", cp.Name, "entry", cp.Entry)
		}
		opts.Profiler = s.profiler
	}

	s.thread, err = img.NewThreadAt(memory.NewHeapMemory(m.Budget()), entry, opts)
	if err != nil {
		return nil, err
	}
	log.Info("loaded program", "path", path, "thread", s.thread.ID.String())
	return s, nil
}

// reset rebuilds the thread from the image, discarding heap writes.
func (s *session) reset() error {
	fresh, err := buildSession(s.manifest, s.path, s.image, s.opts)
	if err != nil {
		return err
	}
	s.thread = fresh.thread
	s.profiler = fresh.profiler
	return nil
}
