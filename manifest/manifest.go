// Package manifest handles regvm.toml machine and program configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
	"github.com/chazu/regvm/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "regvm.toml"

// Manifest represents a regvm.toml configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Machine Machine `toml:"machine"`
	Program Program `toml:"program"`
	Trace   Trace   `toml:"trace"`
	Debug   Debug   `toml:"debug"`

	// Dir is the directory containing the regvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version,omitempty"`
}

// Machine configures the virtual machine a program runs on.
type Machine struct {
	Arch         value.Architecture `toml:"arch"`
	StackSize    int                `toml:"stack-size"`
	FrameSize    int                `toml:"frame-size"`
	MaxCallDepth int                `toml:"max-call-depth"`
	MaxHeapBytes int64              `toml:"max-heap-bytes"`
}

// Program locates the program to run. Image takes precedence over Source.
type Program struct {
	Image  string `toml:"image,omitempty"`
	Source string `toml:"source,omitempty"`

	// Entry is a function name or an instruction index.
	Entry string `toml:"entry,omitempty"`
}

// Trace configures logging and the execution trace.
type Trace struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	LogFile string `toml:"log-file,omitempty"`
	Profile bool   `toml:"profile"`
}

// Debug configures the debug info store.
type Debug struct {
	Database string `toml:"database,omitempty"`
}

// levels maps trace level names to commonlog verbosity.
var levels = map[string]int{
	"none":     0,
	"critical": 1,
	"error":    2,
	"warning":  3,
	"notice":   4,
	"info":     5,
	"debug":    6,
}

// Default returns a manifest with every default applied.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Machine.StackSize == 0 {
		m.Machine.StackSize = vm.DefaultStackSize
	}
	if m.Machine.FrameSize == 0 {
		m.Machine.FrameSize = vm.DefaultFrameSize
	}
	if m.Machine.MaxCallDepth == 0 {
		m.Machine.MaxCallDepth = vm.DefaultMaxCallDepth
	}
	if m.Trace.Level == "" {
		m.Trace.Level = "warning"
	}
}

// Load parses a regvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a manifest at an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a regvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the machine limits and trace level.
func (m *Manifest) Validate() error {
	mc := m.Machine
	switch {
	case mc.StackSize < 0:
		return fmt.Errorf("machine.stack-size must not be negative, got %d", mc.StackSize)
	case mc.FrameSize < 0:
		return fmt.Errorf("machine.frame-size must not be negative, got %d", mc.FrameSize)
	case mc.FrameSize > mc.StackSize:
		return fmt.Errorf("machine.frame-size %d exceeds machine.stack-size %d", mc.FrameSize, mc.StackSize)
	case mc.MaxHeapBytes < 0:
		return fmt.Errorf("machine.max-heap-bytes must not be negative, got %d", mc.MaxHeapBytes)
	}
	if _, ok := levels[strings.ToLower(m.Trace.Level)]; !ok {
		return fmt.Errorf("unknown trace.level %q", m.Trace.Level)
	}
	return nil
}

// Save writes the manifest as dir/regvm.toml.
func (m *Manifest) Save(dir string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// Verbosity returns the commonlog verbosity for the trace level.
func (m *Manifest) Verbosity() int {
	return levels[strings.ToLower(m.Trace.Level)]
}

// Budget returns the heap budget, or nil when the heap is unlimited.
func (m *Manifest) Budget() *memory.Budget {
	if m.Machine.MaxHeapBytes <= 0 {
		return nil
	}
	return memory.NewBudget(m.Machine.MaxHeapBytes)
}

// Options returns thread options for the machine section. Entry is
// resolved against debug.
func (m *Manifest) Options(debug *bytecode.DebugInfo) (vm.Options, error) {
	entry, err := m.ResolveEntry(debug)
	if err != nil {
		return vm.Options{}, err
	}
	return vm.Options{
		StackSize:    m.Machine.StackSize,
		FrameSize:    m.Machine.FrameSize,
		MaxCallDepth: m.Machine.MaxCallDepth,
		Entry:        entry,
		Debug:        debug,
	}, nil
}

// ResolveEntry turns program.entry into an instruction index. An empty
// entry is instruction 0.
func (m *Manifest) ResolveEntry(debug *bytecode.DebugInfo) (uint64, error) {
	entry := strings.TrimSpace(m.Program.Entry)
	if entry == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(entry, 0, 64); err == nil {
		return n, nil
	}
	if debug != nil {
		for _, fn := range debug.Functions {
			if fn.Name == entry {
				return fn.Entry, nil
			}
		}
	}
	return 0, fmt.Errorf("entry function %q not found", entry)
}

// ImagePath returns the absolute path of program.image, or "".
func (m *Manifest) ImagePath() string { return m.resolve(m.Program.Image) }

// SourcePath returns the absolute path of program.source, or "".
func (m *Manifest) SourcePath() string { return m.resolve(m.Program.Source) }

// LogFilePath returns the absolute path of trace.log-file, or "".
func (m *Manifest) LogFilePath() string { return m.resolve(m.Trace.LogFile) }

// DatabasePath returns the absolute path of debug.database, or "".
func (m *Manifest) DatabasePath() string { return m.resolve(m.Debug.Database) }

func (m *Manifest) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
