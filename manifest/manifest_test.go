package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/value"
	"github.com/chazu/regvm/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "counter"
version = "0.1.0"

[machine]
arch = "32"
stack-size = 4096
frame-size = 64
max-call-depth = 32
max-heap-bytes = 65536

[program]
image = "build/counter.rvi"
entry = "main"

[trace]
enabled = true
level = "debug"
log-file = "/tmp/regvm.log"
profile = true

[debug]
database = "counter.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "counter" {
		t.Errorf("project name = %q, want counter", m.Project.Name)
	}
	if m.Machine.Arch != value.Arch32 {
		t.Errorf("arch = %s, want 32", m.Machine.Arch)
	}
	if m.Machine.StackSize != 4096 || m.Machine.FrameSize != 64 || m.Machine.MaxCallDepth != 32 {
		t.Errorf("machine = %+v", m.Machine)
	}
	if b := m.Budget(); b == nil || b.Limit() != 65536 {
		t.Errorf("Budget() = %v, want limit 65536", b)
	}
	if !m.Trace.Enabled || !m.Trace.Profile || m.Verbosity() != 6 {
		t.Errorf("trace = %+v, verbosity %d", m.Trace, m.Verbosity())
	}
	if got, want := m.ImagePath(), filepath.Join(m.Dir, "build", "counter.rvi"); got != want {
		t.Errorf("ImagePath() = %q, want %q", got, want)
	}
	if got := m.LogFilePath(); got != "/tmp/regvm.log" {
		t.Errorf("LogFilePath() = %q", got)
	}
	if got, want := m.DatabasePath(), filepath.Join(m.Dir, "counter.db"); got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
	if m.SourcePath() != "" {
		t.Errorf("SourcePath() = %q, want empty", m.SourcePath())
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Machine.Arch != value.Arch64 {
		t.Errorf("default arch = %s, want 64", m.Machine.Arch)
	}
	if m.Machine.StackSize != vm.DefaultStackSize || m.Machine.FrameSize != vm.DefaultFrameSize {
		t.Errorf("default machine = %+v", m.Machine)
	}
	if m.Machine.MaxCallDepth != vm.DefaultMaxCallDepth {
		t.Errorf("default max-call-depth = %d", m.Machine.MaxCallDepth)
	}
	if m.Budget() != nil {
		t.Error("default heap should be unlimited")
	}
	if m.Trace.Level != "warning" || m.Verbosity() != 3 {
		t.Errorf("default level = %q (%d)", m.Trace.Level, m.Verbosity())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"[machine]\narch = \"48\"", "unknown architecture"},
		{"[machine]\nstack-size = 128\nframe-size = 256", "exceeds machine.stack-size"},
		{"[machine]\nmax-heap-bytes = -1", "max-heap-bytes"},
		{"[trace]\nlevel = \"loud\"", "unknown trace.level"},
		{"[machine\n", "parse error"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tt.content)
		_, err := Load(dir)
		if err == nil {
			t.Errorf("Load(%q): expected error", tt.content)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q): error %q does not mention %q", tt.content, err, tt.want)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no regvm.toml exists")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := Default()
	m.Project.Name = "saved"
	m.Machine.Arch = value.Arch16
	m.Program.Source = "main.rvs"
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Project.Name != "saved" || loaded.Machine.Arch != value.Arch16 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.SourcePath() != filepath.Join(loaded.Dir, "main.rvs") {
		t.Errorf("SourcePath() = %q", loaded.SourcePath())
	}
}

func TestResolveEntry(t *testing.T) {
	debug := &bytecode.DebugInfo{}
	debug.AddFunction("main", 0)
	debug.AddFunction("start", 7)

	tests := []struct {
		entry   string
		want    uint64
		wantErr bool
	}{
		{"", 0, false},
		{"12", 12, false},
		{"0x10", 16, false},
		{"start", 7, false},
		{"missing", 0, true},
	}
	for _, tt := range tests {
		m := Default()
		m.Program.Entry = tt.entry
		got, err := m.ResolveEntry(debug)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveEntry(%q) error = %v", tt.entry, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveEntry(%q) = %d, want %d", tt.entry, got, tt.want)
		}
	}

	m := Default()
	m.Program.Entry = "start"
	opts, err := m.Options(debug)
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Entry != 7 || opts.Debug != debug || opts.FrameSize != vm.DefaultFrameSize {
		t.Errorf("Options() = %+v", opts)
	}
}
