package image

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/regvm/pkg/bytecode"
	"github.com/chazu/regvm/pkg/memory"
	"github.com/chazu/regvm/pkg/value"
	"github.com/chazu/regvm/vm"
)

func sampleImage(t *testing.T, arch value.Architecture) *Image {
	t.Helper()
	p, d, err := bytecode.Assemble(`
main:
    LDB $0[$1]
    LDC #Integer(2)
    MUL
    RET
`, arch)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	img, err := New(p, d)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := img.AddHeap(0x40, value.NewArray([]value.StaticRawType{value.NewInt(10), value.NewInt(21)}, arch)); err != nil {
		t.Fatalf("AddHeap failed: %v", err)
	}
	img.AddStack(0, value.NewHeapRef(0x40, arch))
	img.AddStack(1, value.NewInt(1))
	return img
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, arch := range []value.Architecture{value.Arch64, value.Arch32, value.Arch16} {
		img := sampleImage(t, arch)
		data, err := Marshal(img)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		got, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got.Architecture() != arch || len(got.Heap) != 1 || len(got.Stack) != 2 {
			t.Fatalf("arch %s: decoded %+v", arch, got)
		}
		if got.Debug == nil || got.Debug.Functions[0].Name != "main" {
			t.Errorf("arch %s: debug info lost: %+v", arch, got.Debug)
		}

		again, err := Marshal(got)
		if err != nil {
			t.Fatalf("second Marshal failed: %v", err)
		}
		if string(again) != string(data) {
			t.Errorf("arch %s: encoding is not deterministic", arch)
		}
	}
}

func TestImageRuns(t *testing.T) {
	img := sampleImage(t, value.Arch64)
	th, err := img.NewThread(nil, vm.Options{})
	if err != nil {
		t.Fatalf("NewThread failed: %v", err)
	}
	code, err := th.Run(context.Background())
	if err != nil || code != vm.ExitSuccess {
		t.Fatalf("Run = %s, %v", code, err)
	}
	if a := th.Register(bytecode.RegA); a.Int() != 42 {
		t.Errorf("A = %v, want Integer(42)", a)
	}
}

func TestEntrySelection(t *testing.T) {
	img := sampleImage(t, value.Arch64)
	img.Entry = 2

	th, err := img.NewThread(nil, vm.Options{Entry: 1})
	if err != nil {
		t.Fatalf("NewThread failed: %v", err)
	}
	if pc, _ := th.PC(); pc != 2 {
		t.Errorf("NewThread pc = %d, want image entry 2", pc)
	}

	th, err = img.NewThreadAt(nil, 0, vm.Options{})
	if err != nil {
		t.Fatalf("NewThreadAt failed: %v", err)
	}
	if pc, _ := th.PC(); pc != 0 {
		t.Errorf("NewThreadAt(0) pc = %d, want 0", pc)
	}
}

func TestAddHeapTooLarge(t *testing.T) {
	img := sampleImage(t, value.Arch16)
	long := value.NewString(strings.Repeat("x", 16385))
	if err := img.AddHeap(0x80, long); !errors.Is(err, value.ErrPayloadTooLarge) {
		t.Errorf("AddHeap = %v, want ErrPayloadTooLarge", err)
	}
	if err := img.AddHeap(0x10000, value.NewString("hi")); err == nil {
		t.Error("expected error for an address past the 16-bit range")
	}
	if len(img.Heap) != 1 {
		t.Errorf("rejected values were recorded: %d heap entries", len(img.Heap))
	}
}

func TestAddReplaces(t *testing.T) {
	img := sampleImage(t, value.Arch64)
	img.AddStack(1, value.NewInt(0))
	if err := img.AddHeap(0x40, value.NewString("hi")); err != nil {
		t.Fatalf("AddHeap failed: %v", err)
	}
	if len(img.Stack) != 2 || len(img.Heap) != 1 {
		t.Fatalf("entries duplicated: %d stack, %d heap", len(img.Stack), len(img.Heap))
	}
	stack, err := img.StackValues()
	if err != nil {
		t.Fatalf("StackValues failed: %v", err)
	}
	if !stack[1].Equal(value.NewInt(0)) {
		t.Errorf("slot 1 = %v", stack[1])
	}
	heap := memory.NewHeapMemory(nil)
	if err := img.LoadHeap(heap); err != nil {
		t.Fatalf("LoadHeap failed: %v", err)
	}
	if v, _ := heap.Get(0x40); v.Text() != "hi" {
		t.Errorf("heap[0x40] = %v", v)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for garbage input")
	}

	img := sampleImage(t, value.Arch64)
	img.Version = Version + 1
	data, err := Marshal(img)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := Unmarshal(data); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("Unmarshal = %v, want ErrUnsupportedVersion", err)
	}
}

func TestArchitectureMismatch(t *testing.T) {
	img := sampleImage(t, value.Arch64)
	img.Arch = uint8(value.Arch32)
	if _, err := img.Program(); err == nil {
		t.Error("expected error for mismatched architecture")
	}
}

func TestHeapBudgetApplies(t *testing.T) {
	img := sampleImage(t, value.Arch64)
	heap := memory.NewHeapMemory(memory.NewBudget(4))
	if _, err := img.NewThread(heap, vm.Options{}); err == nil {
		t.Error("expected budget error loading heap")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog"+FileExtension)
	img := sampleImage(t, value.Arch16)
	if err := Save(path, img); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	p, err := got.Program()
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if p.Len() != 4 {
		t.Errorf("program has %d instructions, want 4", p.Len())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.rvi")); err == nil {
		t.Error("expected error loading a missing file")
	}
}
