package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/regvm/pkg/value"
)

func sampleProgram(arch value.Architecture) *Program {
	p := NewProgram(arch)
	p.Emit(OpLDA, Immediate(value.NewInt(5)))
	p.Emit(OpSTA, Absolute(10))
	p.Emit(OpLDC, Absolute(10))
	p.Emit(OpLDB, AbsoluteIndex(3, 4))
	p.Emit(OpLDX, AbsoluteProperty(3, 2))
	p.Emit(OpLDY, AbsoluteStatic(0))
	p.Emit(OpLDB, Indirect(RegX))
	p.EmitImplicit(OpEQ)
	p.Emit(OpJMPA, Immediate(value.NewInt(0)))
	p.EmitImplicit(OpRET)
	return p
}

// ============ Program Tests ============

func TestNewProgram(t *testing.T) {
	p := NewProgram(value.Arch32)
	if p.Version != BytecodeVersion {
		t.Errorf("Version = %d, want %d", p.Version, BytecodeVersion)
	}
	if p.Arch != value.Arch32 {
		t.Errorf("Arch = %s, want 32", p.Arch)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestProgramEmitAndPatch(t *testing.T) {
	p := NewProgram(value.Arch64)
	if idx := p.EmitImplicit(OpNop); idx != 0 {
		t.Errorf("first Emit index = %d", idx)
	}
	jmp := p.Emit(OpJMP, Implicit())
	p.Patch(jmp, Immediate(value.NewInt(0)))

	in, ok := p.At(1)
	if !ok || in.Op != OpJMP || in.Addr.Mode != ModeImmediate || in.Addr.Value.Int() != 0 {
		t.Errorf("At(1) = %v, %v", in, ok)
	}
	if _, ok := p.At(2); ok {
		t.Error("At(2) should be out of range")
	}
}

// ============ Serialization Tests ============

func TestSerializeRoundTrip(t *testing.T) {
	for _, arch := range []value.Architecture{value.Arch16, value.Arch32, value.Arch64} {
		p := sampleProgram(arch)
		data, err := p.Serialize()
		if err != nil {
			t.Fatalf("arch %s: Serialize failed: %v", arch, err)
		}
		if !bytes.Equal(data[:4], BytecodeMagic) {
			t.Fatalf("arch %s: bad magic %q", arch, data[:4])
		}

		got, err := Deserialize(data)
		if err != nil {
			t.Fatalf("arch %s: Deserialize failed: %v", arch, err)
		}
		if got.Arch != arch || got.Len() != p.Len() {
			t.Fatalf("arch %s: got arch %s, %d instructions", arch, got.Arch, got.Len())
		}
		for i := range p.Instructions {
			if got.Instructions[i] != p.Instructions[i] {
				t.Errorf("arch %s: instruction %d = %v, want %v", arch, i, got.Instructions[i], p.Instructions[i])
			}
		}
	}
}

func TestSerializePointerWidth(t *testing.T) {
	p16 := NewProgram(value.Arch16)
	p16.Emit(OpSTA, Absolute(1))
	p64 := NewProgram(value.Arch64)
	p64.Emit(OpSTA, Absolute(1))

	d16, _ := p16.Serialize()
	d64, _ := p64.Serialize()
	// header 11 + opcode 1 + mode 1 + pointer
	if len(d16) != 11+2+2 || len(d64) != 11+2+8 {
		t.Errorf("lengths = %d, %d", len(d16), len(d64))
	}
}

func TestSerializeRejectsUnknownOpcode(t *testing.T) {
	p := NewProgram(value.Arch64)
	p.Emit(Opcode(0xEE), Implicit())
	if _, err := p.Serialize(); err == nil {
		t.Error("expected error for unknown opcode")
	}
}

func TestDeserializeErrors(t *testing.T) {
	valid, _ := sampleProgram(value.Arch64).Serialize()

	badMagic := bytes.Clone(valid)
	copy(badMagic, "XXXX")

	badOp := bytes.Clone(valid)
	badOp[11] = 0xEE

	badArch := bytes.Clone(valid)
	badArch[6] = 9

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"too short", valid[:5], "too short"},
		{"magic", badMagic, "magic"},
		{"arch", badArch, "architecture"},
		{"opcode", badOp, "unknown opcode"},
		{"truncated", valid[:len(valid)-2], "unexpected end of bytecode"},
		{"trailing", append(bytes.Clone(valid), 0), "trailing"},
	}

	for _, tt := range tests {
		_, err := Deserialize(tt.data)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

// ============ Debug Info Tests ============

func TestDebugInfoLookup(t *testing.T) {
	d := &DebugInfo{}
	d.AddSourceLocation(4, 20, 3)
	d.AddSourceLocation(0, 10, 1)
	d.AddSourceLocation(4, 21, 5) // replaces

	tests := []struct {
		pc   uint64
		line uint32
		col  uint16
	}{
		{0, 10, 1},
		{3, 10, 1},
		{4, 21, 5},
		{99, 21, 5},
	}
	for _, tt := range tests {
		line, col := d.Lookup(tt.pc)
		if line != tt.line || col != tt.col {
			t.Errorf("Lookup(%d) = %d:%d, want %d:%d", tt.pc, line, col, tt.line, tt.col)
		}
	}
	if len(d.Locations) != 2 {
		t.Errorf("expected 2 locations, got %d", len(d.Locations))
	}
}

func TestDebugInfoFunctions(t *testing.T) {
	d := &DebugInfo{}
	d.AddFunction("helper", 8)
	d.AddFunction("main", 0)

	if name, ok := d.FunctionAt(8); !ok || name != "helper" {
		t.Errorf("FunctionAt(8) = %q, %v", name, ok)
	}
	if _, ok := d.FunctionAt(3); ok {
		t.Error("FunctionAt(3) should miss")
	}
	if name, _ := d.FunctionContaining(5); name != "main" {
		t.Errorf("FunctionContaining(5) = %q", name)
	}
	if name, _ := d.FunctionContaining(12); name != "helper" {
		t.Errorf("FunctionContaining(12) = %q", name)
	}

	var nilInfo *DebugInfo
	if line, _ := nilInfo.Lookup(0); line != 0 {
		t.Error("nil DebugInfo should have no locations")
	}
}

// ============ Disassembler Tests ============

func TestDisassemble(t *testing.T) {
	out := sampleProgram(value.Arch64).Disassemble()
	for _, want := range []string{
		"regvm bytecode v1",
		"arch: 64-bit",
		"0000  LDA #Integer(5)",
		"0001  STA $10",
		"0003  LDB $3[$4]",
		"0004  LDX $3.2",
		"0005  LDY @0",
		"0006  LDB %X",
		"0007  EQ",
		"JMPA #Integer(0) ; -> 0000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleWithDebug(t *testing.T) {
	p := sampleProgram(value.Arch64)
	d := &DebugInfo{File: "main.src"}
	d.AddFunction("main", 0)
	d.AddSourceLocation(0, 3, 7)

	out := p.DisassembleWithDebug("demo", d)
	for _, want := range []string{"; === demo ===", "source: main.src", "main:\n", "; line 3:7"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
