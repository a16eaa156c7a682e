package bytecode

import (
	"strings"
	"testing"

	"github.com/chazu/regvm/pkg/value"
)

func TestAssembleBasic(t *testing.T) {
	src := `
; EQ scenario
.file "eq.src"
main:
    LDA #Integer(5)
    STA $10
    LDC $10
    LDB #Integer(5)
    EQ
`
	p, d, err := Assemble(src, value.Arch64)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if p.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", p.Len())
	}

	want := []Instruction{
		{OpLDA, Immediate(value.NewInt(5))},
		{OpSTA, Absolute(10)},
		{OpLDC, Absolute(10)},
		{OpLDB, Immediate(value.NewInt(5))},
		{OpEQ, Implicit()},
	}
	for i, in := range want {
		if p.Instructions[i] != in {
			t.Errorf("instruction %d = %v, want %v", i, p.Instructions[i], in)
		}
	}

	if d.File != "eq.src" {
		t.Errorf("File = %q", d.File)
	}
	if name, ok := d.FunctionAt(0); !ok || name != "main" {
		t.Errorf("FunctionAt(0) = %q, %v", name, ok)
	}
	if line, _ := d.Lookup(4); line != 9 {
		t.Errorf("Lookup(4) line = %d, want 9", line)
	}
}

func TestAssembleLabels(t *testing.T) {
	src := `
    CALL helper
    RET
helper:
    JMP done
    NOP
done:
    RET
`
	p, _, err := Assemble(src, value.Arch64)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if got := p.Instructions[0].Addr; got.Mode != ModeImmediate || got.Value.Int() != 2 {
		t.Errorf("CALL operand = %v, want #Integer(2)", got)
	}
	if got := p.Instructions[2].Addr; got.Value.Int() != 4 {
		t.Errorf("JMP operand = %v, want #Integer(4)", got)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		text string
		want value.StaticRawType
	}{
		{"Integer(-7)", value.NewInt(-7)},
		{"42", value.NewInt(42)},
		{"Float(1.5)", value.NewFloat(1.5)},
		{"Double(2.25)", value.NewDouble(2.25)},
		{"Byte(0xFF)", value.NewByte(255)},
		{"Bool(true)", value.NewBool(true)},
		{"Char('x')", value.NewChar('x')},
		{"Char(';')", value.NewChar(';')},
		{"Void", value.VoidValue()},
		{"Null", value.NullValue()},
		{"HeapReference(0x10)", value.NewHeapRef(16, value.Arch64)},
		{"StackReference(3)", value.NewStackRef(3, value.Arch64)},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.text, value.Arch64)
		if err != nil {
			t.Errorf("ParseValue(%q) failed: %v", tt.text, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseValue(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestParseValueErrors(t *testing.T) {
	for _, text := range []string{"Widget(1)", "Integer(x)", "Char('ab')", "Bool(maybe)", "Integer(5"} {
		if _, err := ParseValue(text, value.Arch64); err == nil {
			t.Errorf("ParseValue(%q) should fail", text)
		}
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"FOO", "unknown mnemonic"},
		{"EQ %A", "takes no operand"},
		{"LDA", "requires an operand"},
		{"JMP nowhere", "undefined label"},
		{"x:\nx:", "duplicate label"},
		{"NOP\n.arch 16", ".arch must precede"},
		{"LDA %Q", "unknown register"},
		{"STA $1[2]", "invalid index operand"},
	}
	for _, tt := range tests {
		_, _, err := Assemble(tt.src, value.Arch64)
		if err == nil {
			t.Errorf("Assemble(%q): expected error", tt.src)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Assemble(%q): error %q does not mention %q", tt.src, err, tt.want)
		}
	}
}

// The assembler accepts the disassembler's own listing.
func TestDisassembleAssembleRoundTrip(t *testing.T) {
	p := sampleProgram(value.Arch32)
	p.Emit(OpLDA, Immediate(value.NewChar('q')))
	p.Emit(OpLDA, Immediate(value.NewDouble(-0.5)))
	p.Emit(OpLDA, Immediate(value.NewHeapRef(0x20, value.Arch32)))

	src := ".arch 32\n" + strings.Join(p.DisassembleToLines(), "\n")
	got, _, err := Assemble(src, value.Arch64)
	if err != nil {
		t.Fatalf("Assemble failed: %v\n%s", err, src)
	}
	if got.Arch != value.Arch32 {
		t.Errorf("Arch = %s", got.Arch)
	}
	if got.Len() != p.Len() {
		t.Fatalf("Len() = %d, want %d", got.Len(), p.Len())
	}
	for i := range p.Instructions {
		if got.Instructions[i].String() != p.Instructions[i].String() {
			t.Errorf("instruction %d = %v, want %v", i, got.Instructions[i], p.Instructions[i])
		}
	}
}
