package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	// NOP + 5 loads + 5 stores + 6 compares + 10 arithmetic + 6 control
	// + 7 conversions + 5 utilities
	if got := OpcodeCount(); got != 45 {
		t.Errorf("OpcodeCount() = %d, want 45", got)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpLDA, "LDA"},
		{OpSTY, "STY"},
		{OpGQ, "GQ"},
		{OpMOD, "MOD"},
		{OpJMPA, "JMPA"},
		{OpCALLN, "CALLN"},
		{OpA2O, "A2O"},
		{OpLEN, "LEN"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcode(t *testing.T) {
	op := Opcode(0xEE)
	if !strings.HasPrefix(op.String(), "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", op.String())
	}
	if op.Valid() {
		t.Error("0xEE should not be valid")
	}
}

func TestLookupOpcode(t *testing.T) {
	for _, op := range AllOpcodes() {
		got, ok := LookupOpcode(op.String())
		if !ok || got != op {
			t.Errorf("LookupOpcode(%q) = 0x%02X, %v", op.String(), byte(got), ok)
		}
	}
	if _, ok := LookupOpcode("PUSH"); ok {
		t.Error("LookupOpcode(PUSH) should fail")
	}
}

func TestOpcodeFamilies(t *testing.T) {
	tests := []struct {
		op     Opcode
		family Family
		reg    Register
	}{
		{OpLDC, FamilyLoad, RegC},
		{OpSTX, FamilyStore, RegX},
		{OpNE, FamilyCompare, RegA},
		{OpEXP, FamilyArithmetic, RegA},
		{OpRET, FamilyControl, RegA},
		{OpA2S, FamilyConvert, RegA},
		{OpAOL, FamilyUtility, RegA},
	}
	for _, tt := range tests {
		info := GetOpcodeInfo(tt.op)
		if info.Family != tt.family || info.Register != tt.reg {
			t.Errorf("%s: family=%s reg=%s, want %s %s", tt.op, info.Family, info.Register, tt.family, tt.reg)
		}
	}
}

func TestIsJump(t *testing.T) {
	for _, op := range []Opcode{OpCALL, OpRET, OpJMP, OpJMPA, OpBRK, OpCALLN} {
		if !op.IsJump() {
			t.Errorf("%s should be a jump", op)
		}
	}
	for _, op := range []Opcode{OpNop, OpLDA, OpADD, OpA2I} {
		if op.IsJump() {
			t.Errorf("%s should not be a jump", op)
		}
	}
}

func TestRegisterNames(t *testing.T) {
	for _, r := range AllRegisters() {
		got, ok := ParseRegister(r.String())
		if !ok || got != r {
			t.Errorf("ParseRegister(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := ParseRegister("Z"); ok {
		t.Error("ParseRegister(Z) should fail")
	}
}

func TestIndirectRegister(t *testing.T) {
	for _, r := range AllRegisters() {
		got, ok := Indirect(r).IndirectRegister()
		if !ok || got != r {
			t.Errorf("Indirect(%s).IndirectRegister() = %s, %v", r, got, ok)
		}
	}
	if _, ok := Absolute(1).IndirectRegister(); ok {
		t.Error("Absolute should not name a register")
	}
}
