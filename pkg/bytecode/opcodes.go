package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by family for easy identification.
type Opcode byte

const (
	OpNop Opcode = 0x00 // No operation

	// ========================================================================
	// Loads (0x10-0x1F): resolve the operand into the named register
	// ========================================================================

	OpLDA Opcode = 0x10
	OpLDB Opcode = 0x11
	OpLDC Opcode = 0x12
	OpLDX Opcode = 0x13
	OpLDY Opcode = 0x14

	// ========================================================================
	// Stores (0x20-0x2F): write the named register into the operand target
	// ========================================================================

	OpSTA Opcode = 0x20
	OpSTB Opcode = 0x21
	OpSTC Opcode = 0x22
	OpSTX Opcode = 0x23
	OpSTY Opcode = 0x24

	// ========================================================================
	// Comparison (0x30-0x3F): A = B ? C as Integer 0/1
	// ========================================================================

	OpEQ Opcode = 0x30
	OpNE Opcode = 0x31
	OpGT Opcode = 0x32
	OpLT Opcode = 0x33
	OpGQ Opcode = 0x34 // greater or equal
	OpLQ Opcode = 0x35 // less or equal

	// ========================================================================
	// Arithmetic and boolean (0x40-0x4F): A = B op C, or A = op A
	// ========================================================================

	OpADD Opcode = 0x40
	OpSUB Opcode = 0x41
	OpMUL Opcode = 0x42
	OpDIV Opcode = 0x43
	OpMOD Opcode = 0x44
	OpEXP Opcode = 0x45
	OpAND Opcode = 0x46
	OpOR  Opcode = 0x47
	OpINC Opcode = 0x48
	OpDEC Opcode = 0x49

	// ========================================================================
	// Control flow (0x50-0x5F)
	// ========================================================================

	OpCALL  Opcode = 0x50 // Push a frame at the target instruction
	OpRET   Opcode = 0x51 // Pop the current frame
	OpJMP   Opcode = 0x52 // Unconditional jump
	OpJMPA  Opcode = 0x53 // Jump if A is truthy
	OpBRK   Opcode = 0x54 // Breakpoint: yield to the driver
	OpCALLN Opcode = 0x55 // Call a native function by id

	// ========================================================================
	// Conversions (0x60-0x6F): reinterpret A as another kind
	// ========================================================================

	OpA2I Opcode = 0x60 // -> Integer
	OpA2F Opcode = 0x61 // -> Float
	OpA2D Opcode = 0x62 // -> Double
	OpA2B Opcode = 0x63 // -> Bool
	OpA2S Opcode = 0x64 // -> String (heap)
	OpA2C Opcode = 0x65 // -> Char
	OpA2O Opcode = 0x66 // -> Byte (octet)

	// ========================================================================
	// Stack and array utilities (0x70-0x7F)
	// ========================================================================

	OpPUSHA Opcode = 0x70 // Push A onto the auxiliary stack
	OpPOPS  Opcode = 0x71 // Pop the auxiliary stack into a target
	OpACP   Opcode = 0x72 // Copy the heap value referenced by A
	OpAOL   Opcode = 0x73 // Allocate an array of length B
	OpLEN   Opcode = 0x74 // A = length of the referenced array
)

// Family groups opcodes by execution contract.
type Family uint8

const (
	FamilyMisc Family = iota
	FamilyLoad
	FamilyStore
	FamilyCompare
	FamilyArithmetic
	FamilyControl
	FamilyConvert
	FamilyUtility
)

func (f Family) String() string {
	switch f {
	case FamilyLoad:
		return "load"
	case FamilyStore:
		return "store"
	case FamilyCompare:
		return "compare"
	case FamilyArithmetic:
		return "arithmetic"
	case FamilyControl:
		return "control"
	case FamilyConvert:
		return "convert"
	case FamilyUtility:
		return "utility"
	default:
		return "misc"
	}
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name     string   // Mnemonic
	Family   Family   // Execution contract
	Register Register // Register named by loads and stores
	Implicit bool     // Takes no operand
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop: {"NOP", FamilyMisc, RegA, true},

	// Loads
	OpLDA: {"LDA", FamilyLoad, RegA, false},
	OpLDB: {"LDB", FamilyLoad, RegB, false},
	OpLDC: {"LDC", FamilyLoad, RegC, false},
	OpLDX: {"LDX", FamilyLoad, RegX, false},
	OpLDY: {"LDY", FamilyLoad, RegY, false},

	// Stores
	OpSTA: {"STA", FamilyStore, RegA, false},
	OpSTB: {"STB", FamilyStore, RegB, false},
	OpSTC: {"STC", FamilyStore, RegC, false},
	OpSTX: {"STX", FamilyStore, RegX, false},
	OpSTY: {"STY", FamilyStore, RegY, false},

	// Comparison
	OpEQ: {"EQ", FamilyCompare, RegA, true},
	OpNE: {"NE", FamilyCompare, RegA, true},
	OpGT: {"GT", FamilyCompare, RegA, true},
	OpLT: {"LT", FamilyCompare, RegA, true},
	OpGQ: {"GQ", FamilyCompare, RegA, true},
	OpLQ: {"LQ", FamilyCompare, RegA, true},

	// Arithmetic
	OpADD: {"ADD", FamilyArithmetic, RegA, true},
	OpSUB: {"SUB", FamilyArithmetic, RegA, true},
	OpMUL: {"MUL", FamilyArithmetic, RegA, true},
	OpDIV: {"DIV", FamilyArithmetic, RegA, true},
	OpMOD: {"MOD", FamilyArithmetic, RegA, true},
	OpEXP: {"EXP", FamilyArithmetic, RegA, true},
	OpAND: {"AND", FamilyArithmetic, RegA, true},
	OpOR:  {"OR", FamilyArithmetic, RegA, true},
	OpINC: {"INC", FamilyArithmetic, RegA, true},
	OpDEC: {"DEC", FamilyArithmetic, RegA, true},

	// Control flow
	OpCALL:  {"CALL", FamilyControl, RegA, false},
	OpRET:   {"RET", FamilyControl, RegA, true},
	OpJMP:   {"JMP", FamilyControl, RegA, false},
	OpJMPA:  {"JMPA", FamilyControl, RegA, false},
	OpBRK:   {"BRK", FamilyControl, RegA, true},
	OpCALLN: {"CALLN", FamilyControl, RegA, false},

	// Conversions
	OpA2I: {"A2I", FamilyConvert, RegA, true},
	OpA2F: {"A2F", FamilyConvert, RegA, true},
	OpA2D: {"A2D", FamilyConvert, RegA, true},
	OpA2B: {"A2B", FamilyConvert, RegA, true},
	OpA2S: {"A2S", FamilyConvert, RegA, false},
	OpA2C: {"A2C", FamilyConvert, RegA, true},
	OpA2O: {"A2O", FamilyConvert, RegA, true},

	// Utilities
	OpPUSHA: {"PUSHA", FamilyUtility, RegA, true},
	OpPOPS:  {"POPS", FamilyUtility, RegA, false},
	OpACP:   {"ACP", FamilyUtility, RegA, false},
	OpAOL:   {"AOL", FamilyUtility, RegA, false},
	OpLEN:   {"LEN", FamilyUtility, RegA, false},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Family returns the opcode's family.
func (op Opcode) Family() Family {
	return GetOpcodeInfo(op).Family
}

// IsJump returns true if this opcode may transfer control.
func (op Opcode) IsJump() bool {
	return op >= OpCALL && op <= OpCALLN
}

// LookupOpcode finds an opcode by mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata and handlers.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
