package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/regvm/pkg/value"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for program files: "RVBC" (Register VM ByteCode)
var BytecodeMagic = []byte{'R', 'V', 'B', 'C'}

// Instruction is one decoded program entry: an opcode and its operand.
type Instruction struct {
	Op   Opcode
	Addr AddressingValue
}

func (in Instruction) String() string {
	operand := in.Addr.String()
	if operand == "" {
		return in.Op.String()
	}
	return in.Op.String() + " " + operand
}

// Program is an ordered instruction stream compiled for one architecture.
// It is immutable once handed to a thread and may be shared between threads.
type Program struct {
	Version      uint16
	Arch         value.Architecture
	Instructions []Instruction
}

// NewProgram creates an empty program for arch.
func NewProgram(arch value.Architecture) *Program {
	return &Program{
		Version:      BytecodeVersion,
		Arch:         arch,
		Instructions: make([]Instruction, 0, 32),
	}
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(op Opcode, addr AddressingValue) int {
	idx := len(p.Instructions)
	p.Instructions = append(p.Instructions, Instruction{Op: op, Addr: addr})
	return idx
}

// EmitImplicit appends an operand-less instruction.
func (p *Program) EmitImplicit(op Opcode) int {
	return p.Emit(op, Implicit())
}

// Patch replaces the operand of the instruction at idx. Used to back-fill
// jump targets.
func (p *Program) Patch(idx int, addr AddressingValue) {
	p.Instructions[idx].Addr = addr
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Instructions)
}

// At returns the instruction at idx.
func (p *Program) At(idx uint64) (Instruction, bool) {
	if idx >= uint64(len(p.Instructions)) {
		return Instruction{}, false
	}
	return p.Instructions[idx], true
}

// Serialize encodes the program to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [arch:1]
//	[count:4] [instructions:...]
//
// Each instruction is [opcode:1] [mode:1] [operands...], with operands
// encoded pointer-width little-endian for the program's architecture.
func (p *Program) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 11+len(p.Instructions)*4)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, p.Version)
	buf = append(buf, byte(p.Arch))

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Instructions)))
	for i, in := range p.Instructions {
		if !in.Op.Valid() {
			return nil, fmt.Errorf("instruction %d: unknown opcode 0x%02X", i, byte(in.Op))
		}
		buf = append(buf, byte(in.Op))
		buf = in.Addr.appendBytes(buf, p.Arch)
	}
	return buf, nil
}

// Deserialize decodes a program from bytes.
func Deserialize(data []byte) (*Program, error) {
	if len(data) < 11 {
		return nil, fmt.Errorf("bytecode too short: need at least 11 bytes, got %d", len(data))
	}

	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	p := &Program{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Arch:    value.Architecture(data[6]),
	}
	if p.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", p.Version, BytecodeVersion)
	}
	if p.Arch > value.Arch16 {
		return nil, fmt.Errorf("invalid architecture byte %d", data[6])
	}

	count := binary.BigEndian.Uint32(data[7:11])
	pos := 11

	p.Instructions = make([]Instruction, 0, min(int(count), len(data)))
	for i := uint32(0); i < count; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading instruction %d", i)
		}
		op := Opcode(data[pos])
		if !op.Valid() {
			return nil, fmt.Errorf("instruction %d: unknown opcode 0x%02X at pos %d", i, data[pos], pos)
		}
		pos++

		addr, n, err := decodeAddressing(data[pos:], p.Arch)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		pos += n

		p.Instructions = append(p.Instructions, Instruction{Op: op, Addr: addr})
	}

	if pos != len(data) {
		return nil, fmt.Errorf("%d trailing bytes after instruction stream", len(data)-pos)
	}
	return p, nil
}
