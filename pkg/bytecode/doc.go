// Package bytecode defines the instruction set of the register VM and the
// program container it executes.
//
// A program is a flat, ordered list of instructions. Each instruction is an
// opcode plus one AddressingValue operand that says how the operand is
// resolved: an embedded constant, a frame-relative stack slot, an entry of
// a heap array or class, another instruction's constant, or a register.
//
// # Components
//
//   - Opcodes: loads and stores for the five registers (A, B, C, X, Y),
//     comparisons, checked arithmetic, control flow, conversions and array
//     utilities, grouped into families by byte range.
//
//   - Program: the instruction stream plus the platform architecture it was
//     compiled for. Programs serialize to the "RVBC" binary format; operand
//     pointers are encoded at the architecture's pointer width.
//
//   - DebugInfo: an optional side-table from instruction index to source
//     coordinates and function names, used only by tooling.
//
//   - Disassembler and Assembler: a textual form that round-trips with the
//     listing produced by Disassemble, so programs can be written by hand.
//
// Execution lives in the vm package.
package bytecode
