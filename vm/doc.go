// Package vm implements the jsvm stack machine.
//
// This package contains:
//   - Tagged value representation and coercions
//   - The reference-counted string pool
//   - Bytecode layout, opcodes and the disassembler
//   - Scope frames with fixed-size local slots
//   - The interpreter loop
package vm
