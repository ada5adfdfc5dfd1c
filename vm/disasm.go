package vm

import (
	"fmt"
	"strings"
)

// DisassembleInstruction renders instruction pc of bc, resolving constants.
func DisassembleInstruction(bc *Bytecode, pc int) string {
	ins := bc.Instructions[pc]
	op := ins.Op()
	imm := ins.Imm()

	var note string
	switch op {
	case OpConstantDouble:
		if n, err := bc.NumberAt(imm); err == nil {
			note = NumberToString(n.Float())
		}
	case OpConstantI32:
		if n, err := bc.NumberAt(imm); err == nil {
			note = fmt.Sprintf("%d", n.Int32())
		}
	case OpConstantU32:
		if n, err := bc.NumberAt(imm); err == nil {
			note = fmt.Sprintf("%d", n.Uint32())
		}
	case OpConstantIdentifier:
		if n, err := bc.NumberAt(imm); err == nil {
			if name := bc.IdentifierName(n.Ident()); name != "" {
				note = name
			} else {
				note = fmt.Sprintf("#%08x", n.Ident())
			}
		}
	case OpConstantString:
		if s, err := bc.StringAt(imm); err == nil {
			note = fmt.Sprintf("%q", s)
		}
	case OpJumpIfFalse, OpJumpIfTrue, OpJumpTo:
		note = fmt.Sprintf("-> %04d", imm)
	}

	line := fmt.Sprintf("%04d  %s", pc, ins)
	if note != "" {
		line = fmt.Sprintf("%-36s ; %s", line, note)
	}
	return line
}

// Disassemble renders every instruction of bc followed by its constant
// pools.
func Disassemble(bc *Bytecode) string {
	var sb strings.Builder
	for pc := range bc.Instructions {
		sb.WriteString(DisassembleInstruction(bc, pc))
		sb.WriteByte('\n')
	}
	if len(bc.Numbers) > 0 {
		sb.WriteString("; numbers\n")
		for i, n := range bc.Numbers {
			fmt.Fprintf(&sb, ";   [%d] 0x%016x\n", i, uint64(n))
		}
	}
	if len(bc.Strings) > 0 {
		sb.WriteString("; strings\n")
		for i, sc := range bc.Strings {
			s, _ := bc.StringAt(i)
			fmt.Fprintf(&sb, ";   [%d] %08x %q\n", i, sc.Hash, s)
		}
	}
	return sb.String()
}
