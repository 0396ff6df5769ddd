package lua

import (
	"fmt"
	"strings"
)

// Disassemble renders a prototype's instructions one per line, prefixed
// with their program counter, in the source's line-indexed listing style.
func Disassemble(p *Prototype) string {
	var b strings.Builder
	disassemble(&b, p, "")
	return b.String()
}

func disassemble(b *strings.Builder, p *Prototype, indent string) {
	fmt.Fprintf(b, "%sfunction <%s:%d,%d> (%d params, %d upvalues, %d locals)\n",
		indent, p.Source, p.LineDefined, p.LastLineDefined, p.NumParams, len(p.Upvalues), len(p.Locals))

	for pc, word := range p.Code {
		instr := decodeInstr(word)
		line := 0
		if pc < len(p.LineInfo) {
			line = p.LineInfo[pc]
		}
		fmt.Fprintf(b, "%s  [%d] line %d: %s\n", indent, pc, line, formatInstr(p, instr))
	}

	for _, child := range p.Protos {
		disassemble(b, child, indent+"  ")
	}
}

func formatInstr(p *Prototype, instr Instr) string {
	switch instr.Op.mode() {
	case modeABx:
		return fmt.Sprintf("%-10s %d %d", instr.Op, instr.A, instr.Bx)
	case modeAsBx:
		return fmt.Sprintf("%-10s %d %d", instr.Op, instr.A, instr.SBx)
	case modeAx:
		return fmt.Sprintf("%-10s %d", instr.Op, instr.Ax)
	default:
		return fmt.Sprintf("%-10s %d %s %s", instr.Op, instr.A, formatOperand(p, instr.B), formatOperand(p, instr.C))
	}
}

func formatOperand(p *Prototype, x int) string {
	if isConstantOperand(x) {
		idx := constantIndex(x)
		if idx >= 0 && idx < len(p.Constants) {
			return fmt.Sprintf("K(%s)", p.Constants[idx].String())
		}
		return fmt.Sprintf("K(%d)", idx)
	}
	return fmt.Sprintf("R(%d)", x)
}
