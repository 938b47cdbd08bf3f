package bytecode

import "strings"

// Instruction is one decoded program step. The zero Instruction is an
// unconditional Nop with a Null operand.
type Instruction struct {
	Op          Opcode
	Operand     Value
	Conditional bool
}

// Inst builds an unconditional instruction.
func Inst(op Opcode, operand Value) Instruction {
	return Instruction{Op: op, Operand: operand}
}

// CondInst builds a conditional instruction.
func CondInst(op Opcode, operand Value) Instruction {
	return Instruction{Op: op, Operand: operand, Conditional: true}
}

// String renders the instruction in source form.
func (i Instruction) String() string {
	var sb strings.Builder
	sb.WriteString(i.Op.String())
	if i.Conditional {
		sb.WriteByte(conditionalMarker)
	}
	if !i.Operand.IsNull() {
		sb.WriteByte(' ')
		sb.WriteString(FormatValue(i.Operand))
	}
	return sb.String()
}
