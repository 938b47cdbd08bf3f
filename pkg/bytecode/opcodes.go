package bytecode

import "fmt"

// Opcode identifies an instruction kind. Values are the on-wire opcode byte.
type Opcode byte

const (
	OpNop    Opcode = 0  // No operation
	OpPush   Opcode = 1  // Push operand: OpPush <value>
	OpDup    Opcode = 2  // Push a copy of the element <index> slots from top
	OpDrop   Opcode = 3  // Pop and discard top of stack
	OpEq     Opcode = 4  // Peek two, push 1u if equal, 0u otherwise
	OpJump   Opcode = 5  // Set ip: OpJump <address>
	OpSum    Opcode = 6  // Pop a, b; push b + a
	OpSub    Opcode = 7  // Pop a, b; push b - a
	OpMul    Opcode = 8  // Pop a, b; push b * a
	OpDiv    Opcode = 9  // Pop a, b; push b / a
	OpNotEq  Opcode = 10 // Peek two, push 1u if different, 0u otherwise
	OpExtern Opcode = 11 // Call host callback: OpExtern <selector>
	OpReturn Opcode = 12 // Pop return address and jump there
	OpCall   Opcode = 13 // Push ip+1, jump: OpCall <address>
	OpHalt   Opcode = 14 // Stop execution
	OpSwap   Opcode = 15 // Exchange top with the element <index> slots from top

	opcodeCount = 16
)

// OperandRole describes how an instruction interprets its operand.
type OperandRole uint8

const (
	OperandNone     OperandRole = iota
	OperandValue                // pushed as-is
	OperandIndex                // stack slot counted from the top
	OperandAddress              // program address
	OperandSelector             // extern selector
)

// String returns the role name used in listings and editor hovers.
func (r OperandRole) String() string {
	switch r {
	case OperandNone:
		return "none"
	case OperandValue:
		return "value"
	case OperandIndex:
		return "index"
	case OperandAddress:
		return "address"
	case OperandSelector:
		return "selector"
	default:
		return fmt.Sprintf("OperandRole(%d)", r)
	}
}

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Mnemonic  string      // Source-form token
	Operand   OperandRole // OperandNone if the opcode takes no operand
	StackPop  int         // Values consumed (conditional guard not counted)
	StackPush int         // Values produced
	Doc       string      // One-line description
}

var opcodeInfoTable = [opcodeCount]OpcodeInfo{
	OpNop:    {"неоп", OperandNone, 0, 0, "no operation"},
	OpPush:   {"клади", OperandValue, 0, 1, "push the operand"},
	OpDup:    {"копію", OperandIndex, 0, 1, "push a copy of the element <index> slots below the top"},
	OpDrop:   {"кинь", OperandNone, 1, 0, "pop and discard the top element"},
	OpEq:     {"рівн", OperandNone, 0, 1, "push 1 if the two top elements are equal, else 0; operands stay"},
	OpJump:   {"крок", OperandAddress, 0, 0, "continue at <address>"},
	OpSum:    {"сума", OperandNone, 2, 1, "pop a, b and push b + a"},
	OpSub:    {"різн", OperandNone, 2, 1, "pop a, b and push b - a"},
	OpMul:    {"множ", OperandNone, 2, 1, "pop a, b and push b * a"},
	OpDiv:    {"діли", OperandNone, 2, 1, "pop a, b and push b / a"},
	OpNotEq:  {"нерівн", OperandNone, 0, 1, "push 1 if the two top elements differ, else 0; operands stay"},
	OpExtern: {"зовн", OperandSelector, 0, 0, "hand the top element to host callback <selector>"},
	OpReturn: {"верн", OperandNone, 1, 0, "pop a return address and continue there"},
	OpCall:   {"клич", OperandAddress, 0, 1, "push the return address and continue at <address>"},
	OpHalt:   {"стоп", OperandNone, 0, 0, "stop execution"},
	OpSwap:   {"міняй", OperandIndex, 0, 0, "exchange the top with the element <index> slots below it"},
}

var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op, info := range opcodeInfoTable {
		m[info.Mnemonic] = Opcode(op)
	}
	return m
}()

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns OpcodeInfo with mnemonic "UNKNOWN(0x..)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op.Valid() {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Mnemonic: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupMnemonic returns the opcode for a source-form mnemonic.
func LookupMnemonic(mnemonic string) (Opcode, bool) {
	op, ok := mnemonicTable[mnemonic]
	return op, ok
}

// String returns the source-form mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Mnemonic
}

// HasOperand reports whether the opcode requires an operand.
func (op Opcode) HasOperand() bool {
	return GetOpcodeInfo(op).Operand != OperandNone
}

// IsControlFlow reports whether the opcode sets the instruction pointer itself.
func (op Opcode) IsControlFlow() bool {
	return op == OpJump || op == OpCall || op == OpReturn
}

// IsArithmetic reports whether the opcode is one of the four binary operators.
func (op Opcode) IsArithmetic() bool {
	return op >= OpSum && op <= OpDiv
}

// AllOpcodes returns every defined opcode in numeric order.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, opcodeCount)
	for i := range opcodes {
		opcodes[i] = Opcode(i)
	}
	return opcodes
}
