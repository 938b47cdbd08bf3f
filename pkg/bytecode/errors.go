package bytecode

import (
	"fmt"

	"github.com/chain/txvm/errors"
)

// Fault kinds. Every error returned by this package has one of these as
// its errors.Root; context is attached with errors.WithDetail and
// errors.WithData.
var (
	// Capacity faults
	ErrStackOverflow   = errors.New("stack overflow")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrProgramOverflow = errors.New("program capacity exceeded")

	// Value-range fault: integer overflow, division by zero, and float
	// results outside the accepted class all share this kind.
	ErrValueOutOfRange = errors.New("value out of range")

	// Decode faults
	ErrUnknownOpcode  = errors.New("unrecognized opcode")
	ErrTruncatedChunk = errors.New("truncated instruction chunk")

	// Assembly faults
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrUnexpectedOperand  = errors.New("unexpected operand")
	ErrMissingOperand     = errors.New("missing operand")
	ErrUnknownLabel       = errors.New("unknown label")

	// Execution faults on malformed operands
	ErrNullValue     = errors.New("null value on stack")
	ErrBadAddress    = errors.New("address out of program bounds")
	ErrBadIndex      = errors.New("invalid stack index")
	ErrUnknownExtern = errors.New("unregistered extern selector")
)

// Data keys attached to faults with errors.WithData.
const (
	DataIP     = "ip"
	DataOp     = "op"
	DataLine   = "line"
	DataColumn = "column"
	DataToken  = "token"
	DataPrev   = "prev"
)

// execFault wraps kind with the failing instruction's position.
func execFault(kind error, ip int, op Opcode, format string, args ...interface{}) error {
	err := errors.Wrap(kind, fmt.Sprintf("%s at %d", op, ip))
	if format != "" {
		err = errors.WithDetailf(err, format, args...)
	}
	return errors.WithData(err, DataIP, ip, DataOp, op)
}

// FaultPosition returns the source line and column recorded on an
// assembly fault. ok is false for faults without a source position.
func FaultPosition(err error) (line, column int, ok bool) {
	data := errors.Data(err)
	if data == nil {
		return 0, 0, false
	}
	l, lok := data[DataLine].(int)
	c, cok := data[DataColumn].(int)
	return l, c, lok && cok
}
