package bytecode

import (
	"encoding/binary"

	"github.com/chain/txvm/errors"
)

// ChunkSize is the fixed encoded width of one instruction.
const ChunkSize = 10

// Chunk is one encoded instruction.
//
// Layout:
//
//	[opcode:1] [tag+cond:1] [operand:8 little-endian]
//
// The second byte is tag + (1 if conditional), with tag 0 for no operand,
// 10 for Int, 100 for Uint and 200 for Float.
type Chunk [ChunkSize]byte

const (
	tagNull  byte = 0
	tagInt   byte = 10
	tagUint  byte = 100
	tagFloat byte = 200
)

func tagOf(kind ValueKind) byte {
	switch kind {
	case KindInt:
		return tagInt
	case KindUint:
		return tagUint
	case KindFloat:
		return tagFloat
	default:
		return tagNull
	}
}

// splitTag recovers the operand kind and conditional flag from byte 1.
func splitTag(b byte) (ValueKind, bool) {
	var (
		kind ValueKind
		tag  byte
	)
	switch {
	case b >= tagFloat:
		kind, tag = KindFloat, tagFloat
	case b >= tagUint:
		kind, tag = KindUint, tagUint
	case b >= tagInt:
		kind, tag = KindInt, tagInt
	default:
		kind, tag = KindNull, tagInt
	}
	return kind, b%tag != 0
}

// EncodeInstruction serializes one instruction.
func EncodeInstruction(inst Instruction) Chunk {
	var c Chunk
	c[0] = byte(inst.Op)
	c[1] = tagOf(inst.Operand.Kind())
	if inst.Conditional {
		c[1]++
	}
	if !inst.Operand.IsNull() {
		binary.LittleEndian.PutUint64(c[2:], inst.Operand.Bits())
	}
	return c
}

// DecodeInstruction deserializes one instruction. Any chunk whose opcode
// byte is defined decodes without error.
func DecodeInstruction(c Chunk) (Instruction, error) {
	op := Opcode(c[0])
	if !op.Valid() {
		return Instruction{}, errors.WithData(
			errors.Wrapf(ErrUnknownOpcode, "opcode byte %d", c[0]),
			DataOp, c[0])
	}
	kind, cond := splitTag(c[1])
	return Instruction{
		Op:          op,
		Operand:     valueFromBits(kind, binary.LittleEndian.Uint64(c[2:])),
		Conditional: cond,
	}, nil
}

// EncodeProgram serializes every instruction of p back to back.
func EncodeProgram(p *Program) []byte {
	buf := make([]byte, 0, p.Len()*ChunkSize)
	for _, inst := range p.Items() {
		c := EncodeInstruction(inst)
		buf = append(buf, c[:]...)
	}
	return buf
}

// DecodeProgram parses a flat sequence of chunks into a program holding at
// most capacity instructions.
func DecodeProgram(data []byte, capacity int) (*Program, error) {
	if rem := len(data) % ChunkSize; rem != 0 {
		return nil, errors.Wrapf(ErrTruncatedChunk,
			"%d trailing bytes after %d complete instructions", rem, len(data)/ChunkSize)
	}
	n := len(data) / ChunkSize
	if n > capacity {
		return nil, errors.Wrapf(ErrProgramOverflow, "%d instructions, capacity %d", n, capacity)
	}

	p := NewProgram(capacity)
	for i := 0; i < n; i++ {
		var c Chunk
		copy(c[:], data[i*ChunkSize:])
		inst, err := DecodeInstruction(c)
		if err != nil {
			return nil, errors.Wrapf(err, "instruction %d", i)
		}
		p.Push(inst)
	}
	return p, nil
}

// Program is a loaded instruction sequence. Addresses are indices into it.
type Program = Sequence[Instruction]

// DefaultProgramCapacity is the default maximum program length.
const DefaultProgramCapacity = 1024

// NewProgram preallocates an empty program.
func NewProgram(capacity int) *Program {
	return NewSequence[Instruction](capacity)
}

// ProgramOf builds a program sized exactly for insts.
func ProgramOf(insts ...Instruction) *Program {
	p := NewProgram(len(insts))
	for _, inst := range insts {
		p.Push(inst)
	}
	return p
}
