// Package bytecode provides a typed stack virtual machine together with a
// translator between its human-readable assembly ("source form", USM) and
// its fixed-width binary encoding ("wire form").
//
// A host loads a program either from wire form (LoadBinary) or from source
// form (LoadSource) and then single-steps it or runs it to completion.
//
// # Architecture Overview
//
//   - Value: tagged 64-bit operand (Int, Uint, Float or Null). Null marks an
//     absent operand and never lives on the stack.
//
//   - Instruction: opcode, operand and conditional flag. Sixteen opcodes are
//     defined; see OpcodeInfo for the table.
//
//   - Sequence: fixed-capacity buffer used for both the operand stack and
//     the loaded program. Storage is allocated once.
//
//   - Chunk: the 10-byte wire encoding of one instruction.
//
//   - Assembler: two-pass translation of source form with label
//     resolution and operand type inference.
//
//   - Disassemble: renders a program back to source form. Assembling the
//     output reproduces the same program.
//
//   - Engine: fetch/execute loop with checked arithmetic, control flow and
//     a numbered host callback hook (Extern).
//
// # Wire Format
//
// Each instruction occupies exactly ChunkSize bytes:
//
//	[opcode:1] [tag+cond:1] [operand:8 little-endian]
//
// The tag is 0 (no operand), 10 (Int), 100 (Uint) or 200 (Float); the
// conditional flag adds one. A program is a plain concatenation of chunks.
//
// # Source Form
//
//	// prints 3, 2 and 1
//	        клади 3_зціл
//	знову:  зовн 0
//	        клади 1_зціл
//	        різн
//	        клади 0_зціл
//	        нерівн          // leaves n, 0, n != 0
//	        міняй 1
//	        кинь
//	        крок? знову
//
// Tokens are separated by whitespace. "name:" declares a label at the next
// instruction's address. A trailing "?" makes an instruction conditional:
// it pops a guard and is skipped when the guard is zero. Operand literals
// may carry a type suffix (_зціл, _ціл, _дроб); unsuffixed integers are Int
// and other numbers are Float. Any other token is a label reference.
//
// # Faults
//
// Every error carries one of the Err* values as its errors.Root, with
// position details attached through github.com/chain/txvm/errors. Faults
// are never recovered inside the package; the engine stops on the failing
// instruction and leaves the decision to the host.
package bytecode
