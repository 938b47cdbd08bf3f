package bytecode

import (
	"strings"
	"testing"

	"github.com/chain/txvm/errors"
)

func assertProgram(t *testing.T, got *Program, want ...Instruction) {
	t.Helper()
	if got.Len() != len(want) {
		t.Fatalf("program has %d instructions, want %d:\n%s", got.Len(), len(want), Disassemble(got))
	}
	for i, inst := range want {
		if got.At(i) != inst {
			t.Errorf("instruction %d = %v, want %v", i, got.At(i), inst)
		}
	}
}

func TestAssembleBasic(t *testing.T) {
	p, err := Assemble("клади 1_зціл\nклади 2_зціл\nсума\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertProgram(t, p,
		Inst(OpPush, Int(1)),
		Inst(OpPush, Int(2)),
		Inst(OpSum, Null),
	)
}

func TestAssembleLiterals(t *testing.T) {
	tests := []struct {
		src  string
		want Value
	}{
		{"клади 5", Int(5)},
		{"клади -3", Int(-3)},
		{"клади 2.5", Float(2.5)},
		{"клади 1e3", Float(1000)},
		{"клади 7_ціл", Uint(7)},
		{"клади 7_зціл", Int(7)},
		{"клади 1_дроб", Float(1)},
		{"клади -0.25_дроб", Float(-0.25)},
		{"клади 18446744073709551615_ціл", Uint(18446744073709551615)},
		{"клади -9223372036854775808", Int(-9223372036854775808)},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := Assemble(tt.src)
			if err != nil {
				t.Fatalf("Assemble: %v", err)
			}
			assertProgram(t, p, Inst(OpPush, tt.want))
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		text string
		want Value
		ok   bool
	}{
		{"12", Int(12), true},
		{"12_ціл", Uint(12), true},
		{"-1_ціл", Null, false},
		{"1.5_зціл", Null, false},
		{"abc", Null, false},
		{"abc_дроб", Null, false},
		{"1_foo", Null, false},
		{"0.5", Float(0.5), true},
	}

	for _, tt := range tests {
		got, ok := ParseValue(tt.text)
		if ok != tt.ok {
			t.Errorf("ParseValue(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseValue(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestAssembleComments(t *testing.T) {
	src := `// header comment

	клади 1   // push one; сума here is ignored
	   // indented comment
	кинь//glued comment
`
	p, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertProgram(t, p, Inst(OpPush, Int(1)), Inst(OpDrop, Null))
}

func TestAssembleCustomCommentMarker(t *testing.T) {
	a := NewAssembler(WithCommentMarker("#"))
	if a.CommentMarker() != "#" {
		t.Fatalf("CommentMarker() = %q, want #", a.CommentMarker())
	}

	p, err := a.Assemble("клади 1 # сума\nкинь\r\n")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertProgram(t, p, Inst(OpPush, Int(1)), Inst(OpDrop, Null))

	if NewAssembler(WithCommentMarker("")).CommentMarker() != DefaultCommentMarker {
		t.Error("empty comment marker replaced the default")
	}
}

func TestAssembleConditional(t *testing.T) {
	p, err := Assemble("клади 1_ціл\nкрок? 0_ціл\nкинь?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	assertProgram(t, p,
		Inst(OpPush, Uint(1)),
		CondInst(OpJump, Uint(0)),
		CondInst(OpDrop, Null),
	)
}

func TestAssembleLabels(t *testing.T) {
	src := `
		крок кінець
	знову:
		клади 1
		крок знову
	кінець: стоп
	`
	p, labels, err := NewAssembler().AssembleWithSymbols(src)
	if err != nil {
		t.Fatalf("AssembleWithSymbols: %v", err)
	}
	assertProgram(t, p,
		Inst(OpJump, Uint(3)),
		Inst(OpPush, Int(1)),
		Inst(OpJump, Uint(1)),
		Inst(OpHalt, Null),
	)

	want := []Label{
		{Name: "знову", Addr: 1, Line: 3, Column: 2},
		{Name: "кінець", Addr: 3, Line: 6, Column: 2},
	}
	if len(labels) != len(want) {
		t.Fatalf("got %d labels, want %d", len(labels), len(want))
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d = %+v, want %+v", i, labels[i], want[i])
		}
	}
}

func TestAssembleDuplicateLabelFirstWins(t *testing.T) {
	p, err := Assemble("тут: неоп\nтут: неоп\nкрок тут")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := p.At(2).Operand; got != Uint(0) {
		t.Errorf("jump target = %v, want 0u", got)
	}
}

func TestAssembleFaults(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown mnemonic first", "штовхни 1", ErrUnknownInstruction},
		{"unknown mnemonic after full operand", "клади 1 штовхни", ErrUnknownInstruction},
		{"literal before any instruction", "5", ErrUnexpectedOperand},
		{"operand on no-operand opcode", "кинь 5", ErrUnexpectedOperand},
		{"label ref on no-operand opcode", "тут: кинь тут", ErrUnexpectedOperand},
		{"second operand", "клади 1 2", ErrUnexpectedOperand},
		{"unknown label", "крок нікуди", ErrUnknownLabel},
		{"missing operand", "клади", ErrMissingOperand},
		{"missing operand mid-program", "неоп\nкрок\nнеоп", ErrMissingOperand},
		{"bad suffix body", "клади x_зціл", ErrUnknownLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Assemble(tt.src)
			if errors.Root(err) != tt.want {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("faulting assembly returned a program")
			}
		})
	}
}

func TestAssembleInvalidTypedLiteral(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"клади 1.5_зціл", "invalid _зціл literal"},
		{"клади 99999999999999999999_зціл", "invalid _зціл literal"},
		{"клади -1_ціл", "invalid _ціл literal"},
		{"клади x_дроб", "invalid _дроб literal"},
		{"крок нікуди", "unknown label"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Assemble(tt.src)
			if errors.Root(err) != ErrUnknownLabel {
				t.Fatalf("err = %v, want ErrUnknownLabel", err)
			}
			if detail := errors.Detail(err); !strings.Contains(detail, tt.want) {
				t.Errorf("detail = %q, want %q", detail, tt.want)
			}
		})
	}
}

func TestAssembleTypedLabelName(t *testing.T) {
	p, err := Assemble("x_ціл:\nкрок x_ціл")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := p.At(0).Operand; got != Uint(0) {
		t.Errorf("operand = %v, want 0u", got)
	}
}

func TestAssembleProgramOverflow(t *testing.T) {
	a := NewAssembler(WithMaxInstructions(2))
	if _, err := a.Assemble("неоп неоп"); err != nil {
		t.Fatalf("Assemble at capacity: %v", err)
	}
	_, err := a.Assemble("неоп неоп неоп")
	if errors.Root(err) != ErrProgramOverflow {
		t.Errorf("err = %v, want ErrProgramOverflow", err)
	}
}

func TestAssembleFaultPosition(t *testing.T) {
	src := "клади 1\n  кинь 5\n"
	_, err := Assemble(src)
	if errors.Root(err) != ErrUnexpectedOperand {
		t.Fatalf("err = %v, want ErrUnexpectedOperand", err)
	}

	line, col, ok := FaultPosition(err)
	if !ok || line != 2 || col != 8 {
		t.Errorf("FaultPosition() = %d, %d, %v; want 2, 8, true", line, col, ok)
	}

	data := errors.Data(err)
	if data[DataToken] != "5" {
		t.Errorf("token = %v, want 5", data[DataToken])
	}
	if data[DataPrev] != "кинь" {
		t.Errorf("previous instruction = %v, want кинь", data[DataPrev])
	}

	detail := errors.Detail(err)
	if !strings.Contains(detail, "клади 1") || !strings.Contains(detail, "кинь 5   <--") {
		t.Errorf("listing missing context:\n%s", detail)
	}
}

func TestAssembleMissingOperandReportsOpcode(t *testing.T) {
	_, err := Assemble("неоп\nклич")
	if errors.Root(err) != ErrMissingOperand {
		t.Fatalf("err = %v, want ErrMissingOperand", err)
	}
	if got := errors.Data(err)[DataOp]; got != OpCall {
		t.Errorf("data op = %v, want %v", got, OpCall)
	}
	if line, _, _ := FaultPosition(err); line != 2 {
		t.Errorf("line = %d, want 2", line)
	}
}

func TestFaultPositionWithoutSource(t *testing.T) {
	_, err := DecodeInstruction(Chunk{0xFF})
	if _, _, ok := FaultPosition(err); ok {
		t.Error("decode fault reported a source position")
	}
}

func TestSplitFieldsColumns(t *testing.T) {
	fields := splitFields("\tкрок  мітка")
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].text != "крок" || fields[0].col != 2 {
		t.Errorf("field 0 = %+v", fields[0])
	}
	if fields[1].text != "мітка" || fields[1].col != 8 {
		t.Errorf("field 1 = %+v", fields[1])
	}
}

func TestAssembleUnitLines(t *testing.T) {
	u, err := NewAssembler().AssembleUnit("// header\nклади 1 клади 2\n\nтут:\n  сума\n")
	if err != nil {
		t.Fatalf("AssembleUnit: %v", err)
	}
	want := []int{2, 2, 5}
	if len(u.Lines) != len(want) {
		t.Fatalf("Lines = %v, want %v", u.Lines, want)
	}
	for i := range want {
		if u.Line(i) != want[i] {
			t.Errorf("Line(%d) = %d, want %d", i, u.Line(i), want[i])
		}
	}
	if u.Line(3) != 0 || u.Line(-1) != 0 {
		t.Error("Line outside the program is not 0")
	}
	if len(u.Labels) != 1 || u.Labels[0].Addr != 2 {
		t.Errorf("Labels = %+v", u.Labels)
	}
}

func TestAssemblerTokens(t *testing.T) {
	tokens := NewAssembler().Tokens("тут: клади 1 // коментар\n\tкрок? тут\r\n")
	want := []Token{
		{"тут:", 1, 1},
		{"клади", 1, 6},
		{"1", 1, 12},
		{"крок?", 2, 2},
		{"тут", 2, 8},
	}
	if len(tokens) != len(want) {
		t.Fatalf("Tokens() = %+v, want %+v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, tokens[i], want[i])
		}
	}
}
