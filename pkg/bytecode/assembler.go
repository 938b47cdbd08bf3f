package bytecode

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/chain/txvm/errors"
)

// Source-form syntax.
const (
	DefaultCommentMarker = "//"

	conditionalMarker = '?'
	labelMarker       = ':'
	suffixSeparator   = '_'

	SuffixFloat = "дроб"
	SuffixInt   = "зціл"
	SuffixUint  = "ціл"
)

// Label is a named program address declared in source form.
type Label struct {
	Name   string
	Addr   int
	Line   int // 1-based source line of the declaration
	Column int // 1-based rune column of the declaration
}

// Assembler translates source form into a Program.
type Assembler struct {
	comment  string
	capacity int
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithCommentMarker sets the end-of-line comment marker.
func WithCommentMarker(marker string) AssemblerOption {
	return func(a *Assembler) {
		if marker != "" {
			a.comment = marker
		}
	}
}

// WithMaxInstructions bounds the number of instructions a source may emit.
func WithMaxInstructions(n int) AssemblerOption {
	return func(a *Assembler) { a.capacity = n }
}

// NewAssembler creates an assembler with the default comment marker and
// program capacity.
func NewAssembler(opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		comment:  DefaultCommentMarker,
		capacity: DefaultProgramCapacity,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble translates src with a default assembler.
func Assemble(src string) (*Program, error) {
	return NewAssembler().Assemble(src)
}

// CommentMarker returns the configured end-of-line comment marker.
func (a *Assembler) CommentMarker() string { return a.comment }

// Assemble translates src into a program. Any fault aborts translation.
func (a *Assembler) Assemble(src string) (*Program, error) {
	p, _, err := a.AssembleWithSymbols(src)
	return p, err
}

// AssembleWithSymbols translates src and also returns the label table in
// declaration order.
func (a *Assembler) AssembleWithSymbols(src string) (*Program, []Label, error) {
	u, err := a.AssembleUnit(src)
	if err != nil {
		return nil, nil, err
	}
	return u.Program, u.Labels, nil
}

// Unit is the complete result of one translation.
type Unit struct {
	Program *Program
	Labels  []Label
	Lines   []int // 1-based source line of each instruction
}

// Line returns the source line of the instruction at addr, or 0 if addr is
// outside the program.
func (u *Unit) Line(addr int) int {
	if addr < 0 || addr >= len(u.Lines) {
		return 0
	}
	return u.Lines[addr]
}

// AssembleUnit translates src and keeps the label table and the source line
// of every instruction.
func (a *Assembler) AssembleUnit(src string) (*Unit, error) {
	as := &assembly{
		Assembler: a,
		program:   NewProgram(a.capacity),
	}
	if err := as.tokenize(src); err != nil {
		return nil, err
	}
	if err := as.resolve(); err != nil {
		return nil, err
	}
	if err := as.validate(); err != nil {
		return nil, err
	}

	lines := make([]int, len(as.origin))
	for i, tok := range as.origin {
		lines[i] = as.tokens[tok].line
	}
	return &Unit{Program: as.program, Labels: as.labels, Lines: lines}, nil
}

type tokenKind uint8

const (
	tokLabel tokenKind = iota
	tokInst
	tokValue
	tokRef
)

type token struct {
	kind  tokenKind
	text  string
	line  int // 1-based
	col   int // 1-based, in runes
	inst  int // emitted instruction index for tokInst
	prev  int // last instruction emitted before this token, -1 if none
	value Value
}

// assembly is the state of one Assemble call.
type assembly struct {
	*Assembler
	lines   []string
	tokens  []token
	labels  []Label
	program *Program
	origin  []int // token index of each emitted instruction
}

// tokenize is the first pass: it classifies every token, emits
// instructions with empty operands and records label addresses.
func (as *assembly) tokenize(src string) error {
	as.lines = as.sourceLines(src)
	for i, line := range as.lines {
		for _, f := range splitFields(line) {
			tok := token{text: f.text, line: i + 1, col: f.col, prev: as.program.Len() - 1}
			if err := as.classify(&tok); err != nil {
				return err
			}
			as.tokens = append(as.tokens, tok)
		}
	}
	return nil
}

// sourceLines splits src into lines with line endings and comments removed.
func (a *Assembler) sourceLines(src string) []string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if idx := strings.Index(line, a.comment); idx >= 0 {
			line = line[:idx]
		}
		lines[i] = line
	}
	return lines
}

// Token is one whitespace-delimited source token.
type Token struct {
	Text   string
	Line   int // 1-based
	Column int // 1-based, in runes
}

// Tokens splits src into tokens the way Assemble sees them, with comments
// removed. It never fails, so editors can use it on broken sources.
func (a *Assembler) Tokens(src string) []Token {
	var tokens []Token
	for i, line := range a.sourceLines(src) {
		for _, f := range splitFields(line) {
			tokens = append(tokens, Token{Text: f.text, Line: i + 1, Column: f.col})
		}
	}
	return tokens
}

func (as *assembly) classify(tok *token) error {
	text := tok.text

	if name, ok := strings.CutSuffix(text, string(labelMarker)); ok {
		tok.kind = tokLabel
		as.labels = append(as.labels, Label{
			Name:   name,
			Addr:   as.program.Len(),
			Line:   tok.line,
			Column: tok.col,
		})
		return nil
	}

	mnemonic, cond := strings.CutSuffix(text, string(conditionalMarker))
	if op, ok := LookupMnemonic(mnemonic); ok {
		tok.kind = tokInst
		tok.inst = as.program.Len()
		if !as.program.Push(Instruction{Op: op, Conditional: cond}) {
			return as.fault(ErrProgramOverflow, *tok,
				fmt.Sprintf("more than %d instructions", as.program.Cap()))
		}
		as.origin = append(as.origin, len(as.tokens))
		return nil
	}

	if v, ok := ParseValue(text); ok {
		tok.kind = tokValue
		tok.value = v
		return nil
	}

	tok.kind = tokRef
	return nil
}

// resolve is the second pass: every value or label reference becomes the
// operand of the instruction emitted right before it.
func (as *assembly) resolve() error {
	last := -1
	for _, tok := range as.tokens {
		switch tok.kind {
		case tokInst:
			last = tok.inst
			continue
		case tokLabel:
			continue
		}

		if last < 0 {
			if tok.kind == tokRef {
				return as.fault(ErrUnknownInstruction, tok, "unknown instruction")
			}
			return as.fault(ErrUnexpectedOperand, tok, "operand without an instruction")
		}
		inst := as.program.At(last)
		if !inst.Op.HasOperand() {
			return as.fault(ErrUnexpectedOperand, tok,
				fmt.Sprintf("%s takes no operand", inst.Op))
		}
		if !inst.Operand.IsNull() {
			if tok.kind == tokRef {
				return as.fault(ErrUnknownInstruction, tok, "unknown instruction")
			}
			return as.fault(ErrUnexpectedOperand, tok,
				fmt.Sprintf("%s already has operand %s", inst.Op, FormatValue(inst.Operand)))
		}

		operand := tok.value
		if tok.kind == tokRef {
			label, ok := as.lookup(tok.text)
			if !ok {
				if suffix, typed := literalSuffix(tok.text); typed {
					return as.fault(ErrUnknownLabel, tok,
						fmt.Sprintf("invalid _%s literal", suffix))
				}
				return as.fault(ErrUnknownLabel, tok, "unknown label")
			}
			operand = Uint(uint64(label.Addr))
		}
		inst.Operand = operand
		as.program.Set(last, inst)
	}
	return nil
}

// validate reports the first instruction that needs an operand but never
// received one.
func (as *assembly) validate() error {
	for i, inst := range as.program.Items() {
		if inst.Op.HasOperand() && inst.Operand.IsNull() {
			tok := as.tokens[as.origin[i]]
			return errors.WithData(
				as.fault(ErrMissingOperand, tok, fmt.Sprintf("%s needs a %s operand", inst.Op, GetOpcodeInfo(inst.Op).Operand)),
				DataOp, inst.Op)
		}
	}
	return nil
}

// lookup finds the first label declared with name.
func (as *assembly) lookup(name string) (Label, bool) {
	for _, l := range as.labels {
		if l.Name == name {
			return l, true
		}
	}
	return Label{}, false
}

// fault builds an assembly error carrying the token position, the previous
// instruction and a two-line listing around the offending token.
func (as *assembly) fault(kind error, tok token, msg string) error {
	prev := ""
	if tok.prev >= 0 {
		prev = as.program.At(tok.prev).String()
	}

	err := errors.Wrapf(kind, "line %d, column %d: %q", tok.line, tok.col, tok.text)
	err = errors.WithDetail(err, as.listing(tok, msg))
	return errors.WithData(err,
		DataLine, tok.line,
		DataColumn, tok.col,
		DataToken, tok.text,
		DataPrev, prev)
}

func (as *assembly) listing(tok token, msg string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "line %d, token %q: %s\n", tok.line, tok.text, msg)
	if tok.line > 1 {
		fmt.Fprintf(&sb, "  %4d | %s\n", tok.line-1, strings.TrimSpace(as.lines[tok.line-2]))
	}
	fmt.Fprintf(&sb, "  %4d | %s   <-- %s", tok.line, strings.TrimSpace(as.lines[tok.line-1]), msg)
	return sb.String()
}

// ParseValue parses an operand literal. A token with a type suffix
// (_дроб, _зціл, _ціл) is parsed as that type; otherwise a decimal integer
// is an Int and anything else strconv accepts as a float is a Float.
func ParseValue(text string) (Value, bool) {
	if i := strings.LastIndexByte(text, suffixSeparator); i >= 0 {
		body := text[:i]
		switch text[i+1:] {
		case SuffixFloat:
			f, err := strconv.ParseFloat(body, 64)
			return Float(f), err == nil
		case SuffixInt:
			n, err := strconv.ParseInt(body, 10, 64)
			return Int(n), err == nil
		case SuffixUint:
			n, err := strconv.ParseUint(body, 10, 64)
			return Uint(n), err == nil
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(n), true
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return Float(f), true
	}
	return Null, false
}

// literalSuffix reports whether text ends in one of the type suffixes.
func literalSuffix(text string) (string, bool) {
	i := strings.LastIndexByte(text, suffixSeparator)
	if i < 0 {
		return "", false
	}
	switch suffix := text[i+1:]; suffix {
	case SuffixFloat, SuffixInt, SuffixUint:
		return suffix, true
	}
	return "", false
}

type field struct {
	text string
	col  int
}

// splitFields splits a line on whitespace, recording each field's 1-based
// rune column.
func splitFields(line string) []field {
	var (
		fields []field
		start  = -1
		col    = 0
		first  = 0
	)
	for i, r := range line {
		col++
		if unicode.IsSpace(r) {
			if start >= 0 {
				fields = append(fields, field{text: line[start:i], col: first})
				start = -1
			}
			continue
		}
		if start < 0 {
			start, first = i, col
		}
	}
	if start >= 0 {
		fields = append(fields, field{text: line[start:], col: first})
	}
	return fields
}
