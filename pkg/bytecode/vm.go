package bytecode

import (
	"io"
	"math"
	"os"

	"github.com/chain/txvm/errors"
	"github.com/chain/txvm/math/checked"
	"github.com/tliron/commonlog"
)

// DefaultStackCapacity is the default maximum operand stack depth.
const DefaultStackCapacity = 1024

// smallestNormal is the smallest positive normal float64.
const smallestNormal = 0x1p-1022

// State is the engine's run state.
type State uint8

const (
	Running State = iota // ip < program length
	Halted               // ip >= program length
)

// String returns the state name.
func (s State) String() string {
	if s == Halted {
		return "halted"
	}
	return "running"
}

// Engine executes a loaded program against a bounded operand stack.
// An Engine is not safe for concurrent use.
type Engine struct {
	stack   *Sequence[Value]
	program *Program
	ip      int

	asm         *Assembler
	externs     *ExternTable
	strictFloat bool

	traceStack        bool
	traceInstructions bool
	log               commonlog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	stackCapacity     int
	programCapacity   int
	strictFloat       bool
	output            io.Writer
	asm               *Assembler
	traceStack        bool
	traceInstructions bool
	log               commonlog.Logger
}

// WithStackCapacity sets the maximum stack depth.
func WithStackCapacity(n int) Option {
	return func(c *engineConfig) { c.stackCapacity = n }
}

// WithProgramCapacity sets the maximum program length.
func WithProgramCapacity(n int) Option {
	return func(c *engineConfig) { c.programCapacity = n }
}

// WithStrictFloat selects which float results are in range. Strict (the
// default) accepts only normal non-zero finite results; otherwise only NaN
// and infinities fault.
func WithStrictFloat(strict bool) Option {
	return func(c *engineConfig) { c.strictFloat = strict }
}

// WithOutput sets where the built-in print extern writes.
func WithOutput(w io.Writer) Option {
	return func(c *engineConfig) { c.output = w }
}

// WithAssembler sets the assembler used by LoadSource.
func WithAssembler(a *Assembler) Option {
	return func(c *engineConfig) { c.asm = a }
}

// WithTrace enables per-step debug logging of the stack top and of each
// executed instruction.
func WithTrace(stack, instructions bool) Option {
	return func(c *engineConfig) {
		c.traceStack = stack
		c.traceInstructions = instructions
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(log commonlog.Logger) Option {
	return func(c *engineConfig) { c.log = log }
}

// NewEngine creates an engine with preallocated stack and program storage.
func NewEngine(opts ...Option) *Engine {
	cfg := &engineConfig{
		stackCapacity:   DefaultStackCapacity,
		programCapacity: DefaultProgramCapacity,
		strictFloat:     true,
		output:          os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.asm == nil {
		cfg.asm = NewAssembler(WithMaxInstructions(cfg.programCapacity))
	}
	if cfg.log == nil {
		cfg.log = commonlog.GetLogger("uvm.engine")
	}

	return &Engine{
		stack:             NewSequence[Value](cfg.stackCapacity),
		program:           NewProgram(cfg.programCapacity),
		asm:               cfg.asm,
		externs:           NewExternTable(cfg.output),
		strictFloat:       cfg.strictFloat,
		traceStack:        cfg.traceStack,
		traceInstructions: cfg.traceInstructions,
		log:               cfg.log,
	}
}

// Load replaces the current program with a copy of p and resets the
// stack and instruction pointer.
func (e *Engine) Load(p *Program) error {
	if p.Len() > e.program.Cap() {
		return errors.Wrapf(ErrProgramOverflow, "%d instructions, capacity %d", p.Len(), e.program.Cap())
	}
	e.program.Reset()
	for _, inst := range p.Items() {
		e.program.Push(inst)
	}
	e.Reset()
	return nil
}

// LoadBinary decodes and loads a wire-form program.
func (e *Engine) LoadBinary(data []byte) error {
	p, err := DecodeProgram(data, e.program.Cap())
	if err != nil {
		return err
	}
	return e.Load(p)
}

// LoadSource assembles and loads a source-form program.
func (e *Engine) LoadSource(src string) error {
	p, err := e.asm.Assemble(src)
	if err != nil {
		return err
	}
	return e.Load(p)
}

// Program returns the loaded program. It must not be modified.
func (e *Engine) Program() *Program { return e.program }

// ToBinary encodes the loaded program in wire form.
func (e *Engine) ToBinary() []byte { return EncodeProgram(e.program) }

// ToSource renders the loaded program in source form.
func (e *Engine) ToSource() string { return Disassemble(e.program) }

// Register installs a host callback for an extern selector.
func (e *Engine) Register(selector uint64, fn ExternFunc) {
	e.externs.Register(selector, fn)
}

// IP returns the instruction pointer.
func (e *Engine) IP() int { return e.ip }

// Halted reports whether the instruction pointer is past the program.
func (e *Engine) Halted() bool { return e.ip >= e.program.Len() }

// Stack returns a copy of the live stack, bottom first.
func (e *Engine) Stack() []Value {
	return append([]Value(nil), e.stack.Items()...)
}

// Reset clears the stack and rewinds to address 0, keeping the program.
func (e *Engine) Reset() {
	e.stack.Reset()
	e.ip = 0
}

func (e *Engine) state() State {
	if e.Halted() {
		return Halted
	}
	return Running
}

// Run steps until the program halts, a fault occurs, or limit instructions
// have executed. A limit of zero or less means no limit.
func (e *Engine) Run(limit int) (State, error) {
	for n := 0; limit <= 0 || n < limit; n++ {
		if e.Halted() {
			return Halted, nil
		}
		if _, err := e.Step(); err != nil {
			return e.state(), err
		}
	}
	return e.state(), nil
}

// Step executes one instruction. On a fault the instruction pointer stays
// on the faulting instruction and the stack is left as it was when the
// fault happened: a conditional guard and any operands the instruction
// popped before faulting are gone. Hosts that resume after a fault resume
// with that stack.
func (e *Engine) Step() (State, error) {
	if e.Halted() {
		return Halted, nil
	}

	ip := e.ip
	inst := e.program.At(ip)

	if inst.Conditional {
		guard, err := e.pop(inst)
		if err != nil {
			return Running, err
		}
		if guard.AsUint() == 0 {
			e.ip++
			e.trace(ip, inst, true)
			return e.state(), nil
		}
	}

	jumped, err := e.execute(inst)
	if err != nil {
		return e.state(), err
	}
	if !jumped {
		e.ip++
	}
	e.trace(ip, inst, false)
	return e.state(), nil
}

// execute runs an instruction body. jumped reports that the instruction
// set the instruction pointer itself.
func (e *Engine) execute(inst Instruction) (jumped bool, err error) {
	switch inst.Op {
	case OpNop:

	case OpPush:
		return false, e.push(inst, inst.Operand)

	case OpDrop:
		_, err = e.pop(inst)
		return false, err

	case OpDup:
		idx, err := e.index(inst)
		if err != nil {
			return false, err
		}
		v, ok := e.stack.FromTop(idx)
		if !ok {
			return false, e.fault(ErrStackUnderflow, inst, "index %d with %d elements", idx, e.stack.Len())
		}
		return false, e.push(inst, v)

	case OpSwap:
		idx, err := e.index(inst)
		if err != nil {
			return false, err
		}
		if e.stack.Len() < 2 || idx >= e.stack.Len() {
			return false, e.fault(ErrStackUnderflow, inst, "index %d with %d elements", idx, e.stack.Len())
		}
		top, _ := e.stack.FromTop(0)
		other, _ := e.stack.FromTop(idx)
		e.stack.SetFromTop(0, other)
		e.stack.SetFromTop(idx, top)

	case OpEq, OpNotEq:
		a, aok := e.stack.FromTop(0)
		b, bok := e.stack.FromTop(1)
		if !aok || !bok {
			return false, e.fault(ErrStackUnderflow, inst, "need 2 elements, have %d", e.stack.Len())
		}
		eq := a.Equal(b)
		if inst.Op == OpNotEq {
			eq = !eq
		}
		return false, e.push(inst, boolValue(eq))

	case OpJump:
		addr, err := e.address(inst)
		if err != nil {
			return false, err
		}
		e.ip = addr
		return true, nil

	case OpCall:
		addr, err := e.address(inst)
		if err != nil {
			return false, err
		}
		if err := e.push(inst, Uint(uint64(e.ip+1))); err != nil {
			return false, err
		}
		e.ip = addr
		return true, nil

	case OpReturn:
		v, err := e.pop(inst)
		if err != nil {
			return false, err
		}
		addr, ok := operandIndex(v)
		if !ok || addr > e.program.Len() {
			return false, e.fault(ErrBadAddress, inst, "return address %s, program length %d", v, e.program.Len())
		}
		e.ip = addr
		return true, nil

	case OpHalt:
		e.ip = e.program.Len()
		return true, nil

	case OpSum, OpSub, OpMul, OpDiv:
		return false, e.arith(inst)

	case OpExtern:
		sel, ok := operandIndex(inst.Operand)
		if !ok {
			return false, e.fault(ErrUnknownExtern, inst, "selector %s", inst.Operand)
		}
		fn, ok := e.externs.Lookup(uint64(sel))
		if !ok {
			return false, e.fault(ErrUnknownExtern, inst, "selector %d", sel)
		}
		v, ok := e.stack.Peek()
		if !ok {
			return false, e.fault(ErrStackUnderflow, inst, "")
		}
		fn(v)

	default:
		return false, e.fault(ErrUnknownOpcode, inst, "")
	}
	return false, nil
}

// arith pops a then b, coerces b to a's kind and pushes b <op> a.
func (e *Engine) arith(inst Instruction) error {
	a, err := e.pop(inst)
	if err != nil {
		return err
	}
	b, err := e.pop(inst)
	if err != nil {
		return err
	}
	b = b.CoerceTo(a.Kind())

	if inst.Op == OpDiv && a.Kind() != KindFloat && a.Bits() == 0 {
		return e.fault(ErrValueOutOfRange, inst, "division by zero: %s / %s", b, a)
	}

	var (
		res Value
		ok  bool
	)
	switch a.Kind() {
	case KindInt:
		var n int64
		n, ok = intOp(inst.Op, b.AsInt(), a.AsInt())
		res = Int(n)
	case KindUint:
		var n uint64
		n, ok = uintOp(inst.Op, b.AsUint(), a.AsUint())
		res = Uint(n)
	case KindFloat:
		f := floatOp(inst.Op, b.AsFloat(), a.AsFloat())
		ok = e.floatInRange(f)
		res = Float(f)
	}
	if !ok {
		return e.fault(ErrValueOutOfRange, inst, "%s %s %s", b, inst.Op, a)
	}
	return e.push(inst, res)
}

func intOp(op Opcode, b, a int64) (int64, bool) {
	switch op {
	case OpSum:
		return checked.AddInt64(b, a)
	case OpSub:
		return checked.SubInt64(b, a)
	case OpMul:
		return checked.MulInt64(b, a)
	default:
		return checked.DivInt64(b, a)
	}
}

func uintOp(op Opcode, b, a uint64) (uint64, bool) {
	switch op {
	case OpSum:
		return checked.AddUint64(b, a)
	case OpSub:
		return checked.SubUint64(b, a)
	case OpMul:
		return checked.MulUint64(b, a)
	default:
		return checked.DivUint64(b, a)
	}
}

func floatOp(op Opcode, b, a float64) float64 {
	switch op {
	case OpSum:
		return b + a
	case OpSub:
		return b - a
	case OpMul:
		return b * a
	default:
		return b / a
	}
}

func (e *Engine) floatInRange(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	if e.strictFloat {
		return math.Abs(f) >= smallestNormal
	}
	return true
}

func (e *Engine) push(inst Instruction, v Value) error {
	if v.IsNull() {
		return e.fault(ErrNullValue, inst, "")
	}
	if !e.stack.Push(v) {
		return e.fault(ErrStackOverflow, inst, "capacity %d", e.stack.Cap())
	}
	return nil
}

func (e *Engine) pop(inst Instruction) (Value, error) {
	v, ok := e.stack.Pop()
	if !ok {
		return Null, e.fault(ErrStackUnderflow, inst, "")
	}
	return v, nil
}

// index reads a Dup/Swap operand as a non-negative slot count.
func (e *Engine) index(inst Instruction) (int, error) {
	idx, ok := operandIndex(inst.Operand)
	if !ok {
		return 0, e.fault(ErrBadIndex, inst, "index %s", inst.Operand)
	}
	return idx, nil
}

// address reads a Jump/Call operand and checks it against the program.
func (e *Engine) address(inst Instruction) (int, error) {
	addr, ok := operandIndex(inst.Operand)
	if !ok || addr >= e.program.Len() {
		return 0, e.fault(ErrBadAddress, inst, "target %s, program length %d", inst.Operand, e.program.Len())
	}
	return addr, nil
}

// operandIndex accepts Uint values and non-negative Int values that fit
// in an int.
func operandIndex(v Value) (int, bool) {
	switch v.Kind() {
	case KindUint:
		if v.AsUint() > math.MaxInt {
			return 0, false
		}
		return int(v.AsUint()), true
	case KindInt:
		if v.AsInt() < 0 || v.AsInt() > math.MaxInt {
			return 0, false
		}
		return int(v.AsInt()), true
	default:
		return 0, false
	}
}

func boolValue(b bool) Value {
	if b {
		return Uint(1)
	}
	return Uint(0)
}

func (e *Engine) fault(kind error, inst Instruction, format string, args ...interface{}) error {
	return execFault(kind, e.ip, inst.Op, format, args...)
}

func (e *Engine) trace(ip int, inst Instruction, skipped bool) {
	if e.traceInstructions {
		if skipped {
			e.log.Debugf("ip %04d: %s (skipped)", ip, inst)
		} else {
			e.log.Debugf("ip %04d: %s", ip, inst)
		}
	}
	if e.traceStack {
		if top, ok := e.stack.Peek(); ok {
			e.log.Debugf("stack [%d] top %s", e.stack.Len(), top)
		} else {
			e.log.Debugf("stack [0]")
		}
	}
}
