package ir

import "fmt"

// Opcode identifies an instruction kind.
type Opcode int

const (
	OpAlloca Opcode = iota
	OpLoad
	OpStore
	OpAdd
	OpSub
	OpMul
	OpICmp
	OpTrunc
	OpZExt
	OpGEP
	OpPhi
	OpCall
	OpBr
	OpCondBr
	OpRet
)

var opcodeNames = [...]string{
	OpAlloca: "alloca",
	OpLoad:   "load",
	OpStore:  "store",
	OpAdd:    "add",
	OpSub:    "sub",
	OpMul:    "mul",
	OpICmp:   "icmp",
	OpTrunc:  "trunc",
	OpZExt:   "zext",
	OpGEP:    "getelementptr",
	OpPhi:    "phi",
	OpCall:   "call",
	OpBr:     "br",
	OpCondBr: "br",
	OpRet:    "ret",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool {
	return op == OpBr || op == OpCondBr || op == OpRet
}

// Predicate is an integer comparison predicate.
type Predicate int

const (
	PredEQ Predicate = iota
	PredNE
	PredSLT
	PredSLE
	PredSGT
	PredSGE
)

var predicateNames = [...]string{"eq", "ne", "slt", "sle", "sgt", "sge"}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return fmt.Sprintf("pred(%d)", int(p))
}

// Valid reports whether p is a known predicate.
func (p Predicate) Valid() bool { return p >= PredEQ && p <= PredSGE }

// Eval applies the predicate to two signed operands.
func (p Predicate) Eval(a, b int64) bool {
	switch p {
	case PredEQ:
		return a == b
	case PredNE:
		return a != b
	case PredSLT:
		return a < b
	case PredSLE:
		return a <= b
	case PredSGT:
		return a > b
	case PredSGE:
		return a >= b
	}
	return false
}

// Incoming is one (value, predecessor) pair of a phi node.
type Incoming struct {
	Value Value
	Block *Block
}

// Instr is a single instruction. Instructions producing a value are
// themselves Values.
//
// Operand layout per opcode:
//   - load: [ptr]; store: [value, ptr]
//   - add/sub/mul/icmp: [lhs, rhs]
//   - trunc/zext: [value]
//   - getelementptr: [base, indices...], Elem is the source element type
//   - call: [callee, args...]
//   - condbr: [cond]; ret: [] or [value]
type Instr struct {
	Op       Opcode
	Operands []Value
	Pred     Predicate
	Elem     *Type
	Incoming []Incoming
	Targets  []*Block

	typ   *Type
	name  string
	block *Block
}

func (in *Instr) Type() *Type { return in.typ }

func (in *Instr) Ident() string { return "%" + in.name }

// Name returns the local name of the result, empty for void instructions.
func (in *Instr) Name() string { return in.name }

// Block returns the block holding the instruction.
func (in *Instr) Block() *Block { return in.block }

// HasResult reports whether the instruction defines a value.
func (in *Instr) HasResult() bool { return !in.typ.IsVoid() }

// Callee returns the called function of a call instruction.
func (in *Instr) Callee() *Function {
	if in.Op != OpCall || len(in.Operands) == 0 {
		return nil
	}
	fn, _ := in.Operands[0].(*Function)
	return fn
}

// Args returns the call arguments of a call instruction.
func (in *Instr) Args() []Value {
	if in.Op != OpCall || len(in.Operands) == 0 {
		return nil
	}
	return in.Operands[1:]
}

// AddIncoming appends a (value, predecessor) pair to a phi node.
func (in *Instr) AddIncoming(v Value, from *Block) {
	in.Incoming = append(in.Incoming, Incoming{Value: v, Block: from})
}

// IncomingFor returns the phi value flowing in from pred.
func (in *Instr) IncomingFor(pred *Block) (Value, bool) {
	for _, inc := range in.Incoming {
		if inc.Block == pred {
			return inc.Value, true
		}
	}
	return nil, false
}
