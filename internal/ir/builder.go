package ir

import "slices"

// InsertPoint is a position inside a block: new instructions go before
// Block.Instrs[Index].
type InsertPoint struct {
	Block *Block
	Index int
}

// IsSet reports whether the insert point refers to a block.
func (ip InsertPoint) IsSet() bool { return ip.Block != nil }

// Builder appends instructions at an insertion point, in the manner of
// LLVM's IRBuilder. Builders do not type-check operands; run Verify on the
// finished function.
type Builder struct {
	ip InsertPoint
}

// NewBuilder returns a builder without an insertion point.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetInsertPoint positions the builder at the end of blk.
func (b *Builder) SetInsertPoint(blk *Block) {
	b.ip = InsertPoint{Block: blk, Index: len(blk.Instrs)}
}

// SetInsertPointBefore positions the builder immediately before in.
func (b *Builder) SetInsertPointBefore(in *Instr) {
	blk := in.block
	b.ip = InsertPoint{Block: blk, Index: slices.Index(blk.Instrs, in)}
}

// InsertPoint returns the current position.
func (b *Builder) InsertPoint() InsertPoint { return b.ip }

// RestoreInsertPoint returns the builder to a saved position.
func (b *Builder) RestoreInsertPoint(ip InsertPoint) { b.ip = ip }

// Block returns the block being built.
func (b *Builder) Block() *Block { return b.ip.Block }

// Function returns the function being built.
func (b *Builder) Function() *Function {
	if b.ip.Block == nil {
		return nil
	}
	return b.ip.Block.fn
}

func (b *Builder) insert(in *Instr, name string) *Instr {
	blk := b.ip.Block
	if blk == nil {
		panic("ir: builder has no insertion point")
	}
	in.block = blk
	if in.typ == nil {
		in.typ = Void
	}
	if !in.typ.IsVoid() {
		in.name = blk.fn.uniqueName(name)
	}
	blk.Instrs = slices.Insert(blk.Instrs, b.ip.Index, in)
	b.ip.Index++
	return in
}

// CreateAlloca reserves stack memory for one value of type t.
func (b *Builder) CreateAlloca(t *Type, name string) *Instr {
	return b.insert(&Instr{Op: OpAlloca, Elem: t, typ: Ptr}, name)
}

// CreateLoad reads a value of type t from ptr.
func (b *Builder) CreateLoad(t *Type, ptr Value, name string) *Instr {
	return b.insert(&Instr{Op: OpLoad, Operands: []Value{ptr}, typ: t}, name)
}

// CreateStore writes v to ptr.
func (b *Builder) CreateStore(v, ptr Value) *Instr {
	return b.insert(&Instr{Op: OpStore, Operands: []Value{v, ptr}}, "")
}

func (b *Builder) binary(op Opcode, lhs, rhs Value, name string) *Instr {
	return b.insert(&Instr{Op: op, Operands: []Value{lhs, rhs}, typ: lhs.Type()}, name)
}

// CreateAdd emits lhs + rhs.
func (b *Builder) CreateAdd(lhs, rhs Value, name string) *Instr {
	return b.binary(OpAdd, lhs, rhs, name)
}

// CreateSub emits lhs - rhs.
func (b *Builder) CreateSub(lhs, rhs Value, name string) *Instr {
	return b.binary(OpSub, lhs, rhs, name)
}

// CreateMul emits lhs * rhs.
func (b *Builder) CreateMul(lhs, rhs Value, name string) *Instr {
	return b.binary(OpMul, lhs, rhs, name)
}

// CreateICmp compares two integers, producing an i1.
func (b *Builder) CreateICmp(pred Predicate, lhs, rhs Value, name string) *Instr {
	return b.insert(&Instr{Op: OpICmp, Pred: pred, Operands: []Value{lhs, rhs}, typ: I1}, name)
}

// CreateTrunc narrows v to t.
func (b *Builder) CreateTrunc(v Value, t *Type, name string) *Instr {
	return b.insert(&Instr{Op: OpTrunc, Operands: []Value{v}, typ: t}, name)
}

// CreateZExt zero-extends v to t.
func (b *Builder) CreateZExt(v Value, t *Type, name string) *Instr {
	return b.insert(&Instr{Op: OpZExt, Operands: []Value{v}, typ: t}, name)
}

// CreateGEP computes the address of base[indices...] with elem as the
// element type of base.
func (b *Builder) CreateGEP(elem *Type, base Value, indices []Value, name string) *Instr {
	ops := append([]Value{base}, indices...)
	return b.insert(&Instr{Op: OpGEP, Elem: elem, Operands: ops, typ: Ptr}, name)
}

// CreateStructGEP computes the address of field idx of the struct at base.
func (b *Builder) CreateStructGEP(st *Type, base Value, idx int, name string) *Instr {
	return b.CreateGEP(st, base, []Value{ConstInt(I32, 0), ConstInt(I32, int64(idx))}, name)
}

// CreatePhi emits an empty phi node; fill it with AddIncoming.
func (b *Builder) CreatePhi(t *Type, name string) *Instr {
	return b.insert(&Instr{Op: OpPhi, typ: t}, name)
}

// CreateCall calls fn with args. The result is void when fn returns void.
func (b *Builder) CreateCall(fn *Function, args []Value, name string) *Instr {
	ops := append([]Value{fn}, args...)
	return b.insert(&Instr{Op: OpCall, Operands: ops, typ: fn.Sig.Ret}, name)
}

// CreateBr emits an unconditional branch.
func (b *Builder) CreateBr(dst *Block) *Instr {
	return b.insert(&Instr{Op: OpBr, Targets: []*Block{dst}}, "")
}

// CreateCondBr branches to ifTrue when cond holds, else to ifFalse.
func (b *Builder) CreateCondBr(cond Value, ifTrue, ifFalse *Block) *Instr {
	return b.insert(&Instr{Op: OpCondBr, Operands: []Value{cond}, Targets: []*Block{ifTrue, ifFalse}}, "")
}

// CreateRetVoid returns from a void function.
func (b *Builder) CreateRetVoid() *Instr {
	return b.insert(&Instr{Op: OpRet}, "")
}

// CreateRet returns v.
func (b *Builder) CreateRet(v Value) *Instr {
	return b.insert(&Instr{Op: OpRet, Operands: []Value{v}}, "")
}

// SplitBlock moves every instruction from the insertion point onward into a
// new block placed right after the current one, and terminates the current
// block with a branch to it. Phi nodes in the moved terminator's successors
// are rewired to the new block. The builder ends up just before the new
// branch, so code inserted next stays in the original block.
func (b *Builder) SplitBlock(name string) *Block {
	old := b.ip.Block
	fn := old.fn

	tail := fn.NewBlock(name)
	fn.MoveBlockAfter(tail, old)

	tail.Instrs = slices.Clone(old.Instrs[b.ip.Index:])
	old.Instrs = old.Instrs[:b.ip.Index]
	for _, in := range tail.Instrs {
		in.block = tail
	}
	for _, succ := range tail.Succs() {
		for _, phi := range succ.Phis() {
			for i := range phi.Incoming {
				if phi.Incoming[i].Block == old {
					phi.Incoming[i].Block = tail
				}
			}
		}
	}

	b.SetInsertPoint(old)
	br := b.CreateBr(tail)
	b.SetInsertPointBefore(br)
	return tail
}
