package ir

// BlockID identifies a basic block within its function.
// IDs are assigned in creation order starting at 1 and never reused.
type BlockID uint32

// NoBlockID is the invalid block ID.
const NoBlockID BlockID = 0

// IsValid returns true if the ID is valid (non-zero).
func (id BlockID) IsValid() bool { return id != NoBlockID }

// Block is a basic block: a straight-line instruction list ending in one
// terminator.
type Block struct {
	ID     BlockID
	Instrs []*Instr

	name string
	fn   *Function
}

// Name returns the block label.
func (b *Block) Name() string { return b.name }

// Parent returns the function owning the block.
func (b *Block) Parent() *Function { return b.fn }

// Ident renders the block as a label operand.
func (b *Block) Ident() string { return "%" + b.name }

// Terminator returns the final instruction if it is a terminator.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := b.Instrs[len(b.Instrs)-1]
	if !last.Op.IsTerminator() {
		return nil
	}
	return last
}

// Succs returns the successor blocks in branch order.
func (b *Block) Succs() []*Block {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	return term.Targets
}

// Preds returns the predecessor blocks in function order. A block appears
// once per edge, so a conditional branch with both arms to b counts twice.
func (b *Block) Preds() []*Block {
	var preds []*Block
	for _, p := range b.fn.Blocks {
		for _, s := range p.Succs() {
			if s == b {
				preds = append(preds, p)
			}
		}
	}
	return preds
}

// Phis returns the leading phi nodes of the block.
func (b *Block) Phis() []*Instr {
	var phis []*Instr
	for _, in := range b.Instrs {
		if in.Op != OpPhi {
			break
		}
		phis = append(phis, in)
	}
	return phis
}
