package ir

import (
	"fmt"
	"slices"
	"strconv"
)

// Linkage controls symbol visibility outside the module.
type Linkage int

const (
	ExternalLinkage Linkage = iota
	InternalLinkage
)

func (l Linkage) String() string {
	if l == InternalLinkage {
		return "internal"
	}
	return "external"
}

// Function is a function definition or, when it has no blocks, a declaration.
// A Function used as an operand is a pointer to itself.
type Function struct {
	Sig     *Type
	Linkage Linkage
	Params  []*Param
	Blocks  []*Block

	name      string
	module    *Module
	names     map[string]int
	nextBlock BlockID
}

func (f *Function) Type() *Type   { return Ptr }
func (f *Function) Ident() string { return "@" + f.name }

// Name returns the symbol name.
func (f *Function) Name() string { return f.name }

// Module returns the owning module.
func (f *Function) Module() *Module { return f.module }

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block, or nil for declarations.
func (f *Function) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends a new empty block with a unique label.
func (f *Function) NewBlock(name string) *Block {
	f.nextBlock++
	b := &Block{ID: f.nextBlock, name: f.uniqueName(name), fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// MoveBlockAfter repositions blk right after pos in the block list. Only the
// printed order changes; control flow is untouched.
func (f *Function) MoveBlockAfter(blk, pos *Block) {
	i := slices.Index(f.Blocks, blk)
	if i < 0 || blk == pos {
		return
	}
	f.Blocks = slices.Delete(f.Blocks, i, i+1)
	f.Blocks = slices.Insert(f.Blocks, slices.Index(f.Blocks, pos)+1, blk)
}

// Block returns the block with the given ID.
func (f *Function) Block(id BlockID) *Block {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// NumBlockIDs returns one past the largest block ID handed out so far.
func (f *Function) NumBlockIDs() int { return int(f.nextBlock) + 1 }

// uniqueName returns base, or base with a numeric suffix if base is taken.
// Values and blocks share one namespace, as in LLVM.
func (f *Function) uniqueName(base string) string {
	base = canonicalName(base)
	if base == "" {
		base = "tmp"
	}
	if f.names == nil {
		f.names = make(map[string]int)
	}
	n, taken := f.names[base]
	if !taken {
		f.names[base] = 1
		return base
	}
	for {
		candidate := base + strconv.Itoa(n)
		n++
		if _, clash := f.names[candidate]; !clash {
			f.names[base] = n
			f.names[candidate] = 1
			return candidate
		}
	}
}

// Instructions calls fn for every instruction in block order.
func (f *Function) Instructions(fn func(*Instr)) {
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			fn(in)
		}
	}
}

func (f *Function) String() string {
	return fmt.Sprintf("%s %s", f.Linkage, f.name)
}
