package cfg

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/parloop/internal/ir"
)

// LoopID identifies a loop within one Builder or Analysis.
type LoopID uint32

// NoLoop is the invalid loop ID; blocks outside every loop map to it.
const NoLoop LoopID = 0

// ErrFinalized is returned by any Builder method called after Finalize.
var ErrFinalized = errors.New("cfg builder already finalized")

type blockRecord struct {
	idom ir.BlockID
	loop LoopID // innermost loop
}

type loopRecord struct {
	header ir.BlockID
	parent LoopID
	blocks []ir.BlockID
}

// Builder is the registration arena for one function.
//
// Builder is not safe for concurrent use; it belongs to the single code
// generation pass that builds the function.
type Builder struct {
	fn     *ir.Function
	entry  ir.BlockID
	blocks map[ir.BlockID]*blockRecord
	order  []ir.BlockID
	loops  []*loopRecord // LoopID n lives at index n-1
	final  bool
}

// NewBuilder creates an empty arena for fn.
func NewBuilder(fn *ir.Function) *Builder {
	return &Builder{fn: fn, blocks: make(map[ir.BlockID]*blockRecord)}
}

// Function returns the function the arena describes.
func (b *Builder) Function() *ir.Function { return b.fn }

// AddEntry registers the entry block, the root of the dominator tree.
func (b *Builder) AddEntry(blk *ir.Block) error {
	if b.final {
		return ErrFinalized
	}
	if b.entry.IsValid() {
		return fmt.Errorf("cfg: entry already registered as block %d", b.entry)
	}
	if err := b.checkNew(blk); err != nil {
		return err
	}
	b.entry = blk.ID
	b.blocks[blk.ID] = &blockRecord{}
	b.order = append(b.order, blk.ID)
	return nil
}

// AddBlock registers a newly created block with its immediate dominator.
func (b *Builder) AddBlock(blk, idom *ir.Block) error {
	if b.final {
		return ErrFinalized
	}
	if err := b.checkNew(blk); err != nil {
		return err
	}
	if _, ok := b.blocks[idom.ID]; !ok {
		return fmt.Errorf("cfg: dominator %s of %s is not registered", idom.Name(), blk.Name())
	}
	b.blocks[blk.ID] = &blockRecord{idom: idom.ID}
	b.order = append(b.order, blk.ID)
	return nil
}

// SetIDom changes the immediate dominator of a registered block, for when
// later edges refine the dominator chosen at creation time.
func (b *Builder) SetIDom(blk, idom *ir.Block) error {
	if b.final {
		return ErrFinalized
	}
	rec, ok := b.blocks[blk.ID]
	if !ok {
		return fmt.Errorf("cfg: block %s is not registered", blk.Name())
	}
	if blk.ID == b.entry {
		return fmt.Errorf("cfg: the entry block has no dominator")
	}
	if _, ok := b.blocks[idom.ID]; !ok {
		return fmt.Errorf("cfg: dominator %s of %s is not registered", idom.Name(), blk.Name())
	}
	rec.idom = idom.ID
	return nil
}

// IDom returns the registered immediate dominator of blk.
func (b *Builder) IDom(blk *ir.Block) ir.BlockID {
	if rec, ok := b.blocks[blk.ID]; ok {
		return rec.idom
	}
	return ir.NoBlockID
}

// Dominated returns the registered blocks whose immediate dominator is blk,
// in registration order.
func (b *Builder) Dominated(blk *ir.Block) []*ir.Block {
	var out []*ir.Block
	for _, id := range b.order {
		if b.blocks[id].idom == blk.ID {
			out = append(out, b.fn.Block(id))
		}
	}
	return out
}

// AddLoop registers a loop headed by header, nested in parent (NoLoop for a
// top-level loop). The header becomes a member of the new loop and of every
// enclosing loop.
func (b *Builder) AddLoop(header *ir.Block, parent LoopID) (LoopID, error) {
	if b.final {
		return NoLoop, ErrFinalized
	}
	if _, ok := b.blocks[header.ID]; !ok {
		return NoLoop, fmt.Errorf("cfg: loop header %s is not registered", header.Name())
	}
	if parent != NoLoop && b.loop(parent) == nil {
		return NoLoop, fmt.Errorf("cfg: parent loop %d does not exist", parent)
	}
	for _, l := range b.loops {
		if l.header == header.ID {
			return NoLoop, fmt.Errorf("cfg: block %s already heads a loop", header.Name())
		}
	}
	b.loops = append(b.loops, &loopRecord{header: header.ID, parent: parent})
	id := LoopID(len(b.loops))
	if err := b.AddToLoop(id, header); err != nil {
		return NoLoop, err
	}
	return id, nil
}

// AddToLoop makes blk a member of loop and of all loops enclosing it. The
// innermost loop recorded for blk becomes loop.
func (b *Builder) AddToLoop(loop LoopID, blk *ir.Block) error {
	if b.final {
		return ErrFinalized
	}
	rec, ok := b.blocks[blk.ID]
	if !ok {
		return fmt.Errorf("cfg: block %s is not registered", blk.Name())
	}
	if b.loop(loop) == nil {
		return fmt.Errorf("cfg: loop %d does not exist", loop)
	}
	rec.loop = loop
	for id := loop; id != NoLoop; id = b.loop(id).parent {
		l := b.loop(id)
		if !slices.Contains(l.blocks, blk.ID) {
			l.blocks = append(l.blocks, blk.ID)
		}
	}
	return nil
}

// LoopFor returns the innermost loop registered for blk.
func (b *Builder) LoopFor(blk *ir.Block) LoopID {
	if rec, ok := b.blocks[blk.ID]; ok {
		return rec.loop
	}
	return NoLoop
}

func (b *Builder) loop(id LoopID) *loopRecord {
	if id == NoLoop || int(id) > len(b.loops) {
		return nil
	}
	return b.loops[id-1]
}

func (b *Builder) checkNew(blk *ir.Block) error {
	if blk.Parent() != b.fn {
		return fmt.Errorf("cfg: block %s belongs to another function", blk.Name())
	}
	if _, dup := b.blocks[blk.ID]; dup {
		return fmt.Errorf("cfg: block %s registered twice", blk.Name())
	}
	return nil
}

// FinalizeOption configures Finalize.
type FinalizeOption func(*finalizeConfig)

type finalizeConfig struct {
	verify bool
}

// WithVerification turns verification against the finished CFG on or off.
// Verification is on by default.
func WithVerification(on bool) FinalizeOption {
	return func(c *finalizeConfig) { c.verify = on }
}

// Finalize freezes the arena into an Analysis. It may be called once; the
// Builder rejects every call afterwards.
func (b *Builder) Finalize(opts ...FinalizeOption) (*Analysis, error) {
	if b.final {
		return nil, ErrFinalized
	}
	conf := finalizeConfig{verify: true}
	for _, opt := range opts {
		opt(&conf)
	}
	if !b.entry.IsValid() {
		return nil, fmt.Errorf("cfg: no entry block registered for @%s", b.fn.Name())
	}
	if conf.verify {
		if err := verify(b); err != nil {
			return nil, err
		}
	}
	b.final = true
	return b.freeze(), nil
}

func (b *Builder) freeze() *Analysis {
	a := &Analysis{
		function: b.fn.Name(),
		entry:    b.entry,
		order:    slices.Clone(b.order),
		idom:     make(map[ir.BlockID]ir.BlockID, len(b.blocks)),
		children: make(map[ir.BlockID][]ir.BlockID),
		loopOf:   make(map[ir.BlockID]LoopID, len(b.blocks)),
	}
	for _, id := range b.order {
		rec := b.blocks[id]
		a.idom[id] = rec.idom
		if rec.idom.IsValid() {
			a.children[rec.idom] = append(a.children[rec.idom], id)
		}
		if rec.loop != NoLoop {
			a.loopOf[id] = rec.loop
		}
	}
	for i, l := range b.loops {
		a.loops = append(a.loops, Loop{
			ID:     LoopID(i + 1),
			Header: l.header,
			Parent: l.parent,
			Blocks: slices.Clone(l.blocks),
		})
	}
	for i := range a.loops {
		depth := 0
		for id := a.loops[i].ID; id != NoLoop; id = a.loops[id-1].Parent {
			depth++
		}
		a.loops[i].Depth = depth
	}
	return a
}
