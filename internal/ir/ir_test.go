package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestFunction creates a module with one void function taking a ptr.
func newTestFunction(t *testing.T) (*Module, *Function, *Builder) {
	t.Helper()
	m := NewModule("test")
	f, err := m.NewFunction("f", FuncType(Void, Ptr), ExternalLinkage)
	require.NoError(t, err)
	b := NewBuilder()
	b.SetInsertPoint(f.NewBlock("entry"))
	return m, f, b
}

func TestTypeLayout(t *testing.T) {
	st := StructType(I8, I64, I32, Ptr)

	assert.Equal(t, int64(0), st.FieldOffset(0))
	assert.Equal(t, int64(8), st.FieldOffset(1))
	assert.Equal(t, int64(16), st.FieldOffset(2))
	assert.Equal(t, int64(24), st.FieldOffset(3))
	assert.Equal(t, int64(32), st.Size())
	assert.Equal(t, int64(8), st.Align())
	assert.Equal(t, "{ i8, i64, i32, ptr }", st.String())
}

func TestTypeEqual(t *testing.T) {
	assert.True(t, IntType(64).Equal(I64))
	assert.True(t, FuncType(Void, Ptr, I32).Equal(FuncType(Void, Ptr, I32)))
	assert.False(t, FuncType(Void, Ptr).Equal(FuncType(I8, Ptr)))
	assert.False(t, StructType(I64).Equal(StructType(I32)))
	assert.Equal(t, "void (ptr, ptr, i32, i64, i64, i64)", FuncType(Void, Ptr, Ptr, I32, I64, I64, I64).String())
}

func TestNewFunctionRejectsDuplicates(t *testing.T) {
	m := NewModule("dup")
	_, err := m.NewFunction("f", FuncType(Void), ExternalLinkage)
	require.NoError(t, err)

	_, err = m.NewFunction("f", FuncType(Void), InternalLinkage)
	require.ErrorIs(t, err, ErrDuplicateFunction)

	_, err = m.NewFunction("g", I64, ExternalLinkage)
	require.Error(t, err)
}

func TestUniqueNames(t *testing.T) {
	_, f, b := newTestFunction(t)

	x := b.CreateAlloca(I64, "x")
	x1 := b.CreateAlloca(I64, "x")
	x2 := b.CreateAlloca(I64, "x")
	blk := f.NewBlock("x")

	assert.Equal(t, "x", x.Name())
	assert.Equal(t, "x1", x1.Name())
	assert.Equal(t, "x2", x2.Name())
	assert.Equal(t, "x3", blk.Name())
}

func TestBlockIDsAreStable(t *testing.T) {
	_, f, _ := newTestFunction(t)
	a := f.NewBlock("a")
	c := f.NewBlock("c")

	assert.Equal(t, BlockID(1), f.Entry().ID)
	assert.Equal(t, BlockID(2), a.ID)
	assert.Equal(t, BlockID(3), c.ID)
	assert.Same(t, a, f.Block(2))
	assert.Nil(t, f.Block(NoBlockID))
	assert.False(t, NoBlockID.IsValid())
}

func TestSplitBlockRewiresPhis(t *testing.T) {
	_, f, b := newTestFunction(t)
	entry := f.Entry()
	join := f.NewBlock("join")

	v := b.CreateAdd(ConstInt(I64, 1), ConstInt(I64, 2), "v")
	b.CreateBr(join)

	b.SetInsertPoint(join)
	phi := b.CreatePhi(I64, "p")
	phi.AddIncoming(v, entry)
	b.CreateRetVoid()

	// Split entry right before its branch.
	b.SetInsertPointBefore(entry.Terminator())
	tail := b.SplitBlock("entry.tail")

	assert.Equal(t, []*Block{entry, tail, join}, f.Blocks)
	assert.Equal(t, []*Block{tail}, entry.Succs())
	assert.Equal(t, []*Block{join}, tail.Succs())
	got, ok := phi.IncomingFor(tail)
	require.True(t, ok)
	assert.Same(t, v, got)

	// The builder sits before the new branch in the original block.
	assert.Same(t, entry, b.Block())
	assert.Equal(t, len(entry.Instrs)-1, b.InsertPoint().Index)

	require.NoError(t, Verify(f))
}

func TestVerifyReportsDefects(t *testing.T) {
	_, f, b := newTestFunction(t)
	other := f.NewBlock("other")

	b.CreateAdd(ConstInt(I64, 1), ConstInt(I32, 2), "bad")
	b.CreateCondBr(ConstInt(I64, 1), other, other)

	b.SetInsertPoint(other)
	phi := b.CreatePhi(I64, "p")
	_ = phi // no incoming values

	err := Verify(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operand types i64 and i32")
	assert.Contains(t, err.Error(), "want i1")
	assert.Contains(t, err.Error(), "lacks an incoming value")
	assert.Contains(t, err.Error(), "does not end in a terminator")
}

func TestVerifyCallSignature(t *testing.T) {
	m, _, b := newTestFunction(t)
	callee, err := m.NewFunction("callee", FuncType(Void, Ptr, I32), ExternalLinkage)
	require.NoError(t, err)

	b.CreateCall(callee, []Value{ConstInt(I64, 0), ConstInt(I32, 1)}, "")
	b.CreateRetVoid()

	err = Verify(m.Function("f"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 0 has type i64, want ptr")
}

func TestVerifyOperandScope(t *testing.T) {
	m, f, b := newTestFunction(t)
	g, err := m.NewFunction("g", FuncType(Void), ExternalLinkage)
	require.NoError(t, err)
	b.CreateRetVoid()

	b.SetInsertPoint(g.NewBlock("entry"))
	b.CreateStore(ConstInt(I64, 1), f.Params[0])
	b.CreateRetVoid()

	require.NoError(t, Verify(f))
	err = Verify(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uses %arg from @f")
}

func TestPrintModule(t *testing.T) {
	m, f, b := newTestFunction(t)
	decl, err := m.NewFunction("ext", FuncType(I8, Ptr, Ptr), ExternalLinkage)
	require.NoError(t, err)

	slot := b.CreateAlloca(I64, "slot")
	b.CreateStore(ConstInt(I64, 7), slot)
	r := b.CreateCall(decl, []Value{slot, f.Params[0]}, "r")
	c := b.CreateICmp(PredNE, r, ConstInt(I8, 0), "c")
	b.CreateTrunc(b.CreateLoad(I64, slot, "ld"), I32, "tr")
	_ = c
	b.CreateRetVoid()

	want := `; ModuleID = 'test'

declare i8 @ext(ptr, ptr)

define void @f(ptr %arg) {
entry:
  %slot = alloca i64, align 8
  store i64 7, ptr %slot, align 8
  %r = call i8 @ext(ptr %slot, ptr %arg)
  %c = icmp ne i8 %r, 0
  %ld = load i64, ptr %slot, align 8
  %tr = trunc i64 %ld to i32
  ret void
}
`
	assert.Equal(t, want, m.String())
	require.NoError(t, Verify(f))
}

func TestValueMapLookup(t *testing.T) {
	_, f, b := newTestFunction(t)
	outer := b.CreateAlloca(I64, "outer")
	inner := b.CreateAlloca(I64, "inner")

	vm := ValueMap{outer: inner}

	got, ok := vm.Lookup(outer)
	require.True(t, ok)
	assert.Same(t, inner, got)

	c := ConstInt(I64, 3)
	got, ok = vm.Lookup(c)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = vm.Lookup(f.Params[0])
	assert.False(t, ok)
}

func TestCanonicalSummary(t *testing.T) {
	_, f, b := newTestFunction(t)
	next := f.NewBlock("next")
	b.CreateBr(next)
	b.SetInsertPoint(next)
	b.CreateRetVoid()

	data, err := MarshalCanonical(Summarize(f))
	require.NoError(t, err)
	assert.Equal(t,
		`{"blocks":[{"id":1,"name":"entry","succs":["next"]},{"id":2,"name":"next","succs":[]}],"linkage":"external","name":"f","params":["arg"]}`,
		string(data))

	h1, err := SummaryHash(f)
	require.NoError(t, err)
	h2, err := SummaryHash(f)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestMarshalCanonicalRejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestCanonicalNamesAreNFC(t *testing.T) {
	m := NewModule("nfc")
	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	f, err := m.NewFunction(decomposed, FuncType(Void), ExternalLinkage)
	require.NoError(t, err)

	assert.Equal(t, composed, f.Name())
	assert.Same(t, f, m.Function(composed))
	assert.Same(t, f, m.Function(decomposed))
}
