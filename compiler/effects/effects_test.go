package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-lang/trellis/compiler/ir"
	"github.com/trellis-lang/trellis/compiler/tp"
)

func newFunc() *ir.Func {
	return &ir.Func{Name: "f", Out: tp.None{}, Locals: []tp.Type{tp.Int{Bits: 64, Signed: true}}}
}

func TestOfLocals(t *testing.T) {
	f := newFunc()

	v := f.Alloc(&ir.LocalGet{Index: 0}, tp.Int{Bits: 64, Signed: true})
	s := f.Alloc(&ir.LocalSet{Index: 1, Value: v}, tp.None{})

	e := Of(f, s, Options{})

	assert.True(t, e.ReadsLocal.IsSet(0))
	assert.True(t, e.WritesLocal.IsSet(1))
	assert.False(t, e.Calls)
	assert.False(t, e.Branches)
	assert.False(t, e.Traps)
}

func TestOfMemoryAndTraps(t *testing.T) {
	f := newFunc()

	p := f.Alloc(&ir.Const{Value: 8}, tp.Int{Bits: 64, Signed: true})
	v := f.Alloc(&ir.Load{Ptr: p}, tp.Int{Bits: 64, Signed: true})
	s := f.Alloc(&ir.Store{Ptr: p, Value: v}, tp.None{})

	e := Of(f, s, Options{})

	assert.True(t, e.ReadsMemory)
	assert.True(t, e.WritesMemory)
	assert.True(t, e.Traps)

	e = Of(f, s, Options{IgnoreImplicitTraps: true})

	assert.False(t, e.Traps)
}

func TestOfCallIsUnbounded(t *testing.T) {
	f := newFunc()

	c := f.Alloc(&ir.Call{Func: "g"}, tp.None{})

	e := Of(f, c, Options{})

	assert.True(t, e.Calls)
	assert.True(t, e.ReadsMemory)
	assert.True(t, e.WritesMemory)
	assert.True(t, e.ReadsAnyGlobal)
	assert.True(t, e.WritesAnyGlobal)
}

func TestOfBranches(t *testing.T) {
	f := newFunc()

	l := &ir.Loop{}
	lid := f.Alloc(l, tp.None{})
	l.Body = f.Alloc(&ir.Br{Target: lid, Cond: ir.Nil}, tp.None{})

	e := Of(f, lid, Options{})

	assert.True(t, e.Branches)

	r := f.Alloc(&ir.Return{Value: ir.Nil}, tp.None{})

	assert.True(t, Of(f, r, Options{}).Branches)
}

func effOf(t *testing.T, build func(f *ir.Func) ir.Expr) Effects {
	t.Helper()

	f := newFunc()
	id := build(f)

	require.GreaterOrEqual(t, int(id), 0)

	return Of(f, id, Options{})
}

func TestInvalidatesLocals(t *testing.T) {
	read := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.LocalGet{Index: 0}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.Drop{Value: v}, tp.None{})
	})
	write := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.LocalSet{Index: 0, Value: v}, tp.None{})
	})
	other := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.LocalSet{Index: 1, Value: v}, tp.None{})
	})

	assert.True(t, write.Invalidates(read), "write vs read of the same local")
	assert.True(t, read.Invalidates(write), "read vs write of the same local")
	assert.True(t, write.Invalidates(write), "write vs write of the same local")
	assert.False(t, write.Invalidates(other), "distinct locals do not conflict")
	assert.False(t, read.Invalidates(read), "reads do not conflict")
}

func TestInvalidatesMemory(t *testing.T) {
	load := effOf(t, func(f *ir.Func) ir.Expr {
		p := f.Alloc(&ir.Const{Value: 8}, tp.Int{Bits: 64, Signed: true})
		v := f.Alloc(&ir.Load{Ptr: p}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.Drop{Value: v}, tp.None{})
	})
	store := effOf(t, func(f *ir.Func) ir.Expr {
		p := f.Alloc(&ir.Const{Value: 8}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.Store{Ptr: p, Value: p}, tp.None{})
	})

	assert.True(t, store.Invalidates(load))
	assert.True(t, load.Invalidates(store))
	assert.True(t, store.Invalidates(store))
	assert.False(t, load.Invalidates(load))
}

func TestInvalidatesGlobals(t *testing.T) {
	read := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.GlobalGet{Name: "g"}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.Drop{Value: v}, tp.None{})
	})
	write := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.GlobalSet{Name: "g", Value: v}, tp.None{})
	})
	other := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.GlobalSet{Name: "h", Value: v}, tp.None{})
	})

	assert.True(t, write.Invalidates(read))
	assert.True(t, read.Invalidates(write))
	assert.True(t, write.Invalidates(write), "write vs write of the same global")
	assert.False(t, write.Invalidates(other))
	assert.False(t, other.Invalidates(read))
	assert.False(t, read.Invalidates(read))
}

func TestGlobalsAsOne(t *testing.T) {
	f := newFunc()

	v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
	wg := f.Alloc(&ir.GlobalSet{Name: "g", Value: v}, tp.None{})
	rh := f.Alloc(&ir.GlobalGet{Name: "h"}, tp.Int{Bits: 64, Signed: true})
	drh := f.Alloc(&ir.Drop{Value: rh}, tp.None{})

	opts := Options{GlobalsAsOne: true}

	w := Of(f, wg, opts)
	r := Of(f, drh, opts)

	assert.True(t, w.Invalidates(r), "undifferentiated globals always conflict")
}

func TestTrapsAloneDoNotConflict(t *testing.T) {
	trap := effOf(t, func(f *ir.Func) ir.Expr {
		return f.Alloc(&ir.Unreachable{}, tp.None{})
	})
	write := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.LocalSet{Index: 0, Value: v}, tp.None{})
	})

	assert.False(t, trap.Invalidates(trap))
	assert.False(t, write.Invalidates(trap))
	assert.False(t, trap.Invalidates(write))
}

func TestBranchesConflictWithSideEffects(t *testing.T) {
	br := effOf(t, func(f *ir.Func) ir.Expr {
		l := &ir.Loop{}
		lid := f.Alloc(l, tp.None{})
		l.Body = f.Alloc(&ir.Br{Target: lid, Cond: ir.Nil}, tp.None{})
		return lid
	})
	write := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.LocalSet{Index: 0, Value: v}, tp.None{})
	})
	pure := effOf(t, func(f *ir.Func) ir.Expr {
		v := f.Alloc(&ir.Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
		return f.Alloc(&ir.Drop{Value: v}, tp.None{})
	})

	assert.True(t, br.Invalidates(write))
	assert.True(t, write.Invalidates(br))
	assert.False(t, br.Invalidates(pure))
}
