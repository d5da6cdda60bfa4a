package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trellis-lang/trellis/compiler/tp"
)

func TestAlloc(t *testing.T) {
	f := &Func{Name: "f", Out: tp.None{}}

	a := f.Alloc(&Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
	b := f.AddNop()

	assert.Equal(t, Expr(0), a)
	assert.Equal(t, Expr(1), b)

	assert.IsType(t, &Const{}, f.At(a))
	assert.True(t, tp.IsNone(f.Type(b)))
}

func TestEachChildSlots(t *testing.T) {
	f := &Func{Name: "f", Out: tp.None{}}

	p := f.Alloc(&Const{Value: 8}, tp.Int{Bits: 64, Signed: true})
	v := f.Alloc(&Const{Value: 1}, tp.Int{Bits: 64, Signed: true})
	s := f.Alloc(&Store{Ptr: p, Value: v}, tp.None{})
	blk := f.AddBlock(tp.None{}, s)

	var slots []*Expr

	f.EachChild(blk, func(slot *Expr) {
		slots = append(slots, slot)
	})

	require.Len(t, slots, 1)
	assert.Equal(t, s, *slots[0])

	// writing through the slot rewires the tree
	*slots[0] = f.AddNop()

	assert.Equal(t, []Expr{4}, f.At(blk).(*Block).List)
}

func TestEachChildSkipsNil(t *testing.T) {
	f := &Func{Name: "f", Out: tp.None{}}

	r := f.Alloc(&Return{Value: Nil}, tp.None{})

	f.EachChild(r, func(slot *Expr) {
		t.Errorf("unexpected child %v", *slot)
	})
}
