package ir

import (
	"github.com/trellis-lang/trellis/compiler/tp"
)

type (
	// Expr is a stable index into the function's expression arena.
	// It is the identity of a node: all side tables are keyed by it.
	Expr int

	Module struct {
		Path string

		Funcs   []*Func
		Globals []Global
	}

	Global struct {
		Name string
		Type tp.Type
	}

	Func struct {
		Name string

		In     []tp.Type
		Out    tp.Type
		Locals []tp.Type

		Body Expr

		// Nodes are stored by pointer so that child Expr fields
		// have stable addresses and can be used as slots.
		Exprs  []any
		TypeOf []tp.Type
	}

	Nop struct{}

	Block struct {
		List []Expr
	}

	Loop struct {
		Body Expr
	}

	If struct {
		Cond Expr
		Then Expr
		Else Expr // Nil if absent
	}

	// Br transfers control to an enclosing construct: branching to a
	// Block exits it forward, branching to a Loop is the back edge.
	// Cond == Nil means unconditional.
	Br struct {
		Target Expr
		Cond   Expr
	}

	Return struct {
		Value Expr // Nil if the function returns nothing
	}

	Call struct {
		Func string
		Args []Expr
	}

	LocalGet struct {
		Index int
	}

	LocalSet struct {
		Index int
		Value Expr
	}

	GlobalGet struct {
		Name string
	}

	GlobalSet struct {
		Name  string
		Value Expr
	}

	Load struct {
		Ptr Expr
	}

	Store struct {
		Ptr   Expr
		Value Expr
	}

	Const struct {
		Value int64
	}

	Bin struct {
		Op string
		L  Expr
		R  Expr
	}

	Unreachable struct{}

	Drop struct {
		Value Expr
	}
)

const (
	Nil Expr = -1
)

func (f *Func) Alloc(x any, t tp.Type) Expr {
	id := Expr(len(f.Exprs))

	f.Exprs = append(f.Exprs, x)
	f.TypeOf = append(f.TypeOf, t)

	return id
}

func (f *Func) At(id Expr) any {
	return f.Exprs[id]
}

func (f *Func) Type(id Expr) tp.Type {
	return f.TypeOf[id]
}

// AddNop allocates a fresh no-op placeholder.
func (f *Func) AddNop() Expr {
	return f.Alloc(&Nop{}, tp.None{})
}

// AddBlock allocates a sequencing block with the given result type.
func (f *Func) AddBlock(t tp.Type, list ...Expr) Expr {
	return f.Alloc(&Block{List: list}, t)
}

// EachChild calls fn with a slot for every direct child of id,
// in evaluation order. The slot may be written to replace the child.
func (f *Func) EachChild(id Expr, fn func(slot *Expr)) {
	one := func(s *Expr) {
		if *s != Nil {
			fn(s)
		}
	}

	switch x := f.Exprs[id].(type) {
	case *Nop, *LocalGet, *GlobalGet, *Const, *Unreachable:
	case *Block:
		for i := range x.List {
			one(&x.List[i])
		}
	case *Loop:
		one(&x.Body)
	case *If:
		one(&x.Cond)
		one(&x.Then)
		one(&x.Else)
	case *Br:
		one(&x.Cond)
	case *Return:
		one(&x.Value)
	case *Call:
		for i := range x.Args {
			one(&x.Args[i])
		}
	case *LocalSet:
		one(&x.Value)
	case *GlobalSet:
		one(&x.Value)
	case *Load:
		one(&x.Ptr)
	case *Store:
		one(&x.Ptr)
		one(&x.Value)
	case *Bin:
		one(&x.L)
		one(&x.R)
	case *Drop:
		one(&x.Value)
	default:
		panic(x)
	}
}
