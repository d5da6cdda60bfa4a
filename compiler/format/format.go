package format

import (
	"github.com/nikandfor/hacked/hfmt"

	"github.com/trellis-lang/trellis/compiler/ir"
	"github.com/trellis-lang/trellis/compiler/tp"
)

type (
	printer struct {
		f   *ir.Func
		ctl []ir.Expr
	}
)

func Module(b []byte, m *ir.Module) []byte {
	b = hfmt.Appendf(b, "(module %s", m.Path)

	for _, g := range m.Globals {
		b = hfmt.Appendf(b, "\n  (global %s %s)", g.Name, Type(g.Type))
	}

	for _, f := range m.Funcs {
		b = append(b, '\n')
		b = Func(b, f)
	}

	b = append(b, ")\n"...)

	return b
}

func Func(b []byte, f *ir.Func) []byte {
	b = hfmt.Appendf(b, "  (func %s", f.Name)

	if len(f.In) != 0 {
		b = append(b, " (param"...)

		for _, t := range f.In {
			b = hfmt.Appendf(b, " %s", Type(t))
		}

		b = append(b, ')')
	}

	if !tp.IsNone(f.Out) {
		b = hfmt.Appendf(b, " (result %s)", Type(f.Out))
	}

	if len(f.Locals) != 0 {
		b = append(b, " (local"...)

		for _, t := range f.Locals {
			b = hfmt.Appendf(b, " %s", Type(t))
		}

		b = append(b, ')')
	}

	p := printer{f: f}

	b = append(b, '\n')
	b = p.expr(b, f.Body, 2)
	b = append(b, ')')

	return b
}

func (p *printer) expr(b []byte, id ir.Expr, d int) []byte {
	for i := 0; i < d; i++ {
		b = append(b, "  "...)
	}

	switch x := p.f.At(id).(type) {
	case *ir.Block:
		b = append(b, "(block"...)

		p.ctl = append(p.ctl, id)

		for _, c := range x.List {
			b = append(b, '\n')
			b = p.expr(b, c, d+1)
		}

		p.ctl = p.ctl[:len(p.ctl)-1]

		b = append(b, ')')
	case *ir.Loop:
		b = append(b, "(loop\n"...)

		p.ctl = append(p.ctl, id)
		b = p.expr(b, x.Body, d+1)
		p.ctl = p.ctl[:len(p.ctl)-1]

		b = append(b, ')')
	case *ir.If:
		b = append(b, "(if "...)
		b = p.inline(b, x.Cond)

		p.ctl = append(p.ctl, id)

		b = append(b, '\n')
		b = p.expr(b, x.Then, d+1)

		if x.Else != ir.Nil {
			b = append(b, '\n')
			b = p.expr(b, x.Else, d+1)
		}

		p.ctl = p.ctl[:len(p.ctl)-1]

		b = append(b, ')')
	default:
		b = p.inline(b, id)
	}

	return b
}

func (p *printer) inline(b []byte, id ir.Expr) []byte {
	switch x := p.f.At(id).(type) {
	case *ir.Nop:
		b = append(b, "(nop)"...)
	case *ir.Br:
		if x.Cond == ir.Nil {
			b = hfmt.Appendf(b, "(br %d)", p.depth(x.Target))
			break
		}

		b = hfmt.Appendf(b, "(br_if %d ", p.depth(x.Target))
		b = p.inline(b, x.Cond)
		b = append(b, ')')
	case *ir.Return:
		if x.Value == ir.Nil {
			b = append(b, "(return)"...)
			break
		}

		b = append(b, "(return "...)
		b = p.inline(b, x.Value)
		b = append(b, ')')
	case *ir.Call:
		b = hfmt.Appendf(b, "(call %s", x.Func)

		for _, a := range x.Args {
			b = append(b, ' ')
			b = p.inline(b, a)
		}

		b = append(b, ')')
	case *ir.LocalGet:
		b = hfmt.Appendf(b, "(local.get %d)", x.Index)
	case *ir.LocalSet:
		b = hfmt.Appendf(b, "(local.set %d ", x.Index)
		b = p.inline(b, x.Value)
		b = append(b, ')')
	case *ir.GlobalGet:
		b = hfmt.Appendf(b, "(global.get %s)", x.Name)
	case *ir.GlobalSet:
		b = hfmt.Appendf(b, "(global.set %s ", x.Name)
		b = p.inline(b, x.Value)
		b = append(b, ')')
	case *ir.Load:
		b = append(b, "(load "...)
		b = p.inline(b, x.Ptr)
		b = append(b, ')')
	case *ir.Store:
		b = append(b, "(store "...)
		b = p.inline(b, x.Ptr)
		b = append(b, ' ')
		b = p.inline(b, x.Value)
		b = append(b, ')')
	case *ir.Const:
		b = hfmt.Appendf(b, "(const %d)", x.Value)
	case *ir.Bin:
		b = hfmt.Appendf(b, "(%s ", x.Op)
		b = p.inline(b, x.L)
		b = append(b, ' ')
		b = p.inline(b, x.R)
		b = append(b, ')')
	case *ir.Unreachable:
		b = append(b, "(unreachable)"...)
	case *ir.Drop:
		b = append(b, "(drop "...)
		b = p.inline(b, x.Value)
		b = append(b, ')')
	case *ir.Block, *ir.Loop, *ir.If:
		// control construct in operand position
		b = p.expr(b, id, 0)
	default:
		panic(x)
	}

	return b
}

// depth renders a branch target as its relative nesting depth,
// innermost enclosing construct being 0.
func (p *printer) depth(target ir.Expr) int {
	for i := len(p.ctl) - 1; i >= 0; i-- {
		if p.ctl[i] == target {
			return len(p.ctl) - 1 - i
		}
	}

	panic(target)
}

func Type(t tp.Type) string {
	switch x := t.(type) {
	case tp.None:
		return "none"
	case tp.Int:
		if x.Bits == 32 {
			return "i32"
		}

		return "i64"
	case tp.Ptr:
		return "ptr"
	default:
		panic(t)
	}
}
