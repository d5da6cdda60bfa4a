package parse

import (
	"context"
	"strconv"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/trellis-lang/trellis/compiler/ir"
	"github.com/trellis-lang/trellis/compiler/tp"
)

type (
	parser struct {
		b []byte
		i int

		m *ir.Module
		f *ir.Func

		ctl []ir.Expr
	}
)

// Module parses the textual form produced by the format package.
func Module(ctx context.Context, text []byte) (*ir.Module, error) {
	p := &parser{
		b: text,
		m: &ir.Module{},
	}

	err := p.module()
	if err != nil {
		return nil, errors.Wrap(err, "at offset %d", p.i)
	}

	tlog.SpanFromContext(ctx).V("parse").Printw("module parsed", "path", p.m.Path, "funcs", len(p.m.Funcs))

	return p.m, nil
}

func (p *parser) module() (err error) {
	err = p.open()
	if err != nil {
		return err
	}

	err = p.expect("module")
	if err != nil {
		return err
	}

	p.m.Path, err = p.atom()
	if err != nil {
		return errors.Wrap(err, "module name")
	}

	for !p.closing() {
		err = p.open()
		if err != nil {
			return err
		}

		head, err := p.atom()
		if err != nil {
			return err
		}

		switch head {
		case "global":
			err = p.global()
		case "func":
			err = p.fn()
		default:
			err = errors.New("unexpected %q", head)
		}

		if err != nil {
			return errors.Wrap(err, "%v", head)
		}
	}

	return p.close()
}

func (p *parser) global() (err error) {
	g := ir.Global{}

	g.Name, err = p.atom()
	if err != nil {
		return err
	}

	g.Type, err = p.tp()
	if err != nil {
		return err
	}

	p.m.Globals = append(p.m.Globals, g)

	return p.close()
}

func (p *parser) fn() (err error) {
	f := &ir.Func{Out: tp.None{}}
	p.f = f

	f.Name, err = p.atom()
	if err != nil {
		return err
	}

	f.In, err = p.tpList("param")
	if err != nil {
		return err
	}

	if res, err := p.tpList("result"); err != nil {
		return err
	} else if len(res) == 1 {
		f.Out = res[0]
	} else if len(res) > 1 {
		return errors.New("one result expected")
	}

	f.Locals, err = p.tpList("local")
	if err != nil {
		return err
	}

	var body []ir.Expr

	for !p.closing() {
		id, err := p.expr()
		if err != nil {
			return err
		}

		body = append(body, id)
	}

	switch len(body) {
	case 0:
		f.Body = f.AddNop()
	case 1:
		f.Body = body[0]
	default:
		f.Body = f.AddBlock(f.Type(body[len(body)-1]), body...)
	}

	p.m.Funcs = append(p.m.Funcs, f)
	p.f = nil

	return p.close()
}

func (p *parser) expr() (_ ir.Expr, err error) {
	err = p.open()
	if err != nil {
		return ir.Nil, err
	}

	head, err := p.atom()
	if err != nil {
		return ir.Nil, err
	}

	id, err := p.node(head)
	if err != nil {
		return ir.Nil, errors.Wrap(err, "%v", head)
	}

	return id, nil
}

func (p *parser) node(head string) (_ ir.Expr, err error) {
	f := p.f

	switch head {
	case "nop":
		defer p.closed(&err)
		return f.AddNop(), nil
	case "block":
		x := &ir.Block{}
		id := f.Alloc(x, tp.None{})

		p.ctl = append(p.ctl, id)

		for !p.closing() {
			c, err := p.expr()
			if err != nil {
				return ir.Nil, err
			}

			x.List = append(x.List, c)
		}

		p.ctl = p.ctl[:len(p.ctl)-1]

		if l := len(x.List); l != 0 {
			f.TypeOf[id] = f.Type(x.List[l-1])
		}

		return id, p.close()
	case "loop":
		x := &ir.Loop{Body: ir.Nil}
		id := f.Alloc(x, tp.None{})

		p.ctl = append(p.ctl, id)

		var body []ir.Expr

		for !p.closing() {
			c, err := p.expr()
			if err != nil {
				return ir.Nil, err
			}

			body = append(body, c)
		}

		p.ctl = p.ctl[:len(p.ctl)-1]

		switch len(body) {
		case 0:
			x.Body = f.AddNop()
		case 1:
			x.Body = body[0]
		default:
			x.Body = f.AddBlock(f.Type(body[len(body)-1]), body...)
		}

		f.TypeOf[id] = f.Type(x.Body)

		return id, p.close()
	case "if":
		x := &ir.If{Else: ir.Nil}
		id := f.Alloc(x, tp.None{})

		x.Cond, err = p.expr()
		if err != nil {
			return ir.Nil, err
		}

		p.ctl = append(p.ctl, id)

		x.Then, err = p.expr()
		if err != nil {
			return ir.Nil, err
		}

		if !p.closing() {
			x.Else, err = p.expr()
			if err != nil {
				return ir.Nil, err
			}

			if f.Type(x.Then) == f.Type(x.Else) {
				f.TypeOf[id] = f.Type(x.Then)
			}
		}

		p.ctl = p.ctl[:len(p.ctl)-1]

		return id, p.close()
	case "br", "br_if":
		d, err := p.num()
		if err != nil {
			return ir.Nil, err
		}

		if d < 0 || int(d) >= len(p.ctl) {
			return ir.Nil, errors.New("branch depth %d out of range", d)
		}

		x := &ir.Br{
			Target: p.ctl[len(p.ctl)-1-int(d)],
			Cond:   ir.Nil,
		}

		if head == "br_if" {
			x.Cond, err = p.expr()
			if err != nil {
				return ir.Nil, err
			}
		}

		return f.Alloc(x, tp.None{}), p.close()
	case "return":
		x := &ir.Return{Value: ir.Nil}

		if !p.closing() {
			x.Value, err = p.expr()
			if err != nil {
				return ir.Nil, err
			}
		}

		return f.Alloc(x, tp.None{}), p.close()
	case "call":
		x := &ir.Call{}

		x.Func, err = p.atom()
		if err != nil {
			return ir.Nil, err
		}

		for !p.closing() {
			a, err := p.expr()
			if err != nil {
				return ir.Nil, err
			}

			x.Args = append(x.Args, a)
		}

		return f.Alloc(x, tp.None{}), p.close()
	case "local.get":
		n, err := p.num()
		if err != nil {
			return ir.Nil, err
		}

		t, err := p.localType(int(n))
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.LocalGet{Index: int(n)}, t), p.close()
	case "local.set":
		n, err := p.num()
		if err != nil {
			return ir.Nil, err
		}

		if _, err = p.localType(int(n)); err != nil {
			return ir.Nil, err
		}

		v, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.LocalSet{Index: int(n), Value: v}, tp.None{}), p.close()
	case "global.get":
		name, err := p.atom()
		if err != nil {
			return ir.Nil, err
		}

		t, err := p.globalType(name)
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.GlobalGet{Name: name}, t), p.close()
	case "global.set":
		name, err := p.atom()
		if err != nil {
			return ir.Nil, err
		}

		if _, err = p.globalType(name); err != nil {
			return ir.Nil, err
		}

		v, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.GlobalSet{Name: name, Value: v}, tp.None{}), p.close()
	case "load":
		ptr, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.Load{Ptr: ptr}, tp.Int{Bits: 64, Signed: true}), p.close()
	case "store":
		ptr, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		v, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.Store{Ptr: ptr, Value: v}, tp.None{}), p.close()
	case "const":
		v, err := p.num()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.Const{Value: v}, tp.Int{Bits: 64, Signed: true}), p.close()
	case "unreachable":
		defer p.closed(&err)
		return f.Alloc(&ir.Unreachable{}, tp.None{}), nil
	case "drop":
		v, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.Drop{Value: v}, tp.None{}), p.close()
	case "add", "sub", "mul", "div", "rem", "eq", "ne", "lt", "gt", "le", "ge":
		l, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		r, err := p.expr()
		if err != nil {
			return ir.Nil, err
		}

		return f.Alloc(&ir.Bin{Op: head, L: l, R: r}, tp.Int{Bits: 64, Signed: true}), p.close()
	default:
		return ir.Nil, errors.New("unexpected %q", head)
	}
}

func (p *parser) localType(n int) (tp.Type, error) {
	if n < len(p.f.In) {
		return p.f.In[n], nil
	}

	n -= len(p.f.In)

	if n < len(p.f.Locals) {
		return p.f.Locals[n], nil
	}

	return nil, errors.New("local %d not declared", n+len(p.f.In))
}

func (p *parser) globalType(name string) (tp.Type, error) {
	for _, g := range p.m.Globals {
		if g.Name == name {
			return g.Type, nil
		}
	}

	return nil, errors.New("global %q not declared", name)
}

func (p *parser) tpList(kind string) (l []tp.Type, err error) {
	if !p.peekOpen(kind) {
		return nil, nil
	}

	_ = p.open()
	_, _ = p.atom() // the kind itself

	for !p.closing() {
		t, err := p.tp()
		if err != nil {
			return nil, err
		}

		l = append(l, t)
	}

	return l, p.close()
}

func (p *parser) tp() (tp.Type, error) {
	a, err := p.atom()
	if err != nil {
		return nil, err
	}

	switch a {
	case "none":
		return tp.None{}, nil
	case "i32":
		return tp.Int{Bits: 32, Signed: true}, nil
	case "i64":
		return tp.Int{Bits: 64, Signed: true}, nil
	case "ptr":
		return tp.Ptr{}, nil
	default:
		return nil, errors.New("unknown type %q", a)
	}
}

func (p *parser) num() (int64, error) {
	a, err := p.atom()
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "number")
	}

	return v, nil
}

func (p *parser) expect(a string) error {
	got, err := p.atom()
	if err != nil {
		return err
	}

	if got != a {
		return errors.New("%q expected, got %q", a, got)
	}

	return nil
}

func (p *parser) atom() (string, error) {
	p.spaces()

	st := p.i

	for p.i < len(p.b) && !delim(p.b[p.i]) {
		p.i++
	}

	if st == p.i {
		return "", errors.New("atom expected")
	}

	return string(p.b[st:p.i]), nil
}

func (p *parser) open() error {
	p.spaces()

	if p.i == len(p.b) || p.b[p.i] != '(' {
		return errors.New("( expected")
	}

	p.i++

	return nil
}

func (p *parser) close() error {
	p.spaces()

	if p.i == len(p.b) || p.b[p.i] != ')' {
		return errors.New(") expected")
	}

	p.i++

	return nil
}

func (p *parser) closed(errp *error) {
	if e := p.close(); e != nil && *errp == nil {
		*errp = e
	}
}

func (p *parser) closing() bool {
	p.spaces()

	return p.i == len(p.b) || p.b[p.i] == ')'
}

func (p *parser) peekOpen(kind string) bool {
	p.spaces()

	i := p.i

	if i == len(p.b) || p.b[i] != '(' {
		return false
	}

	i++

	st := i

	for i < len(p.b) && !delim(p.b[i]) {
		i++
	}

	return string(p.b[st:i]) == kind
}

func (p *parser) spaces() {
	for p.i < len(p.b) {
		switch p.b[p.i] {
		case ' ', '\t', '\n', '\r':
			p.i++
		case ';': // comment to end of line
			for p.i < len(p.b) && p.b[p.i] != '\n' {
				p.i++
			}
		default:
			return
		}
	}
}

func delim(c byte) bool {
	switch c {
	case '(', ')', ' ', '\t', '\n', '\r', ';':
		return true
	}

	return false
}
