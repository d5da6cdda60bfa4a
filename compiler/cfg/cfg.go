package cfg

import (
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/trellis-lang/trellis/compiler/ir"
)

type (
	// Block is a run of straight-line code. Items is filled by the
	// visitor hooks: slots the pass cares about, in program order.
	Block struct {
		ID int

		Items []*ir.Expr
		Out   []*Block
	}

	// Hooks are invoked during the single tree walk that builds the
	// graph, so visitors observe both the active block and the stack
	// of enclosing control constructs at once.
	Hooks struct {
		// Expr is called for every expression, post-order, with the
		// block active at that point. b is nil for dead code.
		Expr func(b *Block, slot *ir.Expr, ctl []ir.Expr)

		// StartLoop is called for a loop slot before the loop's
		// header block is created, in the block preceding it.
		StartLoop func(b *Block, slot *ir.Expr)
	}

	builder struct {
		f *ir.Func
		h Hooks

		blocks []*Block
		cur    *Block
		ctl    []ir.Expr

		headers map[ir.Expr]*Block   // open loop -> header
		exits   map[ir.Expr][]*Block // open block -> blocks branching to its end
	}
)

// Build walks the function body once, producing basic blocks with
// successor edges. The entry block is first in the returned list.
func Build(f *ir.Func, h Hooks) []*Block {
	b := &builder{
		f: f,
		h: h,

		headers: map[ir.Expr]*Block{},
		exits:   map[ir.Expr][]*Block{},
	}

	b.cur = b.newBlock()
	b.walk(&f.Body)

	return b.blocks
}

func (b *builder) walk(slot *ir.Expr) {
	id := *slot

	switch x := b.f.At(id).(type) {
	case *ir.Block:
		b.ctl = append(b.ctl, id)

		for i := range x.List {
			b.walk(&x.List[i])
		}

		b.ctl = b.ctl[:len(b.ctl)-1]

		if preds := b.exits[id]; len(preds) != 0 {
			join := b.newBlock()

			b.link(b.cur, join)

			for _, p := range preds {
				b.link(p, join)
			}

			delete(b.exits, id)

			b.cur = join
		}
	case *ir.Loop:
		if b.h.StartLoop != nil {
			b.h.StartLoop(b.cur, slot)
		}

		header := b.newBlock()
		b.link(b.cur, header)
		b.cur = header

		b.headers[id] = header

		b.ctl = append(b.ctl, id)
		b.walk(&x.Body)
		b.ctl = b.ctl[:len(b.ctl)-1]

		delete(b.headers, id)
	case *ir.If:
		b.walk(&x.Cond)

		cond := b.cur

		b.ctl = append(b.ctl, id)

		thenB := b.newBlock()
		b.link(cond, thenB)
		b.cur = thenB
		b.walk(&x.Then)

		afterThen := b.cur
		afterElse := cond

		if x.Else != ir.Nil {
			elseB := b.newBlock()
			b.link(cond, elseB)
			b.cur = elseB
			b.walk(&x.Else)

			afterElse = b.cur
		}

		b.ctl = b.ctl[:len(b.ctl)-1]

		join := b.newBlock()
		b.link(afterThen, join)
		b.link(afterElse, join)
		b.cur = join
	case *ir.Br:
		if x.Cond != ir.Nil {
			b.walk(&x.Cond)
		}

		b.branch(x.Target)
		b.visit(slot)

		if x.Cond == ir.Nil {
			b.cur = nil
		} else {
			next := b.newBlock()
			b.link(b.cur, next)
			b.cur = next
		}

		return
	case *ir.Return:
		if x.Value != ir.Nil {
			b.walk(&x.Value)
		}

		b.visit(slot)
		b.cur = nil

		return
	case *ir.Unreachable:
		b.visit(slot)
		b.cur = nil

		return
	default:
		b.f.EachChild(id, b.walk)
	}

	b.visit(slot)
}

func (b *builder) branch(target ir.Expr) {
	if b.cur == nil {
		return
	}

	if h, ok := b.headers[target]; ok { // back edge
		b.link(b.cur, h)
		return
	}

	b.exits[target] = append(b.exits[target], b.cur)
}

func (b *builder) visit(slot *ir.Expr) {
	if b.h.Expr != nil {
		b.h.Expr(b.cur, slot, b.ctl)
	}
}

func (b *builder) newBlock() *Block {
	x := &Block{ID: len(b.blocks)}
	b.blocks = append(b.blocks, x)

	tlog.V("cfg").Printw("new block", "id", x.ID, "from", loc.Caller(1))

	return x
}

func (b *builder) link(from, to *Block) {
	if from == nil {
		return
	}

	from.Out = append(from.Out, to)
}
