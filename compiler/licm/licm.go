// Package licm moves loop-invariant code out of loops.
//
// For every none-typed expression that runs unconditionally at the
// top of a loop iteration, we check whether it conflicts with the
// rest of the loop body. If not, it runs once before the loop
// instead of once per iteration.
package licm

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/trellis-lang/trellis/compiler/cfg"
	"github.com/trellis-lang/trellis/compiler/effects"
	"github.com/trellis-lang/trellis/compiler/ir"
	"github.com/trellis-lang/trellis/compiler/set"
	"github.com/trellis-lang/trellis/compiler/tp"
)

type (
	pass struct {
		f    *ir.Func
		opts effects.Options

		// Which loop each candidate is nested in. The CFG may show
		// two expressions in one basic block without them being at
		// the same loop depth, if no branch separates them; this map
		// is the source of truth for nesting.
		exprLoops map[ir.Expr]ir.Expr

		// Code we managed to move out of each loop, discovery order.
		moved map[ir.Expr][]ir.Expr

		// Scratch placeholder for legality probes.
		probe ir.Expr
	}
)

// Run optimizes one function in place. It reports whether any code
// was moved. Function bodies are independent: callers may run this
// on many functions concurrently, one call per function.
func Run(ctx context.Context, f *ir.Func, opts effects.Options) bool {
	tr := tlog.SpanFromContext(ctx)

	p := &pass{
		f:    f,
		opts: opts,

		exprLoops: map[ir.Expr]ir.Expr{},
		moved:     map[ir.Expr][]ir.Expr{},

		probe: ir.Nil,
	}

	blocks := cfg.Build(f, cfg.Hooks{
		Expr:      p.classify,
		StartLoop: p.startLoop,
	})

	p.findAndMove(tr, blocks)

	if len(p.moved) == 0 {
		return false
	}

	p.update(&f.Body)

	tr.V("licm").Printw("function optimized", "name", f.Name, "loops", len(p.moved))

	return true
}

// classify attributes each expression to its innermost enclosing
// loop and records it as an item of the active basic block.
func (p *pass) classify(b *cfg.Block, slot *ir.Expr, ctl []ir.Expr) {
	if b == nil {
		return
	}

	id := *slot

	if _, ok := p.f.At(id).(*ir.Loop); ok {
		return
	}

	for i := len(ctl) - 1; i >= 0; i-- {
		if _, ok := p.f.At(ctl[i]).(*ir.Loop); ok {
			b.Items = append(b.Items, slot)
			p.exprLoops[id] = ctl[i]

			break
		}
	}
}

// startLoop records the loop itself as an item, so the scan can tell
// it has entered that loop's scope.
func (p *pass) startLoop(b *cfg.Block, slot *ir.Expr) {
	if b == nil {
		return
	}

	b.Items = append(b.Items, slot)
}

// findAndMove scans chains of straight-line blocks. Code found
// after entering a loop and before any possible branch runs
// unconditionally on every iteration, so it is safe to consider.
func (p *pass) findAndMove(tr tlog.Span, blocks []*cfg.Block) {
	visited := set.MakeBitmap(len(blocks))

	for _, start := range blocks {
		if visited.IsSet(start.ID) {
			continue
		}

		block := start
		loop := ir.Nil

	chain:
		for {
			visited.Set(block.ID)

			for i, slot := range block.Items {
				if slot == nil {
					continue
				}

				id := *slot

				if _, ok := p.f.At(id).(*ir.Loop); ok {
					loop = id
					continue
				}

				if loop == ir.Nil {
					continue
				}

				if effects.Of(p.f, id, p.opts).Branches {
					// Past a possible branch nothing is guaranteed
					// to run each iteration. Stop the whole chain.
					tr.V("licm_scan").Printw("chain stopped on branch", "block", block.ID, "id", id)

					break chain
				}

				if p.interestingToMove(id) && p.tryHoist(tr, slot, loop) {
					block.Items[i] = nil
				}
			}

			if len(block.Out) != 1 || visited.IsSet(block.Out[0].ID) {
				break
			}

			block = block.Out[0]
		}
	}
}

func (p *pass) interestingToMove(id ir.Expr) bool {
	if _, ok := p.f.At(id).(*ir.Nop); ok {
		return false
	}

	return tp.IsNone(p.f.Type(id))
}

// tryHoist moves the candidate into loop's moved list if reordering
// it before the remainder of the loop body cannot change observable
// behavior. On failure the candidate is left in place.
func (p *pass) tryHoist(tr tlog.Span, slot *ir.Expr, loop ir.Expr) bool {
	id := *slot

	attributed, ok := p.exprLoops[id]
	if !ok {
		panic(errors.New("no loop attribution for expr %v", id))
	}

	// The block may physically contain code from a different loop
	// depth. Only move what is really nested in this loop.
	if attributed != loop {
		return false
	}

	my := effects.Of(p.f, id, p.opts)

	// A call may not be deduplicated across iterations: its footprint
	// is unbounded and its repetition count can be observable. A
	// branch cannot be relocated without changing control flow.
	// Other side effects are fine, we check them against the loop:
	// a store or an implicit trap happens either way, once is enough.
	if my.Calls || my.Branches {
		tr.V("licm_reject").Printw("candidate rejected", "id", id, "loop", loop, "effects", my)
		return false
	}

	// Measure the loop body without the candidate.
	if p.probe == ir.Nil {
		p.probe = p.f.AddNop()
	}

	*slot = p.probe

	loopEff := effects.Of(p.f, loop, p.opts)

	// Branching inside the loop (continuation, early exits) is
	// expected. It is handled structurally by the chain scan, not
	// here.
	loopEff.Branches = false

	if loopEff.Invalidates(my) {
		*slot = id

		tr.V("licm_reject").Printw("candidate invalidated by loop", "id", id, "loop", loop, "effects", my, "loop_effects", loopEff)

		return false
	}

	p.moved[loop] = append(p.moved[loop], id)

	*slot = p.f.AddNop()

	tr.V("licm_hoist").Printw("candidate hoisted", "id", id, "loop", loop)

	return true
}

// update finishes the move: each loop that lost code is replaced by
// a block running that code first, then the loop.
func (p *pass) update(slot *ir.Expr) {
	id := *slot

	p.f.EachChild(id, p.update)

	if _, ok := p.f.At(id).(*ir.Loop); !ok {
		return
	}

	moved := p.moved[id]
	if len(moved) == 0 {
		return
	}

	*slot = p.f.AddBlock(p.f.Type(id), append(moved, id)...)
}
