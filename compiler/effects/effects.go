package effects

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/trellis-lang/trellis/compiler/ir"
	"github.com/trellis-lang/trellis/compiler/set"
)

type (
	// Options is pass-wide configuration forwarded into every query.
	Options struct {
		// IgnoreImplicitTraps treats loads, stores and integer
		// division as non-trapping.
		IgnoreImplicitTraps bool

		// GlobalsAsOne tracks all globals as a single location
		// instead of by name.
		GlobalsAsOne bool
	}

	// Effects is a conservative summary of what a subtree may do.
	// Anything the analysis cannot bound precisely is widened to
	// "touches everything" so that reordering is refused.
	Effects struct {
		ReadsLocal  set.Bitmap
		WritesLocal set.Bitmap

		ReadsGlobal  map[string]struct{}
		WritesGlobal map[string]struct{}

		// Any-global flags stand in for the name sets when the
		// exact set is unknown or GlobalsAsOne is set.
		ReadsAnyGlobal  bool
		WritesAnyGlobal bool

		ReadsMemory  bool
		WritesMemory bool

		Calls    bool
		Branches bool
		Traps    bool
	}
)

// Of computes the effect summary of the subtree rooted at id.
func Of(f *ir.Func, id ir.Expr, opts Options) Effects {
	e := Effects{
		ReadsGlobal:  map[string]struct{}{},
		WritesGlobal: map[string]struct{}{},
	}

	e.walk(f, id, opts)

	return e
}

func (e *Effects) walk(f *ir.Func, id ir.Expr, opts Options) {
	switch x := f.At(id).(type) {
	case *ir.Nop, *ir.Block, *ir.Loop, *ir.If, *ir.Const, *ir.Drop:
	case *ir.LocalGet:
		e.ReadsLocal.Set(x.Index)
	case *ir.LocalSet:
		e.WritesLocal.Set(x.Index)
	case *ir.GlobalGet:
		if opts.GlobalsAsOne {
			e.ReadsAnyGlobal = true
		} else {
			e.ReadsGlobal[x.Name] = struct{}{}
		}
	case *ir.GlobalSet:
		if opts.GlobalsAsOne {
			e.WritesAnyGlobal = true
		} else {
			e.WritesGlobal[x.Name] = struct{}{}
		}
	case *ir.Load:
		e.ReadsMemory = true

		if !opts.IgnoreImplicitTraps {
			e.Traps = true
		}
	case *ir.Store:
		e.WritesMemory = true

		if !opts.IgnoreImplicitTraps {
			e.Traps = true
		}
	case *ir.Call:
		// The callee's footprint is unknown.
		e.Calls = true
		e.ReadsMemory = true
		e.WritesMemory = true
		e.ReadsAnyGlobal = true
		e.WritesAnyGlobal = true
		e.Traps = true
	case *ir.Br, *ir.Return:
		e.Branches = true
	case *ir.Unreachable:
		e.Traps = true
	case *ir.Bin:
		if !opts.IgnoreImplicitTraps && (x.Op == "div" || x.Op == "rem") {
			e.Traps = true
		}
	default:
		panic(x)
	}

	f.EachChild(id, func(slot *ir.Expr) {
		e.walk(f, *slot, opts)
	})
}

// Invalidates reports whether running other before e could change
// observable behavior. Traps alone never conflict: whether a trap
// fires once or per iteration, execution up to it is identical.
func (e Effects) Invalidates(other Effects) bool {
	if e.Branches && other.hasSideEffects() || other.Branches && e.hasSideEffects() {
		return true
	}

	if e.Calls && (other.Calls || other.touchesMemory() || other.touchesGlobals()) {
		return true
	}

	if other.Calls && (e.touchesMemory() || e.touchesGlobals()) {
		return true
	}

	if e.WritesLocal.Intersects(other.ReadsLocal) ||
		e.WritesLocal.Intersects(other.WritesLocal) ||
		e.ReadsLocal.Intersects(other.WritesLocal) {
		return true
	}

	if e.globalsConflict(other) {
		return true
	}

	if e.WritesMemory && other.touchesMemory() || other.WritesMemory && e.ReadsMemory {
		return true
	}

	return false
}

func (e Effects) globalsConflict(other Effects) bool {
	if e.WritesAnyGlobal && other.readsAnyGlobal() ||
		e.WritesAnyGlobal && other.writesAnyGlobal() ||
		other.WritesAnyGlobal && e.readsAnyGlobal() ||
		other.WritesAnyGlobal && e.writesAnyGlobal() {
		return true
	}

	if e.ReadsAnyGlobal && other.writesAnyGlobal() || other.ReadsAnyGlobal && e.writesAnyGlobal() {
		return true
	}

	return overlap(e.WritesGlobal, other.ReadsGlobal) ||
		overlap(e.WritesGlobal, other.WritesGlobal) ||
		overlap(e.ReadsGlobal, other.WritesGlobal)
}

func overlap(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}

	return false
}

func (e Effects) hasSideEffects() bool {
	return e.Calls || e.Traps ||
		e.WritesLocal.Size() != 0 || e.writesAnyGlobal() || e.WritesMemory
}

func (e Effects) touchesMemory() bool {
	return e.ReadsMemory || e.WritesMemory
}

func (e Effects) touchesGlobals() bool {
	return e.readsAnyGlobal() || e.writesAnyGlobal()
}

func (e Effects) readsAnyGlobal() bool {
	return e.ReadsAnyGlobal || len(e.ReadsGlobal) != 0
}

func (e Effects) writesAnyGlobal() bool {
	return e.WritesAnyGlobal || len(e.WritesGlobal) != 0
}

func (e Effects) TlogAppend(b []byte) []byte {
	var enc tlwire.Encoder

	b = enc.AppendTag(b, tlwire.Map, -1)

	if e.ReadsLocal.Size() != 0 {
		b = enc.AppendKey(b, "rl")
		b = e.ReadsLocal.TlogAppend(b)
	}

	if e.WritesLocal.Size() != 0 {
		b = enc.AppendKey(b, "wl")
		b = e.WritesLocal.TlogAppend(b)
	}

	flags := []struct {
		k string
		f bool
	}{
		{"rg", e.readsAnyGlobal()},
		{"wg", e.writesAnyGlobal()},
		{"rm", e.ReadsMemory},
		{"wm", e.WritesMemory},
		{"calls", e.Calls},
		{"branches", e.Branches},
		{"traps", e.Traps},
	}

	for _, x := range flags {
		if x.f {
			b = enc.AppendKeyValue(b, x.k, true)
		}
	}

	b = enc.AppendBreak(b)

	return b
}
