package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/trellis-lang/trellis/compiler/effects"
	"github.com/trellis-lang/trellis/compiler/format"
	"github.com/trellis-lang/trellis/compiler/licm"
	"github.com/trellis-lang/trellis/compiler/parse"
)

func OptimizeFile(ctx context.Context, name string, opts effects.Options) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Optimize(ctx, text, opts)
}

func Optimize(ctx context.Context, text []byte, opts effects.Options) (obj []byte, err error) {
	m, err := parse.Module(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse module")
	}

	for _, f := range m.Funcs {
		moved := licm.Run(ctx, f, opts)

		tlog.SpanFromContext(ctx).V("opt").Printw("func optimized", "name", f.Name, "moved", moved)
	}

	return format.Module(nil, m), nil
}
