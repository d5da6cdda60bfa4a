package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/trellis-lang/trellis/compiler"
	"github.com/trellis-lang/trellis/compiler/effects"
	"github.com/trellis-lang/trellis/compiler/format"
	"github.com/trellis-lang/trellis/compiler/parse"
)

func main() {
	parseCmd := &cli.Command{
		Name:   "parse",
		Action: parseAct,
		Args:   cli.Args{},
	}

	optCmd := &cli.Command{
		Name:   "opt",
		Action: optAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "trellis",
		Description: "trellis is a tool for optimizing trellis modules",
		Commands: []*cli.Command{
			parseCmd,
			optCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func parseAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read %v", a)
		}

		m, err := parse.Module(ctx, text)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		fmt.Printf("%s", format.Module(nil, m))
	}

	return nil
}

func optAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		obj, err := compiler.OptimizeFile(ctx, a, effects.Options{})
		if err != nil {
			return errors.Wrap(err, "optimize %v", a)
		}

		fmt.Printf("%s", obj)
	}

	return nil
}
