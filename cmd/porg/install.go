package main

import (
	"context"
	"fmt"

	"github.com/porgproject/porg/internal/sandbox"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func cmdInstall(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("install", pflag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "resolve and print the build plan without building anything")
	yes := fs.Bool("yes", false, "auto-confirm expand-to-root for recipes that require it")
	parallel := fs.Int("parallel", 1, "number of top-level packages to build concurrently")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}
	names := fs.Args()
	if len(names) == 0 {
		return usageErrf("install requires at least one package name")
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	if *dryRun {
		for _, name := range names {
			order, err := e.graph.Resolve(name)
			if err != nil {
				return partialErr(err)
			}
			fmt.Printf("%s: %v\n", name, order)
		}
		return nil
	}

	if *parallel < 1 {
		*parallel = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return e.installOne(gctx, name, *yes)
		})
	}
	if err := g.Wait(); err != nil {
		return partialErr(err)
	}
	return nil
}

// installOne resolves name's full dependency order and builds every
// package in it that isn't already installed, then builds name itself
// even if a stale record for it already exists (an explicit install
// request always rebuilds its target).
func (e *env) installOne(ctx context.Context, name string, autoYes bool) error {
	order, err := e.graph.Resolve(name)
	if err != nil {
		return err
	}
	for _, pkg := range order {
		if pkg != name {
			if ok, err := e.db.IsInstalled(pkg); err == nil && ok {
				continue
			}
		}
		path, ok := e.ports.Locate(pkg)
		if !ok {
			return fmt.Errorf("no recipe found for %s", pkg)
		}
		if _, err := e.builder.Build(ctx, path, sandbox.Options{
			ExpandToRoot: true, AutoYes: autoYes,
		}); err != nil {
			return fmt.Errorf("building %s: %w", pkg, err)
		}
	}
	return nil
}
