package audit

import (
	"context"

	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/remove"
	"github.com/porgproject/porg/internal/sandbox"
	"golang.org/x/sync/errgroup"
)

func jobLimit(jobs int) int {
	if jobs <= 0 {
		return 1
	}
	return jobs
}

// FixBroken rebuilds every named package found broken by RevdepScan,
// bounded to opts.Jobs concurrent builds via errgroup, per spec.md §4.H's
// "repair actions may run in parallel up to a configured job limit".
func (a *Auditor) FixBroken(ctx context.Context, names []string, opts Options) error {
	if opts.DryRun {
		for _, n := range names {
			a.logf("would rebuild %s", n)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobLimit(opts.Jobs))
	for _, name := range names {
		name := name
		g.Go(func() error {
			path, ok := a.Recipes.Locate(name)
			if !ok {
				return perr.MissingRecipe.Newf("no recipe found for %s", name)
			}
			_, err := a.Builder.Build(ctx, path, sandbox.Options{Force: true, AutoYes: true})
			return err
		})
	}
	return g.Wait()
}

// CleanOrphans removes every named orphaned package, bounded to opts.Jobs
// concurrent removals. Removals are independent once depclean has already
// computed the orphan set, so parallelizing them is safe: none of the
// named packages can be a reverse dependent of another (Orphans only
// returns packages with zero reverse dependents at the time of the scan).
func (a *Auditor) CleanOrphans(ctx context.Context, names []string, opts Options) error {
	if opts.DryRun {
		for _, n := range names {
			a.logf("would remove orphan %s", n)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobLimit(opts.Jobs))
	for _, name := range names {
		name := name
		g.Go(func() error {
			_, err := a.Remover.Remove(ctx, name, remove.Options{Force: true})
			return err
		})
	}
	return g.Wait()
}

func (a *Auditor) logf(format string, args ...interface{}) {
	if a.Log == nil {
		return
	}
	a.Log.Infof(format, args...)
}
