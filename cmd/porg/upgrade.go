package main

import (
	"context"
	"fmt"

	"github.com/porgproject/porg/internal/audit"
	"github.com/porgproject/porg/internal/upgrade"
	"github.com/spf13/pflag"
)

func cmdUpgrade(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("upgrade", pflag.ContinueOnError)
	pkg := fs.String("pkg", "", "upgrade a single package instead of the whole world")
	world := fs.Bool("world", false, "upgrade every installed package")
	check := fs.Bool("check", false, "print the upgrade plan without executing it")
	doSync := fs.Bool("sync", false, "sync the ports tree before planning")
	resume := fs.Bool("resume", false, "resume a previously interrupted upgrade for this scope")
	revdep := fs.Bool("revdep", false, "run a revdep scan and repair after upgrading")
	clean := fs.Bool("clean", false, "clean depclean orphans after upgrading")
	parallel := fs.Int("parallel", 1, "batch width for independent packages")
	dryRun := fs.Bool("dry-run", false, "equivalent to --check")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}

	scope := "world"
	if !*world {
		if *pkg == "" {
			return usageErrf("upgrade requires --pkg P or --world")
		}
		scope = *pkg
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	if *doSync {
		if _, err := e.syncer.Sync(ctx); err != nil {
			return partialErr(err)
		}
		if err := e.ports.Rescan(); err != nil {
			return partialErr(err)
		}
	}

	if *check || *dryRun {
		plan, err := e.upgrader.Plan(scope)
		if err != nil {
			return partialErr(err)
		}
		fmt.Printf("upgrade order: %v\n", plan.UpgradeOrder)
		fmt.Printf("needs rebuild: %v\n", plan.NeedsRebuild)
		return nil
	}

	err = e.upgrader.Execute(ctx, scope, upgrade.Options{
		Resume: *resume, Parallel: *parallel, ExpandToRoot: true, AutoYes: true,
	})
	if err != nil {
		return partialErr(err)
	}

	var problems bool
	if *revdep {
		broken, err := e.auditor.RevdepScan(ctx)
		if err != nil {
			return partialErr(err)
		}
		if len(broken) > 0 {
			problems = true
			if err := e.auditor.FixBroken(ctx, audit.BrokenPkgNames(broken), audit.Options{Jobs: *parallel}); err != nil {
				return partialErr(err)
			}
		}
	}
	if *clean {
		orphans, err := e.auditor.DepcleanScan()
		if err != nil {
			return partialErr(err)
		}
		if len(orphans) > 0 {
			problems = true
			if err := e.auditor.CleanOrphans(ctx, orphans, audit.Options{Jobs: *parallel}); err != nil {
				return partialErr(err)
			}
		}
	}
	if problems {
		return issuesFoundErr(fmt.Errorf("revdep/depclean found and repaired issues"))
	}
	return nil
}
