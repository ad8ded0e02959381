package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/porgproject/porg/internal/audit"
	"github.com/spf13/pflag"
)

func cmdResolve(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	scan := fs.Bool("scan", false, "run a revdep scan")
	fix := fs.Bool("fix", false, "rebuild packages the scan found broken and remove orphans --clean found")
	clean := fs.Bool("clean", false, "run a depclean scan and report orphans")
	all := fs.Bool("all", false, "equivalent to --scan --clean")
	parallel := fs.Int("parallel", 1, "repair parallelism")
	dryRun := fs.Bool("dry-run", false, "report findings without repairing them")
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}
	if *all {
		*scan, *clean = true, true
	}
	if !*scan && !*clean {
		return usageErrf("resolve requires at least one of --scan, --clean, --all")
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	rep := &audit.Report{}
	if *scan {
		broken, err := e.auditor.RevdepScan(ctx)
		if err != nil {
			return partialErr(err)
		}
		rep.BrokenLibs = broken
		if *fix && !*dryRun && len(broken) > 0 {
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
		rep.Orphans = e.auditor.OrphanDetails(orphans)
		if *fix && !*dryRun && len(orphans) > 0 {
			if err := e.auditor.CleanOrphans(ctx, orphans, audit.Options{Jobs: *parallel}); err != nil {
				return partialErr(err)
			}
		}
	}

	if *asJSON {
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return runtimeErr(err)
		}
		fmt.Println(string(b))
	} else {
		fmt.Printf("broken: %v\n", rep.BrokenLibs)
		fmt.Printf("orphans: %v\n", rep.Orphans)
	}

	if len(rep.BrokenLibs) > 0 || len(rep.Orphans) > 0 {
		return issuesFoundErr(fmt.Errorf("resolve found %d broken and %d orphaned package(s)", len(rep.BrokenLibs), len(rep.Orphans)))
	}
	return nil
}
