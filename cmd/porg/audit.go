package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/porgproject/porg/internal/audit"
	"github.com/spf13/pflag"
)

// auditOutput extends audit.Report with the --rebuild-needed addition,
// which belongs to the Upgrade planner's view of the world rather than
// the Auditor's own scans.
type auditOutput struct {
	audit.Report
	RebuildNeeded []string `json:"rebuild_needed,omitempty"`
}

func cmdAudit(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("audit", pflag.ContinueOnError)
	scan := fs.Bool("scan", false, "run a revdep scan")
	fix := fs.Bool("fix", false, "rebuild packages found broken")
	clean := fs.Bool("clean", false, "run a depclean scan and remove the orphans it finds")
	full := fs.Bool("audit", false, "run every scan (revdep, depclean, symlinks, .la files, orphan files)")
	rebuildNeeded := fs.Bool("rebuild-needed", false, "report packages with a newer recipe version available")
	all := fs.Bool("all", false, "equivalent to --audit --fix --clean --rebuild-needed")
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	dryRun := fs.Bool("dry-run", false, "report findings without repairing them")
	if err := fs.Parse(args); err != nil {
		return usageErrf("%v", err)
	}
	if *all {
		*full, *fix, *clean, *rebuildNeeded = true, true, true, true
	}
	if !*scan && !*clean && !*full && !*rebuildNeeded {
		return usageErrf("audit requires at least one of --scan, --clean, --audit, --rebuild-needed, --all")
	}

	e, err := newEnv()
	if err != nil {
		return err
	}

	out := auditOutput{}
	var brokenNames, orphanNames []string
	switch {
	case *full:
		rep, err := e.auditor.Audit(ctx)
		if err != nil {
			return partialErr(err)
		}
		out.Report = *rep
		brokenNames = audit.BrokenPkgNames(out.BrokenLibs)
		for _, o := range out.Orphans {
			orphanNames = append(orphanNames, o.Pkg)
		}
	default:
		if *scan {
			broken, err := e.auditor.RevdepScan(ctx)
			if err != nil {
				return partialErr(err)
			}
			out.BrokenLibs = broken
			brokenNames = audit.BrokenPkgNames(broken)
		}
		if *clean {
			orphans, err := e.auditor.DepcleanScan()
			if err != nil {
				return partialErr(err)
			}
			orphanNames = orphans
			out.Orphans = e.auditor.OrphanDetails(orphans)
		}
	}

	if *fix && !*dryRun && len(brokenNames) > 0 {
		if err := e.auditor.FixBroken(ctx, brokenNames, audit.Options{}); err != nil {
			return partialErr(err)
		}
	}
	if *clean && !*dryRun && len(orphanNames) > 0 {
		if err := e.auditor.CleanOrphans(ctx, orphanNames, audit.Options{}); err != nil {
			return partialErr(err)
		}
	}
	if *rebuildNeeded {
		plan, err := e.upgrader.Plan("world")
		if err != nil {
			return partialErr(err)
		}
		out.RebuildNeeded = plan.NeedsRebuild
	}

	if *asJSON {
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return runtimeErr(err)
		}
		fmt.Println(string(b))
	} else {
		fmt.Printf("broken: %v\n", out.BrokenLibs)
		fmt.Printf("orphans: %v\n", out.Orphans)
		if len(out.BrokenSymlinks) > 0 {
			fmt.Printf("broken symlinks: %v\n", out.BrokenSymlinks)
		}
		if len(out.PkgconfLA) > 0 {
			fmt.Printf("stray .la files: %v\n", out.PkgconfLA)
		}
		if len(out.PythonOrphans) > 0 {
			fmt.Printf("python orphans: %v\n", out.PythonOrphans)
		}
		if len(out.Security) > 0 {
			fmt.Printf("security: %v\n", out.Security)
		}
		if len(out.OrphanFiles) > 0 {
			fmt.Printf("orphan files: %v\n", out.OrphanFiles)
		}
		if len(out.RebuildNeeded) > 0 {
			fmt.Printf("needs rebuild: %v\n", out.RebuildNeeded)
		}
	}

	if len(out.BrokenLibs) > 0 || len(out.Orphans) > 0 || len(out.BrokenSymlinks) > 0 ||
		len(out.PkgconfLA) > 0 || len(out.PythonOrphans) > 0 || len(out.Security) > 0 || len(out.OrphanFiles) > 0 {
		return issuesFoundErr(fmt.Errorf("audit found outstanding problems"))
	}
	return nil
}
