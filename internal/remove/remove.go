// Package remove implements the remover of spec.md §4.G: resolve the
// installed record, refuse (or override) removal when dependents or an
// unsafe prefix are in the way, run the recipe's remove hooks, unregister
// from the database, and optionally cascade into newly orphaned
// dependencies.
package remove

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/porgproject/porg/internal/db"
	"github.com/porgproject/porg/internal/depgraph"
	"github.com/porgproject/porg/internal/perr"
	"github.com/porgproject/porg/internal/plog"
	"github.com/porgproject/porg"
)

// Options controls one Remove call.
type Options struct {
	Force     bool // ignore dependents and unsafe-prefix refusals
	Recursive bool // cascade into packages left orphaned by this removal
	DryRun    bool // compute and log every decision, mutate nothing
}

// Remover removes installed packages from the DB and filesystem.
type Remover struct {
	DB    *db.DB
	Graph *depgraph.Graph
	Log   *plog.Session
}

// New constructs a Remover.
func New(database *db.DB, graph *depgraph.Graph, log *plog.Session) *Remover {
	return &Remover{DB: database, Graph: graph, Log: log}
}

// Remove removes name (and, if Recursive, every package left orphaned as
// a result) and returns every key actually (or, under DryRun, would-be)
// removed.
func (rm *Remover) Remove(ctx context.Context, name string, opts Options) ([]string, error) {
	return rm.removeOne(ctx, name, opts, map[string]bool{})
}

func (rm *Remover) removeOne(ctx context.Context, name string, opts Options, visiting map[string]bool) ([]string, error) {
	if visiting[name] {
		return nil, nil
	}
	visiting[name] = true

	rec, err := rm.DB.Get(name)
	if err != nil {
		return nil, err
	}

	dependents, err := rm.Graph.ReverseDependents(rec.Name)
	if err != nil {
		return nil, err
	}
	if len(dependents) > 0 && !opts.Force {
		return nil, &perr.DependentsError{Name: rec.Name, Dependents: dependents}
	}

	if err := rm.runHooks(ctx, "pre-remove", rec, hookCommands(rec, "pre-remove"), opts.Force, opts.DryRun); err != nil {
		return nil, err
	}

	installedRecords, err := rm.DB.List()
	if err != nil {
		return nil, err
	}
	safe := !porg.IsCriticalPrefix(rec.Prefix) && !prefixShared(installedRecords, rec)

	if opts.DryRun {
		rm.logf("dry-run: would remove %s (prefix=%s, safe=%v)", rec.Key(), rec.Prefix, safe)
	} else if safe {
		if err := os.RemoveAll(rec.Prefix); err != nil {
			return nil, perr.IOError.Newf("removing prefix %s: %v", rec.Prefix, err)
		}
	} else if opts.Force {
		rm.logf("force-removing unsafe prefix %s for %s", rec.Prefix, rec.Key())
		os.RemoveAll(rec.Prefix)
	} else {
		return nil, perr.InvalidPrefix.Newf("refusing to remove shared or critical prefix %s for %s", rec.Prefix, rec.Key())
	}

	removed := []string{rec.Key()}

	if !opts.DryRun {
		if _, err := rm.DB.Unregister(rec.Key()); err != nil {
			return nil, err
		}
	}

	if opts.Recursive {
		orphans, err := rm.Graph.Orphans()
		if err != nil {
			return nil, err
		}
		for _, o := range orphans {
			if o == rec.Name || visiting[o] {
				continue
			}
			sub, err := rm.removeOne(ctx, o, Options{Force: true, Recursive: true, DryRun: opts.DryRun}, visiting)
			if err != nil {
				rm.logf("recursive orphan removal of %s failed: %v", o, err)
				continue
			}
			removed = append(removed, sub...)
		}
	}

	// A package is already gone by this point; a failing post-remove hook
	// is logged, never fatal to a removal that already happened.
	_ = rm.runHooks(ctx, "post-remove", rec, hookCommands(rec, "post-remove"), true, opts.DryRun)

	return removed, nil
}

func prefixShared(records []porg.InstalledRecord, rec porg.InstalledRecord) bool {
	for _, r := range records {
		if r.Key() != rec.Key() && r.Prefix == rec.Prefix {
			return true
		}
	}
	return false
}

// hookCommands extracts the stored hook command list for stage from the
// record's metadata, where the installer records them newline-joined
// under "hooks.<stage>" at install time (spec.md §4.F's post-install
// registration), since the original recipe file may no longer exist by
// the time a package is removed.
func hookCommands(rec porg.InstalledRecord, stage string) []string {
	raw, ok := rec.Metadata["hooks."+stage]
	if !ok || raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

func (rm *Remover) runHooks(ctx context.Context, stage string, rec porg.InstalledRecord, cmds []string, force, dryRun bool) error {
	if dryRun {
		for _, c := range cmds {
			rm.logf("dry-run: would run %s hook: %s", stage, c)
		}
		return nil
	}
	env := append(os.Environ(), "PKG_NAME="+rec.Name, "PKG_VERSION="+rec.Version, "PKG_PREFIX="+rec.Prefix)
	for _, c := range cmds {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", c)
		cmd.Env = env
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			if force {
				rm.logf("%s hook %q failed (forced, continuing): %v", stage, c, err)
				continue
			}
			return perr.HookFailed.Newf("%s hook %q: %v", stage, c, err)
		}
	}
	return nil
}

func (rm *Remover) logf(format string, args ...interface{}) {
	if rm.Log != nil {
		rm.Log.Warnf(format, args...)
	}
}
